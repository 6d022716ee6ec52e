package simulator

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// CompactionAlgorithm names a compaction policy preset.
type CompactionAlgorithm int

const (
	AlgorithmHBaseDefault   CompactionAlgorithm = iota // HBase ratio-based selection with stock settings
	AlgorithmHBaseSpecific1                            // HBase selection tuned for fewer, smaller compactions
	AlgorithmHBaseSpecific2                            // HBase selection tuned for wide compactions
	AlgorithmHBaseRandom                               // HBase selection with randomly sampled tunables
	AlgorithmLevel                                     // Leveled LSM approximation
	AlgorithmSimilarity                                // Longest run of similarly sized files
	AlgorithmRandom                                    // Uniformly random selection (baseline)
)

var algorithmNames = []string{
	AlgorithmHBaseDefault:   "hbase-default",
	AlgorithmHBaseSpecific1: "hbase-specific1",
	AlgorithmHBaseSpecific2: "hbase-specific2",
	AlgorithmHBaseRandom:    "hbase-random",
	AlgorithmLevel:          "level",
	AlgorithmSimilarity:     "similarity",
	AlgorithmRandom:         "random",
}

// String returns the string representation of CompactionAlgorithm
func (a CompactionAlgorithm) String() string {
	if a >= 0 && int(a) < len(algorithmNames) {
		return algorithmNames[a]
	}
	return fmt.Sprintf("unknown(%d)", int(a))
}

// ParseCompactionAlgorithm parses a string into CompactionAlgorithm
func ParseCompactionAlgorithm(s string) (CompactionAlgorithm, error) {
	for i, name := range algorithmNames {
		if name == s {
			return CompactionAlgorithm(i), nil
		}
	}
	return AlgorithmHBaseDefault, fmt.Errorf("invalid compaction algorithm: %s (must be one of %v)", s, algorithmNames)
}

// CompactionAlgorithms lists every known algorithm in declaration order.
func CompactionAlgorithms() []CompactionAlgorithm {
	all := make([]CompactionAlgorithm, len(algorithmNames))
	for i := range all {
		all[i] = CompactionAlgorithm(i)
	}
	return all
}

// MarshalJSON implements json.Marshaler for CompactionAlgorithm
func (a CompactionAlgorithm) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON implements json.Unmarshaler for CompactionAlgorithm
func (a *CompactionAlgorithm) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseCompactionAlgorithm(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler for CompactionAlgorithm
func (a CompactionAlgorithm) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler for CompactionAlgorithm
func (a *CompactionAlgorithm) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseCompactionAlgorithm(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// CompactionPolicyConfig is the resolved, immutable tunables of one store's
// compaction policy. Each policy has its own concrete type.
type CompactionPolicyConfig interface {
	// Title is the short policy name shown next to the store in charts.
	Title() string
	Validate() error
	newPicker(env Env) CompactionPicker
}

// HBaseCompactionConfig tunes the HBase ratio-based selection.
type HBaseCompactionConfig struct {
	Name                  string  `json:"title,omitempty" yaml:"title,omitempty"`
	MinFiles              int     `json:"minFiles" yaml:"minFiles"`                           // hbase.hstore.compaction.min
	MaxFiles              int     `json:"maxFiles" yaml:"maxFiles"`                           // hbase.hstore.compaction.max
	MinBytes              int64   `json:"minBytes" yaml:"minBytes"`                           // hbase.hstore.compaction.min.size
	MaxBytes              int64   `json:"maxBytes" yaml:"maxBytes"`                           // hbase.hstore.compaction.max.size
	Ratio                 float64 `json:"ratio" yaml:"ratio"`                                 // hbase.hstore.compaction.ratio
	Throttle              int64   `json:"throttle" yaml:"throttle"`                           // Total bytes above which a compaction is large
	MajorCompactionGapMs  int64   `json:"majorCompactionGapMs" yaml:"majorCompactionGapMs"`   // Simulated period of forced major compactions, 0 disables
	MajorCompactionJitter float64 `json:"majorCompactionJitter" yaml:"majorCompactionJitter"` // Relative jitter of the period
}

// Title returns the configured name, "hbase" by default.
func (c *HBaseCompactionConfig) Title() string {
	if c.Name != "" {
		return c.Name
	}
	return "hbase"
}

func (c *HBaseCompactionConfig) Validate() error {
	if c.MinFiles < 2 {
		return ErrInvalidConfig("hbase minFiles must be >= 2")
	}
	if c.MaxFiles < 2 {
		return ErrInvalidConfig("hbase maxFiles must be >= 2")
	}
	if c.MinBytes < 0 || c.MaxBytes < 0 {
		return ErrInvalidConfig("hbase minBytes and maxBytes must be >= 0")
	}
	if c.Ratio <= 0 {
		return ErrInvalidConfig("hbase ratio must be > 0")
	}
	if c.Throttle < 0 {
		return ErrInvalidConfig("hbase throttle must be >= 0")
	}
	if c.MajorCompactionGapMs < 0 {
		return ErrInvalidConfig("hbase majorCompactionGapMs must be >= 0")
	}
	if c.MajorCompactionJitter < 0 || c.MajorCompactionJitter > 1 {
		return ErrInvalidConfig("hbase majorCompactionJitter must be between 0 and 1")
	}
	return nil
}

// LevelCompactionConfig tunes the leveled selection.
type LevelCompactionConfig struct {
	Name                 string  `json:"title,omitempty" yaml:"title,omitempty"`
	Level0Files          float64 `json:"level0Files" yaml:"level0Files"`                   // Level 0 budget, in default file sizes
	LevelsSizeIncrease   float64 `json:"levelsSizeIncrease" yaml:"levelsSizeIncrease"`     // Growth factor between levels
	FilesSimilarityRatio int64   `json:"filesSimilarityRatio" yaml:"filesSimilarityRatio"` // Files within size/ratio of each other are "about the same"
	LevelsCount          int     `json:"levelsCount" yaml:"levelsCount"`
}

// Title returns the configured name, "level" by default.
func (c *LevelCompactionConfig) Title() string {
	if c.Name != "" {
		return c.Name
	}
	return "level"
}

func (c *LevelCompactionConfig) Validate() error {
	if c.Level0Files <= 0 {
		return ErrInvalidConfig("level level0Files must be > 0")
	}
	if c.LevelsSizeIncrease <= 0 {
		return ErrInvalidConfig("level levelsSizeIncrease must be > 0")
	}
	if c.FilesSimilarityRatio < 1 {
		return ErrInvalidConfig("level filesSimilarityRatio must be >= 1")
	}
	if c.LevelsCount < 1 {
		return ErrInvalidConfig("level levelsCount must be >= 1")
	}
	return nil
}

// SimilarityCompactionConfig tunes the longest-similar-run selection.
type SimilarityCompactionConfig struct {
	Name                 string `json:"title,omitempty" yaml:"title,omitempty"`
	MinFilesToCompact    int    `json:"minFilesToCompact" yaml:"minFilesToCompact"`
	FilesSimilarityRatio int64  `json:"filesSimilarityRatio" yaml:"filesSimilarityRatio"`
}

// Title returns the configured name, "ibra" by default.
func (c *SimilarityCompactionConfig) Title() string {
	if c.Name != "" {
		return c.Name
	}
	return "ibra"
}

func (c *SimilarityCompactionConfig) Validate() error {
	if c.MinFilesToCompact < 2 {
		return ErrInvalidConfig("similarity minFilesToCompact must be >= 2")
	}
	if c.FilesSimilarityRatio < 1 {
		return ErrInvalidConfig("similarity filesSimilarityRatio must be >= 1")
	}
	return nil
}

// RandomCompactionConfig tunes the random selection.
type RandomCompactionConfig struct {
	Name           string `json:"title,omitempty" yaml:"title,omitempty"`
	MaxFiles       int    `json:"maxFiles" yaml:"maxFiles"`             // Compact only when more files than this exist
	FilesToCompact int    `json:"filesToCompact" yaml:"filesToCompact"` // Files picked per compaction
}

// Title returns the configured name, "random" by default.
func (c *RandomCompactionConfig) Title() string {
	if c.Name != "" {
		return c.Name
	}
	return "random"
}

func (c *RandomCompactionConfig) Validate() error {
	if c.MaxFiles < 0 {
		return ErrInvalidConfig("random maxFiles must be >= 0")
	}
	if c.FilesToCompact < 2 {
		return ErrInvalidConfig("random filesToCompact must be >= 2")
	}
	return nil
}

// CompactionSpec selects a store's compaction policy: a preset algorithm,
// optionally with explicit tunables. At most the override matching the
// algorithm's family may be set.
type CompactionSpec struct {
	Algorithm  CompactionAlgorithm         `json:"algorithm" yaml:"algorithm"`
	HBase      *HBaseCompactionConfig      `json:"hbase,omitempty" yaml:"hbase,omitempty"`
	Level      *LevelCompactionConfig      `json:"level,omitempty" yaml:"level,omitempty"`
	Similarity *SimilarityCompactionConfig `json:"similarity,omitempty" yaml:"similarity,omitempty"`
	Random     *RandomCompactionConfig     `json:"random,omitempty" yaml:"random,omitempty"`
}

func (s CompactionSpec) isHBase() bool {
	switch s.Algorithm {
	case AlgorithmHBaseDefault, AlgorithmHBaseSpecific1, AlgorithmHBaseSpecific2, AlgorithmHBaseRandom:
		return true
	}
	return false
}

// Validate checks that the spec names a known algorithm and carries no
// override for a different policy family.
func (s CompactionSpec) Validate() error {
	if s.Algorithm < 0 || int(s.Algorithm) >= len(algorithmNames) {
		return ErrInvalidConfig(fmt.Sprintf("unknown compaction algorithm %d", int(s.Algorithm)))
	}
	overrides := map[string]bool{
		"hbase":      s.HBase != nil,
		"level":      s.Level != nil,
		"similarity": s.Similarity != nil,
		"random":     s.Random != nil,
	}
	allowed := ""
	switch {
	case s.isHBase():
		allowed = "hbase"
	case s.Algorithm == AlgorithmLevel:
		allowed = "level"
	case s.Algorithm == AlgorithmSimilarity:
		allowed = "similarity"
	case s.Algorithm == AlgorithmRandom:
		allowed = "random"
	}
	for name, set := range overrides {
		if set && name != allowed {
			return ErrInvalidConfig(fmt.Sprintf("%s overrides do not apply to algorithm %s", name, s.Algorithm))
		}
	}
	switch {
	case s.HBase != nil:
		return s.HBase.Validate()
	case s.Level != nil:
		return s.Level.Validate()
	case s.Similarity != nil:
		return s.Similarity.Validate()
	case s.Random != nil:
		return s.Random.Validate()
	}
	return nil
}

// Resolve turns the spec into the policy configuration of one store. Preset
// values that depend on the memstore size use memstoreBytes; the
// hbase-random preset draws its tunables from rng.
func (s CompactionSpec) Resolve(memstoreBytes int64, rng *RandomGenerator) (CompactionPolicyConfig, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	var policy CompactionPolicyConfig
	switch {
	case s.HBase != nil:
		c := *s.HBase
		policy = &c
	case s.Level != nil:
		c := *s.Level
		policy = &c
	case s.Similarity != nil:
		c := *s.Similarity
		policy = &c
	case s.Random != nil:
		c := *s.Random
		policy = &c
	default:
		policy = presetPolicy(s.Algorithm, memstoreBytes, rng)
	}
	if policy == nil {
		return nil, errors.Newf("no preset for compaction algorithm %s", s.Algorithm)
	}
	return policy, nil
}

func presetPolicy(a CompactionAlgorithm, memstoreBytes int64, rng *RandomGenerator) CompactionPolicyConfig {
	switch a {
	case AlgorithmHBaseDefault:
		return &HBaseCompactionConfig{
			Name:                  "hbase",
			MinFiles:              2,
			MaxFiles:              12,
			MinBytes:              0,
			MaxBytes:              1 << 62,
			Ratio:                 1.3,
			Throttle:              2 * 12 * memstoreBytes,
			MajorCompactionGapMs:  8_400_000,
			MajorCompactionJitter: 0.21,
		}
	case AlgorithmHBaseSpecific1:
		return &HBaseCompactionConfig{
			Name:                  "hbase1",
			MinFiles:              5,
			MaxFiles:              10,
			MaxBytes:              1 << 62,
			Ratio:                 1.1,
			Throttle:              1_700_000_000,
			MajorCompactionGapMs:  40 * daysMs,
			MajorCompactionJitter: 0.4,
		}
	case AlgorithmHBaseSpecific2:
		return &HBaseCompactionConfig{
			Name:                  "hbase2",
			MinFiles:              8,
			MaxFiles:              18,
			MaxBytes:              1 << 62,
			Ratio:                 1.4,
			Throttle:              15_000_000_000,
			MajorCompactionGapMs:  20 * daysMs,
			MajorCompactionJitter: 0.25,
		}
	case AlgorithmHBaseRandom:
		maxFiles := int(rng.Int64Range(5, 20))
		return &HBaseCompactionConfig{
			Name:                  "hbaseR",
			MinFiles:              int(rng.Int64Range(3, 12)),
			MaxFiles:              maxFiles,
			MaxBytes:              1 << 62,
			Ratio:                 rng.Float64Range(0.2, 3.0),
			Throttle:              2 * int64(maxFiles) * memstoreBytes,
			MajorCompactionGapMs:  1000 * daysMs,
			MajorCompactionJitter: 0.2,
		}
	case AlgorithmLevel:
		return &LevelCompactionConfig{
			Name:                 "level",
			Level0Files:          5,
			LevelsSizeIncrease:   1.5,
			FilesSimilarityRatio: 2,
			LevelsCount:          25,
		}
	case AlgorithmSimilarity:
		return &SimilarityCompactionConfig{
			Name:                 "ibra",
			MinFilesToCompact:    10,
			FilesSimilarityRatio: 3,
		}
	case AlgorithmRandom:
		return &RandomCompactionConfig{
			Name:           "random",
			MaxFiles:       10,
			FilesToCompact: 5,
		}
	}
	return nil
}
