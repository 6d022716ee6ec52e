package simulator

import (
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"
)

// ErrUnknownField is reported for edits naming a field that does not exist.
var ErrUnknownField = errors.New("unknown field")

// FieldDescriptor binds one editable Config field to a display label and
// typed accessors. Set parses the textual value and rejects values that do
// not parse as the field's type.
type FieldDescriptor struct {
	Name  string
	Label string
	Get   func(c *Config) string
	Set   func(c *Config, value string) error
}

func int64Field(name, label string, field func(c *Config) *int64) FieldDescriptor {
	return FieldDescriptor{
		Name:  name,
		Label: label,
		Get:   func(c *Config) string { return strconv.FormatInt(*field(c), 10) },
		Set: func(c *Config, value string) error {
			v, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			*field(c) = v
			return nil
		},
	}
}

func intField(name, label string, field func(c *Config) *int) FieldDescriptor {
	return FieldDescriptor{
		Name:  name,
		Label: label,
		Get:   func(c *Config) string { return strconv.Itoa(*field(c)) },
		Set: func(c *Config, value string) error {
			v, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*field(c) = v
			return nil
		},
	}
}

func float64Field(name, label string, field func(c *Config) *float64) FieldDescriptor {
	return FieldDescriptor{
		Name:  name,
		Label: label,
		Get:   func(c *Config) string { return strconv.FormatFloat(*field(c), 'g', -1, 64) },
		Set: func(c *Config, value string) error {
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return err
			}
			*field(c) = v
			return nil
		},
	}
}

// ConfigFields enumerates the fields a UI may edit while a simulation runs.
func ConfigFields() []FieldDescriptor {
	return []FieldDescriptor{
		int64Field("flushGapMs", "Gap between flushes (ms)", func(c *Config) *int64 { return &c.FlushGapMs }),
		int64Field("memstoreBytes", "Memstore flush size (bytes)", func(c *Config) *int64 { return &c.MemstoreBytes }),
		intField("storeCount", "Stores count", func(c *Config) *int { return &c.StoreCount }),
		int64Field("keyValueTTLMs", "KeyValue TTL (ms)", func(c *Config) *int64 { return &c.KeyValueTTLMs }),
		float64Field("keyValueTTLJitter", "KeyValue TTL jitter", func(c *Config) *float64 { return &c.KeyValueTTLJitter }),
		int64Field("keyValueBytes", "KeyValue size (bytes)", func(c *Config) *int64 { return &c.KeyValueBytes }),
		float64Field("keyValueBytesJitter", "KeyValue size jitter", func(c *Config) *float64 { return &c.KeyValueBytesJitter }),
		int64Field("hdfsReadBytesPerSec", "Read bytes per second from HDFS", func(c *Config) *int64 { return &c.HDFSReadBytesPerSec }),
		int64Field("hdfsWriteBytesPerSec", "Write bytes per second to HDFS", func(c *Config) *int64 { return &c.HDFSWriteBytesPerSec }),
		int64Field("xFaster", "xFaster", func(c *Config) *int64 { return &c.XFaster }),
		int64Field("keyValuesPerPut", "KeyValues count per put", func(c *Config) *int64 { return &c.KeyValuesPerPut }),
		int64Field("compressionRatio", "Compression ratio", func(c *Config) *int64 { return &c.CompressionRatio }),
	}
}

// ApplyEdits returns cfg with every edit applied. Each edit maps a field name
// from ConfigFields to its new textual value. All offending fields are
// reported together as FieldErrors; if any edit fails, or the result does not
// validate, cfg is returned unchanged along with the error.
func ApplyEdits(cfg Config, edits map[string]string) (Config, error) {
	fields := make(map[string]FieldDescriptor)
	for _, f := range ConfigFields() {
		fields[f.Name] = f
	}

	names := make([]string, 0, len(edits))
	for name := range edits {
		names = append(names, name)
	}
	sort.Strings(names)

	next := cfg.Clone()
	var errs error
	for _, name := range names {
		value := edits[name]
		f, ok := fields[name]
		if !ok {
			errs = multierr.Append(errs, &FieldError{Field: name, Value: value, Err: ErrUnknownField})
			continue
		}
		if err := f.Set(&next, value); err != nil {
			errs = multierr.Append(errs, &FieldError{Field: name, Value: value, Err: err})
		}
	}
	if errs != nil {
		return cfg, errs
	}
	if err := next.Validate(); err != nil {
		return cfg, err
	}
	return next, nil
}
