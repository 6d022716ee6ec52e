package simulator

import "math"

// levelCompactionPicker approximates per-level compaction of a leveled LSM
// engine on top of a flat file list.
//
// Level i holds files of about fileSize(i) bytes and has a budget of
// level0Files * defFileSize * increase^i bytes. Levels are checked from 0
// upward; the first level whose run of same-sized files exceeds its budget
// is compacted as a whole.
type levelCompactionPicker struct {
	alwaysLarge
	cfg      LevelCompactionConfig
	settings *Settings
}

func (c *LevelCompactionConfig) newPicker(env Env) CompactionPicker {
	return &levelCompactionPicker{cfg: *c, settings: env.Settings}
}

// defFileSize is the size of a freshly flushed file.
func (p *levelCompactionPicker) defFileSize() int64 {
	cfg := p.settings.Load()
	return cfg.MemstoreBytes / cfg.CompressionRatio
}

// levelSize is the byte budget of level i.
func (p *levelCompactionPicker) levelSize(i int) int64 {
	return int64(p.cfg.Level0Files * float64(p.defFileSize()) * math.Pow(p.cfg.LevelsSizeIncrease, float64(i)))
}

// fileSize is the typical size of a file living at level i: level 0 holds
// flush outputs, deeper levels hold the output of compacting the level
// above.
func (p *levelCompactionPicker) fileSize(i int) int64 {
	if i == 0 {
		return p.defFileSize()
	}
	return p.levelSize(i - 1)
}

// isAboutTheSame reports whether a and b differ by less than
// max(a, b)/similarityRatio.
func (p *levelCompactionPicker) isAboutTheSame(a, b int64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	hi := a
	if b > hi {
		hi = b
	}
	return diff < hi/p.cfg.FilesSimilarityRatio
}

func (p *levelCompactionPicker) PickCompaction(files *StoreFileCollection) *StoreFileCollection {
	sizes := files.Sizes()
	for level := 0; level < p.cfg.LevelsCount; level++ {
		target := p.fileSize(level)
		first, last := -1, -1
		var total int64
		for i, size := range sizes {
			if !p.isAboutTheSame(size, target) {
				continue
			}
			if first < 0 {
				first = i
			}
			last = i
		}
		if first < 0 {
			continue
		}
		// Sorted order keeps the matching files contiguous, so the run is
		// [first, last].
		for _, size := range sizes[first : last+1] {
			total += size
		}
		// A lone file would be rewritten to the same size forever.
		if last > first && total > p.levelSize(level) {
			return files.SubList(first, last+1)
		}
	}
	return nil
}
