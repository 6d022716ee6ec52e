package simulator

// hbaseCompactionPicker implements HBase's ratio-based minor compaction
// selection.
//
// HBase Reference: RatioBasedCompactionPolicy.applyCompactionPolicy in
// hbase-server/.../regionserver/compactions/RatioBasedCompactionPolicy.java
//
// Files arrive sorted largest first. Starting from the largest, a file is
// skipped while it is bigger than ratio times the sum of the following
// maxFiles-1 (smaller) files, floored by minBytes. Whatever remains is
// compacted if it holds at least minFiles files, capped at maxFiles.
type hbaseCompactionPicker struct {
	cfg HBaseCompactionConfig
}

func (c *HBaseCompactionConfig) newPicker(Env) CompactionPicker {
	return &hbaseCompactionPicker{cfg: *c}
}

func (c *HBaseCompactionConfig) majorCompactionSchedule() (int64, float64) {
	return c.MajorCompactionGapMs, c.MajorCompactionJitter
}

// Classify routes compactions above the throttle size to the large queue.
func (p *hbaseCompactionPicker) Classify(totalBytes int64) CompactionSize {
	if totalBytes > p.cfg.Throttle {
		return CompactionLarge
	}
	return CompactionSmall
}

func (p *hbaseCompactionPicker) PickCompaction(files *StoreFileCollection) *StoreFileCollection {
	candidates := p.skipLargeFiles(files.Files())
	candidates = p.applyRatio(candidates)
	if len(candidates) < p.cfg.MinFiles {
		return nil
	}
	if excess := len(candidates) - p.cfg.MaxFiles; excess > 0 {
		// Drop the largest excess files.
		candidates = candidates[excess:]
	}
	if len(candidates) < 2 {
		// A lone file would be rewritten forever.
		return nil
	}
	return NewStoreFileCollection(candidates...)
}

// skipLargeFiles drops the leading files above maxBytes. Since files are
// sorted largest first, that is every file above the cutoff.
func (p *hbaseCompactionPicker) skipLargeFiles(files []*StoreFile) []*StoreFile {
	start := 0
	for start < len(files) && files[start].BytesSize() > p.cfg.MaxBytes {
		start++
	}
	return files[start:]
}

func (p *hbaseCompactionPicker) applyRatio(files []*StoreFile) []*StoreFile {
	n := len(files)
	if n == 0 {
		return nil
	}
	sizes := make([]int64, n)
	for i, f := range files {
		sizes[i] = f.BytesSize()
	}
	// sumSize[i] is the size of files [i, i+maxFiles-1), built as a sliding
	// window from the small end.
	sumSize := make([]int64, n+1)
	for i := n - 1; i >= 0; i-- {
		sumSize[i] = sizes[i] + sumSize[i+1]
		if tooFar := i + p.cfg.MaxFiles - 1; tooFar < n {
			sumSize[i] -= sizes[tooFar]
		}
	}

	start := 0
	for n-start >= p.cfg.MinFiles && start < n-1 {
		limit := float64(sumSize[start+1]) * p.cfg.Ratio
		if floor := float64(p.cfg.MinBytes); floor > limit {
			limit = floor
		}
		if float64(sizes[start]) <= limit {
			break
		}
		start++
	}
	return files[start:]
}
