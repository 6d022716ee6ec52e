package simulator

// similarityCompactionPicker compacts the longest run of files that are all
// within similarityRatio of the run's largest file.
type similarityCompactionPicker struct {
	alwaysLarge
	cfg SimilarityCompactionConfig
}

func (c *SimilarityCompactionConfig) newPicker(Env) CompactionPicker {
	return &similarityCompactionPicker{cfg: *c}
}

func (p *similarityCompactionPicker) PickCompaction(files *StoreFileCollection) *StoreFileCollection {
	sizes := files.Sizes()
	ratio := p.cfg.FilesSimilarityRatio
	bestStart, bestLen := 0, 0
	for start := range sizes {
		end := start + 1
		for end < len(sizes) && sizes[end]*ratio > sizes[start] {
			end++
		}
		if end-start > bestLen {
			bestStart, bestLen = start, end-start
		}
	}
	if bestLen == 0 || bestLen < p.cfg.MinFilesToCompact {
		return nil
	}
	return files.SubList(bestStart, bestStart+bestLen)
}
