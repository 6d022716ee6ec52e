package simulator

// randomCompactionPicker compacts a uniformly random subset of files once the
// store holds more than maxFiles files. It is a baseline to compare the other
// policies against.
type randomCompactionPicker struct {
	alwaysLarge
	cfg RandomCompactionConfig
	rng *RandomGenerator
}

func (c *RandomCompactionConfig) newPicker(env Env) CompactionPicker {
	return &randomCompactionPicker{cfg: *c, rng: env.Rand}
}

func (p *randomCompactionPicker) PickCompaction(files *StoreFileCollection) *StoreFileCollection {
	all := files.Files()
	if len(all) <= p.cfg.MaxFiles {
		return nil
	}
	picked := make([]*StoreFile, 0, p.cfg.FilesToCompact)
	for _, i := range p.rng.Sample(len(all), p.cfg.FilesToCompact) {
		picked = append(picked, all[i])
	}
	return NewStoreFileCollection(picked...)
}
