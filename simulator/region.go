package simulator

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Region is a fixed set of stores, one per column family.
type Region struct {
	stores []*Store
}

// NewRegion creates one store per policy; store i runs policies[i].
func NewRegion(policies []CompactionPolicyConfig, env Env, recorder amplificationRecorder) *Region {
	env = env.withDefaults()
	r := &Region{stores: make([]*Store, len(policies))}
	for cf, policy := range policies {
		r.stores[cf] = NewStore(cf, policy, env, recorder)
	}
	return r
}

// Len returns the number of stores.
func (r *Region) Len() int { return len(r.stores) }

// Store returns the store of column family cf.
func (r *Region) Store(cf int) *Store { return r.stores[cf] }

// Put writes one key-value pack to column family cf.
func (r *Region) Put(cf int) {
	r.stores[cf].Put()
}

// ReadAmplification returns the current file count of every store.
func (r *Region) ReadAmplification() []int64 {
	amps := make([]int64, len(r.stores))
	for i, s := range r.stores {
		amps[i] = s.ReadAmplification()
	}
	return amps
}

// Titles returns the chart label of every store.
func (r *Region) Titles() []string {
	titles := make([]string, len(r.stores))
	for i, s := range r.stores {
		titles[i] = s.Title()
	}
	return titles
}

// Run runs every store until ctx is done.
func (r *Region) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range r.stores {
		s := s
		g.Go(func() error { return s.Run(ctx) })
	}
	return g.Wait()
}
