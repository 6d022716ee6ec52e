package simulator

import "go.uber.org/zap"

// Env bundles the collaborators shared by every component of one simulation.
type Env struct {
	Settings *Settings
	Rand     *RandomGenerator
	Clock    Clock
	Logger   *zap.Logger
}

// withDefaults fills unset collaborators. Settings must be provided.
func (e Env) withDefaults() Env {
	if e.Rand == nil {
		var seed int64
		if e.Settings != nil {
			seed = e.Settings.Load().RandomSeed
		}
		e.Rand = NewRandomGenerator(seed)
	}
	if e.Clock == nil {
		e.Clock = SystemClock()
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	return e
}
