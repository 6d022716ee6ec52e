package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWritePacer_CarriesRemainder(t *testing.T) {
	cfg := smallConfig() // 100 byte puts, 1000 byte memstore
	cfg.FlushGapMs = 1000
	cfg.XFaster = 3

	start := time.Unix(0, 0)
	p := newWritePacer(start)

	// Each put is worth 1000*100/(3*1*1000) = 33.33ms; the fractions add up
	// to a whole millisecond every third put.
	assert.Equal(t, 33*time.Millisecond, p.advance(&cfg, 1))
	assert.Equal(t, 33*time.Millisecond, p.advance(&cfg, 1))
	assert.Equal(t, 34*time.Millisecond, p.advance(&cfg, 1))
	assert.Equal(t, int64(0), p.carry)
	assert.Equal(t, start.Add(100*time.Millisecond), p.deadline)
}

func TestWritePacer_SpreadsOverStores(t *testing.T) {
	cfg := smallConfig()
	cfg.FlushGapMs = 1000
	cfg.XFaster = 1

	p := newWritePacer(time.Unix(0, 0))
	var total time.Duration
	for i := 0; i < 40; i++ {
		total += p.advance(&cfg, 4)
	}

	// Forty puts are one memstore for each of four stores: one flush gap.
	assert.Equal(t, time.Second, total)
}
