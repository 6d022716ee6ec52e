package simulator

import "time"

// writePacer spaces puts so that, across storeCount stores, every store
// flushes once per FlushGapMs of simulated time. The per-put gap rarely comes
// out as a whole number of milliseconds, so the remainder of each division
// is carried into the next one instead of being rounded away, and the
// deadline advances from the previous deadline rather than from "now". A
// late iteration therefore shortens the following waits until the schedule
// has caught up.
type writePacer struct {
	deadline time.Time
	carry    int64
}

func newWritePacer(start time.Time) *writePacer {
	return &writePacer{deadline: start}
}

// advance moves the deadline by one put and returns the gap it added.
func (p *writePacer) advance(cfg *Config, storeCount int) time.Duration {
	num := cfg.FlushGapMs * cfg.PackBytes()
	den := cfg.XFaster * int64(storeCount) * cfg.MemstoreBytes
	total := p.carry + num
	waitMs := total / den
	p.carry = total % den
	wait := time.Duration(waitMs) * time.Millisecond
	p.deadline = p.deadline.Add(wait)
	return wait
}
