package simulator

import "time"

// KeyValueData accumulates the key-value packs written to a memstore or held
// by a store file. Only sizes are tracked; no real data exists.
type KeyValueData interface {
	// BytesSize is the total size of all live packs.
	BytesSize() int64
	// AddPack appends one freshly written pack.
	AddPack(bytes int64)
	// Compress divides every pack size by ratio. Ratios below 2 are a no-op.
	Compress(ratio int64)
	// MergeWith absorbs the live packs of other and returns the bytes
	// actually merged. other is left untouched.
	MergeWith(other KeyValueData) int64
	// Clear drops all packs.
	Clear()
	// Clone returns an independent copy.
	Clone() KeyValueData
}

// newKeyValueData picks the variant matching the current TTL setting.
func newKeyValueData(settings *Settings, rng *RandomGenerator, clock Clock) KeyValueData {
	if settings.Load().TTLEnabled() {
		return newTTLKeyValueData(settings, rng, clock)
	}
	return &plainKeyValueData{}
}

// plainKeyValueData keeps only a running byte total; nothing ever expires.
type plainKeyValueData struct {
	bytes int64
}

func (d *plainKeyValueData) BytesSize() int64 { return d.bytes }

func (d *plainKeyValueData) AddPack(bytes int64) { d.bytes += bytes }

func (d *plainKeyValueData) Compress(ratio int64) {
	if ratio > 1 {
		d.bytes /= ratio
	}
}

func (d *plainKeyValueData) MergeWith(other KeyValueData) int64 {
	merged := other.BytesSize()
	d.bytes += merged
	return merged
}

func (d *plainKeyValueData) Clear() { d.bytes = 0 }

func (d *plainKeyValueData) Clone() KeyValueData {
	c := *d
	return &c
}

// pack is one put's worth of key-values.
type pack struct {
	created time.Time
	bytes   int64
}

// ttlKeyValueData remembers when every pack was written so that merges can
// drop expired packs. bytes always equals the sum of pack sizes.
type ttlKeyValueData struct {
	settings *Settings
	rng      *RandomGenerator
	clock    Clock

	packs []pack
	bytes int64
}

func newTTLKeyValueData(settings *Settings, rng *RandomGenerator, clock Clock) *ttlKeyValueData {
	return &ttlKeyValueData{settings: settings, rng: rng, clock: clock}
}

func (d *ttlKeyValueData) BytesSize() int64 { return d.bytes }

func (d *ttlKeyValueData) AddPack(bytes int64) {
	d.packs = append(d.packs, pack{created: d.clock.Now(), bytes: bytes})
	d.bytes += bytes
}

func (d *ttlKeyValueData) Compress(ratio int64) {
	if ratio <= 1 {
		return
	}
	d.bytes = 0
	for i := range d.packs {
		d.packs[i].bytes /= ratio
		d.bytes += d.packs[i].bytes
	}
}

// expired reports whether a pack written at created is past its TTL. The age
// is measured in simulated time and each pack draws its own jittered TTL.
func (d *ttlKeyValueData) expired(created, now time.Time) bool {
	cfg := d.settings.Load()
	if !cfg.TTLEnabled() {
		return false
	}
	ageMs := now.Sub(created).Milliseconds() * cfg.XFaster
	return ageMs >= d.rng.Jittered(cfg.KeyValueTTLMs, cfg.KeyValueTTLJitter)
}

func (d *ttlKeyValueData) MergeWith(other KeyValueData) int64 {
	o, ok := other.(*ttlKeyValueData)
	if !ok {
		// No age information: treat the whole input as written now.
		merged := other.BytesSize()
		if merged > 0 {
			d.AddPack(merged)
		}
		return merged
	}
	now := d.clock.Now()
	var merged int64
	for _, p := range o.packs {
		if d.expired(p.created, now) {
			continue
		}
		d.packs = append(d.packs, p)
		merged += p.bytes
	}
	d.bytes += merged
	return merged
}

func (d *ttlKeyValueData) Clear() {
	d.packs = nil
	d.bytes = 0
}

func (d *ttlKeyValueData) Clone() KeyValueData {
	c := *d
	c.packs = append([]pack(nil), d.packs...)
	return &c
}
