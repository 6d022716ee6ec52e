package simulator

import "context"

// MemStore is the in-memory write buffer of a store.
type MemStore struct {
	settings *Settings
	rng      *RandomGenerator
	clock    Clock
	data     KeyValueData
}

// NewMemStore creates an empty memstore.
func NewMemStore(settings *Settings, rng *RandomGenerator, clock Clock) *MemStore {
	return &MemStore{
		settings: settings,
		rng:      rng,
		clock:    clock,
		data:     newKeyValueData(settings, rng, clock),
	}
}

// Put appends one key-value pack. The pack holds KeyValuesPerPut key-values
// of a jittered key-value size.
func (m *MemStore) Put() {
	cfg := m.settings.Load()
	size := cfg.KeyValuesPerPut * m.rng.Jittered(cfg.KeyValueBytes, cfg.KeyValueBytesJitter)
	m.data.AddPack(size)
}

// IsFull reports whether the buffer has reached the flush threshold.
func (m *MemStore) IsFull() bool {
	return m.data.BytesSize() >= m.settings.Load().MemstoreBytes
}

// BytesSize returns the buffered, uncompressed bytes.
func (m *MemStore) BytesSize() int64 {
	return m.data.BytesSize()
}

// Flush writes the buffer out as a new compressed store file and starts a
// fresh buffer.
func (m *MemStore) Flush(ctx context.Context, id uint64, stream *ThrottleStream) (*StoreFile, error) {
	cfg := m.settings.Load()
	f, err := flushStoreFile(ctx, id, m.data, cfg.CompressionRatio, stream)
	// A fresh buffer also picks up a TTL setting changed since the last flush.
	m.data = newKeyValueData(m.settings, m.rng, m.clock)
	if err != nil {
		return nil, err
	}
	return f, nil
}
