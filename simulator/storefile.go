package simulator

import (
	"context"
	"fmt"
)

// StoreFile is a simulated on-disk file. Its content never changes once the
// file has been added to a store; compactions build new files instead.
type StoreFile struct {
	id   uint64
	data KeyValueData
}

// newStoreFile wraps data, which the file takes ownership of.
func newStoreFile(id uint64, data KeyValueData) *StoreFile {
	return &StoreFile{id: id, data: data}
}

// flushStoreFile compresses data once, snapshots it into a new file and pays
// the write of the compressed size. data itself is left compressed; the
// caller clears it.
func flushStoreFile(ctx context.Context, id uint64, data KeyValueData, compressionRatio int64, stream *ThrottleStream) (*StoreFile, error) {
	data.Compress(compressionRatio)
	f := newStoreFile(id, data.Clone())
	if err := stream.Write(ctx, f.BytesSize()); err != nil {
		return nil, err
	}
	return f, nil
}

// ID returns the file identifier, unique within its store.
func (f *StoreFile) ID() uint64 { return f.id }

// BytesSize returns the file size.
func (f *StoreFile) BytesSize() int64 { return f.data.BytesSize() }

// mergeWith absorbs other into f, which must be a compaction output still
// under construction. It reads the absorbed file and writes the bytes that
// survived TTL filtering, returning that byte count.
func (f *StoreFile) mergeWith(ctx context.Context, other *StoreFile, stream *ThrottleStream) (int64, error) {
	if err := stream.Read(ctx, other.BytesSize()); err != nil {
		return 0, err
	}
	merged := f.data.MergeWith(other.data)
	if err := stream.Write(ctx, merged); err != nil {
		return merged, err
	}
	return merged, nil
}

func (f *StoreFile) String() string {
	return fmt.Sprintf("file#%d(%d)", f.id, f.BytesSize())
}
