package simulator

import (
	"sort"
	"strings"
	"sync"
)

// StoreFileCollection is an ordered set of store files, always sorted by
// descending size. It is safe for concurrent use.
type StoreFileCollection struct {
	mu    sync.Mutex
	files []*StoreFile
}

// NewStoreFileCollection returns a collection holding files.
func NewStoreFileCollection(files ...*StoreFile) *StoreFileCollection {
	c := &StoreFileCollection{}
	c.AddAll(files...)
	return c
}

// insertLocked places f at its sorted position. Files of equal size keep
// insertion order.
func (c *StoreFileCollection) insertLocked(f *StoreFile) {
	size := f.BytesSize()
	i := sort.Search(len(c.files), func(i int) bool {
		return c.files[i].BytesSize() < size
	})
	c.files = append(c.files, nil)
	copy(c.files[i+1:], c.files[i:])
	c.files[i] = f
}

// Add inserts f at its sorted position.
func (c *StoreFileCollection) Add(f *StoreFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(f)
}

// AddAll inserts every file.
func (c *StoreFileCollection) AddAll(files ...*StoreFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range files {
		c.insertLocked(f)
	}
}

// Remove deletes f, reporting whether it was present.
func (c *StoreFileCollection) Remove(f *StoreFile) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, g := range c.files {
		if g == f {
			c.files = append(c.files[:i], c.files[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAll deletes every file of other that is present in c.
func (c *StoreFileCollection) RemoveAll(other *StoreFileCollection) {
	for _, f := range other.Files() {
		c.Remove(f)
	}
}

// Contains reports whether f is in the collection.
func (c *StoreFileCollection) Contains(f *StoreFile) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.files {
		if g == f {
			return true
		}
	}
	return false
}

// Len returns the number of files.
func (c *StoreFileCollection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.files)
}

// Get returns the i-th largest file.
func (c *StoreFileCollection) Get(i int) *StoreFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.files[i]
}

// SubList returns a new collection holding files [from, to).
func (c *StoreFileCollection) SubList(from, to int) *StoreFileCollection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &StoreFileCollection{files: append([]*StoreFile(nil), c.files[from:to]...)}
}

// Files returns a snapshot of the files, largest first.
func (c *StoreFileCollection) Files() []*StoreFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*StoreFile(nil), c.files...)
}

// Sizes returns a snapshot of the file sizes, largest first.
func (c *StoreFileCollection) Sizes() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	sizes := make([]int64, len(c.files))
	for i, f := range c.files {
		sizes[i] = f.BytesSize()
	}
	return sizes
}

// TotalBytes returns the summed size of all files.
func (c *StoreFileCollection) TotalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, f := range c.files {
		total += f.BytesSize()
	}
	return total
}

// Clone returns an independent collection with the same files.
func (c *StoreFileCollection) Clone() *StoreFileCollection {
	return &StoreFileCollection{files: c.Files()}
}

// Clear removes every file.
func (c *StoreFileCollection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = nil
}

func (c *StoreFileCollection) String() string {
	files := c.Files()
	parts := make([]string, len(files))
	for i, f := range files {
		parts[i] = f.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
