package batch

import (
	"fmt"
	"strings"

	"github.com/ChristianMct/heagg/objectstore"
)

const keyPrefix = "batch/"

// Store persists batches in an object store.
type Store struct {
	objs objectstore.ObjectStore
}

// NewStore returns a batch store over objs.
func NewStore(objs objectstore.ObjectStore) *Store {
	return &Store{objs: objs}
}

// Put validates and stores b, replacing any batch with the same name.
func (s *Store) Put(b *Batch) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return s.objs.Store(keyPrefix+b.Name, b)
}

// Get returns the batch with the given name. It returns an error wrapping
// objectstore.ErrNotFound if there is no such batch.
func (s *Store) Get(name string) (*Batch, error) {
	b := new(Batch)
	if err := s.objs.Load(keyPrefix+name, b); err != nil {
		return nil, fmt.Errorf("batch %s: %w", name, err)
	}
	return b, nil
}

// List returns the names of the stored batches, in lexicographic order.
func (s *Store) List() ([]string, error) {
	keys, err := s.objs.List(keyPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = strings.TrimPrefix(k, keyPrefix)
	}
	return names, nil
}

// Delete removes the batch with the given name.
func (s *Store) Delete(name string) error {
	return s.objs.Delete(keyPrefix + name)
}
