package objectstore

import (
	"encoding"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// memObjectStore is a type implementing the objectstore.ObjectStore interface with a main memory backend.
// Objects are kept in their binary encoding, so that later changes to a stored object are not visible.
type memObjectStore struct {
	objstore map[string][]byte
	mtx      sync.RWMutex
}

// NewMemObjectStore creates a new in-memory ObjectStore instance.
func NewMemObjectStore() *memObjectStore {
	return &memObjectStore{objstore: make(map[string][]byte)}
}

func (objstore *memObjectStore) Store(objectID string, object encoding.BinaryMarshaler) error {
	encoded, err := object.MarshalBinary()
	if err != nil {
		return fmt.Errorf("could not marshal object %s: %w", objectID, err)
	}
	objstore.mtx.Lock()
	defer objstore.mtx.Unlock()
	objstore.objstore[objectID] = encoded
	return nil
}

func (objstore *memObjectStore) Load(objectID string, object encoding.BinaryUnmarshaler) error {
	objstore.mtx.RLock()
	encoded, isPresent := objstore.objstore[objectID]
	objstore.mtx.RUnlock()

	if !isPresent {
		return fmt.Errorf("%w: %s in in-memory ObjectStore", ErrNotFound, objectID)
	}
	return object.UnmarshalBinary(slices.Clone(encoded))
}

func (objstore *memObjectStore) IsPresent(objectID string) (bool, error) {
	objstore.mtx.RLock()
	defer objstore.mtx.RUnlock()

	_, ok := objstore.objstore[objectID]

	return ok, nil
}

func (objstore *memObjectStore) Delete(objectID string) error {
	objstore.mtx.Lock()
	defer objstore.mtx.Unlock()
	delete(objstore.objstore, objectID)
	return nil
}

func (objstore *memObjectStore) List(prefix string) ([]string, error) {
	objstore.mtx.RLock()
	defer objstore.mtx.RUnlock()
	ids := make([]string, 0)
	for id := range objstore.objstore {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (objstore *memObjectStore) Close() error { return nil }
