package objectstore

import (
	"encoding"
	"fmt"
)

// nullObjectStore is a type implementing the objectstore.ObjectStore interface with a NULL backend.
type nullObjectStore struct{}

// NewNullObjectStore creates a new ObjectStore instance that discards all objects.
func NewNullObjectStore() *nullObjectStore {
	return &nullObjectStore{}
}

func (objstore *nullObjectStore) Store(objectID string, object encoding.BinaryMarshaler) error {
	return nil
}

func (objstore *nullObjectStore) Load(objectID string, object encoding.BinaryUnmarshaler) error {
	return fmt.Errorf("%w: %s, ObjectStore backend is NULL", ErrNotFound, objectID)
}

func (objstore *nullObjectStore) IsPresent(objectID string) (bool, error) {
	return false, nil
}

func (objstore *nullObjectStore) Delete(objectID string) error { return nil }

func (objstore *nullObjectStore) List(prefix string) ([]string, error) { return []string{}, nil }

func (objstore *nullObjectStore) Close() error { return nil }
