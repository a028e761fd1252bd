package objectstore

import (
	"encoding"
	"fmt"
	"log"
)

// hybridObjectStore is a type implementing the objectstore.ObjectStore interface with a hybrid storage backend.
// It combines an in-memory backend and a persistent backend.
type hybridObjectStore struct {
	badgerObjectStore *badgerObjectStore
	memObjectStore    *memObjectStore
}

// NewHybridObjectStore creates a new ObjectStore instance.
func NewHybridObjectStore(conf Config) (*hybridObjectStore, error) {
	badgerObjectStore, err := NewBadgerObjectStore(conf)
	if err != nil {
		return nil, fmt.Errorf("error while creating BadgerDB ObjectStore in hybrid ObjectStore: %w", err)
	}

	objstore := &hybridObjectStore{
		badgerObjectStore: badgerObjectStore,
		memObjectStore:    NewMemObjectStore(),
	}

	return objstore, nil
}

func (objstore *hybridObjectStore) Store(objectID string, object encoding.BinaryMarshaler) error {
	if err := objstore.badgerObjectStore.Store(objectID, object); err != nil {
		return fmt.Errorf("error while storing in Hybrid ObjectStore: %w", err)
	}
	return objstore.memObjectStore.Store(objectID, object)
}

func (objstore *hybridObjectStore) Load(objectID string, object encoding.BinaryUnmarshaler) error {
	// attempt to load the object from the in-memory ObjectStore
	if err := objstore.memObjectStore.Load(objectID, object); err == nil {
		return nil
	}

	// in-memory ObjectStore failed, attempt to load the object from the persistent ObjectStore
	if err := objstore.badgerObjectStore.Load(objectID, object); err != nil {
		return err
	}

	// propagate the object to the in-memory ObjectStore
	if objectToStore, ok := object.(encoding.BinaryMarshaler); ok {
		if err := objstore.memObjectStore.Store(objectID, objectToStore); err != nil {
			log.Printf("warning: could not propagate object %s to in-memory ObjectStore: %s\n", objectID, err)
		}
	}

	return nil
}

func (objstore *hybridObjectStore) IsPresent(objectID string) (bool, error) {
	if present, _ := objstore.memObjectStore.IsPresent(objectID); present {
		return true, nil
	}
	return objstore.badgerObjectStore.IsPresent(objectID)
}

func (objstore *hybridObjectStore) Delete(objectID string) error {
	if err := objstore.badgerObjectStore.Delete(objectID); err != nil {
		return err
	}
	return objstore.memObjectStore.Delete(objectID)
}

// List lists the objects of the persistent ObjectStore, which holds all the objects.
func (objstore *hybridObjectStore) List(prefix string) ([]string, error) {
	return objstore.badgerObjectStore.List(prefix)
}

func (objstore *hybridObjectStore) Close() error {
	if err := objstore.badgerObjectStore.Close(); err != nil {
		return err
	}
	return objstore.memObjectStore.Close()
}
