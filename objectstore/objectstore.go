// Package objectstore defines an interface between the heagg services and
// their persisted data. Objects are stored in their binary encoding, so only
// values implementing encoding.BinaryMarshaler can be stored.
package objectstore

import (
	"encoding"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Load when no object is stored under the requested id.
var ErrNotFound = errors.New("object not found")

// Config represents the ObjectStore configuration.
type Config struct {
	BackendName string // BackendName is a string defining the ObjectStore implementation to use.
	DBPath      string
}

// ObjectStore is an interface to store and retrieve binary-serializable objects.
type ObjectStore interface {
	// Store stores the binary-serializable `object` into the ObjectStore indexing it with the string `objectID`.
	Store(objectID string, object encoding.BinaryMarshaler) error

	// Load loads the binary-deserializable `object` from the ObjectStore indexing it with the string `objectID`.
	// the result is loaded directly into `object`
	Load(objectID string, object encoding.BinaryUnmarshaler) error

	// IsPresent checks if the object indexed with the string `objectID` is present in the ObjectStore.
	IsPresent(objectID string) (bool, error)

	// Delete removes the object indexed with the string `objectID`. Deleting a missing object is not an error.
	Delete(objectID string) error

	// List returns the sorted ids of the stored objects starting with `prefix`.
	List(prefix string) ([]string, error)

	// Close releases the resources allocated by the ObjectStore.
	Close() error
}

// NewObjectStoreFromConfig creates the ObjectStore specified by the config.
func NewObjectStoreFromConfig(config Config) (objs ObjectStore, err error) {
	switch config.BackendName {
	case "null":
		objs = NewNullObjectStore()
	case "mem":
		objs = NewMemObjectStore()
	case "badgerdb":
		if objs, err = NewBadgerObjectStore(config); err != nil {
			return nil, err
		}
	case "hybrid":
		if objs, err = NewHybridObjectStore(config); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid object store backend %q", config.BackendName)
	}
	return
}
