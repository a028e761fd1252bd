package objectstore

import (
	"encoding"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
)

// badgerObjectStore is a type implementing the objectstore.ObjectStore interface with a permanent storage backend
// based on BadgerDB.
type badgerObjectStore struct {
	db          *badger.DB
	bytesStored atomic.Int64
}

// NewBadgerObjectStore creates a new ObjectStore instance backed by a BadgerDB database at conf.DBPath.
func NewBadgerObjectStore(conf Config) (ks *badgerObjectStore, err error) {
	if conf.DBPath == "" {
		return nil, fmt.Errorf("badgerdb backend requires a database path")
	}
	// Maximum size of a single log file = 10MB
	// Maximum size of memtable table = 5MB
	// Value Threshold for an entry to be stored in the log file = 0.5MB
	opt := badger.DefaultOptions(conf.DBPath).WithValueLogFileSize(10 * (1 << 20)).WithMemTableSize(5 * (1 << 20)).WithValueThreshold(1 << 19)
	opt.Logger = nil
	db, err := badger.Open(opt)
	if err != nil {
		return nil, fmt.Errorf("could not instantiate BadgerDB: %w", err)
	}

	return &badgerObjectStore{db: db}, nil
}

func (objstore *badgerObjectStore) Store(objectID string, object encoding.BinaryMarshaler) error {
	encodedObject, err := object.MarshalBinary()
	if err != nil {
		return fmt.Errorf("could not marshal object %s: %w", objectID, err)
	}
	err = objstore.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(objectID), encodedObject)
	})
	if err != nil {
		return err
	}
	objstore.bytesStored.Add(int64(len(encodedObject)))
	return nil
}

func (objstore *badgerObjectStore) Load(objectID string, object encoding.BinaryUnmarshaler) error {
	var encodedObject []byte
	err := objstore.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(objectID))
		if err != nil {
			return err
		}
		encodedObject, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s in BadgerDB ObjectStore", ErrNotFound, objectID)
	}
	if err != nil {
		return err
	}
	return object.UnmarshalBinary(encodedObject)
}

func (objstore *badgerObjectStore) IsPresent(objectID string) (bool, error) {
	present := false
	err := objstore.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(objectID))

		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}

		if err != nil {
			return err
		}

		present = true
		return nil
	})
	return present, err
}

func (objstore *badgerObjectStore) Delete(objectID string) error {
	return objstore.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(objectID))
	})
}

func (objstore *badgerObjectStore) List(prefix string) ([]string, error) {
	ids := make([]string, 0)
	err := objstore.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return ids, err
}

func (objstore *badgerObjectStore) Close() error {
	log.Printf("Total bytes stored: %dB\n", objstore.bytesStored.Load())
	return objstore.db.Close()
}
