package objectstore

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type testObject struct {
	Name   string
	Values []float64
}

func (o *testObject) MarshalBinary() ([]byte, error) {
	return json.Marshal(o)
}

func (o *testObject) UnmarshalBinary(b []byte) error {
	return json.Unmarshal(b, o)
}

func TestObjectStores(t *testing.T) {
	for _, backend := range []string{"mem", "badgerdb", "hybrid"} {
		t.Run(fmt.Sprintf("backend=%s", backend), func(t *testing.T) {
			objs, err := NewObjectStoreFromConfig(Config{BackendName: backend, DBPath: filepath.Join(t.TempDir(), "db")})
			require.NoError(t, err)
			defer func() { require.NoError(t, objs.Close()) }()

			objects := map[string]*testObject{
				"batch/a":   {Name: "a", Values: []float64{1, 2}},
				"batch/b":   {Name: "b", Values: []float64{3}},
				"context/a": {Name: "ctx"},
			}
			for id, o := range objects {
				require.NoError(t, objs.Store(id, o))
			}

			// stored objects are encodings, later changes are not visible
			objects["batch/a"].Values[0] = 42

			var loaded testObject
			require.NoError(t, objs.Load("batch/a", &loaded))
			if diff := cmp.Diff(testObject{Name: "a", Values: []float64{1, 2}}, loaded); diff != "" {
				t.Fatalf("unexpected object (-want +got):\n%s", diff)
			}

			present, err := objs.IsPresent("batch/b")
			require.NoError(t, err)
			require.True(t, present)

			ids, err := objs.List("batch/")
			require.NoError(t, err)
			require.Equal(t, []string{"batch/a", "batch/b"}, ids)

			require.NoError(t, objs.Delete("batch/b"))
			require.NoError(t, objs.Delete("batch/missing"))
			present, err = objs.IsPresent("batch/b")
			require.NoError(t, err)
			require.False(t, present)
			require.ErrorIs(t, objs.Load("batch/b", &loaded), ErrNotFound)

			ids, err = objs.List("")
			require.NoError(t, err)
			require.Equal(t, []string{"batch/a", "context/a"}, ids)
		})
	}
}

func TestBadgerPersistence(t *testing.T) {
	conf := Config{BackendName: "hybrid", DBPath: filepath.Join(t.TempDir(), "db")}

	objs, err := NewObjectStoreFromConfig(conf)
	require.NoError(t, err)
	require.NoError(t, objs.Store("batch/a", &testObject{Name: "a"}))
	require.NoError(t, objs.Close())

	// a new store over the same database loads from the persistent backend
	objs, err = NewObjectStoreFromConfig(conf)
	require.NoError(t, err)
	defer objs.Close()
	var loaded testObject
	require.NoError(t, objs.Load("batch/a", &loaded))
	require.Equal(t, "a", loaded.Name)
	present, err := objs.(*hybridObjectStore).memObjectStore.IsPresent("batch/a")
	require.NoError(t, err)
	require.True(t, present)
}

func TestNullObjectStore(t *testing.T) {
	objs, err := NewObjectStoreFromConfig(Config{BackendName: "null"})
	require.NoError(t, err)
	require.NoError(t, objs.Store("a", &testObject{}))
	present, err := objs.IsPresent("a")
	require.NoError(t, err)
	require.False(t, present)
	require.ErrorIs(t, objs.Load("a", &testObject{}), ErrNotFound)
	ids, err := objs.List("")
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestInvalidConfig(t *testing.T) {
	_, err := NewObjectStoreFromConfig(Config{BackendName: "s3"})
	require.Error(t, err)
	_, err = NewObjectStoreFromConfig(Config{BackendName: "badgerdb"})
	require.Error(t, err)
}
