package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestByteCountSI(t *testing.T) {
	require.Equal(t, "999 B", ByteCountSI(999))
	require.Equal(t, "1.0 kB", ByteCountSI(1000))
	require.Equal(t, "2.5 MB", ByteCountSI(2500000))
	require.Equal(t, "1.0 EB", ByteCountSI(1e18))
}

func TestJSONFile(t *testing.T) {
	type conf struct {
		ID     string
		Values []int
	}
	filename := filepath.Join(t.TempDir(), "conf.json")
	require.NoError(t, MarshalJSONToFile(conf{ID: "a", Values: []int{1, 2}}, filename, 0o600))

	var c conf
	require.NoError(t, UnmarshalJSONFromFile(filename, &c))
	require.Equal(t, conf{ID: "a", Values: []int{1, 2}}, c)

	require.Error(t, UnmarshalJSONFromFile(filepath.Join(t.TempDir(), "missing.json"), &c))
}

func TestDebugDigest(t *testing.T) {
	require.Len(t, DebugDigest([]byte("ct")), 16)
	require.Equal(t, DebugDigest([]byte("ct")), DebugDigest([]byte("ct")))
	require.NotEqual(t, DebugDigest([]byte("ct0")), DebugDigest([]byte("ct1")))
}

func TestWire(t *testing.T) {
	b := AppendBytesField(nil, 1, []byte("value"))
	b = AppendBytesField(b, 2, nil)
	b = AppendVarintField(b, 3, 42)
	b = AppendVarintField(b, 4, 0)

	var fields []protowire.Number
	var value []byte
	var n uint64
	require.NoError(t, ForEachField(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		fields = append(fields, num)
		switch num {
		case 1:
			v, m, err := ConsumeBytes(typ, b)
			value = v
			return m, err
		case 3:
			v, m, err := ConsumeVarint(typ, b)
			n = v
			return m, err
		}
		return 0, nil
	}))
	require.Equal(t, []protowire.Number{1, 3}, fields)
	require.Equal(t, "value", string(value))
	require.Equal(t, uint64(42), n)

	_, _, err := ConsumeVarint(protowire.BytesType, b)
	require.Error(t, err)
	require.Error(t, ForEachField([]byte{0xff}, func(protowire.Number, protowire.Type, []byte) (int, error) { return 0, nil }))
}
