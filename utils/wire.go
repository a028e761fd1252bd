package utils

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// FieldHandler is called by ForEachField for each field of a message.
// It must consume the value of the field at the start of b and return
// the number of bytes it consumed.
type FieldHandler func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// ForEachField walks the fields of a protobuf-encoded message in order.
func ForEachField(b []byte, handle FieldHandler) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("invalid field tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		m, err := handle(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		b = b[m:]
	}
	return nil
}

// ConsumeBytes parses a length-delimited field value. The returned slice is a
// copy, it does not alias b.
func ConsumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("unexpected wire type %d for bytes", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return append([]byte{}, v...), n, nil
}

// ConsumeVarint parses a varint field value.
func ConsumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("unexpected wire type %d for varint", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

// AppendBytesField appends a length-delimited field to b. Empty values are
// omitted.
func AppendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendVarintField appends a varint field to b. Zero values are omitted.
func AppendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}
