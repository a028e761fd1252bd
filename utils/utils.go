// Package utils defines a set of utility functions and types used across the heagg project.
package utils

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
)

// DebugDigest returns a short hex digest of b. It is used to refer to
// ciphertexts in logs without printing them.
func DebugDigest(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// MarshalJSONToFile writes the indented JSON encoding of v to filename,
// creating the file with permissions perm or truncating it.
func MarshalJSONToFile(v any, filename string, perm os.FileMode) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal object: %w", err)
	}
	if err := os.WriteFile(filename, b, perm); err != nil {
		return fmt.Errorf("could not write %s: %w", filename, err)
	}
	return nil
}

// UnmarshalJSONFromFile decodes the JSON content of filename into v.
func UnmarshalJSONFromFile(filename string, v any) error {
	b, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", filename, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("could not parse %s: %w", filename, err)
	}
	return nil
}

// ByteCountSI formats the byte count b with SI prefixes, e.g. "2.5 MB".
func ByteCountSI(b uint64) string {
	if b < 1000 {
		return fmt.Sprintf("%d B", b)
	}
	v, prefix := float64(b)/1000, 0
	for v >= 1000 && prefix < len(siPrefixes)-1 {
		v /= 1000
		prefix++
	}
	return fmt.Sprintf("%.1f %cB", v, siPrefixes[prefix])
}

const siPrefixes = "kMGTPE"
