package session

import (
	"fmt"
	"math/bits"
	"slices"

	"github.com/ChristianMct/heagg"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

const (
	minPolyModulusDegree = 1 << 10
	maxPolyModulusDegree = 1 << 16
	maxModulusBitSize    = 61
)

// Parameters is the literal description of a CKKS scheme context.
// The struct is meant to be encoded and decoded to JSON with the
// standard library's encoding/json package.
type Parameters struct {
	// PolyModulusDegree is the degree N of the ring, a power of two.
	PolyModulusDegree int
	// CoeffModBitSizes is the ciphertext modulus chain, one bit-size per level.
	// The first entry is the base modulus which holds the decrypted values.
	CoeffModBitSizes []int
	// SpecialModBitSizes is the key-switching modulus, required for evaluation keys.
	SpecialModBitSizes []int `json:",omitempty"`
	// LogScale is the base-2 logarithm of the global scale.
	LogScale int
	// RelinearizationKey requests the generation of a relinearization key.
	RelinearizationKey bool `json:",omitempty"`
	// GaloisRotations lists the slot rotations for which Galois keys are generated.
	GaloisRotations []int `json:",omitempty"`
}

// DefaultParameters is a 128-bit secure parameter set with two rescaling levels.
var DefaultParameters = Parameters{
	PolyModulusDegree:  8192,
	CoeffModBitSizes:   []int{60, 40, 40},
	SpecialModBitSizes: []int{60},
	LogScale:           40,
}

// Validate checks the internal consistency of the parameters. The returned
// error wraps heagg.ErrInvalidParameters.
func (p Parameters) Validate() error {
	if err := p.validate(); err != nil {
		return fmt.Errorf("%w: %s", heagg.ErrInvalidParameters, err)
	}
	return nil
}

func (p Parameters) validate() error {
	n := p.PolyModulusDegree
	if n < minPolyModulusDegree || n > maxPolyModulusDegree || bits.OnesCount(uint(n)) != 1 {
		return fmt.Errorf("polynomial modulus degree %d is not a power of two in [%d, %d]", n, minPolyModulusDegree, maxPolyModulusDegree)
	}
	if len(p.CoeffModBitSizes) == 0 {
		return fmt.Errorf("empty coefficient modulus chain")
	}
	for _, chain := range [][]int{p.CoeffModBitSizes, p.SpecialModBitSizes} {
		for _, logQi := range chain {
			if logQi < 1 || logQi > maxModulusBitSize {
				return fmt.Errorf("modulus bit-size %d not in [1, %d]", logQi, maxModulusBitSize)
			}
		}
	}
	if p.LogScale <= 0 {
		return fmt.Errorf("non-positive scale 2^%d", p.LogScale)
	}
	if p.LogScale >= p.CoeffModBitSizes[0] {
		return fmt.Errorf("scale 2^%d does not fit the %d-bit base modulus", p.LogScale, p.CoeffModBitSizes[0])
	}
	if (p.RelinearizationKey || len(p.GaloisRotations) > 0) && len(p.SpecialModBitSizes) == 0 {
		return fmt.Errorf("evaluation keys require a special modulus")
	}
	seen := make(map[int]bool, len(p.GaloisRotations))
	for _, rot := range p.GaloisRotations {
		if rot == 0 || seen[rot] {
			return fmt.Errorf("invalid or duplicate Galois rotation %d", rot)
		}
		seen[rot] = true
	}
	return nil
}

// Depth returns the number of rescalings supported by the modulus chain.
func (p Parameters) Depth() int {
	return len(p.CoeffModBitSizes) - 1
}

func (p Parameters) clone() Parameters {
	pc := p
	pc.CoeffModBitSizes = slices.Clone(p.CoeffModBitSizes)
	pc.SpecialModBitSizes = slices.Clone(p.SpecialModBitSizes)
	pc.GaloisRotations = slices.Clone(p.GaloisRotations)
	return pc
}

func (p Parameters) ckksParameters() (ckks.Parameters, error) {
	params, err := ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
		LogN:            bits.TrailingZeros(uint(p.PolyModulusDegree)),
		LogQ:            slices.Clone(p.CoeffModBitSizes),
		LogP:            slices.Clone(p.SpecialModBitSizes),
		LogDefaultScale: p.LogScale,
	})
	if err != nil {
		return ckks.Parameters{}, fmt.Errorf("%w: %s", heagg.ErrInvalidParameters, err)
	}
	return params, nil
}
