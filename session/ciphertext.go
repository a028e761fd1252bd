package session

import (
	"fmt"
	"math"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/utils"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldCtParamsID protowire.Number = iota + 1
	fieldCtKeyID
	fieldCtValue
)

// Ciphertext is an encrypted scalar bound to the parameters and public key of
// the context that produced it. Ciphertexts are never modified once created.
type Ciphertext struct {
	ct              *rlwe.Ciphertext
	paramsID, keyID Fingerprint
}

// ParamsID returns the fingerprint of the parameters the ciphertext is bound to.
func (ct *Ciphertext) ParamsID() Fingerprint {
	return ct.paramsID
}

// KeyID returns the fingerprint of the public key the ciphertext is bound to.
func (ct *Ciphertext) KeyID() Fingerprint {
	return ct.keyID
}

// Level returns the current level of the ciphertext.
func (ct *Ciphertext) Level() int {
	return ct.ct.Level()
}

// LogScale returns the base-2 logarithm of the ciphertext scale.
func (ct *Ciphertext) LogScale() float64 {
	return math.Log2(ct.ct.Scale.Float64())
}

// ID returns a short digest of the ciphertext encoding, for logging.
func (ct *Ciphertext) ID() string {
	b, err := ct.MarshalBinary()
	if err != nil {
		return "invalid"
	}
	return utils.DebugDigest(b)
}

// String returns a string representation of the ciphertext.
func (ct *Ciphertext) String() string {
	return fmt.Sprintf("ct{id=%s, level=%d, params=%s}", ct.ID(), ct.Level(), ct.paramsID)
}

// MarshalBinary returns the encoding of the ciphertext and of the fingerprints
// it is bound to.
func (ct *Ciphertext) MarshalBinary() ([]byte, error) {
	ctb, err := ct.ct.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("could not marshal ciphertext: %w", err)
	}
	b := utils.AppendBytesField(nil, fieldCtParamsID, ct.paramsID[:])
	b = utils.AppendBytesField(b, fieldCtKeyID, ct.keyID[:])
	return utils.AppendBytesField(b, fieldCtValue, ctb), nil
}

// UnmarshalCiphertext decodes a ciphertext and checks it against the public
// context pc. The returned error wraps heagg.ErrMalformedCiphertext if the
// encoding is truncated or structurally invalid, and heagg.ErrParameterMismatch
// if the ciphertext was produced under other parameters or another key.
func UnmarshalCiphertext(pc *PublicContext, data []byte) (*Ciphertext, error) {
	var paramsID, keyID, value []byte
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty encoding", heagg.ErrMalformedCiphertext)
	}
	err := utils.ForEachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		switch num {
		case fieldCtParamsID:
			paramsID, n, err = utils.ConsumeBytes(typ, b)
		case fieldCtKeyID:
			keyID, n, err = utils.ConsumeBytes(typ, b)
		case fieldCtValue:
			value, n, err = utils.ConsumeBytes(typ, b)
		default:
			err = fmt.Errorf("unknown field")
		}
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", heagg.ErrMalformedCiphertext, err)
	}
	if len(paramsID) != len(Fingerprint{}) || len(keyID) != len(Fingerprint{}) || len(value) == 0 {
		return nil, fmt.Errorf("%w: incomplete envelope", heagg.ErrMalformedCiphertext)
	}

	ct := &Ciphertext{ct: new(rlwe.Ciphertext)}
	copy(ct.paramsID[:], paramsID)
	copy(ct.keyID[:], keyID)
	if err := pc.Check(ct); err != nil {
		return nil, err
	}

	if err := unmarshalRecover(ct.ct, value); err != nil {
		return nil, fmt.Errorf("%w: %s", heagg.ErrMalformedCiphertext, err)
	}

	params := pc.params
	if err := checkStructure(func() bool {
		c := ct.ct
		return c.MetaData != nil &&
			c.IsNTT &&
			c.Scale.Float64() > 0 &&
			c.Degree() == 1 &&
			c.Value[0].N() == params.N() &&
			c.Value[1].N() == params.N() &&
			c.Value[0].Level() == c.Value[1].Level() &&
			c.Level() <= params.MaxLevel()
	}); err != nil {
		return nil, fmt.Errorf("%w: %s", heagg.ErrMalformedCiphertext, err)
	}

	return ct, nil
}

// Check returns an error wrapping heagg.ErrParameterMismatch if ct is not
// bound to the parameters and public key of pc.
func (pc *PublicContext) Check(ct *Ciphertext) error {
	if ct.paramsID != pc.paramsID {
		return fmt.Errorf("%w: ciphertext parameters %s, context parameters %s", heagg.ErrParameterMismatch, ct.paramsID, pc.paramsID)
	}
	if ct.keyID != pc.keyID {
		return fmt.Errorf("%w: ciphertext key %s, context key %s", heagg.ErrParameterMismatch, ct.keyID, pc.keyID)
	}
	return nil
}
