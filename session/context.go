// Package session implements the CKKS scheme contexts and ciphertexts of the
// aggregation protocol.
//
// A scheme context exists in two forms with distinct types:
//   - Context is the full context of the originator. It holds the secret key
//     and can only be serialized through the explicitly named MarshalFull.
//   - PublicContext is the public projection of a Context: parameters, public
//     key and evaluation keys. It is the only form placed on the wire or held
//     by an aggregation service.
//
// Ciphertexts are bound to the parameters and public key of the context that
// produced them, and are checked against it before being combined.
package session

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ChristianMct/heagg"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
	"golang.org/x/crypto/blake2b"
)

// Fingerprint is a digest identifying a parameter set or a public key.
type Fingerprint [blake2b.Size256]byte

// String returns a short hexadecimal representation of the fingerprint.
func (fp Fingerprint) String() string {
	return hex.EncodeToString(fp[:6])
}

// SchemeContext is implemented by *Context and *PublicContext.
type SchemeContext interface {
	// Public returns the public projection of the context.
	Public() *PublicContext

	secretKey() (*rlwe.SecretKey, error)
}

// PublicContext is the public evaluation material of a scheme context.
// It is sufficient to encrypt and to combine ciphertexts, but not to decrypt.
// A PublicContext is immutable and safe for concurrent use.
type PublicContext struct {
	literal Parameters
	params  ckks.Parameters

	pk  *rlwe.PublicKey
	rlk *rlwe.RelinearizationKey
	gks []*rlwe.GaloisKey
	evk *rlwe.MemEvaluationKeySet

	paramsID, keyID Fingerprint
}

// Context is the full scheme context of an originator. It holds the secret key
// in addition to the public material. A Context never leaves the originator:
// it does not implement encoding.BinaryMarshaler and its public projection must
// be used for anything sent to an aggregation service.
type Context struct {
	pub *PublicContext
	sk  *rlwe.SecretKey
}

// NewContext creates a full context with a freshly generated secret key, the
// corresponding public key and the evaluation keys requested by the parameters.
func NewContext(p Parameters) (*Context, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p = p.clone()

	params, err := p.ckksParameters()
	if err != nil {
		return nil, err
	}

	kgen := rlwe.NewKeyGenerator(params)
	sk, pk := kgen.GenKeyPairNew()

	var rlk *rlwe.RelinearizationKey
	if p.RelinearizationKey {
		rlk = kgen.GenRelinearizationKeyNew(sk)
	}

	gks := make([]*rlwe.GaloisKey, 0, len(p.GaloisRotations))
	for _, rot := range p.GaloisRotations {
		gks = append(gks, kgen.GenGaloisKeyNew(params.GaloisElement(rot), sk))
	}

	pub, err := newPublicContext(p, params, pk, rlk, gks)
	if err != nil {
		return nil, err
	}

	return &Context{pub: pub, sk: sk}, nil
}

func newPublicContext(p Parameters, params ckks.Parameters, pk *rlwe.PublicKey, rlk *rlwe.RelinearizationKey, gks []*rlwe.GaloisKey) (*PublicContext, error) {
	pc := &PublicContext{
		literal: p,
		params:  params,
		pk:      pk,
		rlk:     rlk,
		gks:     gks,
		evk:     rlwe.NewMemEvaluationKeySet(rlk, gks...),
	}

	paramsBytes, err := params.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("could not marshal parameters: %w", err)
	}
	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("could not marshal public key: %w", err)
	}
	pc.paramsID = blake2b.Sum256(paramsBytes)
	pc.keyID = blake2b.Sum256(pkBytes)
	return pc, nil
}

// Public returns the public projection of the context.
func (c *Context) Public() *PublicContext {
	return c.pub
}

// Parameters returns the parameters of the context.
func (c *Context) Parameters() Parameters {
	return c.pub.Parameters()
}

// Encrypt encrypts a single value under the context.
func (c *Context) Encrypt(value float64) (*Ciphertext, error) {
	return c.pub.Encrypt(value)
}

// EncryptValues encrypts each value into its own ciphertext, in order.
func (c *Context) EncryptValues(values []float64) ([]*Ciphertext, error) {
	return c.pub.EncryptValues(values)
}

// Decrypt decrypts a ciphertext produced under the context.
func (c *Context) Decrypt(ct *Ciphertext) (float64, error) {
	return Decrypt(c, ct)
}

// String returns a string representation of the context which does not include
// any key material.
func (c *Context) String() string {
	return "full " + c.pub.String()
}

func (c *Context) secretKey() (*rlwe.SecretKey, error) {
	if c.sk == nil {
		return nil, heagg.ErrMissingSecretKey
	}
	return c.sk, nil
}

// Public returns the receiver.
func (pc *PublicContext) Public() *PublicContext {
	return pc
}

func (pc *PublicContext) secretKey() (*rlwe.SecretKey, error) {
	return nil, fmt.Errorf("%w: public context", heagg.ErrMissingSecretKey)
}

// Parameters returns a copy of the literal parameters of the context.
func (pc *PublicContext) Parameters() Parameters {
	return pc.literal.clone()
}

// CKKSParameters returns the lattigo parameters of the context.
func (pc *PublicContext) CKKSParameters() ckks.Parameters {
	return pc.params
}

// ParamsID returns the fingerprint of the scheme parameters.
func (pc *PublicContext) ParamsID() Fingerprint {
	return pc.paramsID
}

// KeyID returns the fingerprint of the public key.
func (pc *PublicContext) KeyID() Fingerprint {
	return pc.keyID
}

// MaxLevel returns the level of freshly encrypted ciphertexts.
func (pc *PublicContext) MaxLevel() int {
	return pc.params.MaxLevel()
}

// LevelsPerRescale returns the number of levels consumed by a scalar multiplication.
func (pc *PublicContext) LevelsPerRescale() int {
	return pc.params.LevelsConsumedPerRescaling()
}

// CanAverage returns whether the modulus chain supports the scalar
// multiplication of an average.
func (pc *PublicContext) CanAverage() bool {
	return pc.MaxLevel() >= pc.LevelsPerRescale()
}

// HasRelinearizationKey returns whether the context carries a relinearization key.
func (pc *PublicContext) HasRelinearizationKey() bool {
	return pc.rlk != nil
}

// String returns a string representation of the context.
func (pc *PublicContext) String() string {
	return fmt.Sprintf("ckks{N=%d, levels=%d, logscale=%d, params=%s, key=%s}",
		pc.params.N(), pc.MaxLevel()+1, pc.literal.LogScale, pc.paramsID, pc.keyID)
}

// MarshalBinary returns the public encoding of the context. The encoding
// never contains the secret key.
func (pc *PublicContext) MarshalBinary() ([]byte, error) {
	ce, err := pc.encoding()
	if err != nil {
		return nil, err
	}
	return ce.marshal(), nil
}

// UnmarshalBinary decodes a public context encoding into the receiver.
// It fails on encodings that carry a secret key.
func (pc *PublicContext) UnmarshalBinary(data []byte) error {
	loaded, err := LoadPublic(data)
	if err != nil {
		return err
	}
	*pc = *loaded
	return nil
}

// MarshalFull returns the full encoding of the context, including the secret
// key. It is meant for the originator's own storage and must never be sent to
// an aggregation service, which rejects it.
func (c *Context) MarshalFull() ([]byte, error) {
	ce, err := c.pub.encoding()
	if err != nil {
		return nil, err
	}
	if ce.sk, err = c.sk.MarshalBinary(); err != nil {
		return nil, fmt.Errorf("could not marshal secret key: %w", err)
	}
	return ce.marshal(), nil
}

func (pc *PublicContext) encoding() (ce contextEncoding, err error) {
	ce.version = contextEncodingVersion
	if ce.params, err = json.Marshal(pc.literal); err != nil {
		return ce, fmt.Errorf("could not marshal parameters: %w", err)
	}
	if ce.pk, err = pc.pk.MarshalBinary(); err != nil {
		return ce, fmt.Errorf("could not marshal public key: %w", err)
	}
	if pc.rlk != nil {
		if ce.rlk, err = pc.rlk.MarshalBinary(); err != nil {
			return ce, fmt.Errorf("could not marshal relinearization key: %w", err)
		}
	}
	for _, gk := range pc.gks {
		gkb, err := gk.MarshalBinary()
		if err != nil {
			return ce, fmt.Errorf("could not marshal galois key: %w", err)
		}
		ce.gks = append(ce.gks, gkb)
	}
	return ce, nil
}

// LoadPublic reconstructs a public context from its encoding. The returned
// error wraps heagg.ErrMalformedContext if the encoding cannot be parsed, does
// not describe valid parameters and keys, or carries secret key material.
func LoadPublic(data []byte) (*PublicContext, error) {
	var ce contextEncoding
	if err := ce.unmarshal(data); err != nil {
		return nil, fmt.Errorf("%w: %s", heagg.ErrMalformedContext, err)
	}
	if len(ce.sk) != 0 {
		return nil, fmt.Errorf("%w: encoding carries a secret key", heagg.ErrMalformedContext)
	}
	pc, err := ce.publicContext()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", heagg.ErrMalformedContext, err)
	}
	return pc, nil
}

// LoadFull reconstructs a full context from an encoding produced by MarshalFull.
// The returned error wraps heagg.ErrMalformedContext if the encoding is invalid
// or has no secret key.
func LoadFull(data []byte) (*Context, error) {
	var ce contextEncoding
	if err := ce.unmarshal(data); err != nil {
		return nil, fmt.Errorf("%w: %s", heagg.ErrMalformedContext, err)
	}
	if len(ce.sk) == 0 {
		return nil, fmt.Errorf("%w: encoding has no secret key", heagg.ErrMalformedContext)
	}
	pc, err := ce.publicContext()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", heagg.ErrMalformedContext, err)
	}

	sk := new(rlwe.SecretKey)
	if err := unmarshalRecover(sk, ce.sk); err != nil {
		return nil, fmt.Errorf("%w: secret key: %s", heagg.ErrMalformedContext, err)
	}
	if err := checkStructure(func() bool {
		return sk.LevelQ() == pc.params.MaxLevelQ() && sk.LevelP() == pc.params.MaxLevelP() && sk.Value.Q.N() == pc.params.N()
	}); err != nil {
		return nil, fmt.Errorf("%w: secret key: %s", heagg.ErrMalformedContext, err)
	}

	return &Context{pub: pc, sk: sk}, nil
}
