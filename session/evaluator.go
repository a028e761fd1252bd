package session

import (
	"fmt"
	"math"

	"github.com/ChristianMct/heagg"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// MaxValue returns the bound on the magnitude of encryptable values. Values
// must be strictly smaller in absolute value, so that they decrypt from the
// base modulus at the global scale.
func (pc *PublicContext) MaxValue() float64 {
	return math.Ldexp(1, pc.literal.CoeffModBitSizes[0]-pc.literal.LogScale-1)
}

// Encrypt encrypts a single value under the public key of the context.
func (pc *PublicContext) Encrypt(value float64) (*Ciphertext, error) {
	cts, err := pc.EncryptValues([]float64{value})
	if err != nil {
		return nil, err
	}
	return cts[0], nil
}

// EncryptValues encrypts each value into its own ciphertext, at the maximum
// level and the global scale. The returned error wraps heagg.ErrInvalidValue
// if a value is not finite or exceeds MaxValue.
func (pc *PublicContext) EncryptValues(values []float64) ([]*Ciphertext, error) {
	bound := pc.MaxValue()
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) >= bound {
			return nil, fmt.Errorf("%w: value %d is not finite or exceeds %g", heagg.ErrInvalidValue, i, bound)
		}
	}

	encoder := ckks.NewEncoder(pc.params)
	encryptor := rlwe.NewEncryptor(pc.params, pc.pk)

	cts := make([]*Ciphertext, len(values))
	for i, v := range values {
		pt := ckks.NewPlaintext(pc.params, pc.params.MaxLevel())
		if err := encoder.Encode([]float64{v}, pt); err != nil {
			return nil, fmt.Errorf("could not encode value %d: %w", i, err)
		}
		ct, err := encryptor.EncryptNew(pt)
		if err != nil {
			return nil, fmt.Errorf("could not encrypt value %d: %w", i, err)
		}
		cts[i] = &Ciphertext{ct: ct, paramsID: pc.paramsID, keyID: pc.keyID}
	}
	return cts, nil
}

// Decrypt decrypts ct with the secret key of sc and returns the value of its
// first slot. The returned error wraps heagg.ErrMissingSecretKey if sc is a
// public context, and heagg.ErrParameterMismatch if ct was not produced under sc.
func Decrypt(sc SchemeContext, ct *Ciphertext) (float64, error) {
	sk, err := sc.secretKey()
	if err != nil {
		return 0, err
	}
	pc := sc.Public()
	if err := pc.Check(ct); err != nil {
		return 0, err
	}

	pt := rlwe.NewDecryptor(pc.params, sk).DecryptNew(ct.ct)
	values := make([]float64, pc.params.MaxSlots())
	if err := ckks.NewEncoder(pc.params).Decode(pt, values); err != nil {
		return 0, fmt.Errorf("could not decode plaintext: %w", err)
	}
	return values[0], nil
}

// Evaluator combines ciphertexts of a single public context. An Evaluator is
// not safe for concurrent use. Use ShallowCopy to obtain one evaluator per
// goroutine.
type Evaluator struct {
	pc   *PublicContext
	eval *ckks.Evaluator
}

// NewEvaluator returns an evaluator for the ciphertexts of the context.
func (pc *PublicContext) NewEvaluator() *Evaluator {
	return &Evaluator{pc: pc, eval: ckks.NewEvaluator(pc.params, pc.evk)}
}

// ShallowCopy returns an evaluator sharing the read-only state of the receiver.
func (e *Evaluator) ShallowCopy() *Evaluator {
	return &Evaluator{pc: e.pc, eval: e.eval.ShallowCopy()}
}

// Context returns the public context of the evaluator.
func (e *Evaluator) Context() *PublicContext {
	return e.pc
}

// Add returns the encryption of the sum of a and b.
func (e *Evaluator) Add(a, b *Ciphertext) (*Ciphertext, error) {
	if err := e.check(a, b); err != nil {
		return nil, err
	}
	ct, err := e.eval.AddNew(a.ct, b.ct)
	if err != nil {
		return nil, fmt.Errorf("could not add: %w", err)
	}
	return e.wrap(ct), nil
}

// Sum returns the encryption of the sum of cts. The result is accumulated
// in a fresh ciphertext, the inputs are left untouched.
func (e *Evaluator) Sum(cts ...*Ciphertext) (*Ciphertext, error) {
	if len(cts) == 0 {
		return nil, heagg.ErrEmptyInput
	}
	if err := e.check(cts...); err != nil {
		return nil, err
	}
	acc := cts[0].ct.CopyNew()
	for i, ct := range cts[1:] {
		if err := e.eval.Add(acc, ct.ct, acc); err != nil {
			return nil, fmt.Errorf("could not add ciphertext %d: %w", i+1, err)
		}
	}
	return e.wrap(acc), nil
}

// Scale returns the encryption of a multiplied by factor. A non-integer
// factor is encoded at the scale of the current level and the product is
// rescaled, so the result sits LevelsPerRescale levels below a. An integer
// factor leaves the scale unchanged and the result stays at the level of a.
// The returned error wraps heagg.ErrInsufficientDepth if a has no level left
// to consume.
func (e *Evaluator) Scale(a *Ciphertext, factor float64) (*Ciphertext, error) {
	if err := e.check(a); err != nil {
		return nil, err
	}
	if a.Level() < e.pc.LevelsPerRescale() {
		return nil, fmt.Errorf("%w: ciphertext at level %d, scaling consumes %d", heagg.ErrInsufficientDepth, a.Level(), e.pc.LevelsPerRescale())
	}
	ct, err := e.eval.MulNew(a.ct, factor)
	if err != nil {
		return nil, fmt.Errorf("could not multiply: %w", err)
	}
	if ct.Scale.Float64() > a.ct.Scale.Float64() {
		if err := e.eval.Rescale(ct, ct); err != nil {
			return nil, fmt.Errorf("could not rescale: %w", err)
		}
	}
	return e.wrap(ct), nil
}

func (e *Evaluator) check(cts ...*Ciphertext) error {
	for i, ct := range cts {
		if err := e.pc.Check(ct); err != nil {
			return fmt.Errorf("operand %d: %w", i, err)
		}
	}
	return nil
}

func (e *Evaluator) wrap(ct *rlwe.Ciphertext) *Ciphertext {
	return &Ciphertext{ct: ct, paramsID: e.pc.paramsID, keyID: e.pc.keyID}
}
