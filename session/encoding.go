package session

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"

	"github.com/ChristianMct/heagg/utils"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"google.golang.org/protobuf/encoding/protowire"
)

const contextEncodingVersion = 1

const (
	fieldVersion protowire.Number = iota + 1
	fieldParams
	fieldPublicKey
	fieldRelinearizationKey
	fieldGaloisKey
	fieldSecretKey
)

// contextEncoding is the wire form of a scheme context:
//
//	1: version (varint)
//	2: parameters (JSON literal)
//	3: public key
//	4: relinearization key (optional)
//	5: galois keys (repeated)
//	6: secret key (full encodings only)
type contextEncoding struct {
	version uint64
	params  []byte
	pk      []byte
	rlk     []byte
	gks     [][]byte
	sk      []byte
}

func (ce contextEncoding) marshal() []byte {
	b := utils.AppendVarintField(nil, fieldVersion, ce.version)
	b = utils.AppendBytesField(b, fieldParams, ce.params)
	b = utils.AppendBytesField(b, fieldPublicKey, ce.pk)
	b = utils.AppendBytesField(b, fieldRelinearizationKey, ce.rlk)
	for _, gk := range ce.gks {
		b = utils.AppendBytesField(b, fieldGaloisKey, gk)
	}
	return utils.AppendBytesField(b, fieldSecretKey, ce.sk)
}

func (ce *contextEncoding) unmarshal(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty encoding")
	}
	err := utils.ForEachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		switch num {
		case fieldVersion:
			ce.version, n, err = utils.ConsumeVarint(typ, b)
		case fieldParams:
			ce.params, n, err = utils.ConsumeBytes(typ, b)
		case fieldPublicKey:
			ce.pk, n, err = utils.ConsumeBytes(typ, b)
		case fieldRelinearizationKey:
			ce.rlk, n, err = utils.ConsumeBytes(typ, b)
		case fieldGaloisKey:
			var gk []byte
			if gk, n, err = utils.ConsumeBytes(typ, b); err == nil {
				ce.gks = append(ce.gks, gk)
			}
		case fieldSecretKey:
			ce.sk, n, err = utils.ConsumeBytes(typ, b)
		default:
			err = fmt.Errorf("unknown field")
		}
		return n, err
	})
	if err != nil {
		return err
	}
	if ce.version != contextEncodingVersion {
		return fmt.Errorf("unsupported encoding version %d", ce.version)
	}
	if len(ce.params) == 0 || len(ce.pk) == 0 {
		return fmt.Errorf("missing parameters or public key")
	}
	return nil
}

// publicContext rebuilds the public context described by the encoding and
// checks that the keys are consistent with the parameters.
func (ce contextEncoding) publicContext() (pc *PublicContext, err error) {
	dec := json.NewDecoder(bytes.NewReader(ce.params))
	dec.DisallowUnknownFields()
	var p Parameters
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	params, err := p.ckksParameters()
	if err != nil {
		return nil, err
	}

	pk := new(rlwe.PublicKey)
	if err := unmarshalRecover(pk, ce.pk); err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	if err := checkStructure(func() bool {
		return pk.Value[0].Q.N() == params.N() && pk.LevelQ() == params.MaxLevelQ() && pk.LevelP() == params.MaxLevelP()
	}); err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}

	var rlk *rlwe.RelinearizationKey
	if (len(ce.rlk) != 0) != p.RelinearizationKey {
		return nil, fmt.Errorf("relinearization key presence does not match the parameters")
	}
	if len(ce.rlk) != 0 {
		rlk = new(rlwe.RelinearizationKey)
		if err := unmarshalRecover(rlk, ce.rlk); err != nil {
			return nil, fmt.Errorf("relinearization key: %w", err)
		}
		if err := checkStructure(func() bool {
			return rlk.LevelQ() == params.MaxLevelQ() && rlk.LevelP() == params.MaxLevelP()
		}); err != nil {
			return nil, fmt.Errorf("relinearization key: %w", err)
		}
	}

	if len(ce.gks) != len(p.GaloisRotations) {
		return nil, fmt.Errorf("got %d galois keys for %d rotations", len(ce.gks), len(p.GaloisRotations))
	}
	gks := make([]*rlwe.GaloisKey, len(ce.gks))
	for i, gkb := range ce.gks {
		gk := new(rlwe.GaloisKey)
		if err := unmarshalRecover(gk, gkb); err != nil {
			return nil, fmt.Errorf("galois key %d: %w", i, err)
		}
		galEl := params.GaloisElement(p.GaloisRotations[i])
		if err := checkStructure(func() bool {
			return gk.GaloisElement == galEl && gk.LevelQ() == params.MaxLevelQ() && gk.LevelP() == params.MaxLevelP()
		}); err != nil {
			return nil, fmt.Errorf("galois key %d: %w", i, err)
		}
		gks[i] = gk
	}

	return newPublicContext(p, params, pk, rlk, gks)
}

// unmarshalRecover decodes data into v, reporting panics of the decoder as errors.
func unmarshalRecover(v encoding.BinaryUnmarshaler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return v.UnmarshalBinary(data)
}

// checkStructure evaluates a structural predicate on a decoded object, whose
// accessors may panic when the object is inconsistent.
func checkStructure(ok func() bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inconsistent structure: %v", r)
		}
	}()
	if !ok() {
		return fmt.Errorf("does not match the parameters")
	}
	return nil
}
