package heagg

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy of the aggregation protocol. Errors returned by the heagg
// packages wrap one of these values and can be classified with errors.Is.
var (
	// ErrInvalidParameters is returned when scheme parameters fail the consistency checks.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrMalformedContext is returned when a context encoding cannot be parsed.
	ErrMalformedContext = errors.New("malformed context")
	// ErrMalformedCiphertext is returned when a ciphertext encoding cannot be parsed.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	// ErrParameterMismatch is returned when ciphertexts of incompatible contexts are combined.
	ErrParameterMismatch = errors.New("parameter mismatch")
	// ErrEmptyInput is returned when an aggregation is requested over zero ciphertexts.
	ErrEmptyInput = errors.New("empty input")
	// ErrInsufficientDepth is returned when an operation needs more levels than available.
	ErrInsufficientDepth = errors.New("insufficient depth")
	// ErrUnsupportedOperation is returned for unknown operation tags.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrMissingSecretKey is returned when decryption is attempted without the secret key.
	ErrMissingSecretKey = errors.New("missing secret key")
	// ErrTooManyInputs is returned when a request exceeds the maximum aggregation count.
	ErrTooManyInputs = errors.New("too many inputs")
	// ErrInvalidValue is returned when a plaintext value cannot be encoded.
	ErrInvalidValue = errors.New("invalid value")
)

var kinds = []struct {
	name string
	err  error
}{
	{"InvalidParameters", ErrInvalidParameters},
	{"MalformedContext", ErrMalformedContext},
	{"MalformedCiphertext", ErrMalformedCiphertext},
	{"ParameterMismatch", ErrParameterMismatch},
	{"EmptyInput", ErrEmptyInput},
	{"InsufficientDepth", ErrInsufficientDepth},
	{"UnsupportedOperation", ErrUnsupportedOperation},
	{"MissingSecretKey", ErrMissingSecretKey},
	{"TooManyInputs", ErrTooManyInputs},
	{"InvalidValue", ErrInvalidValue},
	{"Canceled", context.Canceled},
	{"DeadlineExceeded", context.DeadlineExceeded},
}

// KindInternal is the kind of errors outside of the taxonomy.
const KindInternal = "Internal"

// Kind returns the stable name of the taxonomy error wrapped by err,
// or KindInternal if err does not wrap any. It returns the empty string
// for a nil error.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return KindInternal
}

// ErrorFromKind returns the taxonomy error with the given stable name, and
// whether the name is known.
func ErrorFromKind(kind string) (error, bool) {
	for _, k := range kinds {
		if k.name == kind {
			return k.err, true
		}
	}
	return nil, false
}

// Stage is a state of the per-request aggregation state machine.
type Stage int

const (
	// StageReceived is the initial state of a request.
	StageReceived Stage = iota
	// StageContextLoaded is reached once the public context is deserialized.
	StageContextLoaded
	// StageVectorsDeserialized is reached once all the ciphertexts are deserialized.
	StageVectorsDeserialized
	// StageEvaluated is reached once the aggregation is computed.
	StageEvaluated
	// StageSerialized is reached once the result is serialized.
	StageSerialized
	// StageResponded is reached once the result is sent back.
	StageResponded
)

var stageNames = [...]string{"Received", "ContextLoaded", "VectorsDeserialized", "Evaluated", "Serialized", "Responded"}

// String returns the name of the stage.
func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// ParseStage returns the stage with the given name.
func ParseStage(name string) (Stage, bool) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), true
		}
	}
	return 0, false
}

// StageError is the error of a request that failed in the given stage.
// The stage is the one the request was in when the failing step started.
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("failed in stage %s: %s", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage in which err occurred, if err wraps a StageError.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return 0, false
}
