package centralized

import (
	"context"
	"errors"
	"fmt"

	"github.com/ChristianMct/heagg"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var errorCodes = []struct {
	err  error
	code codes.Code
}{
	{heagg.ErrInvalidParameters, codes.InvalidArgument},
	{heagg.ErrMalformedContext, codes.InvalidArgument},
	{heagg.ErrMalformedCiphertext, codes.InvalidArgument},
	{heagg.ErrEmptyInput, codes.InvalidArgument},
	{heagg.ErrInvalidValue, codes.InvalidArgument},
	{heagg.ErrParameterMismatch, codes.FailedPrecondition},
	{heagg.ErrInsufficientDepth, codes.OutOfRange},
	{heagg.ErrUnsupportedOperation, codes.Unimplemented},
	{heagg.ErrTooManyInputs, codes.ResourceExhausted},
	{heagg.ErrMissingSecretKey, codes.Internal},
	{context.Canceled, codes.Canceled},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
}

// getStatusCode returns the gRPC status code of err.
func getStatusCode(err error) codes.Code {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return codes.Internal
}

// errorTrailer returns the trailer carrying the kind and stage of err.
func errorTrailer(err error) metadata.MD {
	md := metadata.Pairs(mdErrorKind, heagg.Kind(err))
	if stage, has := heagg.StageOf(err); has {
		md.Append(mdErrorStage, stage.String())
	}
	return md
}

// getErrorFromStatus rebuilds the error of a failed call from its status and
// trailers, so that the taxonomy errors can be matched with errors.Is.
// Errors that do not carry a known kind are returned unchanged.
func getErrorFromStatus(err error, trailer metadata.MD) error {
	st, isStatus := status.FromError(err)
	if !isStatus {
		return err
	}

	var kind string
	if k := trailer.Get(mdErrorKind); len(k) > 0 {
		kind = k[0]
	}
	switch {
	case kind != "":
	case st.Code() == codes.Canceled:
		kind = "Canceled"
	case st.Code() == codes.DeadlineExceeded:
		kind = "DeadlineExceeded"
	}

	kerr, known := heagg.ErrorFromKind(kind)
	if !known {
		return err
	}
	rerr := fmt.Errorf("%w: remote error: %s", kerr, st.Message())
	if s := trailer.Get(mdErrorStage); len(s) > 0 {
		if stage, ok := heagg.ParseStage(s[0]); ok {
			return &heagg.StageError{Stage: stage, Err: rerr}
		}
	}
	return rerr
}
