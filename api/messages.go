// Package api defines the wire messages of the aggregation service and their
// conversions to and from the types of the compute service.
//
// Messages are encoded in the protobuf wire format for gRPC (see
// aggregation.proto) and in JSON for the HTTP gateway, where byte fields are
// standard padded base64 strings.
//
// The request fields public_context and encrypted_values replace the
// context and encrypted_vectors fields of the legacy /compute
// endpoint. The old names are ignored, so a request using them carries no
// values and is rejected with an EmptyInput error.
package api

import (
	"fmt"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/services/compute"
	"github.com/ChristianMct/heagg/session"
	"github.com/ChristianMct/heagg/utils"
	"google.golang.org/protobuf/encoding/protowire"
)

// AggregationRequest is the request of the Aggregate method and of the
// /compute endpoint.
type AggregationRequest struct {
	PublicContext   []byte   `json:"public_context"`
	EncryptedValues [][]byte `json:"encrypted_values"`
	Operation       string   `json:"operation"`
}

// AggregationResult is the response of the Aggregate method and of the
// /compute endpoint.
type AggregationResult struct {
	EncryptedResult []byte `json:"encrypted_result"`
}

// PopulationRequest is the request of the /population/average endpoint.
type PopulationRequest struct {
	PublicContext   []byte   `json:"public_context"`
	EncryptedValues [][]byte `json:"encrypted_values"`
}

// PopulationResult is the response of the /population/average endpoint.
type PopulationResult struct {
	EncryptedAverage []byte `json:"encrypted_average"`
}

// ErrorResponse is the body of HTTP error responses.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

// GetErrorResponse returns the error response for err.
func GetErrorResponse(err error) *ErrorResponse {
	er := &ErrorResponse{Kind: heagg.Kind(err), Message: err.Error()}
	if stage, has := heagg.StageOf(err); has {
		er.Stage = stage.String()
	}
	return er
}

// ToComputeRequest converts an aggregation request to a compute service request.
func ToComputeRequest(id heagg.RequestID, req *AggregationRequest) compute.Request {
	return compute.Request{
		ID:              id,
		PublicContext:   req.PublicContext,
		EncryptedValues: req.EncryptedValues,
		Operation:       req.Operation,
	}
}

// PopulationToComputeRequest converts a population request to an average
// compute service request.
func PopulationToComputeRequest(id heagg.RequestID, req *PopulationRequest) compute.Request {
	return compute.Request{
		ID:              id,
		PublicContext:   req.PublicContext,
		EncryptedValues: req.EncryptedValues,
		Operation:       heagg.Average.String(),
	}
}

// NewAggregationRequest returns the request for the aggregation op over cts,
// under the public context pc.
func NewAggregationRequest(pc *session.PublicContext, cts []*session.Ciphertext, op heagg.Operation) (*AggregationRequest, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: %s", heagg.ErrUnsupportedOperation, op)
	}
	pub, err := pc.MarshalBinary()
	if err != nil {
		return nil, err
	}
	req := &AggregationRequest{
		PublicContext:   pub,
		EncryptedValues: make([][]byte, len(cts)),
		Operation:       op.String(),
	}
	for i, ct := range cts {
		if req.EncryptedValues[i], err = ct.MarshalBinary(); err != nil {
			return nil, fmt.Errorf("ciphertext %d: %w", i, err)
		}
	}
	return req, nil
}

// GetAggregationResult converts a compute service result to an aggregation result.
func GetAggregationResult(res *compute.Result) *AggregationResult {
	return &AggregationResult{EncryptedResult: res.EncryptedResult}
}

// GetPopulationResult converts a compute service result to a population result.
func GetPopulationResult(res *compute.Result) *PopulationResult {
	return &PopulationResult{EncryptedAverage: res.EncryptedResult}
}

const (
	fieldPublicContext protowire.Number = 1
	fieldEncryptedVals protowire.Number = 2
	fieldOperation     protowire.Number = 3

	fieldEncryptedResult protowire.Number = 1
)

// MarshalBinary returns the protobuf wire encoding of the request.
func (req *AggregationRequest) MarshalBinary() ([]byte, error) {
	b := utils.AppendBytesField(nil, fieldPublicContext, req.PublicContext)
	for _, v := range req.EncryptedValues {
		// repeated values keep empty elements, so that indices are preserved
		b = protowire.AppendTag(b, fieldEncryptedVals, protowire.BytesType)
		b = protowire.AppendBytes(b, v)
	}
	return utils.AppendBytesField(b, fieldOperation, []byte(req.Operation)), nil
}

// UnmarshalBinary decodes the protobuf wire encoding of a request. Unknown
// fields are skipped.
func (req *AggregationRequest) UnmarshalBinary(data []byte) error {
	*req = AggregationRequest{}
	return utils.ForEachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		switch num {
		case fieldPublicContext:
			req.PublicContext, n, err = utils.ConsumeBytes(typ, b)
		case fieldEncryptedVals:
			var v []byte
			if v, n, err = utils.ConsumeBytes(typ, b); err == nil {
				req.EncryptedValues = append(req.EncryptedValues, v)
			}
		case fieldOperation:
			var op []byte
			op, n, err = utils.ConsumeBytes(typ, b)
			req.Operation = string(op)
		default:
			return skipField(num, typ, b)
		}
		return n, err
	})
}

// MarshalBinary returns the protobuf wire encoding of the result.
func (res *AggregationResult) MarshalBinary() ([]byte, error) {
	return utils.AppendBytesField(nil, fieldEncryptedResult, res.EncryptedResult), nil
}

// UnmarshalBinary decodes the protobuf wire encoding of a result. Unknown
// fields are skipped.
func (res *AggregationResult) UnmarshalBinary(data []byte) error {
	*res = AggregationResult{}
	return utils.ForEachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		if num == fieldEncryptedResult {
			res.EncryptedResult, n, err = utils.ConsumeBytes(typ, b)
			return n, err
		}
		return skipField(num, typ, b)
	})
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, fmt.Errorf("invalid field value: %w", protowire.ParseError(n))
	}
	return n, nil
}
