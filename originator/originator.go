// Package originator implements the data owner side of the aggregation
// protocol. An originator holds the full scheme context, encrypts its values,
// sends them with the public projection of its context to an aggregation
// service, and decrypts the result.
package originator

import (
	"context"
	"fmt"
	"log"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/api"
	"github.com/ChristianMct/heagg/session"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Transport sends aggregation requests to an aggregation service.
// It is implemented by centralized.AggregationClient.
type Transport interface {
	Aggregate(context.Context, *api.AggregationRequest) (*api.AggregationResult, error)
}

// Originator is the data owner of an aggregation.
type Originator struct {
	id        heagg.NodeID
	sc        *session.Context
	transport Transport
}

// New returns an originator with identity id, which encrypts under sc and
// sends its requests through transport.
func New(id heagg.NodeID, sc *session.Context, transport Transport) *Originator {
	return &Originator{id: id, sc: sc, transport: transport}
}

// Context returns the full scheme context of the originator.
func (o *Originator) Context() *session.Context {
	return o.sc
}

// Request returns the wire request for the aggregation op over values.
// The request carries the public projection of the context only.
func (o *Originator) Request(values []float64, op heagg.Operation) (*api.AggregationRequest, error) {
	cts, err := o.sc.EncryptValues(values)
	if err != nil {
		return nil, err
	}
	return api.NewAggregationRequest(o.sc.Public(), cts, op)
}

// Analyze computes op over values through the aggregation service and
// returns the decrypted result.
func (o *Originator) Analyze(ctx context.Context, values []float64, op heagg.Operation) (float64, error) {
	if len(values) == 0 {
		return 0, heagg.ErrEmptyInput
	}
	req, err := o.Request(values, op)
	if err != nil {
		return 0, err
	}

	o.Logf("requesting %s over %d values", op, len(values))
	res, err := o.transport.Aggregate(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("aggregation failed: %w", err)
	}

	ct, err := session.UnmarshalCiphertext(o.sc.Public(), res.EncryptedResult)
	if err != nil {
		return 0, fmt.Errorf("invalid result: %w", err)
	}
	o.Logf("received result %s", ct)
	return o.sc.Decrypt(ct)
}

// Expected returns the result of op over values computed in the clear.
func Expected(values []float64, op heagg.Operation) (float64, error) {
	if len(values) == 0 {
		return 0, heagg.ErrEmptyInput
	}
	switch op {
	case heagg.Sum:
		return floats.Sum(values), nil
	case heagg.Average:
		return stat.Mean(values, nil), nil
	}
	return 0, fmt.Errorf("%w: %s", heagg.ErrUnsupportedOperation, op)
}

// Logf writes a log line prefixed with the node id.
func (o *Originator) Logf(msg string, v ...any) {
	log.Printf("%s | [originator] %s\n", o.id, fmt.Sprintf(msg, v...))
}
