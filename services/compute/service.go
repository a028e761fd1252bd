// Package compute implements the aggregation of encrypted values as a service.
// The service receives a public scheme context and a list of ciphertexts,
// evaluates the requested aggregation homomorphically and returns a single
// ciphertext. It never holds, requests or produces secret key material.
package compute

import (
	"context"
	"fmt"
	"log"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/services"
	"github.com/ChristianMct/heagg/session"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultMaxDecodeWorkers is the default number of ciphertexts decoded concurrently per request.
	DefaultMaxDecodeWorkers = 8
	// DefaultMaxConcurrentRequests is the default number of requests evaluated concurrently.
	DefaultMaxConcurrentRequests = 16
)

// ServiceConfig is the configuration of a compute service.
type ServiceConfig struct {
	// MaxInputs is the maximum number of ciphertexts per request.
	MaxInputs int
	// MaxDecodeWorkers is the number of ciphertexts decoded concurrently per request.
	MaxDecodeWorkers int
	// ReductionThreshold is the number of inputs from which sums are computed
	// by a parallel reduction tree.
	ReductionThreshold int
	// ReductionWorkers is the number of concurrent partial sums in a reduction tree.
	ReductionWorkers int
	// MaxConcurrentRequests is the maximum number of requests evaluated concurrently.
	// Passed this number, requests wait for a slot or for their context to be done.
	MaxConcurrentRequests int
}

// Request is an aggregation request, as received from a transport.
type Request struct {
	ID              heagg.RequestID
	PublicContext   []byte
	EncryptedValues [][]byte
	Operation       string
}

// Result is the outcome of a successful aggregation request.
type Result struct {
	ID              heagg.RequestID
	Operation       heagg.Operation
	Inputs          int
	EncryptedResult []byte
}

// Service represents a compute service instance.
type Service struct {
	config ServiceConfig
	self   heagg.NodeID

	engineConfig EngineConfig
	requests     *semaphore.Weighted
}

// NewComputeService creates a new compute service instance.
func NewComputeService(ownID heagg.NodeID, conf ServiceConfig) (*Service, error) {
	if conf.MaxInputs < 0 || conf.MaxDecodeWorkers < 0 || conf.ReductionThreshold < 0 || conf.ReductionWorkers < 0 || conf.MaxConcurrentRequests < 0 {
		return nil, fmt.Errorf("invalid compute service configuration: negative value in %+v", conf)
	}

	s := new(Service)
	s.self = ownID
	s.config = conf
	if s.config.MaxDecodeWorkers == 0 {
		s.config.MaxDecodeWorkers = DefaultMaxDecodeWorkers
	}
	if s.config.MaxConcurrentRequests == 0 {
		s.config.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	s.engineConfig = EngineConfig{
		MaxInputs:          conf.MaxInputs,
		ReductionThreshold: conf.ReductionThreshold,
		ReductionWorkers:   conf.ReductionWorkers,
	}.withDefaults()
	s.config.MaxInputs = s.engineConfig.MaxInputs
	s.config.ReductionThreshold = s.engineConfig.ReductionThreshold
	s.config.ReductionWorkers = s.engineConfig.ReductionWorkers

	s.requests = semaphore.NewWeighted(int64(s.config.MaxConcurrentRequests))
	return s, nil
}

// Config returns the configuration of the service, with defaults applied.
func (s *Service) Config() ServiceConfig {
	return s.config
}

// request tracks the stage of a request through the service.
type request struct {
	Request
	stage heagg.Stage
}

func (r *request) advance(to heagg.Stage) {
	r.stage = to
}

func (r *request) fail(err error) error {
	return &heagg.StageError{Stage: r.stage, Err: err}
}

// Aggregate runs an aggregation request through the stages Received,
// ContextLoaded, VectorsDeserialized, Evaluated and Serialized. On failure,
// it returns a *heagg.StageError holding the stage the request was in when
// the failing step started, and no result.
func (s *Service) Aggregate(ctx context.Context, req Request) (*Result, error) {
	r := &request{Request: req, stage: heagg.StageReceived}
	if r.ID == "" {
		if id, has := services.RequestIDFromContext(ctx); has {
			r.ID = id
		}
	}

	op, err := heagg.ParseOperation(r.Operation)
	if err != nil {
		s.Logf("request %s: rejected: %v", r.ID, err)
		return nil, r.fail(err)
	}
	if err := s.checkCount(len(r.EncryptedValues)); err != nil {
		s.Logf("request %s: rejected: %v", r.ID, err)
		return nil, r.fail(err)
	}

	if err := s.requests.Acquire(ctx, 1); err != nil {
		return nil, r.fail(err)
	}
	defer s.requests.Release(1)

	pc, err := session.LoadPublic(r.PublicContext)
	if err != nil {
		s.Logf("request %s: %v", r.ID, err)
		return nil, r.fail(err)
	}
	r.advance(heagg.StageContextLoaded)
	s.Logf("request %s: %s over %d ciphertexts under %s", r.ID, op, len(r.EncryptedValues), pc)

	cts, err := s.decodeCiphertexts(ctx, pc, r.EncryptedValues)
	if err != nil {
		s.Logf("request %s: %v", r.ID, err)
		return nil, r.fail(err)
	}
	r.advance(heagg.StageVectorsDeserialized)

	res, err := NewEngine(pc, s.engineConfig).Evaluate(ctx, op, cts)
	if err != nil {
		s.Logf("request %s: evaluation failed: %v", r.ID, err)
		return nil, r.fail(err)
	}
	r.advance(heagg.StageEvaluated)

	out, err := res.MarshalBinary()
	if err != nil {
		return nil, r.fail(err)
	}
	r.advance(heagg.StageSerialized)
	s.Logf("request %s: completed %s, result %s at level %d", r.ID, op, res.ID(), res.Level())

	return &Result{ID: r.ID, Operation: op, Inputs: len(cts), EncryptedResult: out}, nil
}

func (s *Service) checkCount(n int) error {
	if n == 0 {
		return heagg.ErrEmptyInput
	}
	if n > s.config.MaxInputs {
		return fmt.Errorf("%w: %d ciphertexts, at most %d", heagg.ErrTooManyInputs, n, s.config.MaxInputs)
	}
	return nil
}

// decodeCiphertexts decodes the ciphertexts on a bounded pool of workers,
// preserving their order. All the ciphertexts are decoded so that the error
// of the lowest failing index is returned.
func (s *Service) decodeCiphertexts(ctx context.Context, pc *session.PublicContext, encoded [][]byte) ([]*session.Ciphertext, error) {
	cts := make([]*session.Ciphertext, len(encoded))
	errs := make([]error, len(encoded))

	var g errgroup.Group
	g.SetLimit(s.config.MaxDecodeWorkers)
	for i, b := range encoded {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ct, err := session.UnmarshalCiphertext(pc, b)
			if err != nil {
				errs[i] = fmt.Errorf("ciphertext %d: %w", i, err)
				return nil
			}
			cts[i] = ct
			return nil
		})
	}
	err := g.Wait()
	for _, derr := range errs {
		if derr != nil {
			return nil, derr
		}
	}
	if err != nil {
		return nil, err
	}
	return cts, nil
}

// Logf writes a log line prefixed with the node id.
func (s *Service) Logf(msg string, v ...any) {
	log.Printf("%s | [compute] %s\n", s.self, fmt.Sprintf(msg, v...))
}
