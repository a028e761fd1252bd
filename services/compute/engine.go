package compute

import (
	"context"
	"fmt"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/session"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxInputs is the default maximum number of ciphertexts in an aggregation.
	DefaultMaxInputs = 1 << 16
	// DefaultReductionThreshold is the default number of inputs from which the
	// sum is computed by a parallel reduction tree.
	DefaultReductionThreshold = 256
	// DefaultReductionWorkers is the default number of concurrent partial sums.
	DefaultReductionWorkers = 4

	// number of additions between two checks of the context
	foldBatchSize = 64
)

// EngineConfig is the configuration of an aggregation engine.
type EngineConfig struct {
	// MaxInputs is the maximum number of ciphertexts in an aggregation.
	MaxInputs int
	// ReductionThreshold is the number of inputs from which partial sums are
	// computed concurrently. Below, the inputs are folded sequentially.
	ReductionThreshold int
	// ReductionWorkers is the number of concurrent partial sums.
	ReductionWorkers int
}

func (conf EngineConfig) withDefaults() EngineConfig {
	if conf.MaxInputs <= 0 {
		conf.MaxInputs = DefaultMaxInputs
	}
	if conf.ReductionThreshold <= 0 {
		conf.ReductionThreshold = DefaultReductionThreshold
	}
	if conf.ReductionWorkers <= 0 {
		conf.ReductionWorkers = DefaultReductionWorkers
	}
	return conf
}

// Engine evaluates aggregations over the ciphertexts of a single public
// context. All inputs are checked before any homomorphic operation is
// performed, so that a failing aggregation never produces a partial result.
// An Engine is safe for concurrent use.
type Engine struct {
	pc     *session.PublicContext
	config EngineConfig
	eval   *session.Evaluator
}

// NewEngine returns an engine for the ciphertexts of pc.
func NewEngine(pc *session.PublicContext, conf EngineConfig) *Engine {
	return &Engine{pc: pc, config: conf.withDefaults(), eval: pc.NewEvaluator()}
}

// Evaluate computes the aggregation op over cts.
func (e *Engine) Evaluate(ctx context.Context, op heagg.Operation, cts []*session.Ciphertext) (*session.Ciphertext, error) {
	switch op {
	case heagg.Sum:
		return e.Sum(ctx, cts)
	case heagg.Average:
		return e.Average(ctx, cts)
	}
	return nil, fmt.Errorf("%w: %s", heagg.ErrUnsupportedOperation, op)
}

// Sum returns the encryption of the sum of the inputs.
func (e *Engine) Sum(ctx context.Context, cts []*session.Ciphertext) (*session.Ciphertext, error) {
	if err := e.validate(cts); err != nil {
		return nil, err
	}
	return e.sum(ctx, cts)
}

// Average returns the encryption of the mean of the inputs. The result sits
// one rescaling below the lowest input, except for a single input whose
// mean is computed without rescaling.
func (e *Engine) Average(ctx context.Context, cts []*session.Ciphertext) (*session.Ciphertext, error) {
	if err := e.validate(cts); err != nil {
		return nil, err
	}
	if !e.pc.CanAverage() {
		return nil, fmt.Errorf("%w: the modulus chain has no rescaling level", heagg.ErrInsufficientDepth)
	}
	for i, ct := range cts {
		if ct.Level() < e.pc.LevelsPerRescale() {
			return nil, fmt.Errorf("%w: ciphertext %d at level %d", heagg.ErrInsufficientDepth, i, ct.Level())
		}
	}

	sum, err := e.sum(ctx, cts)
	if err != nil {
		return nil, err
	}
	return e.eval.ShallowCopy().Scale(sum, 1/float64(len(cts)))
}

func (e *Engine) validate(cts []*session.Ciphertext) error {
	if len(cts) == 0 {
		return heagg.ErrEmptyInput
	}
	if len(cts) > e.config.MaxInputs {
		return fmt.Errorf("%w: %d ciphertexts, at most %d", heagg.ErrTooManyInputs, len(cts), e.config.MaxInputs)
	}
	for i, ct := range cts {
		if err := e.pc.Check(ct); err != nil {
			return fmt.Errorf("ciphertext %d: %w", i, err)
		}
	}
	return nil
}

func (e *Engine) sum(ctx context.Context, cts []*session.Ciphertext) (*session.Ciphertext, error) {
	if len(cts) < e.config.ReductionThreshold || e.config.ReductionWorkers < 2 {
		return fold(ctx, e.eval.ShallowCopy(), cts)
	}

	chunkSize := (len(cts) + e.config.ReductionWorkers - 1) / e.config.ReductionWorkers
	partials := make([]*session.Ciphertext, 0, e.config.ReductionWorkers)
	for start := 0; start < len(cts); start += chunkSize {
		partials = append(partials, nil)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range partials {
		chunk := cts[i*chunkSize : min((i+1)*chunkSize, len(cts))]
		eval := e.eval.ShallowCopy()
		g.Go(func() (err error) {
			partials[i], err = fold(gctx, eval, chunk)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fold(ctx, e.eval.ShallowCopy(), partials)
}

// fold sums cts from left to right and returns ctx.Err() if the context is
// done before the sum completes.
func fold(ctx context.Context, eval *session.Evaluator, cts []*session.Ciphertext) (acc *session.Ciphertext, err error) {
	for start := 0; start < len(cts); start += foldBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch := cts[start:min(start+foldBatchSize, len(cts))]
		if acc != nil {
			batch = append([]*session.Ciphertext{acc}, batch...)
		}
		if acc, err = eval.Sum(batch...); err != nil {
			return nil, err
		}
	}
	return acc, nil
}
