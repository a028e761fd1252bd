package compute

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/session"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

var testParameters = session.Parameters{
	PolyModulusDegree:  1 << 12,
	CoeffModBitSizes:   []int{50, 40},
	SpecialModBitSizes: []int{50},
	LogScale:           40,
}

// no rescaling level, sums only
var testParametersNoDepth = session.Parameters{
	PolyModulusDegree: 1 << 11,
	CoeffModBitSizes:  []int{50},
	LogScale:          30,
}

type testSetting struct {
	N                  int // number of inputs
	ReductionThreshold int
	ReductionWorkers   int
}

var testSettings = []testSetting{
	{N: 1},
	{N: 3},
	{N: 20, ReductionThreshold: 4, ReductionWorkers: 3},
	{N: 40, ReductionThreshold: 8, ReductionWorkers: 4},
	{N: 7, ReductionThreshold: 2, ReductionWorkers: 16},
}

func newTestContext(t *testing.T, p session.Parameters) *session.Context {
	t.Helper()
	sc, err := session.NewContext(p)
	require.NoError(t, err)
	return sc
}

func testValues(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i%17)*3.25 - 10
	}
	return values
}

func TestEngine(t *testing.T) {
	sc := newTestContext(t, testParameters)
	pc := sc.Public()

	for _, ts := range testSettings {
		t.Run(fmt.Sprintf("N=%d/threshold=%d/workers=%d", ts.N, ts.ReductionThreshold, ts.ReductionWorkers), func(t *testing.T) {
			values := testValues(ts.N)
			cts, err := sc.EncryptValues(values)
			require.NoError(t, err)

			engine := NewEngine(pc, EngineConfig{ReductionThreshold: ts.ReductionThreshold, ReductionWorkers: ts.ReductionWorkers})

			sum, err := engine.Evaluate(context.Background(), heagg.Sum, cts)
			require.NoError(t, err)
			got, err := sc.Decrypt(sum)
			require.NoError(t, err)
			require.InDelta(t, floats.Sum(values), got, 1e-3)

			avg, err := engine.Evaluate(context.Background(), heagg.Average, cts)
			require.NoError(t, err)
			expLevel := pc.MaxLevel() - pc.LevelsPerRescale()
			if ts.N == 1 {
				expLevel = pc.MaxLevel()
			}
			require.Equal(t, expLevel, avg.Level())
			got, err = sc.Decrypt(avg)
			require.NoError(t, err)
			require.InDelta(t, floats.Sum(values)/float64(ts.N), got, 1e-2)
		})
	}
}

func TestEngineExample(t *testing.T) {
	sc := newTestContext(t, testParameters)
	cts, err := sc.EncryptValues([]float64{45, 130, 210})
	require.NoError(t, err)
	engine := NewEngine(sc.Public(), EngineConfig{})

	sum, err := engine.Sum(context.Background(), cts)
	require.NoError(t, err)
	v, err := sc.Decrypt(sum)
	require.NoError(t, err)
	require.InDelta(t, 385, v, 1e-3)

	avg, err := engine.Average(context.Background(), cts)
	require.NoError(t, err)
	v, err = sc.Decrypt(avg)
	require.NoError(t, err)
	require.InDelta(t, 128.33, v, 1e-2)
}

func TestEngineSingleInputAverage(t *testing.T) {
	for _, params := range []struct {
		name string
		session.Parameters
	}{
		{"test", testParameters},
		{"default", session.DefaultParameters},
	} {
		sc := newTestContext(t, params.Parameters)
		engine := NewEngine(sc.Public(), EngineConfig{})
		for _, v := range []float64{42, -7.5, 0, 0.001} {
			t.Run(fmt.Sprintf("params=%s/value=%v", params.name, v), func(t *testing.T) {
				ct, err := sc.Encrypt(v)
				require.NoError(t, err)
				avg, err := engine.Average(context.Background(), []*session.Ciphertext{ct})
				require.NoError(t, err)
				require.InDelta(t, ct.LogScale(), avg.LogScale(), 1e-9)
				got, err := sc.Decrypt(avg)
				require.NoError(t, err)
				require.InDelta(t, v, got, 1e-3)
			})
		}
	}
}

func TestEngineOrder(t *testing.T) {
	sc := newTestContext(t, testParameters)
	values := testValues(9)
	cts, err := sc.EncryptValues(values)
	require.NoError(t, err)

	reversed := slices.Clone(cts)
	slices.Reverse(reversed)
	rotated := append(slices.Clone(cts[3:]), cts[:3]...)

	for _, conf := range []EngineConfig{
		{},
		{ReductionThreshold: 2, ReductionWorkers: 3},
	} {
		engine := NewEngine(sc.Public(), conf)
		for _, op := range []heagg.Operation{heagg.Sum, heagg.Average} {
			t.Run(fmt.Sprintf("threshold=%d/op=%s", conf.ReductionThreshold, op), func(t *testing.T) {
				var results []float64
				for _, order := range [][]*session.Ciphertext{cts, reversed, rotated} {
					res, err := engine.Evaluate(context.Background(), op, order)
					require.NoError(t, err)
					v, err := sc.Decrypt(res)
					require.NoError(t, err)
					results = append(results, v)
				}
				require.InDelta(t, results[0], results[1], 1e-9)
				require.InDelta(t, results[0], results[2], 1e-9)
			})
		}
	}
}

func TestEngineErrors(t *testing.T) {
	ctx := context.Background()
	sc := newTestContext(t, testParameters)
	pc := sc.Public()
	cts, err := sc.EncryptValues([]float64{1, 2, 3})
	require.NoError(t, err)

	engine := NewEngine(pc, EngineConfig{})

	t.Run("EmptyInput", func(t *testing.T) {
		for _, op := range []heagg.Operation{heagg.Sum, heagg.Average} {
			_, err := engine.Evaluate(ctx, op, nil)
			require.ErrorIs(t, err, heagg.ErrEmptyInput)
		}
	})

	t.Run("TooManyInputs", func(t *testing.T) {
		_, err := NewEngine(pc, EngineConfig{MaxInputs: 2}).Sum(ctx, cts)
		require.ErrorIs(t, err, heagg.ErrTooManyInputs)
	})

	t.Run("UnsupportedOperation", func(t *testing.T) {
		for _, op := range []heagg.Operation{0, heagg.Average + 1} {
			_, err := engine.Evaluate(ctx, op, cts)
			require.ErrorIs(t, err, heagg.ErrUnsupportedOperation)
		}
	})

	t.Run("ParameterMismatch", func(t *testing.T) {
		foreign, err := newTestContext(t, testParameters).Encrypt(4)
		require.NoError(t, err)
		mixed := []*session.Ciphertext{cts[0], cts[1], foreign}
		for _, op := range []heagg.Operation{heagg.Sum, heagg.Average} {
			_, err := engine.Evaluate(ctx, op, mixed)
			require.ErrorIs(t, err, heagg.ErrParameterMismatch)
			require.ErrorContains(t, err, "ciphertext 2")
		}
	})

	t.Run("InsufficientDepth", func(t *testing.T) {
		shallow := newTestContext(t, testParametersNoDepth)
		shallowCts, err := shallow.EncryptValues([]float64{1, 2})
		require.NoError(t, err)
		shallowEngine := NewEngine(shallow.Public(), EngineConfig{})

		_, err = shallowEngine.Average(ctx, shallowCts)
		require.ErrorIs(t, err, heagg.ErrInsufficientDepth)

		sum, err := shallowEngine.Sum(ctx, shallowCts)
		require.NoError(t, err)
		v, err := shallow.Decrypt(sum)
		require.NoError(t, err)
		require.InDelta(t, 3, v, 1e-3)

		// an averaged ciphertext has no level left for another average
		avg, err := engine.Average(ctx, cts)
		require.NoError(t, err)
		_, err = engine.Average(ctx, []*session.Ciphertext{cts[0], avg})
		require.ErrorIs(t, err, heagg.ErrInsufficientDepth)
		require.ErrorContains(t, err, "ciphertext 1")
	})

	t.Run("Canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := engine.Sum(cctx, cts)
		require.ErrorIs(t, err, context.Canceled)

		many, err := sc.EncryptValues(testValues(12))
		require.NoError(t, err)
		_, err = NewEngine(pc, EngineConfig{ReductionThreshold: 2, ReductionWorkers: 3}).Average(cctx, many)
		require.ErrorIs(t, err, context.Canceled)
	})
}
