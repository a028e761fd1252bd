package originator

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/api"
	"github.com/ChristianMct/heagg/services/compute"
	"github.com/ChristianMct/heagg/session"
	"github.com/ChristianMct/heagg/transport/centralized"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/test/bufconn"
)

var testParameters = session.Parameters{
	PolyModulusDegree:  1 << 12,
	CoeffModBitSizes:   []int{50, 40},
	SpecialModBitSizes: []int{50},
	LogScale:           40,
}

// serviceTransport calls a compute service in-process.
type serviceTransport struct {
	svc      *compute.Service
	requests []*api.AggregationRequest
}

func (st *serviceTransport) Aggregate(ctx context.Context, req *api.AggregationRequest) (*api.AggregationResult, error) {
	st.requests = append(st.requests, req)
	res, err := st.svc.Aggregate(ctx, api.ToComputeRequest("test", req))
	if err != nil {
		return nil, err
	}
	return api.GetAggregationResult(res), nil
}

type transportFunc func(context.Context, *api.AggregationRequest) (*api.AggregationResult, error)

func (f transportFunc) Aggregate(ctx context.Context, req *api.AggregationRequest) (*api.AggregationResult, error) {
	return f(ctx, req)
}

var testValues = [][]float64{
	{45, 130, 210},
	{1.5},
	{-20, 5.25, 100, 0, 33, -7.5},
}

func TestAnalyze(t *testing.T) {
	sc, err := session.NewContext(testParameters)
	require.NoError(t, err)
	svc, err := compute.NewComputeService("helper", compute.ServiceConfig{})
	require.NoError(t, err)
	tp := &serviceTransport{svc: svc}
	o := New("originator", sc, tp)

	for _, values := range testValues {
		for _, op := range []heagg.Operation{heagg.Sum, heagg.Average} {
			t.Run(fmt.Sprintf("n=%d/op=%s", len(values), op), func(t *testing.T) {
				got, err := o.Analyze(context.Background(), values, op)
				require.NoError(t, err)
				expected, err := Expected(values, op)
				require.NoError(t, err)
				require.InDelta(t, expected, got, 1e-2)
			})
		}
	}

	// the requests only carry the public context
	require.NotEmpty(t, tp.requests)
	for _, req := range tp.requests {
		_, err := session.LoadFull(req.PublicContext)
		require.ErrorIs(t, err, heagg.ErrMalformedContext)
	}
}

func TestAnalyzeGRPC(t *testing.T) {
	sc, err := session.NewContext(testParameters)
	require.NoError(t, err)
	svc, err := compute.NewComputeService("helper", compute.ServiceConfig{})
	require.NoError(t, err)

	srv := centralized.NewAggregationServer("helper", svc)
	lis := bufconn.Listen(1 << 24)
	go srv.Serve(lis)
	defer srv.Server.GracefulStop()

	cli := centralized.NewAggregationClient("originator", "bufconn")
	require.NoError(t, cli.ConnectWithDialer(func(c context.Context, _ string) (net.Conn, error) { return lis.DialContext(c) }))
	defer cli.Close()

	o := New("originator", sc, cli)
	got, err := o.Analyze(context.Background(), testValues[0], heagg.Average)
	require.NoError(t, err)
	require.InDelta(t, 385/3.0, got, 1e-2)

	_, err = o.Analyze(context.Background(), testValues[0], heagg.Operation(3))
	require.ErrorIs(t, err, heagg.ErrUnsupportedOperation)
}

func TestAnalyzeErrors(t *testing.T) {
	sc, err := session.NewContext(testParameters)
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		o := New("originator", sc, transportFunc(func(context.Context, *api.AggregationRequest) (*api.AggregationResult, error) {
			t.Fatal("transport should not be called")
			return nil, nil
		}))
		_, err := o.Analyze(context.Background(), nil, heagg.Sum)
		require.ErrorIs(t, err, heagg.ErrEmptyInput)
	})

	t.Run("transport-error", func(t *testing.T) {
		o := New("originator", sc, transportFunc(func(context.Context, *api.AggregationRequest) (*api.AggregationResult, error) {
			return nil, &heagg.StageError{Stage: heagg.StageContextLoaded, Err: heagg.ErrMalformedCiphertext}
		}))
		_, err := o.Analyze(context.Background(), []float64{1}, heagg.Sum)
		require.ErrorIs(t, err, heagg.ErrMalformedCiphertext)
	})

	t.Run("result-under-other-key", func(t *testing.T) {
		other, err := session.NewContext(testParameters)
		require.NoError(t, err)
		o := New("originator", sc, transportFunc(func(context.Context, *api.AggregationRequest) (*api.AggregationResult, error) {
			ct, err := other.Encrypt(42)
			if err != nil {
				return nil, err
			}
			b, err := ct.MarshalBinary()
			return &api.AggregationResult{EncryptedResult: b}, err
		}))
		_, err = o.Analyze(context.Background(), []float64{1}, heagg.Sum)
		require.ErrorIs(t, err, heagg.ErrParameterMismatch)
	})

	t.Run("invalid-value", func(t *testing.T) {
		o := New("originator", sc, &serviceTransport{})
		_, err := o.Analyze(context.Background(), []float64{1, 2 * sc.Public().MaxValue()}, heagg.Sum)
		require.ErrorIs(t, err, heagg.ErrInvalidValue)
	})
}

func TestExpected(t *testing.T) {
	sum, err := Expected([]float64{45, 130, 210}, heagg.Sum)
	require.NoError(t, err)
	require.Equal(t, 385.0, sum)
	avg, err := Expected([]float64{10, 20, 30, 40}, heagg.Average)
	require.NoError(t, err)
	require.Equal(t, 25.0, avg)
	_, err = Expected(nil, heagg.Sum)
	require.ErrorIs(t, err, heagg.ErrEmptyInput)
	_, err = Expected([]float64{1}, heagg.Operation(0))
	require.ErrorIs(t, err, heagg.ErrUnsupportedOperation)
}
