package centralized

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"testing"
	"time"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/api"
	"github.com/ChristianMct/heagg/services"
	"github.com/ChristianMct/heagg/services/compute"
	"github.com/ChristianMct/heagg/session"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const buffConBufferSize = 65 * 1024 * 1024

var testParameters = session.Parameters{
	PolyModulusDegree:  1 << 12,
	CoeffModBitSizes:   []int{50, 40},
	SpecialModBitSizes: []int{50},
	LogScale:           40,
}

type testSetting struct {
	Clients  int
	Requests int // per client
	Values   int // per request
}

var testSettings = []testSetting{
	{Clients: 1, Requests: 1, Values: 3},
	{Clients: 3, Requests: 2, Values: 5},
}

func startTestServer(t *testing.T, conf compute.ServiceConfig) (*AggregationServer, *bufconn.Listener) {
	t.Helper()
	svc, err := compute.NewComputeService("helper", conf)
	require.NoError(t, err)
	srv := NewAggregationServer("helper", svc)
	lis := bufconn.Listen(buffConBufferSize)
	go srv.Serve(lis)
	t.Cleanup(srv.Server.GracefulStop)
	return srv, lis
}

func connectTestClient(t *testing.T, id heagg.NodeID, lis *bufconn.Listener) *AggregationClient {
	t.Helper()
	cli := NewAggregationClient(id, "bufconn")
	require.NoError(t, cli.ConnectWithDialer(func(c context.Context, addr string) (net.Conn, error) { return lis.DialContext(c) }))
	t.Cleanup(func() { require.NoError(t, cli.Close()) })
	return cli
}

func TestAggregation(t *testing.T) {
	sc, err := session.NewContext(testParameters)
	require.NoError(t, err)
	pc := sc.Public()

	for _, ts := range testSettings {
		t.Run(fmt.Sprintf("Clients=%d/Requests=%d/Values=%d", ts.Clients, ts.Requests, ts.Values), func(t *testing.T) {
			srv, lis := startTestServer(t, compute.ServiceConfig{})

			g, ctx := errgroup.WithContext(context.Background())
			for c := 0; c < ts.Clients; c++ {
				cli := connectTestClient(t, heagg.NodeID(fmt.Sprintf("originator-%d", c)), lis)
				g.Go(func() error {
					for r := 0; r < ts.Requests; r++ {
						values := make([]float64, ts.Values)
						var sum float64
						for i := range values {
							values[i] = float64(c*100 + r*10 + i)
							sum += values[i]
						}
						cts, err := pc.EncryptValues(values)
						if err != nil {
							return err
						}
						for _, op := range []heagg.Operation{heagg.Sum, heagg.Average} {
							res, err := cli.AggregateCiphertexts(ctx, pc, cts, op)
							if err != nil {
								return err
							}
							got, err := sc.Decrypt(res)
							if err != nil {
								return err
							}
							exp, delta := sum, 1e-3
							if op == heagg.Average {
								exp, delta = sum/float64(len(values)), 1e-2
							}
							if d := got - exp; d > delta || d < -delta {
								return fmt.Errorf("client %d request %d %s: got %f, expected %f", c, r, op, got, exp)
							}
						}
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())

			nCalls := uint64(ts.Clients * ts.Requests * 2)
			require.Eventually(t, func() bool { return srv.GetStats().Calls == nCalls }, time.Second, 10*time.Millisecond)
			st := srv.GetStats()
			require.NotZero(t, st.DataRecv)
			require.NotZero(t, st.DataSent)
			require.Equal(t, st, srv.GetMethodStats(api.Aggregator_Aggregate_FullMethodName))
		})
	}
}

func TestAggregationErrors(t *testing.T) {
	sc, err := session.NewContext(testParameters)
	require.NoError(t, err)
	pc := sc.Public()
	_, lis := startTestServer(t, compute.ServiceConfig{MaxInputs: 4})
	cli := connectTestClient(t, "originator", lis)
	ctx := context.Background()

	cts, err := pc.EncryptValues([]float64{1, 2, 3})
	require.NoError(t, err)
	valid, err := api.NewAggregationRequest(pc, cts, heagg.Sum)
	require.NoError(t, err)

	full, err := sc.MarshalFull()
	require.NoError(t, err)

	for _, tc := range []struct {
		name   string
		mutate func(r *api.AggregationRequest)
		err    error
		code   codes.Code
		stage  heagg.Stage
	}{
		{"unsupported-operation", func(r *api.AggregationRequest) { r.Operation = "median" }, heagg.ErrUnsupportedOperation, codes.Unimplemented, heagg.StageReceived},
		{"empty-input", func(r *api.AggregationRequest) { r.EncryptedValues = nil }, heagg.ErrEmptyInput, codes.InvalidArgument, heagg.StageReceived},
		{"too-many-inputs", func(r *api.AggregationRequest) { r.EncryptedValues = make([][]byte, 5) }, heagg.ErrTooManyInputs, codes.ResourceExhausted, heagg.StageReceived},
		{"full-context", func(r *api.AggregationRequest) { r.PublicContext = full }, heagg.ErrMalformedContext, codes.InvalidArgument, heagg.StageReceived},
		{"malformed-ciphertext", func(r *api.AggregationRequest) { r.EncryptedValues[0] = []byte{} }, heagg.ErrMalformedCiphertext, codes.InvalidArgument, heagg.StageContextLoaded},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := *valid
			req.EncryptedValues = append([][]byte{}, valid.EncryptedValues...)
			tc.mutate(&req)

			res, err := cli.Aggregate(ctx, &req)
			require.Nil(t, res)
			require.ErrorIs(t, err, tc.err)
			stage, has := heagg.StageOf(err)
			require.True(t, has)
			require.Equal(t, tc.stage, stage)
			require.Equal(t, tc.code, getStatusCode(err))
		})
	}

	t.Run("parameter-mismatch", func(t *testing.T) {
		other, err := session.NewContext(testParameters)
		require.NoError(t, err)
		foreign, err := other.Encrypt(1)
		require.NoError(t, err)
		_, err = cli.AggregateCiphertexts(ctx, pc, append(cts[:2:2], foreign), heagg.Sum)
		require.ErrorIs(t, err, heagg.ErrParameterMismatch)
	})

	t.Run("canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(services.ContextWithRequestID(ctx, "canceled-request"))
		cancel()
		_, err := cli.Aggregate(cctx, valid)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestStatusMapping(t *testing.T) {
	for _, ec := range errorCodes {
		err := &heagg.StageError{Stage: heagg.StageVectorsDeserialized, Err: fmt.Errorf("wrapped: %w", ec.err)}
		require.Equal(t, ec.code, getStatusCode(err))
	}
	require.Equal(t, codes.Internal, getStatusCode(fmt.Errorf("unknown")))

	// a status without kind trailer is returned unchanged
	st := status.Error(codes.Unavailable, "down")
	require.Equal(t, st, getErrorFromStatus(st, nil))
}

func TestErrorTrailer(t *testing.T) {
	md := errorTrailer(&heagg.StageError{Stage: heagg.StageContextLoaded, Err: heagg.ErrMalformedCiphertext})
	require.Equal(t, []string{"MalformedCiphertext"}, md.Get(mdErrorKind))
	require.Equal(t, []string{"ContextLoaded"}, md.Get(mdErrorStage))

	md = errorTrailer(fmt.Errorf("boom"))
	require.Equal(t, []string{heagg.KindInternal}, md.Get(mdErrorKind))
	require.Empty(t, md.Get(mdErrorStage))

	// outside of a gRPC call the trailer cannot be set, the failure is logged
	// and the status error is still returned
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	svc, err := compute.NewComputeService("helper", compute.ServiceConfig{})
	require.NoError(t, err)
	srv := NewAggregationServer("helper", svc)
	_, err = srv.Aggregate(context.Background(), &api.AggregationRequest{Operation: "median"})
	require.Equal(t, codes.Unimplemented, status.Code(err))
	require.Contains(t, buf.String(), "could not set the error trailer")
}
