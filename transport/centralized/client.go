package centralized

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/api"
	"github.com/ChristianMct/heagg/services"
	"github.com/ChristianMct/heagg/session"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// AggregationClient is a client for the aggregation service. It is used by
// originators to send their requests to an aggregation server.
type AggregationClient struct {
	id            heagg.NodeID
	serverAddress heagg.NodeAddress

	requests atomic.Uint64

	*grpc.ClientConn
	cli api.AggregatorClient
	statsHandler
}

// NewAggregationClient creates a new aggregation client for the server at
// the given address.
func NewAggregationClient(id heagg.NodeID, serverAddress heagg.NodeAddress) *AggregationClient {
	return &AggregationClient{id: id, serverAddress: serverAddress}
}

// Connect establishes a connection to the aggregation server.
func (ac *AggregationClient) Connect() error {
	return ac.ConnectWithDialer(func(_ context.Context, _ string) (net.Conn, error) {
		return net.Dial("tcp", ac.serverAddress.String())
	})
}

// ConnectWithDialer establishes a connection to the aggregation server using
// the provided dialer.
func (ac *AggregationClient) ConnectWithDialer(dialer Dialer) error {
	opts := []grpc.DialOption{
		grpc.WithContextDialer(dialer),
		grpc.WithBlock(),
		grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 1 * time.Second}),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(MaxMsgSize),
			grpc.MaxCallSendMsgSize(MaxMsgSize)),
		grpc.WithStatsHandler(&ac.statsHandler),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}

	ctx, cancel := context.WithTimeout(context.Background(), ClientConnectTimeout)
	defer cancel()
	var err error
	ac.ClientConn, err = grpc.DialContext(ctx, string(ac.serverAddress), opts...)
	if err != nil {
		return fmt.Errorf("fail establish connection to the aggregation server at tcp://%s: %w", ac.serverAddress, err)
	}

	ac.cli = api.NewAggregatorClient(ac.ClientConn)
	return nil
}

// Aggregate sends an aggregation request to the server. Failed calls return
// errors wrapping the error of the server-side taxonomy, and a
// *heagg.StageError when the server reported the failing stage.
func (ac *AggregationClient) Aggregate(ctx context.Context, req *api.AggregationRequest) (*api.AggregationResult, error) {
	if ac.cli == nil {
		return nil, fmt.Errorf("client is not connected")
	}

	reqID, has := services.RequestIDFromContext(ctx)
	if !has {
		reqID = heagg.RequestID(fmt.Sprintf("%s-%d", ac.id, ac.requests.Add(1)))
	}

	var trailer metadata.MD
	res, err := ac.cli.Aggregate(getOutgoingContext(ctx, ac.id, reqID), req, grpc.Trailer(&trailer))
	if err != nil {
		return nil, getErrorFromStatus(err, trailer)
	}
	return res, nil
}

// AggregateCiphertexts requests the aggregation op over cts, under the public
// context pc, and returns the decoded result.
func (ac *AggregationClient) AggregateCiphertexts(ctx context.Context, pc *session.PublicContext, cts []*session.Ciphertext, op heagg.Operation) (*session.Ciphertext, error) {
	req, err := api.NewAggregationRequest(pc, cts, op)
	if err != nil {
		return nil, err
	}
	res, err := ac.Aggregate(ctx, req)
	if err != nil {
		return nil, err
	}
	return session.UnmarshalCiphertext(pc, res.EncryptedResult)
}

// Close closes the connection to the server.
func (ac *AggregationClient) Close() error {
	if ac.ClientConn == nil {
		return nil
	}
	return ac.ClientConn.Close()
}
