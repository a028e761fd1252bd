package centralized

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/api"
	"github.com/ChristianMct/heagg/services/compute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// AggregationHandler is an interface for the aggregation server to handle
// aggregation requests. It is implemented by the compute service.
type AggregationHandler interface {
	Aggregate(context.Context, compute.Request) (*compute.Result, error)
}

// AggregationServer is the server-side of the aggregation transport.
type AggregationServer struct {
	id heagg.NodeID

	handler  AggregationHandler
	requests atomic.Uint64

	// grpc API
	*grpc.Server
	statsHandler
}

// NewAggregationServer creates a new aggregation server that passes the
// requests to the provided handler.
func NewAggregationServer(id heagg.NodeID, handler AggregationHandler) *AggregationServer {
	srv := new(AggregationServer)
	srv.id = id
	srv.handler = handler

	interceptors := []grpc.UnaryServerInterceptor{
		srv.logInterceptor,
	}

	serverOpts := []grpc.ServerOption{
		grpc.ForceServerCodec(api.Codec{}),
		grpc.MaxRecvMsgSize(MaxMsgSize),
		grpc.MaxSendMsgSize(MaxMsgSize),
		grpc.StatsHandler(&srv.statsHandler),
		grpc.ChainUnaryInterceptor(interceptors...),
	}

	srv.Server = grpc.NewServer(serverOpts...)
	api.RegisterAggregatorServer(srv.Server, srv)

	return srv
}

// Aggregate is a gRPC handler for the Aggregate method of the Aggregator service.
func (srv *AggregationServer) Aggregate(inctx context.Context, req *api.AggregationRequest) (*api.AggregationResult, error) {
	ctx, reqID := getContextFromIncomingContext(inctx, srv.newRequestID)

	res, err := srv.handler.Aggregate(ctx, api.ToComputeRequest(reqID, req))
	if err != nil {
		if terr := grpc.SetTrailer(ctx, errorTrailer(err)); terr != nil {
			srv.Logf("request %s: could not set the error trailer: %v", reqID, terr)
		}
		return nil, status.Error(getStatusCode(err), err.Error())
	}

	srv.Logf("request %s: %s result sent to %s, stage %s", reqID, res.Operation, senderIDFromIncomingContext(ctx), heagg.StageResponded)
	return api.GetAggregationResult(res), nil
}

func (srv *AggregationServer) newRequestID() heagg.RequestID {
	return heagg.RequestID(fmt.Sprintf("%s-%d", srv.id, srv.requests.Add(1)))
}

func (srv *AggregationServer) logInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	srv.Logf("%s from %s: %s in %s", info.FullMethod, senderIDFromIncomingContext(ctx), status.Code(err), time.Since(start))
	return resp, err
}

// Logf writes a log line prefixed with the server id.
func (srv *AggregationServer) Logf(msg string, v ...any) {
	log.Printf("%s | [AggregationServer] %s\n", srv.id, fmt.Sprintf(msg, v...))
}
