package centralized

import (
	"context"
	"sync"

	"github.com/ChristianMct/heagg/services"
	"google.golang.org/grpc/stats"
)

// statsHandler counts the bytes exchanged over a gRPC connection.
type statsHandler struct {
	mu sync.Mutex
	NetStats
	methods map[string]NetStats
}

// TagRPC can attach some information to the given context.
// The context used for the rest lifetime of the RPC will be derived from
// the returned context.
func (s *statsHandler) TagRPC(ctx context.Context, info *stats.RPCTagInfo) context.Context {
	return context.WithValue(ctx, services.CtxKeyName, info.FullMethodName)
}

// HandleRPC processes the RPC stats.
func (s *statsHandler) HandleRPC(ctx context.Context, sta stats.RPCStats) {
	method, _ := services.ServiceFromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.methods == nil {
		s.methods = make(map[string]NetStats)
	}
	ms := s.methods[method]
	switch sta := sta.(type) {
	case *stats.InPayload:
		s.DataRecv += uint64(sta.WireLength)
		ms.DataRecv += uint64(sta.WireLength)
	case *stats.OutPayload:
		s.DataSent += uint64(sta.WireLength)
		ms.DataSent += uint64(sta.WireLength)
	case *stats.End:
		s.Calls++
		ms.Calls++
	}
	s.methods[method] = ms
}

// TagConn can attach some information to the given context.
func (s *statsHandler) TagConn(ctx context.Context, _ *stats.ConnTagInfo) context.Context {
	return ctx
}

// HandleConn processes the Conn stats.
func (s *statsHandler) HandleConn(_ context.Context, _ stats.ConnStats) {}

// GetStats returns the network statistics accumulated so far.
func (s *statsHandler) GetStats() NetStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.NetStats
}

// GetMethodStats returns the network statistics of the calls to the given
// gRPC method.
func (s *statsHandler) GetMethodStats(fullMethod string) NetStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.methods[fullMethod]
}
