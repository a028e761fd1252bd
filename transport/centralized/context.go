package centralized

import (
	"context"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/services"
	"google.golang.org/grpc/metadata"
)

const (
	mdSenderID  = "sender_id"
	mdRequestID = "request_id"

	// trailers of failed calls
	mdErrorKind  = "heagg-error-kind"
	mdErrorStage = "heagg-error-stage"
)

func getOutgoingContext(ctx context.Context, senderID heagg.NodeID, reqID heagg.RequestID) context.Context {
	md := metadata.New(nil)
	md.Append(mdSenderID, string(senderID))
	md.Append(mdRequestID, string(reqID))
	return metadata.NewOutgoingContext(ctx, md)
}

// getContextFromIncomingContext returns a context carrying the request id of
// the incoming call, or newID() if the caller did not provide one.
func getContextFromIncomingContext(inctx context.Context, newID func() heagg.RequestID) (context.Context, heagg.RequestID) {
	id := heagg.RequestID(valueFromIncomingContext(inctx, mdRequestID))
	if len(id) == 0 {
		id = newID()
	}
	return services.ContextWithRequestID(inctx, id), id
}

func valueFromIncomingContext(ctx context.Context, key string) string {
	md, hasMd := metadata.FromIncomingContext(ctx)
	if !hasMd {
		return ""
	}
	id := md.Get(key)
	if len(id) < 1 {
		return ""
	}
	return id[0]
}

func senderIDFromIncomingContext(ctx context.Context) heagg.NodeID {
	return heagg.NodeID(valueFromIncomingContext(ctx, mdSenderID))
}
