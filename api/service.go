package api

import (
	"context"
	"encoding"
	"fmt"

	"google.golang.org/grpc"
)

// CodecName is the name of the gRPC codec of the aggregation service.
const CodecName = "heagg-wire"

// Codec is the gRPC codec for the messages of this package. It encodes any
// value implementing encoding.BinaryMarshaler and decodes into any value
// implementing encoding.BinaryUnmarshaler.
type Codec struct{}

// Marshal implements encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(encoding.BinaryMarshaler)
	if !ok {
		return nil, fmt.Errorf("%s codec: cannot marshal %T", CodecName, v)
	}
	return m.MarshalBinary()
}

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	u, ok := v.(encoding.BinaryUnmarshaler)
	if !ok {
		return fmt.Errorf("%s codec: cannot unmarshal into %T", CodecName, v)
	}
	return u.UnmarshalBinary(data)
}

// Name implements encoding.Codec.
func (Codec) Name() string {
	return CodecName
}

const (
	// Aggregator_Aggregate_FullMethodName is the full gRPC method name of Aggregate.
	Aggregator_Aggregate_FullMethodName = "/heagg.Aggregator/Aggregate"
)

// AggregatorServer is the server API for the Aggregator service.
type AggregatorServer interface {
	Aggregate(context.Context, *AggregationRequest) (*AggregationResult, error)
}

// AggregatorClient is the client API for the Aggregator service.
type AggregatorClient interface {
	Aggregate(ctx context.Context, in *AggregationRequest, opts ...grpc.CallOption) (*AggregationResult, error)
}

type aggregatorClient struct {
	cc grpc.ClientConnInterface
}

// NewAggregatorClient returns a client of the Aggregator service over cc.
// Calls are encoded with Codec.
func NewAggregatorClient(cc grpc.ClientConnInterface) AggregatorClient {
	return &aggregatorClient{cc}
}

func (c *aggregatorClient) Aggregate(ctx context.Context, in *AggregationRequest, opts ...grpc.CallOption) (*AggregationResult, error) {
	out := new(AggregationResult)
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	if err := c.cc.Invoke(ctx, Aggregator_Aggregate_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterAggregatorServer registers srv on s. The server must be created
// with the grpc.ForceServerCodec(Codec{}) option.
func RegisterAggregatorServer(s grpc.ServiceRegistrar, srv AggregatorServer) {
	s.RegisterService(&Aggregator_ServiceDesc, srv)
}

func _Aggregator_Aggregate_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AggregationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AggregatorServer).Aggregate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Aggregator_Aggregate_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AggregatorServer).Aggregate(ctx, req.(*AggregationRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Aggregator_ServiceDesc is the grpc.ServiceDesc for the Aggregator service.
var Aggregator_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "heagg.Aggregator",
	HandlerType: (*AggregatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Aggregate",
			Handler:    _Aggregator_Aggregate_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/aggregation.proto",
}
