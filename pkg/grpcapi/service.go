// Package grpcapi serves QoS metrics over gRPC.
//
// The service is described without generated code: requests are a
// google.protobuf.Struct carrying "location" and "week" (DD.MM.YYYY) and
// responses are a google.protobuf.DoubleValue. The standard gRPC health
// service is registered alongside it.
package grpcapi

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/HatiCode/qosmetric/pkg/engine"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "qosmetric.v1.QoSService"

	// GetMetricMethod is the full method name of GetMetric.
	GetMetricMethod = "/" + ServiceName + "/GetMetric"
)

// QoSServer is the server API for the QoS service.
type QoSServer interface {
	GetMetric(ctx context.Context, req *structpb.Struct) (*wrapperspb.DoubleValue, error)
}

// ServiceDesc describes the QoS service for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QoSServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetMetric",
			Handler:    getMetricHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "qosmetric/v1/qos.proto",
}

func getMetricHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QoSServer).GetMetric(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetMetricMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QoSServer).GetMetric(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Engine is the subset of engine.Engine the service needs.
type Engine interface {
	ComputeCachedQoS(ctx context.Context, location, week string) (float64, error)
	RecordMetric(ctx context.Context, location, week string, metric float64) bool
}

// Service implements QoSServer on top of an Engine.
type Service struct {
	engine Engine
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(e Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: e, logger: logger}
}

// GetMetric computes the metric for req's location and week. A successful
// result is also recorded to the result sink.
func (s *Service) GetMetric(ctx context.Context, req *structpb.Struct) (*wrapperspb.DoubleValue, error) {
	fields := req.GetFields()
	location := fields["location"].GetStringValue()
	week := fields["week"].GetStringValue()

	if location == "" {
		return nil, status.Error(codes.InvalidArgument, "location is required")
	}
	if week == "" {
		return nil, status.Error(codes.InvalidArgument, "week is required")
	}

	metric, err := s.engine.ComputeCachedQoS(ctx, location, week)
	if err != nil {
		return nil, toStatus(err, s.logger, location, week)
	}

	s.engine.RecordMetric(ctx, location, week, metric)

	return wrapperspb.Double(metric), nil
}

func toStatus(err error, logger *slog.Logger, location, week string) error {
	switch {
	case engine.IsInvalid(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case engine.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		logger.Error("failed to compute qos metric", "location", location, "week", week, "error", err)
		return status.Error(codes.Internal, "internal server error")
	}
}

// Client is a thin client for the QoS service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// GetMetric calls QoSService/GetMetric.
func (c *Client) GetMetric(ctx context.Context, location, week string, opts ...grpc.CallOption) (float64, error) {
	req, err := structpb.NewStruct(map[string]any{
		"location": location,
		"week":     week,
	})
	if err != nil {
		return 0, err
	}

	out := new(wrapperspb.DoubleValue)
	if err := c.cc.Invoke(ctx, GetMetricMethod, req, out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}
