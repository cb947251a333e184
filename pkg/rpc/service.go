package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName is the fully-qualified gRPC service name every method
// path below is rooted at.
const serviceName = "scm.SCMService"

const (
	methodRegister        = "/" + serviceName + "/Register"
	methodSendHeartbeat   = "/" + serviceName + "/SendHeartbeat"
	methodReportContainer = "/" + serviceName + "/ReportContainer"
	methodReportPipeline  = "/" + serviceName + "/ReportPipeline"

	methodListNodes              = "/" + serviceName + "/ListNodes"
	methodListPipelines          = "/" + serviceName + "/ListPipelines"
	methodGetContainer           = "/" + serviceName + "/GetContainer"
	methodSafeModeStatus         = "/" + serviceName + "/SafeModeStatus"
	methodTriggerContainerEvent  = "/" + serviceName + "/TriggerContainerEvent"
)

// serviceDesc is built by hand rather than generated from a .proto
// file (none exists for this service — see codec.go). Each entry
// mirrors the boilerplate a protoc-gen-go-grpc Register*Server call
// would otherwise produce.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Register", func(s *Server, ctx context.Context, in *RegisterRequest) (interface{}, error) {
			return s.Register(ctx, in)
		}),
		unaryMethod("SendHeartbeat", func(s *Server, ctx context.Context, in *HeartbeatRequest) (interface{}, error) {
			return s.SendHeartbeat(ctx, in)
		}),
		unaryMethod("ReportContainer", func(s *Server, ctx context.Context, in *ContainerReportRequest) (interface{}, error) {
			return s.ReportContainer(ctx, in)
		}),
		unaryMethod("ReportPipeline", func(s *Server, ctx context.Context, in *PipelineReportRequest) (interface{}, error) {
			return s.ReportPipeline(ctx, in)
		}),
		unaryMethod("ListNodes", func(s *Server, ctx context.Context, in *ListNodesRequest) (interface{}, error) {
			return s.ListNodes(ctx, in)
		}),
		unaryMethod("ListPipelines", func(s *Server, ctx context.Context, in *ListPipelinesRequest) (interface{}, error) {
			return s.ListPipelines(ctx, in)
		}),
		unaryMethod("GetContainer", func(s *Server, ctx context.Context, in *GetContainerRequest) (interface{}, error) {
			return s.GetContainer(ctx, in)
		}),
		unaryMethod("SafeModeStatus", func(s *Server, ctx context.Context, in *SafeModeStatusRequest) (interface{}, error) {
			return s.SafeModeStatus(ctx, in)
		}),
		unaryMethod("TriggerContainerEvent", func(s *Server, ctx context.Context, in *TriggerContainerEventRequest) (interface{}, error) {
			return s.TriggerContainerEvent(ctx, in)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scm.rpc",
}

// unaryMethod builds a grpc.MethodDesc for a handler of a concrete
// request type, decoding into a fresh *Req before dispatch.
func unaryMethod[Req any](name string, call func(s *Server, ctx context.Context, in *Req) (interface{}, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + serviceName + "/" + name}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(s, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
