// Package rpc implements the datanode↔SCM and client↔SCM RPC surface
// as a gRPC service carrying plain JSON-encoded messages under the
// "json" content-subtype (see codec.go), wired directly into the
// three state managers and the Safe-Mode Controller.
package rpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/apache/ozone-scm/pkg/container"
	"github.com/apache/ozone-scm/pkg/ha"
	"github.com/apache/ozone-scm/pkg/nodemanager"
	"github.com/apache/ozone-scm/pkg/pipeline"
	"github.com/apache/ozone-scm/pkg/safemode"
	"github.com/apache/ozone-scm/pkg/scmerrors"
	"github.com/apache/ozone-scm/pkg/types"
)

// Server adapts the gRPC transport onto the managers. It holds no
// state of its own beyond what it needs to translate wire messages.
type Server struct {
	Nodes     *nodemanager.Manager
	Pipelines *pipeline.Manager
	Containers *container.Manager
	SafeMode  *safemode.Controller
	Gateway   *ha.Gateway
	Log       zerolog.Logger

	TLSConfig *tls.Config // nil disables mutual TLS (security.enabled=false)

	grpcServer *grpc.Server
}

// Start binds addr and serves until Stop is called. It blocks the
// calling goroutine, matching the bootstrap pattern's "start each
// subsystem in its own goroutine" convention.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: failed to listen on %s: %w", addr, err)
	}

	var opts []grpc.ServerOption
	if s.TLSConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(s.TLSConfig)))
	}
	s.grpcServer = grpc.NewServer(opts...)
	s.grpcServer.RegisterService(&serviceDesc, s)

	s.Log.Info().Str("addr", addr).Bool("tls", s.TLSConfig != nil).Msg("rpc server listening")
	return s.grpcServer.Serve(lis)
}

// Stop gracefully drains in-flight RPCs and shuts the listener down.
func (s *Server) Stop() {
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
}

// Register implements Register(NodeDetails, NodeReport, PipelineReport)
// → RegisterResponse.
func (s *Server) Register(_ context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	node := types.NodeInfo{
		ID:       req.Node.NodeID,
		Hostname: req.Node.Hostname,
		IP:       req.Node.IP,
		Port:     req.Node.Port,
	}
	result, err := s.Nodes.Register(node, req.StorageReports, req.MetadataVolumeCount, req.HealthyVolumeCount)
	if err != nil {
		info := errInfo(err)
		return &RegisterResponse{ErrorCode: info.code, ErrorMessage: info.message, LeaderHint: info.hint}, nil
	}
	for _, pid := range req.PipelineIDs {
		s.Pipelines.RecordPipelineReport(pid, req.Node.NodeID)
	}
	s.SafeMode.Notify()

	clusterID, scmID, _ := s.Nodes.GetVersion()
	_ = result
	return &RegisterResponse{
		ClusterID:      clusterID,
		SCMID:          scmID,
		AssignedNodeID: req.Node.NodeID,
	}, nil
}

// SendHeartbeat implements SendHeartbeat(NodeDetails, NodeReport) →
// HeartbeatResponse{commands}.
func (s *Server) SendHeartbeat(_ context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error) {
	cmds, err := s.Nodes.ProcessHeartbeat(req.Node.NodeID, req.StorageReports, req.MetadataVolumeCount, req.HealthyVolumeCount)
	if err != nil {
		info := errInfo(err)
		return &HeartbeatResponse{ErrorCode: info.code, ErrorMessage: info.message, LeaderHint: info.hint}, nil
	}
	return &HeartbeatResponse{Commands: cmds}, nil
}

// ReportContainer implements ReportContainer(NodeDetails,
// ContainerReport) — fire-and-forget.
func (s *Server) ReportContainer(_ context.Context, req *ContainerReportRequest) (*Ack, error) {
	for _, r := range req.Replicas {
		r.NodeID = req.Node.NodeID
		s.Containers.UpdateReplica(r)
	}
	s.SafeMode.Notify()
	return &Ack{}, nil
}

// ReportPipeline implements ReportPipeline(NodeDetails,
// PipelineReport) — fire-and-forget.
func (s *Server) ReportPipeline(_ context.Context, req *PipelineReportRequest) (*Ack, error) {
	for _, pid := range req.PipelineIDs {
		s.Pipelines.RecordPipelineReport(pid, req.Node.NodeID)
	}
	s.SafeMode.Notify()
	return &Ack{}, nil
}

// ListNodes is an admin query: the full node table.
func (s *Server) ListNodes(_ context.Context, _ *ListNodesRequest) (*ListNodesResponse, error) {
	nodes := s.Nodes.ListNodes()
	out := make([]types.NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, *n)
	}
	return &ListNodesResponse{Nodes: out}, nil
}

// ListPipelines is an admin query: the full pipeline table.
func (s *Server) ListPipelines(_ context.Context, _ *ListPipelinesRequest) (*ListPipelinesResponse, error) {
	pipelines := s.Pipelines.ListPipelines()
	out := make([]types.Pipeline, 0, len(pipelines))
	for _, p := range pipelines {
		out = append(out, *p)
	}
	return &ListPipelinesResponse{Pipelines: out}, nil
}

// GetContainer is an admin query: container lookup by id.
func (s *Server) GetContainer(_ context.Context, req *GetContainerRequest) (*GetContainerResponse, error) {
	c := s.Containers.GetContainer(req.ID)
	if c == nil {
		return &GetContainerResponse{ErrorCode: ErrNotFound, ErrorMessage: fmt.Sprintf("container %d not found", req.ID)}, nil
	}
	replicas := s.Containers.Replicas(req.ID)
	out := make([]types.ContainerReplica, 0, len(replicas))
	for _, r := range replicas {
		out = append(out, *r)
	}
	return &GetContainerResponse{Container: c, Replicas: out}, nil
}

// SafeModeStatus is an admin query.
func (s *Server) SafeModeStatus(_ context.Context, _ *SafeModeStatusRequest) (*SafeModeStatusResponse, error) {
	return &SafeModeStatusResponse{
		Status: types.SafeModeStatus{
			InSafeMode:       s.SafeMode.InSafeMode(),
			PreCheckComplete: s.SafeMode.PreCheckComplete(),
		},
		Rules: s.SafeMode.StatusText(),
	}, nil
}

// TriggerContainerEvent is an admin command: drive a container through
// one lifecycle event directly.
func (s *Server) TriggerContainerEvent(_ context.Context, req *TriggerContainerEventRequest) (*TriggerContainerEventResponse, error) {
	if err := s.Containers.Transition(req.ID, req.Event); err != nil {
		info := errInfo(err)
		return &TriggerContainerEventResponse{ErrorCode: info.code, ErrorMessage: info.message, LeaderHint: info.hint}, nil
	}
	return &TriggerContainerEventResponse{}, nil
}

type errDetail struct {
	code    ErrorCode
	message string
	hint    string
}

// errInfo maps a scmerrors.Kind onto the wire ErrorCode, carrying the
// leader hint through for NotLeader so the caller can perform
// transparent failover per without an extra round trip.
func errInfo(err error) errDetail {
	hint, _ := scmerrors.LeaderHint(err)
	return errDetail{
		code:    errorCodeFor(scmerrors.KindOf(err)),
		message: err.Error(),
		hint:    hint,
	}
}

func errorCodeFor(kind scmerrors.Kind) ErrorCode {
	switch kind {
	case scmerrors.NotFound:
		return ErrNotFound
	case scmerrors.AlreadyExists:
		return ErrAlreadyExists
	case scmerrors.InvalidStateTransition:
		return ErrInvalidStateTransition
	case scmerrors.InsufficientDatanodes:
		return ErrInsufficientDatanodes
	case scmerrors.NotLeader:
		return ErrNotLeader
	case scmerrors.Timeout:
		return ErrTimeout
	case scmerrors.Conflict:
		return ErrConflict
	default:
		return ErrInternal
	}
}
