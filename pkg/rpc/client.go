package rpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// FailoverConfig bounds the transparent-failover loop. A NotLeader
// response is retried in two phases: the first SameNodeRetries
// attempts stay on the current address with a doubling wait (the
// hint may be stale), then the client advances to the hinted address
// and the wait resets to WaitBetween before doubling again. The loop
// gives up after MaxAttempts total attempts.
type FailoverConfig struct {
	MaxAttempts     int
	SameNodeRetries int
	WaitBetween     time.Duration
}

// Client is a datanode- or admin-side RPC client that knows how to
// chase a NotLeader hint across the replica set without the caller
// having to track who the current leader is.
type Client struct {
	mu      sync.Mutex
	conns   map[string]*grpc.ClientConn
	addr    string // current best-guess leader address
	tlsConf *tls.Config
	failover FailoverConfig
}

func NewClient(initialAddr string, tlsConf *tls.Config, failover FailoverConfig) *Client {
	if failover.MaxAttempts <= 0 {
		failover.MaxAttempts = 3
	}
	if failover.SameNodeRetries <= 0 {
		failover.SameNodeRetries = 2
	}
	if failover.WaitBetween <= 0 {
		failover.WaitBetween = 500 * time.Millisecond
	}
	return &Client{
		conns:    make(map[string]*grpc.ClientConn),
		addr:     initialAddr,
		tlsConf:  tlsConf,
		failover: failover,
	}
}

func (c *Client) connFor(addr string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cc, ok := c.conns[addr]; ok {
		return cc, nil
	}
	var creds credentials.TransportCredentials
	if c.tlsConf != nil {
		creds = credentials.NewTLS(c.tlsConf)
	} else {
		creds = insecure.NewCredentials()
	}
	cc, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	c.conns[addr] = cc
	return cc, nil
}

func (c *Client) currentAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

func (c *Client) redirectTo(addr string) {
	if addr == "" {
		return
	}
	c.mu.Lock()
	c.addr = addr
	c.mu.Unlock()
}

// invoke performs one RPC, following a NotLeader response through the
// two-phase backoff described on FailoverConfig: growing-wait retries
// against the current address, then a reset-wait redirect to the
// hinted address, up to failover.MaxAttempts total attempts.
func invoke[Req any, Resp any](c *Client, ctx context.Context, method string, req *Req, getHint func(*Resp) (ErrorCode, string)) (*Resp, error) {
	var lastErr error
	wait := c.failover.WaitBetween
	sameNodeAttempts := 0

	for attempt := 0; attempt < c.failover.MaxAttempts; attempt++ {
		addr := c.currentAddr()
		cc, err := c.connFor(addr)
		if err != nil {
			return nil, err
		}

		resp := new(Resp)
		if err := cc.Invoke(ctx, method, req, resp); err != nil {
			lastErr = err
			break // transport-level failure: not a NotLeader redirect, don't retry blindly
		}

		code, hint := getHint(resp)
		if code != ErrNotLeader {
			return resp, nil
		}
		lastErr = fmt.Errorf("rpc: %s: not leader, hint=%s", method, hint)

		if attempt >= c.failover.MaxAttempts-1 {
			break
		}

		sameNodeAttempts++
		if sameNodeAttempts < c.failover.SameNodeRetries {
			time.Sleep(wait)
			wait *= 2
			continue
		}

		c.redirectTo(hint)
		sameNodeAttempts = 0
		wait = c.failover.WaitBetween
		time.Sleep(wait)
	}
	return nil, lastErr
}

func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	return invoke(c, ctx, methodRegister, req, func(r *RegisterResponse) (ErrorCode, string) { return r.ErrorCode, r.LeaderHint })
}

func (c *Client) SendHeartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error) {
	return invoke(c, ctx, methodSendHeartbeat, req, func(r *HeartbeatResponse) (ErrorCode, string) { return r.ErrorCode, r.LeaderHint })
}

func (c *Client) ReportContainer(ctx context.Context, req *ContainerReportRequest) (*Ack, error) {
	return invoke(c, ctx, methodReportContainer, req, func(r *Ack) (ErrorCode, string) { return ErrNone, "" })
}

func (c *Client) ReportPipeline(ctx context.Context, req *PipelineReportRequest) (*Ack, error) {
	return invoke(c, ctx, methodReportPipeline, req, func(r *Ack) (ErrorCode, string) { return ErrNone, "" })
}

func (c *Client) ListNodes(ctx context.Context, req *ListNodesRequest) (*ListNodesResponse, error) {
	return invoke(c, ctx, methodListNodes, req, func(r *ListNodesResponse) (ErrorCode, string) { return ErrNone, "" })
}

func (c *Client) ListPipelines(ctx context.Context, req *ListPipelinesRequest) (*ListPipelinesResponse, error) {
	return invoke(c, ctx, methodListPipelines, req, func(r *ListPipelinesResponse) (ErrorCode, string) { return ErrNone, "" })
}

func (c *Client) GetContainer(ctx context.Context, req *GetContainerRequest) (*GetContainerResponse, error) {
	return invoke(c, ctx, methodGetContainer, req, func(r *GetContainerResponse) (ErrorCode, string) { return r.ErrorCode, "" })
}

func (c *Client) SafeModeStatus(ctx context.Context, req *SafeModeStatusRequest) (*SafeModeStatusResponse, error) {
	return invoke(c, ctx, methodSafeModeStatus, req, func(r *SafeModeStatusResponse) (ErrorCode, string) { return ErrNone, "" })
}

func (c *Client) TriggerContainerEvent(ctx context.Context, req *TriggerContainerEventRequest) (*TriggerContainerEventResponse, error) {
	return invoke(c, ctx, methodTriggerContainerEvent, req, func(r *TriggerContainerEventResponse) (ErrorCode, string) { return r.ErrorCode, r.LeaderHint })
}

// Close tears down every dialed connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, cc := range c.conns {
		if err := cc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
