// Package rpcpool implements the RpcChannelPool (C6): a map from
// endpoint string to a long-lived gRPC channel, shared by every caller
// that needs to talk to a tenant worker.
package rpcpool

import (
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JoshuaRamirez/acs-gateway/api/rpcapi"
)

// Pool hands out a *grpc.ClientConn per endpoint, dialing lazily and
// caching the result so repeated lookups for the same endpoint are
// free. Channels live until explicitly disposed by Release or Close.
type Pool struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// New builds an empty pool.
func New() *Pool {
	return &Pool{conns: make(map[string]*grpc.ClientConn)}
}

// GetOrCreate returns the cached channel for endpoint, dialing one if
// none exists yet. Concurrent calls for the same endpoint dial at most
// once.
func (p *Pool) GetOrCreate(endpoint string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cc, ok := p.conns[endpoint]; ok {
		return cc, nil
	}

	cc, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rpcapi.JSONCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("rpcpool: dial %s: %w", endpoint, err)
	}
	p.conns[endpoint] = cc
	return cc, nil
}

// Client returns a TenantWorkerClient bound to endpoint's channel.
func (p *Pool) Client(endpoint string) (rpcapi.TenantWorkerClient, error) {
	cc, err := p.GetOrCreate(endpoint)
	if err != nil {
		return nil, err
	}
	return rpcapi.NewTenantWorkerClient(cc), nil
}

// Release closes and forgets the channel for endpoint, called when the
// owning TenantWorker is stopped. A missing endpoint is a no-op.
func (p *Pool) Release(endpoint string) error {
	p.mu.Lock()
	cc, ok := p.conns[endpoint]
	if ok {
		delete(p.conns, endpoint)
	}
	p.mu.Unlock()

	if !ok {
		return nil
	}
	return cc.Close()
}

// Len reports the number of live channels, mainly for tests.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Close releases every channel in the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*grpc.ClientConn)
	p.mu.Unlock()

	var firstErr error
	for _, cc := range conns {
		if err := cc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
