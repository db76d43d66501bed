package process

import (
	"context"

	"github.com/JoshuaRamirez/acs-gateway/api/rpcapi"
	"github.com/JoshuaRamirez/acs-gateway/internal/rpcpool"
)

// RPCDialer is the production Dialer: it pulls a channel from an
// RpcChannelPool and wraps it in a HealthChecker backed by the
// HealthCheck RPC.
type RPCDialer struct {
	Pool *rpcpool.Pool
}

func (d *RPCDialer) Dial(endpoint string) (HealthChecker, error) {
	client, err := d.Pool.Client(endpoint)
	if err != nil {
		return nil, err
	}
	return &rpcHealthChecker{endpoint: endpoint, pool: d.Pool, client: client}, nil
}

type rpcHealthChecker struct {
	endpoint string
	pool     *rpcpool.Pool
	client   rpcapi.TenantWorkerClient
}

func (h *rpcHealthChecker) HealthCheck(ctx context.Context) (bool, error) {
	resp, err := h.client.HealthCheck(ctx, &rpcapi.HealthRequest{})
	if err != nil {
		return false, err
	}
	return resp.Healthy, nil
}

func (h *rpcHealthChecker) Close() error {
	return h.pool.Release(h.endpoint)
}
