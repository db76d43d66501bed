package command

import (
	"context"
	"fmt"

	"github.com/JoshuaRamirez/acs-gateway/api/rpcapi"
	"github.com/JoshuaRamirez/acs-gateway/internal/correlation"
	"github.com/JoshuaRamirez/acs-gateway/internal/errs"
	"github.com/JoshuaRamirez/acs-gateway/pkg/metrics"
)

// TypeRegistry is the set of registered command type names, built once
// at startup. It holds names only; the per-type decode/encode functions
// live in internal/httpapi/codec.go.
type TypeRegistry struct {
	types map[string]struct{}
}

// NewTypeRegistry builds a registry recognizing exactly the given
// command type names.
func NewTypeRegistry(typeNames ...string) *TypeRegistry {
	types := make(map[string]struct{}, len(typeNames))
	for _, name := range typeNames {
		types[name] = struct{}{}
	}
	return &TypeRegistry{types: types}
}

// Known reports whether typeID is a registered command type.
func (r *TypeRegistry) Known(typeID string) bool {
	_, ok := r.types[typeID]
	return ok
}

// WorkerEndpoint resolves the gRPC endpoint to dispatch a tenant's
// commands to, and can force a fresh health check (used for the
// single automatic retry after a transport failure).
type WorkerEndpoint interface {
	Endpoint(ctx context.Context, tenantID string) (string, error)
	Recheck(ctx context.Context, tenantID string) (string, error)
}

// ChannelSource hands out an RPC client bound to an endpoint.
type ChannelSource interface {
	Client(endpoint string) (rpcapi.TenantWorkerClient, error)
}

// Dispatcher is the gateway-side CommandDispatcher (C9).
type Dispatcher struct {
	registry *TypeRegistry
	workers  WorkerEndpoint
	channels ChannelSource
	metrics  *metrics.GatewayMetrics
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(registry *TypeRegistry, workers WorkerEndpoint, channels ChannelSource, gatewayMetrics *metrics.GatewayMetrics) *Dispatcher {
	return &Dispatcher{registry: registry, workers: workers, channels: channels, metrics: gatewayMetrics}
}

// Dispatch serializes cmd, sends it to tenantID's worker, and returns
// the decoded result bytes. On a transport-level failure it forces a
// health recheck and retries exactly once before surfacing
// WorkerUnavailable.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID string, cmd Command) ([]byte, error) {
	if !d.registry.Known(cmd.TypeID) {
		return nil, errs.New(errs.KindUnknownCommand, fmt.Sprintf("unknown command type %q", cmd.TypeID))
	}

	cc := correlation.FromContext(ctx)
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = cc.CorrelationID
	}

	endpoint, err := d.workers.Endpoint(ctx, tenantID)
	if err != nil {
		return nil, d.recordAndWrap(cmd.TypeID, err)
	}

	resp, err := d.send(ctx, endpoint, cmd)
	if err == nil {
		return d.finish(cmd.TypeID, resp)
	}

	// One retry after forcing a health recheck, per the dispatcher's
	// transport-error policy.
	endpoint, recheckErr := d.workers.Recheck(ctx, tenantID)
	if recheckErr != nil {
		return nil, d.recordAndWrap(cmd.TypeID, errs.Wrap(errs.KindWorkerUnavailable, err, "tenant worker unavailable"))
	}

	resp, err = d.send(ctx, endpoint, cmd)
	if err != nil {
		return nil, d.recordAndWrap(cmd.TypeID, errs.Wrap(errs.KindWorkerUnavailable, err, "tenant worker unavailable after retry"))
	}
	return d.finish(cmd.TypeID, resp)
}

func (d *Dispatcher) send(ctx context.Context, endpoint string, cmd Command) (*rpcapi.CommandResponse, error) {
	client, err := d.channels.Client(endpoint)
	if err != nil {
		return nil, err
	}
	return client.Execute(ctx, &rpcapi.CommandRequest{
		CommandType:   cmd.TypeID,
		CommandData:   cmd.Payload,
		CorrelationID: cmd.CorrelationID,
	})
}

func (d *Dispatcher) finish(typeID string, resp *rpcapi.CommandResponse) ([]byte, error) {
	if d.metrics != nil {
		d.metrics.CommandsDispatchedTotal.WithLabelValues(typeID, successLabel(resp.Success)).Inc()
	}
	if !resp.Success {
		kind := errs.Kind(resp.ErrorKind)
		if kind == "" {
			kind = errs.KindInternal
		}
		return nil, errs.Wrap(kind, fmt.Errorf("%s", resp.ErrorMessage), "tenant worker command failed").
			WithCorrelationID(resp.CorrelationID)
	}
	return resp.ResultData, nil
}

func (d *Dispatcher) recordAndWrap(typeID string, err error) error {
	if d.metrics != nil {
		d.metrics.CommandsDispatchedTotal.WithLabelValues(typeID, "error").Inc()
	}
	return err
}

func successLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
