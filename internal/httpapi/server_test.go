package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/JoshuaRamirez/acs-gateway/api/rpcapi"
	"github.com/JoshuaRamirez/acs-gateway/internal/auth"
	"github.com/JoshuaRamirez/acs-gateway/internal/command"
	"github.com/JoshuaRamirez/acs-gateway/internal/tenancy"
	"github.com/JoshuaRamirez/acs-gateway/internal/worker"
)

type fakeEndpoint struct{ endpoint string }

func (f *fakeEndpoint) Endpoint(ctx context.Context, tenantID string) (string, error) {
	return f.endpoint, nil
}
func (f *fakeEndpoint) Recheck(ctx context.Context, tenantID string) (string, error) {
	return f.endpoint, nil
}

// fakeWorkerClient routes Execute through an in-process worker.Worker,
// exercising the same gob Args/Result bridge a real tenant worker
// process would.
type fakeWorkerClient struct {
	rpcapi.TenantWorkerClient
	w *worker.Worker
}

func (c *fakeWorkerClient) Execute(ctx context.Context, in *rpcapi.CommandRequest, opts ...grpc.CallOption) (*rpcapi.CommandResponse, error) {
	data, err := c.w.Handle(ctx, command.Command{TypeID: in.CommandType, Payload: in.CommandData, CorrelationID: in.CorrelationID})
	if err != nil {
		return &rpcapi.CommandResponse{Success: false, ErrorMessage: err.Error(), CorrelationID: in.CorrelationID}, nil
	}
	return &rpcapi.CommandResponse{Success: true, ResultData: data, CorrelationID: in.CorrelationID}, nil
}

type fakeChannels struct{ client rpcapi.TenantWorkerClient }

func (f *fakeChannels) Client(endpoint string) (rpcapi.TenantWorkerClient, error) { return f.client, nil }

func testServer(t *testing.T, tenantIDs ...string) (*Server, *auth.JWTValidator) {
	t.Helper()
	reg := tenancy.NewRegistry(nil)
	for _, id := range tenantIDs {
		reg.Add(tenancy.Descriptor{TenantID: id, IsActive: true})
	}
	resolver := tenancy.NewResolver(reg, "")

	w := worker.NewWorker("t1", nil)
	registry := command.NewTypeRegistry(worker.TypeNames()...)
	dispatcher := command.NewDispatcher(registry, &fakeEndpoint{endpoint: "localhost:5001"}, &fakeChannels{client: &fakeWorkerClient{w: w}}, nil)

	validator, err := auth.NewJWTValidator([]byte("test-secret-key-0123456789abcdef"), "acs-gateway")
	require.NoError(t, err)

	srv := NewServer(Options{Resolver: resolver, Dispatcher: dispatcher, Auth: validator})
	return srv, validator
}

func bearerFor(t *testing.T, v *auth.JWTValidator, tenantID string, roles ...string) string {
	t.Helper()
	token, err := v.GenerateToken(auth.Principal{UserID: "u1", TenantID: tenantID, Roles: roles}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHandleHealth_OK(t *testing.T) {
	srv, _ := testServer(t, "t1")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleCommands_MissingAuthIsUnauthenticated(t *testing.T) {
	srv, _ := testServer(t, "t1")
	body := bytes.NewReader([]byte(`{"type":"CreateUser","payload":{"Name":"alice"}}`))
	req := httptest.NewRequest(http.MethodPost, "/tenants/t1/commands", body)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleCommands_CreateUserSucceedsAndEchoesCorrelationID(t *testing.T) {
	srv, v := testServer(t, "t1")
	body := bytes.NewReader([]byte(`{"type":"CreateUser","payload":{"Name":"alice"}}`))
	req := httptest.NewRequest(http.MethodPost, "/tenants/t1/commands", body)
	req.Header.Set("Authorization", bearerFor(t, v, "t1"))
	req.Header.Set("X-Correlation-ID", "corr-123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "corr-123", w.Header().Get("X-Correlation-ID"))

	var result worker.CreateUserResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "alice", result.User.Name)
	assert.Greater(t, result.User.ID, int64(0))
}

func TestHandleCommands_CrossTenantTokenDenied(t *testing.T) {
	srv, v := testServer(t, "t1", "t2")
	body := bytes.NewReader([]byte(`{"type":"CreateUser","payload":{"Name":"alice"}}`))
	req := httptest.NewRequest(http.MethodPost, "/tenants/t1/commands", body)
	req.Header.Set("Authorization", bearerFor(t, v, "t2"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandleCommands_SequentialCreateUsersPreserveOrder(t *testing.T) {
	srv, v := testServer(t, "t1")
	token := bearerFor(t, v, "t1")

	for _, name := range []string{"a", "b", "c"} {
		payload, _ := json.Marshal(map[string]string{"Name": name})
		env, _ := json.Marshal(map[string]json.RawMessage{"type": []byte(`"CreateUser"`), "payload": payload})
		req := httptest.NewRequest(http.MethodPost, "/tenants/t1/commands", bytes.NewReader(env))
		req.Header.Set("Authorization", token)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	getEnv, _ := json.Marshal(map[string]string{"type": "GetUsers"})
	req := httptest.NewRequest(http.MethodPost, "/tenants/t1/commands", bytes.NewReader(getEnv))
	req.Header.Set("Authorization", token)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var result worker.GetUsersResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Users, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{result.Users[0].Name, result.Users[1].Name, result.Users[2].Name})
}

func TestHandleCommands_UnknownCommandType(t *testing.T) {
	srv, v := testServer(t, "t1")
	body := bytes.NewReader([]byte(`{"type":"Bogus"}`))
	req := httptest.NewRequest(http.MethodPost, "/tenants/t1/commands", body)
	req.Header.Set("Authorization", bearerFor(t, v, "t1"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCommands_UnknownTenantNotFound(t *testing.T) {
	srv, v := testServer(t, "t1")
	body := bytes.NewReader([]byte(`{"type":"CreateUser","payload":{"Name":"alice"}}`))
	req := httptest.NewRequest(http.MethodPost, "/tenants/ghost/commands", body)
	req.Header.Set("Authorization", bearerFor(t, v, "ghost"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
