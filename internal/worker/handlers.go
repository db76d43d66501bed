package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JoshuaRamirez/acs-gateway/internal/command"
	"github.com/JoshuaRamirez/acs-gateway/internal/crypto"
	"github.com/JoshuaRamirez/acs-gateway/internal/errs"
)

// Command type names registered with both the gateway's CommandDispatcher
// type registry and this worker's handler registry.
const (
	TypeCreateUser       = "CreateUser"
	TypeGetUsers         = "GetUsers"
	TypeCreateGroup      = "CreateGroup"
	TypeCreateRole       = "CreateRole"
	TypeCreateResource   = "CreateResource"
	TypeGrantPermission  = "GrantPermission"
	TypeAssignRole       = "AssignRoleToUser"
	TypeAddUserToGroup   = "AddUserToGroup"
	TypeCheckAccess      = "CheckAccess"
	TypeSetEncryptedField = "SetEncryptedField"
	TypeGetEncryptedField = "GetEncryptedField"
)

// TypeNames lists every registered command type, for building the
// gateway-side command.TypeRegistry from the same source of truth.
func TypeNames() []string {
	return []string{
		TypeCreateUser, TypeGetUsers, TypeCreateGroup, TypeCreateRole,
		TypeCreateResource, TypeGrantPermission, TypeAssignRole,
		TypeAddUserToGroup, TypeCheckAccess, TypeSetEncryptedField,
		TypeGetEncryptedField,
	}
}

// FieldStore holds EncryptedField records for one tenant, keyed by
// entityID:fieldName. Like Graph, it relies on CommandBuffer's
// single-consumer guarantee for safety.
type FieldStore struct {
	mu     sync.Mutex // defense in depth only
	fields map[string]*crypto.EncryptedField
}

// NewFieldStore builds an empty field store.
func NewFieldStore() *FieldStore {
	return &FieldStore{fields: make(map[string]*crypto.EncryptedField)}
}

func fieldKey(entityID, fieldName string) string {
	return entityID + ":" + fieldName
}

func (s *FieldStore) put(f *crypto.EncryptedField) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[fieldKey(f.EntityID, f.FieldName)] = f
}

func (s *FieldStore) get(entityID, fieldName string) (*crypto.EncryptedField, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fields[fieldKey(entityID, fieldName)]
	return f, ok
}

// Worker holds one tenant's in-memory authorization graph, encrypted
// field store, and encryption engine, and dispatches decoded commands
// to the matching handler. Worker.Handle is the command.Handler passed
// to a command.Buffer.
type Worker struct {
	TenantID string
	Graph    *Graph
	Fields   *FieldStore
	Engine   *crypto.Engine
}

// NewWorker builds a Worker for tenantID against engine (shared by the
// whole worker process, scoped per-tenant by every call).
func NewWorker(tenantID string, engine *crypto.Engine) *Worker {
	return &Worker{
		TenantID: tenantID,
		Graph:    NewGraph(),
		Fields:   NewFieldStore(),
		Engine:   engine,
	}
}

type handlerFunc func(w *Worker, payload []byte) ([]byte, error)

var registry = map[string]handlerFunc{
	TypeCreateUser:        handleCreateUser,
	TypeGetUsers:          handleGetUsers,
	TypeCreateGroup:       handleCreateGroup,
	TypeCreateRole:        handleCreateRole,
	TypeCreateResource:    handleCreateResource,
	TypeGrantPermission:   handleGrantPermission,
	TypeAssignRole:        handleAssignRole,
	TypeAddUserToGroup:    handleAddUserToGroup,
	TypeCheckAccess:       handleCheckAccess,
	TypeSetEncryptedField: handleSetEncryptedField,
	TypeGetEncryptedField: handleGetEncryptedField,
}

// Handle implements command.Handler: decode commandTypeId → handler,
// deserialize payload, run against the graph/field store, serialize
// the result.
func (w *Worker) Handle(ctx context.Context, cmd command.Command) ([]byte, error) {
	h, ok := registry[cmd.TypeID]
	if !ok {
		return nil, errs.New(errs.KindUnknownCommand, fmt.Sprintf("worker: unknown command type %q", cmd.TypeID))
	}
	return h(w, cmd.Payload)
}

// --- user/group/role/resource/permission handlers ---

type CreateUserArgs struct{ Name string }
type CreateUserResult struct{ User User }

func handleCreateUser(w *Worker, payload []byte) ([]byte, error) {
	var args CreateUserArgs
	if err := command.Decode(payload, &args); err != nil {
		return nil, err
	}
	u := w.Graph.CreateUser(args.Name)
	return command.Encode(CreateUserResult{User: *u})
}

type GetUsersResult struct{ Users []User }

func handleGetUsers(w *Worker, payload []byte) ([]byte, error) {
	users := w.Graph.GetUsers()
	out := make([]User, 0, len(users))
	for _, u := range users {
		out = append(out, *u)
	}
	return command.Encode(GetUsersResult{Users: out})
}

type CreateGroupArgs struct{ Name string }
type CreateGroupResult struct{ Group Group }

func handleCreateGroup(w *Worker, payload []byte) ([]byte, error) {
	var args CreateGroupArgs
	if err := command.Decode(payload, &args); err != nil {
		return nil, err
	}
	g := w.Graph.CreateGroup(args.Name)
	return command.Encode(CreateGroupResult{Group: *g})
}

type CreateRoleArgs struct{ Name string }
type CreateRoleResult struct{ Role Role }

func handleCreateRole(w *Worker, payload []byte) ([]byte, error) {
	var args CreateRoleArgs
	if err := command.Decode(payload, &args); err != nil {
		return nil, err
	}
	r := w.Graph.CreateRole(args.Name)
	return command.Encode(CreateRoleResult{Role: *r})
}

type CreateResourceArgs struct{ Name, Kind string }
type CreateResourceResult struct{ Resource Resource }

func handleCreateResource(w *Worker, payload []byte) ([]byte, error) {
	var args CreateResourceArgs
	if err := command.Decode(payload, &args); err != nil {
		return nil, err
	}
	res := w.Graph.CreateResource(args.Name, args.Kind)
	return command.Encode(CreateResourceResult{Resource: *res})
}

type GrantPermissionArgs struct {
	RoleID     int64
	ResourceID int64
	Action     string
}
type GrantPermissionResult struct{ Permission Permission }

func handleGrantPermission(w *Worker, payload []byte) ([]byte, error) {
	var args GrantPermissionArgs
	if err := command.Decode(payload, &args); err != nil {
		return nil, err
	}
	p, err := w.Graph.GrantPermission(args.RoleID, args.ResourceID, args.Action)
	if err != nil {
		return nil, err
	}
	return command.Encode(GrantPermissionResult{Permission: *p})
}

type AssignRoleToUserArgs struct{ UserID, RoleID int64 }

func handleAssignRole(w *Worker, payload []byte) ([]byte, error) {
	var args AssignRoleToUserArgs
	if err := command.Decode(payload, &args); err != nil {
		return nil, err
	}
	return nil, w.Graph.AssignRoleToUser(args.UserID, args.RoleID)
}

type AddUserToGroupArgs struct{ UserID, GroupID int64 }

func handleAddUserToGroup(w *Worker, payload []byte) ([]byte, error) {
	var args AddUserToGroupArgs
	if err := command.Decode(payload, &args); err != nil {
		return nil, err
	}
	return nil, w.Graph.AddUserToGroup(args.UserID, args.GroupID)
}

type CheckAccessArgs struct {
	UserID     int64
	ResourceID int64
	Action     string
}
type CheckAccessResult struct{ Allowed bool }

func handleCheckAccess(w *Worker, payload []byte) ([]byte, error) {
	var args CheckAccessArgs
	if err := command.Decode(payload, &args); err != nil {
		return nil, err
	}
	allowed := w.Graph.CheckAccess(args.UserID, args.ResourceID, args.Action)
	return command.Encode(CheckAccessResult{Allowed: allowed})
}

// --- encrypted field handlers ---

type SetEncryptedFieldArgs struct {
	EntityID   string
	FieldName  string
	PlainValue string
}
type SetEncryptedFieldResult struct{ Field crypto.EncryptedField }

func handleSetEncryptedField(w *Worker, payload []byte) ([]byte, error) {
	var args SetEncryptedFieldArgs
	if err := command.Decode(payload, &args); err != nil {
		return nil, err
	}
	field, err := w.Engine.EncryptField(args.PlainValue, args.FieldName, args.EntityID, w.TenantID)
	if err != nil {
		return nil, errs.Wrap(errs.KindEncryptionFailed, err, "failed to encrypt field")
	}
	w.Fields.put(field)
	return command.Encode(SetEncryptedFieldResult{Field: *field})
}

type GetEncryptedFieldArgs struct {
	EntityID  string
	FieldName string
}
type GetEncryptedFieldResult struct{ PlainValue string }

func handleGetEncryptedField(w *Worker, payload []byte) ([]byte, error) {
	var args GetEncryptedFieldArgs
	if err := command.Decode(payload, &args); err != nil {
		return nil, err
	}
	field, ok := w.Fields.get(args.EntityID, args.FieldName)
	if !ok {
		return nil, errs.New(errs.KindNotFound, fmt.Sprintf("worker: no encrypted field %s/%s", args.EntityID, args.FieldName))
	}
	plain, err := w.Engine.DecryptField(field, w.TenantID)
	if err != nil {
		if errors.Is(err, crypto.ErrIntegrityViolation) {
			return nil, errs.Wrap(errs.KindValidationFailed, err, "encrypted field failed integrity check")
		}
		return nil, errs.Wrap(errs.KindEncryptionFailed, err, "failed to decrypt field")
	}
	return command.Encode(GetEncryptedFieldResult{PlainValue: plain})
}
