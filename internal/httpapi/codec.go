package httpapi

import (
	"encoding/json"
	"fmt"

	"github.com/JoshuaRamirez/acs-gateway/internal/command"
	"github.com/JoshuaRamirez/acs-gateway/internal/worker"
)

// commandSpec bridges a JSON request/response body to the gob-encoded
// Args/Result pair a tenant worker's handler registry expects for a
// given command type.
type commandSpec struct {
	newArgs   func() interface{}
	newResult func() interface{}
}

var commandSpecs = map[string]commandSpec{
	worker.TypeCreateUser: {
		newArgs:   func() interface{} { return &worker.CreateUserArgs{} },
		newResult: func() interface{} { return &worker.CreateUserResult{} },
	},
	worker.TypeGetUsers: {
		newArgs:   func() interface{} { return &struct{}{} },
		newResult: func() interface{} { return &worker.GetUsersResult{} },
	},
	worker.TypeCreateGroup: {
		newArgs:   func() interface{} { return &worker.CreateGroupArgs{} },
		newResult: func() interface{} { return &worker.CreateGroupResult{} },
	},
	worker.TypeCreateRole: {
		newArgs:   func() interface{} { return &worker.CreateRoleArgs{} },
		newResult: func() interface{} { return &worker.CreateRoleResult{} },
	},
	worker.TypeCreateResource: {
		newArgs:   func() interface{} { return &worker.CreateResourceArgs{} },
		newResult: func() interface{} { return &worker.CreateResourceResult{} },
	},
	worker.TypeGrantPermission: {
		newArgs:   func() interface{} { return &worker.GrantPermissionArgs{} },
		newResult: func() interface{} { return &worker.GrantPermissionResult{} },
	},
	worker.TypeAssignRole: {
		newArgs:   func() interface{} { return &worker.AssignRoleToUserArgs{} },
		newResult: func() interface{} { return &struct{}{} },
	},
	worker.TypeAddUserToGroup: {
		newArgs:   func() interface{} { return &worker.AddUserToGroupArgs{} },
		newResult: func() interface{} { return &struct{}{} },
	},
	worker.TypeCheckAccess: {
		newArgs:   func() interface{} { return &worker.CheckAccessArgs{} },
		newResult: func() interface{} { return &worker.CheckAccessResult{} },
	},
	worker.TypeSetEncryptedField: {
		newArgs:   func() interface{} { return &worker.SetEncryptedFieldArgs{} },
		newResult: func() interface{} { return &worker.SetEncryptedFieldResult{} },
	},
	worker.TypeGetEncryptedField: {
		newArgs:   func() interface{} { return &worker.GetEncryptedFieldArgs{} },
		newResult: func() interface{} { return &worker.GetEncryptedFieldResult{} },
	},
}

// commandEnvelope is the JSON body accepted by POST /tenants/{id}/commands.
type commandEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// encodeCommand converts a JSON command envelope into a gob-encoded
// command.Command ready for dispatch, validating the command type is
// known to this bridge before it ever reaches the wire.
func encodeCommand(env commandEnvelope, correlationID string) (command.Command, error) {
	spec, ok := commandSpecs[env.Type]
	if !ok {
		return command.Command{}, fmt.Errorf("unsupported command type %q", env.Type)
	}
	args := spec.newArgs()
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, args); err != nil {
			return command.Command{}, fmt.Errorf("invalid payload for %q: %w", env.Type, err)
		}
	}
	data, err := command.Encode(args)
	if err != nil {
		return command.Command{}, fmt.Errorf("encoding command %q: %w", env.Type, err)
	}
	return command.Command{TypeID: env.Type, Payload: data, CorrelationID: correlationID}, nil
}

// decodeResult decodes a worker's gob-encoded result for typeID back
// into a JSON value suitable for the HTTP response body.
func decodeResult(typeID string, data []byte) (interface{}, error) {
	spec, ok := commandSpecs[typeID]
	if !ok {
		return nil, fmt.Errorf("unsupported command type %q", typeID)
	}
	result := spec.newResult()
	if len(data) > 0 {
		if err := command.Decode(data, result); err != nil {
			return nil, fmt.Errorf("decoding result for %q: %w", typeID, err)
		}
	}
	return result, nil
}
