// Package worker implements WorkerCommandHandlers (C10): the
// in-process command handlers a tenant worker runs against its
// in-memory authorization graph, one worker per tenant, single
// consumer per internal/command.Buffer.
package worker

import (
	"fmt"
	"sync"

	"github.com/JoshuaRamirez/acs-gateway/internal/errs"
)

// User is a principal known to a tenant's authorization graph.
type User struct {
	ID       int64
	Name     string
	GroupIDs []int64
	RoleIDs  []int64
}

// Group is a collection of users sharing role assignments.
type Group struct {
	ID      int64
	Name    string
	RoleIDs []int64
}

// Role grants a set of permissions, assignable to users and groups.
type Role struct {
	ID            int64
	Name          string
	PermissionIDs []int64
}

// Resource is an object that permissions are granted against.
type Resource struct {
	ID   int64
	Name string
	Kind string
}

// Permission is an action a role may grant against a resource (or,
// with ResourceID zero, against any resource of Action's kind).
type Permission struct {
	ID         int64
	ResourceID int64
	Action     string
}

// Graph is the per-tenant, in-memory authorization model: users,
// groups, roles, resources and permissions, plus the edges between
// them. It is never accessed concurrently — the owning CommandBuffer
// guarantees exactly one handler runs at a time — so Graph carries no
// locking beyond the mutex that guards its id counters.
type Graph struct {
	mu sync.Mutex // guards only the id counters, for defense in depth

	nextUserID       int64
	nextGroupID      int64
	nextRoleID       int64
	nextResourceID   int64
	nextPermissionID int64

	Users       map[int64]*User
	Groups      map[int64]*Group
	Roles       map[int64]*Role
	Resources   map[int64]*Resource
	Permissions map[int64]*Permission
}

// NewGraph builds an empty authorization graph.
func NewGraph() *Graph {
	return &Graph{
		Users:       make(map[int64]*User),
		Groups:      make(map[int64]*Group),
		Roles:       make(map[int64]*Role),
		Resources:   make(map[int64]*Resource),
		Permissions: make(map[int64]*Permission),
	}
}

func (g *Graph) nextID(counter *int64) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	*counter++
	return *counter
}

// CreateUser adds a new user and returns it.
func (g *Graph) CreateUser(name string) *User {
	u := &User{ID: g.nextID(&g.nextUserID), Name: name}
	g.Users[u.ID] = u
	return u
}

// GetUsers returns every user, ordered by creation (ascending ID),
// matching CommandBuffer's FIFO command ordering.
func (g *Graph) GetUsers() []*User {
	out := make([]*User, 0, len(g.Users))
	for id := int64(1); id <= g.nextUserID; id++ {
		if u, ok := g.Users[id]; ok {
			out = append(out, u)
		}
	}
	return out
}

// CreateGroup adds a new group and returns it.
func (g *Graph) CreateGroup(name string) *Group {
	grp := &Group{ID: g.nextID(&g.nextGroupID), Name: name}
	g.Groups[grp.ID] = grp
	return grp
}

// CreateRole adds a new role and returns it.
func (g *Graph) CreateRole(name string) *Role {
	r := &Role{ID: g.nextID(&g.nextRoleID), Name: name}
	g.Roles[r.ID] = r
	return r
}

// CreateResource adds a new resource and returns it.
func (g *Graph) CreateResource(name, kind string) *Resource {
	res := &Resource{ID: g.nextID(&g.nextResourceID), Name: name, Kind: kind}
	g.Resources[res.ID] = res
	return res
}

// GrantPermission creates a permission for action against resourceID
// (0 = any resource) and attaches it to roleID.
func (g *Graph) GrantPermission(roleID, resourceID int64, action string) (*Permission, error) {
	role, ok := g.Roles[roleID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, fmt.Sprintf("worker: role %d not found", roleID))
	}
	p := &Permission{ID: g.nextID(&g.nextPermissionID), ResourceID: resourceID, Action: action}
	g.Permissions[p.ID] = p
	role.PermissionIDs = append(role.PermissionIDs, p.ID)
	return p, nil
}

// AssignRoleToUser attaches roleID to userID.
func (g *Graph) AssignRoleToUser(userID, roleID int64) error {
	u, ok := g.Users[userID]
	if !ok {
		return errs.New(errs.KindNotFound, fmt.Sprintf("worker: user %d not found", userID))
	}
	if _, ok := g.Roles[roleID]; !ok {
		return errs.New(errs.KindNotFound, fmt.Sprintf("worker: role %d not found", roleID))
	}
	u.RoleIDs = append(u.RoleIDs, roleID)
	return nil
}

// AddUserToGroup attaches userID to groupID.
func (g *Graph) AddUserToGroup(userID, groupID int64) error {
	u, ok := g.Users[userID]
	if !ok {
		return errs.New(errs.KindNotFound, fmt.Sprintf("worker: user %d not found", userID))
	}
	if _, ok := g.Groups[groupID]; !ok {
		return errs.New(errs.KindNotFound, fmt.Sprintf("worker: group %d not found", groupID))
	}
	u.GroupIDs = append(u.GroupIDs, groupID)
	return nil
}

// CheckAccess reports whether userID holds a permission for action
// against resourceID, directly or through group membership, and
// either a resource-specific or any-resource (ResourceID 0) grant.
func (g *Graph) CheckAccess(userID, resourceID int64, action string) bool {
	u, ok := g.Users[userID]
	if !ok {
		return false
	}

	roleIDs := make(map[int64]bool, len(u.RoleIDs))
	for _, id := range u.RoleIDs {
		roleIDs[id] = true
	}
	for _, gid := range u.GroupIDs {
		if grp, ok := g.Groups[gid]; ok {
			for _, id := range grp.RoleIDs {
				roleIDs[id] = true
			}
		}
	}

	for roleID := range roleIDs {
		role, ok := g.Roles[roleID]
		if !ok {
			continue
		}
		for _, pid := range role.PermissionIDs {
			perm, ok := g.Permissions[pid]
			if !ok {
				continue
			}
			if perm.Action == action && (perm.ResourceID == 0 || perm.ResourceID == resourceID) {
				return true
			}
		}
	}
	return false
}
