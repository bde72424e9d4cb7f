// Package domainstore provides the pluggable storage boundary a worker
// persists its tenant's state behind. It holds one concrete
// authorization-graph document shape (User, Group, Role, Permission) and
// two Store implementations: an in-memory one (internal/handlers' tests
// and a dependency-free worker) and a MongoDB-backed one
// (internal/domainstore/mongostore).
package domainstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by any lookup that finds no matching record.
var ErrNotFound = errors.New("domainstore: not found")

// User is one authorization-graph principal.
type User struct {
	ID        string
	Name      string
	GroupIDs  []string
	CreatedAt time.Time
}

// Group is a named collection of users and roles.
type Group struct {
	ID      string
	Name    string
	RoleIDs []string
}

// Role is a named bundle of permissions.
type Role struct {
	ID            string
	Name          string
	PermissionIDs []string
}

// Permission is one grantable capability, optionally scoped to a
// resource pattern.
type Permission struct {
	ID       string
	Action   string
	Resource string
}

// Store is the opaque persistence boundary handlers
// (internal/handlers) are written against. The core only depends on
// this interface, never a concrete backend.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	UpdateUser(ctx context.Context, u User) error
	DeleteUser(ctx context.Context, id string) error
	GetUser(ctx context.Context, id string) (User, error)

	CreateGroup(ctx context.Context, g Group) error
	AddUserToGroup(ctx context.Context, userID, groupID string) error
	ListUsersInGroup(ctx context.Context, groupID string) ([]User, error)

	CreateRole(ctx context.Context, r Role) error
	ListRoles(ctx context.Context) ([]Role, error)

	GrantPermission(ctx context.Context, roleID string, p Permission) error
	RevokePermission(ctx context.Context, roleID, permissionID string) error

	// CheckPermission answers whether userID has action on resource by
	// walking user -> groups -> roles -> permissions. Marked
	// RequiresWriteLane in the handler registry (internal/handlers) as
	// the worked example of a query needing strict read-after-write.
	CheckPermission(ctx context.Context, userID, action, resource string) (bool, error)
}
