// Package handlers registers the authorization-domain operation set
// (the users/groups/roles/permissions graph) against internal/envelope's
// Registry. The graph traversal and evaluation logic itself stays a thin
// pass-through to internal/domainstore, but every op_name here is real,
// reaches a real Store, and is exercised by tests.
package handlers

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/LerianStudio/acsd/internal/domainstore"
	"github.com/LerianStudio/acsd/internal/envelope"
	"github.com/LerianStudio/acsd/pkg/acserr"
)

// CreateUserPayload is CreateUser's command payload. An empty ID asks
// the worker to assign one.
type CreateUserPayload struct {
	ID   string
	Name string
}

// CreateUserResult carries the created user's id back to the caller.
type CreateUserResult struct {
	ID string
}

// UpdateUserPayload is UpdateUser's command payload.
type UpdateUserPayload struct {
	ID   string
	Name string
}

// DeleteUserPayload is DeleteUser's command payload.
type DeleteUserPayload struct {
	ID string
}

// AddUserToGroupPayload is AddUserToGroup's command payload.
type AddUserToGroupPayload struct {
	UserID  string
	GroupID string
}

// CreateGroupPayload is CreateGroup's command payload.
type CreateGroupPayload struct {
	ID      string
	Name    string
	RoleIDs []string
}

// CreateRolePayload is CreateRole's command payload.
type CreateRolePayload struct {
	ID   string
	Name string
}

// GrantPermissionPayload is GrantPermission's command payload.
type GrantPermissionPayload struct {
	RoleID       string
	PermissionID string
	Action       string
	Resource     string
}

// RevokePermissionPayload is RevokePermission's command payload.
type RevokePermissionPayload struct {
	RoleID       string
	PermissionID string
}

// GetUserPayload is GetUser's query payload.
type GetUserPayload struct {
	ID string
}

// GetUserResult is GetUser's query result.
type GetUserResult struct {
	ID       string
	Name     string
	GroupIDs []string
}

// ListUsersInGroupPayload is ListUsersInGroup's query payload.
type ListUsersInGroupPayload struct {
	GroupID string
}

// ListUsersInGroupResult is ListUsersInGroup's query result.
type ListUsersInGroupResult struct {
	Users []GetUserResult
}

// CheckPermissionPayload is CheckPermission's query payload.
type CheckPermissionPayload struct {
	UserID   string
	Action   string
	Resource string
}

// CheckPermissionResult is CheckPermission's query result.
type CheckPermissionResult struct {
	Allowed bool
}

// ListRolesPayload is ListRoles' query payload (empty; even a no-field
// op gets a registered type so payload interpretation stays keyed to
// op_name alone).
type ListRolesPayload struct{}

// RoleResult is one role in ListRoles' result.
type RoleResult struct {
	ID            string
	Name          string
	PermissionIDs []string
}

// ListRolesResult is ListRoles' query result.
type ListRolesResult struct {
	Roles []RoleResult
}

// Register populates reg with this repository's representative
// authorization-domain handler set, all backed by store. Returns an
// error if any op_name collides — duplicate registration here would be
// a bug in this function, not reachable at runtime.
func Register(reg *envelope.Registry, store domainstore.Store) error {
	// userSeq assigns per-worker monotonic user ids. The worker is the
	// only writer for its tenant, so the sequence is monotonic per
	// tenant as long as the process lives; a restart restarts it, which
	// is why caller-supplied ids always win.
	var userSeq atomic.Uint64

	registrations := []envelope.HandlerEntry{
		{
			OpName:      "CreateUser",
			Class:       envelope.CommandWithResult,
			PayloadType: reflect.TypeOf(CreateUserPayload{}),
			ResultFn: func(ctx context.Context, tenantID string, payload any) (any, error) {
				p := payload.(*CreateUserPayload)
				id := p.ID
				if id == "" {
					id = fmt.Sprintf("u-%06d", userSeq.Add(1))
				}
				if err := store.CreateUser(ctx, domainstore.User{ID: id, Name: p.Name}); err != nil {
					return nil, wrapStoreErr("CreateUser", err)
				}
				return CreateUserResult{ID: id}, nil
			},
		},
		{
			OpName:      "UpdateUser",
			Class:       envelope.CommandVoid,
			PayloadType: reflect.TypeOf(UpdateUserPayload{}),
			CommandVoidFn: func(ctx context.Context, tenantID string, payload any) error {
				p := payload.(*UpdateUserPayload)
				return wrapStoreErr("UpdateUser", store.UpdateUser(ctx, domainstore.User{ID: p.ID, Name: p.Name}))
			},
		},
		{
			OpName:      "DeleteUser",
			Class:       envelope.CommandVoid,
			PayloadType: reflect.TypeOf(DeleteUserPayload{}),
			CommandVoidFn: func(ctx context.Context, tenantID string, payload any) error {
				p := payload.(*DeleteUserPayload)
				return store.DeleteUser(ctx, p.ID)
			},
		},
		{
			OpName:      "AddUserToGroup",
			Class:       envelope.CommandVoid,
			PayloadType: reflect.TypeOf(AddUserToGroupPayload{}),
			CommandVoidFn: func(ctx context.Context, tenantID string, payload any) error {
				p := payload.(*AddUserToGroupPayload)
				return wrapStoreErr("AddUserToGroup", store.AddUserToGroup(ctx, p.UserID, p.GroupID))
			},
		},
		{
			OpName:      "CreateGroup",
			Class:       envelope.CommandVoid,
			PayloadType: reflect.TypeOf(CreateGroupPayload{}),
			CommandVoidFn: func(ctx context.Context, tenantID string, payload any) error {
				p := payload.(*CreateGroupPayload)
				return store.CreateGroup(ctx, domainstore.Group{ID: p.ID, Name: p.Name, RoleIDs: p.RoleIDs})
			},
		},
		{
			OpName:      "CreateRole",
			Class:       envelope.CommandVoid,
			PayloadType: reflect.TypeOf(CreateRolePayload{}),
			CommandVoidFn: func(ctx context.Context, tenantID string, payload any) error {
				p := payload.(*CreateRolePayload)
				return store.CreateRole(ctx, domainstore.Role{ID: p.ID, Name: p.Name})
			},
		},
		{
			OpName:      "GrantPermission",
			Class:       envelope.CommandVoid,
			PayloadType: reflect.TypeOf(GrantPermissionPayload{}),
			CommandVoidFn: func(ctx context.Context, tenantID string, payload any) error {
				p := payload.(*GrantPermissionPayload)
				return wrapStoreErr("GrantPermission", store.GrantPermission(ctx, p.RoleID, domainstore.Permission{
					ID: p.PermissionID, Action: p.Action, Resource: p.Resource,
				}))
			},
		},
		{
			OpName:      "RevokePermission",
			Class:       envelope.CommandVoid,
			PayloadType: reflect.TypeOf(RevokePermissionPayload{}),
			CommandVoidFn: func(ctx context.Context, tenantID string, payload any) error {
				p := payload.(*RevokePermissionPayload)
				return store.RevokePermission(ctx, p.RoleID, p.PermissionID)
			},
		},
		{
			OpName:      "GetUser",
			Class:       envelope.Query,
			PayloadType: reflect.TypeOf(GetUserPayload{}),
			ResultFn: func(ctx context.Context, tenantID string, payload any) (any, error) {
				p := payload.(*GetUserPayload)
				u, err := store.GetUser(ctx, p.ID)
				if err != nil {
					return nil, wrapStoreErr("GetUser", err)
				}
				return GetUserResult{ID: u.ID, Name: u.Name, GroupIDs: u.GroupIDs}, nil
			},
		},
		{
			OpName:      "ListUsersInGroup",
			Class:       envelope.Query,
			PayloadType: reflect.TypeOf(ListUsersInGroupPayload{}),
			ResultFn: func(ctx context.Context, tenantID string, payload any) (any, error) {
				p := payload.(*ListUsersInGroupPayload)
				users, err := store.ListUsersInGroup(ctx, p.GroupID)
				if err != nil {
					return nil, wrapStoreErr("ListUsersInGroup", err)
				}
				out := make([]GetUserResult, 0, len(users))
				for _, u := range users {
					out = append(out, GetUserResult{ID: u.ID, Name: u.Name, GroupIDs: u.GroupIDs})
				}
				return ListUsersInGroupResult{Users: out}, nil
			},
		},
		{
			OpName: "CheckPermission",
			// This query must observe any GrantPermission or
			// RevokePermission that committed immediately before it,
			// so it serializes with the command lane instead of
			// running concurrently.
			Class:             envelope.Query,
			RequiresWriteLane: true,
			PayloadType:       reflect.TypeOf(CheckPermissionPayload{}),
			ResultFn: func(ctx context.Context, tenantID string, payload any) (any, error) {
				p := payload.(*CheckPermissionPayload)
				ok, err := store.CheckPermission(ctx, p.UserID, p.Action, p.Resource)
				if err != nil {
					return nil, wrapStoreErr("CheckPermission", err)
				}
				return CheckPermissionResult{Allowed: ok}, nil
			},
		},
		{
			OpName:      "ListRoles",
			Class:       envelope.Query,
			PayloadType: reflect.TypeOf(ListRolesPayload{}),
			ResultFn: func(ctx context.Context, tenantID string, payload any) (any, error) {
				roles, err := store.ListRoles(ctx)
				if err != nil {
					return nil, wrapStoreErr("ListRoles", err)
				}
				out := make([]RoleResult, 0, len(roles))
				for _, r := range roles {
					out = append(out, RoleResult{ID: r.ID, Name: r.Name, PermissionIDs: r.PermissionIDs})
				}
				return ListRolesResult{Roles: out}, nil
			},
		},
	}

	for _, entry := range registrations {
		if err := reg.Register(entry); err != nil {
			return err
		}
	}

	return nil
}

// wrapStoreErr classifies any store error (not-found included) as a
// HandlerError carrying op-specific context, rather than letting it
// surface as an undifferentiated Internal error.
func wrapStoreErr(opName string, err error) error {
	if err == nil {
		return nil
	}
	return acserr.HandlerError{OpName: opName, Message: err.Error(), Err: err}
}
