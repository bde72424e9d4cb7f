package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/LerianStudio/acsd/internal/domainstore"
	"github.com/LerianStudio/acsd/internal/envelope"
)

func newTestRegistry(t *testing.T) (*envelope.Registry, domainstore.Store) {
	t.Helper()
	store := domainstore.NewMemStore()
	reg := envelope.NewRegistry()
	require.NoError(t, Register(reg, store))
	return reg, store
}

func TestRegister_NoDuplicates(t *testing.T) {
	reg, _ := newTestRegistry(t)
	assert.Equal(t, 12, reg.Len())
}

func TestRegister_CheckPermissionRequiresWriteLane(t *testing.T) {
	reg, _ := newTestRegistry(t)
	entry, ok := reg.Lookup("CheckPermission")
	require.True(t, ok)
	assert.True(t, entry.RequiresWriteLane)
	assert.Equal(t, envelope.Query, entry.Class)
}

func TestHandlers_FullLifecycleViaDispatcher(t *testing.T) {
	reg, _ := newTestRegistry(t)
	disp := envelope.NewDispatcher(reg, nil)
	ctx := context.Background()

	createUser := envelope.Envelope{OpName: "CreateUser", CorrelationID: "c1"}
	createUser.PayloadBytes, _ = envelope.EncodePayload(CreateUserPayload{ID: "u1", Name: "Ada"})
	reply := disp.Dispatch(ctx, "tenant-a", createUser)
	require.True(t, reply.Success)

	createRole := envelope.Envelope{OpName: "CreateRole", CorrelationID: "c2"}
	createRole.PayloadBytes, _ = envelope.EncodePayload(CreateRolePayload{ID: "r1", Name: "viewer"})
	reply = disp.Dispatch(ctx, "tenant-a", createRole)
	require.True(t, reply.Success)

	createGroup := envelope.Envelope{OpName: "CreateGroup", CorrelationID: "c3"}
	createGroup.PayloadBytes, _ = envelope.EncodePayload(CreateGroupPayload{ID: "g1", Name: "engineers", RoleIDs: []string{"r1"}})
	reply = disp.Dispatch(ctx, "tenant-a", createGroup)
	require.True(t, reply.Success)

	addToGroup := envelope.Envelope{OpName: "AddUserToGroup", CorrelationID: "c4"}
	addToGroup.PayloadBytes, _ = envelope.EncodePayload(AddUserToGroupPayload{UserID: "u1", GroupID: "g1"})
	reply = disp.Dispatch(ctx, "tenant-a", addToGroup)
	require.True(t, reply.Success)

	grant := envelope.Envelope{OpName: "GrantPermission", CorrelationID: "c5"}
	grant.PayloadBytes, _ = envelope.EncodePayload(GrantPermissionPayload{RoleID: "r1", PermissionID: "p1", Action: "read", Resource: "doc:1"})
	reply = disp.Dispatch(ctx, "tenant-a", grant)
	require.True(t, reply.Success)

	check := envelope.Envelope{OpName: "CheckPermission", CorrelationID: "c6"}
	check.PayloadBytes, _ = envelope.EncodePayload(CheckPermissionPayload{UserID: "u1", Action: "read", Resource: "doc:1"})
	reply = disp.Dispatch(ctx, "tenant-a", check)
	require.True(t, reply.Success)

	var result CheckPermissionResult
	require.NoError(t, envelope.DecodePayload(reply.ResultBytes, &result))
	assert.True(t, result.Allowed)
}

func TestHandlers_GetUserNotFoundClassifiesAsHandlerError(t *testing.T) {
	reg, _ := newTestRegistry(t)
	disp := envelope.NewDispatcher(reg, nil)
	ctx := context.Background()

	get := envelope.Envelope{OpName: "GetUser", CorrelationID: "c1"}
	get.PayloadBytes, _ = envelope.EncodePayload(GetUserPayload{ID: "missing"})
	reply := disp.Dispatch(ctx, "tenant-a", get)

	assert.False(t, reply.Success)
	assert.Equal(t, "handler_error", reply.ErrorKind)
}

func TestHandlers_CreateUserAssignsMonotonicIDs(t *testing.T) {
	reg, _ := newTestRegistry(t)
	disp := envelope.NewDispatcher(reg, nil)
	ctx := context.Background()

	var prev string
	for i := 0; i < 5; i++ {
		createUser := envelope.Envelope{OpName: "CreateUser", CorrelationID: "c1"}
		createUser.PayloadBytes, _ = envelope.EncodePayload(CreateUserPayload{Name: "Ada"})
		reply := disp.Dispatch(ctx, "tenant-a", createUser)
		require.True(t, reply.Success)

		var result CreateUserResult
		require.NoError(t, envelope.DecodePayload(reply.ResultBytes, &result))
		assert.Greater(t, result.ID, prev, "assigned ids must be strictly increasing")
		prev = result.ID
	}
}

func TestHandlers_StoreErrorSurfacesAsHandlerError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := domainstore.NewMockStore(ctrl)
	store.EXPECT().
		CreateUser(gomock.Any(), gomock.Any()).
		Return(errors.New("write conflict"))

	reg := envelope.NewRegistry()
	require.NoError(t, Register(reg, store))
	disp := envelope.NewDispatcher(reg, nil)

	createUser := envelope.Envelope{OpName: "CreateUser", CorrelationID: "c1"}
	createUser.PayloadBytes, _ = envelope.EncodePayload(CreateUserPayload{ID: "u1", Name: "Ada"})
	reply := disp.Dispatch(context.Background(), "tenant-a", createUser)

	assert.False(t, reply.Success)
	assert.Equal(t, "handler_error", reply.ErrorKind)
	assert.Contains(t, reply.ErrorMessage, "write conflict")
	assert.Equal(t, "c1", reply.CorrelationID)
}

func TestHandlers_CheckPermissionPassesDecodedArgs(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := domainstore.NewMockStore(ctrl)
	store.EXPECT().
		CheckPermission(gomock.Any(), "u1", "read", "doc:1").
		Return(true, nil)

	reg := envelope.NewRegistry()
	require.NoError(t, Register(reg, store))
	disp := envelope.NewDispatcher(reg, nil)

	check := envelope.Envelope{OpName: "CheckPermission", CorrelationID: "c1"}
	check.PayloadBytes, _ = envelope.EncodePayload(CheckPermissionPayload{UserID: "u1", Action: "read", Resource: "doc:1"})
	reply := disp.Dispatch(context.Background(), "tenant-a", check)

	require.True(t, reply.Success)

	var result CheckPermissionResult
	require.NoError(t, envelope.DecodePayload(reply.ResultBytes, &result))
	assert.True(t, result.Allowed)
}

func TestHandlers_ListRolesAndUsersInGroup(t *testing.T) {
	reg, store := newTestRegistry(t)
	disp := envelope.NewDispatcher(reg, nil)
	ctx := context.Background()

	require.NoError(t, store.CreateRole(ctx, domainstore.Role{ID: "r1", Name: "viewer"}))
	require.NoError(t, store.CreateGroup(ctx, domainstore.Group{ID: "g1"}))
	require.NoError(t, store.CreateUser(ctx, domainstore.User{ID: "u1", Name: "Ada"}))
	require.NoError(t, store.AddUserToGroup(ctx, "u1", "g1"))

	listRoles := envelope.Envelope{OpName: "ListRoles", CorrelationID: "c1"}
	listRoles.PayloadBytes, _ = envelope.EncodePayload(ListRolesPayload{})
	reply := disp.Dispatch(ctx, "tenant-a", listRoles)
	require.True(t, reply.Success)

	var rolesResult ListRolesResult
	require.NoError(t, envelope.DecodePayload(reply.ResultBytes, &rolesResult))
	require.Len(t, rolesResult.Roles, 1)
	assert.Equal(t, "viewer", rolesResult.Roles[0].Name)

	listUsers := envelope.Envelope{OpName: "ListUsersInGroup", CorrelationID: "c2"}
	listUsers.PayloadBytes, _ = envelope.EncodePayload(ListUsersInGroupPayload{GroupID: "g1"})
	reply = disp.Dispatch(ctx, "tenant-a", listUsers)
	require.True(t, reply.Success)

	var usersResult ListUsersInGroupResult
	require.NoError(t, envelope.DecodePayload(reply.ResultBytes, &usersResult))
	require.Len(t, usersResult.Users, 1)
	assert.Equal(t, "u1", usersResult.Users[0].ID)
}
