// Package mongostore is the MongoDB-backed implementation of
// domainstore.Store: a lazily-dialed connection hub plus one document
// collection per record type.
package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/LerianStudio/acsd/internal/domainstore"
	"github.com/LerianStudio/acsd/pkg/mlog"
)

// Connection is a hub for the domain store's mongo client, one per
// worker process. Each tenant's worker owns its own database, named
// after the tenant, for storage-level isolation.
type Connection struct {
	URI      string
	Database string
	Logger   mlog.Logger

	client *mongo.Client
}

// Connect establishes the client. Safe to call once at worker startup.
func (c *Connection) Connect(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.URI))
	if err != nil {
		return fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("mongostore: ping: %w", err)
	}

	c.client = client
	if c.Logger != nil {
		c.Logger.Info("connected to domain store mongodb")
	}
	return nil
}

func (c *Connection) db() *mongo.Database {
	return c.client.Database(c.Database)
}

// Store is the MongoDB-backed domainstore.Store: one collection per
// entity kind, keyed by the entity's own ID field.
type Store struct {
	conn *Connection
}

// NewStore wraps an already-Connected Connection.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

var _ domainstore.Store = (*Store)(nil)

type userDoc struct {
	ID       string   `bson:"_id"`
	Name     string   `bson:"name"`
	GroupIDs []string `bson:"group_ids"`
}

func (s *Store) users() *mongo.Collection  { return s.conn.db().Collection("users") }
func (s *Store) groups() *mongo.Collection { return s.conn.db().Collection("groups") }
func (s *Store) roles() *mongo.Collection  { return s.conn.db().Collection("roles") }

func (s *Store) CreateUser(ctx context.Context, u domainstore.User) error {
	_, err := s.users().InsertOne(ctx, userDoc{ID: u.ID, Name: u.Name, GroupIDs: u.GroupIDs})
	return err
}

func (s *Store) UpdateUser(ctx context.Context, u domainstore.User) error {
	res, err := s.users().ReplaceOne(ctx, bson.M{"_id": u.ID}, userDoc{ID: u.ID, Name: u.Name, GroupIDs: u.GroupIDs})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainstore.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	_, err := s.users().DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (domainstore.User, error) {
	var doc userDoc
	if err := s.users().FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return domainstore.User{}, domainstore.ErrNotFound
		}
		return domainstore.User{}, err
	}
	return domainstore.User{ID: doc.ID, Name: doc.Name, GroupIDs: doc.GroupIDs}, nil
}

type groupDoc struct {
	ID      string   `bson:"_id"`
	Name    string   `bson:"name"`
	RoleIDs []string `bson:"role_ids"`
}

func (s *Store) CreateGroup(ctx context.Context, g domainstore.Group) error {
	_, err := s.groups().InsertOne(ctx, groupDoc{ID: g.ID, Name: g.Name, RoleIDs: g.RoleIDs})
	return err
}

func (s *Store) AddUserToGroup(ctx context.Context, userID, groupID string) error {
	res, err := s.users().UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$addToSet": bson.M{"group_ids": groupID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainstore.ErrNotFound
	}
	return nil
}

func (s *Store) ListUsersInGroup(ctx context.Context, groupID string) ([]domainstore.User, error) {
	cur, err := s.users().Find(ctx, bson.M{"group_ids": groupID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []domainstore.User
	for cur.Next(ctx) {
		var doc userDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, domainstore.User{ID: doc.ID, Name: doc.Name, GroupIDs: doc.GroupIDs})
	}
	return out, cur.Err()
}

type roleDoc struct {
	ID            string       `bson:"_id"`
	Name          string       `bson:"name"`
	PermissionIDs []string     `bson:"permission_ids"`
	Permissions   []permission `bson:"permissions"`
}

type permission struct {
	ID       string `bson:"id"`
	Action   string `bson:"action"`
	Resource string `bson:"resource"`
}

func (s *Store) CreateRole(ctx context.Context, r domainstore.Role) error {
	_, err := s.roles().InsertOne(ctx, roleDoc{ID: r.ID, Name: r.Name, PermissionIDs: r.PermissionIDs})
	return err
}

func (s *Store) ListRoles(ctx context.Context) ([]domainstore.Role, error) {
	cur, err := s.roles().Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []domainstore.Role
	for cur.Next(ctx) {
		var doc roleDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, domainstore.Role{ID: doc.ID, Name: doc.Name, PermissionIDs: doc.PermissionIDs})
	}
	return out, cur.Err()
}

func (s *Store) GrantPermission(ctx context.Context, roleID string, p domainstore.Permission) error {
	res, err := s.roles().UpdateOne(ctx,
		bson.M{"_id": roleID},
		bson.M{
			"$addToSet": bson.M{"permission_ids": p.ID, "permissions": permission{ID: p.ID, Action: p.Action, Resource: p.Resource}},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainstore.ErrNotFound
	}
	return nil
}

func (s *Store) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	_, err := s.roles().UpdateOne(ctx,
		bson.M{"_id": roleID},
		bson.M{"$pull": bson.M{"permission_ids": permissionID, "permissions": bson.M{"id": permissionID}}},
	)
	return err
}

// CheckPermission performs the user -> groups -> roles -> permissions
// walk with three round trips; registered RequiresWriteLane=true in
// internal/handlers so it serializes with the command lane.
func (s *Store) CheckPermission(ctx context.Context, userID, action, resource string) (bool, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(u.GroupIDs) == 0 {
		return false, nil
	}

	cur, err := s.groups().Find(ctx, bson.M{"_id": bson.M{"$in": u.GroupIDs}})
	if err != nil {
		return false, err
	}
	defer cur.Close(ctx)

	var roleIDs []string
	for cur.Next(ctx) {
		var doc groupDoc
		if err := cur.Decode(&doc); err != nil {
			return false, err
		}
		roleIDs = append(roleIDs, doc.RoleIDs...)
	}
	if err := cur.Err(); err != nil {
		return false, err
	}
	if len(roleIDs) == 0 {
		return false, nil
	}

	count, err := s.roles().CountDocuments(ctx, bson.M{
		"_id":         bson.M{"$in": roleIDs},
		"permissions": bson.M{"$elemMatch": bson.M{"action": action, "resource": resource}},
	})
	if err != nil {
		return false, err
	}

	return count > 0, nil
}
