package migrations

import (
	"context"

	"github.com/roach88/catalogmigrate/internal/migrate"
	"github.com/roach88/catalogmigrate/internal/schema"
	"github.com/roach88/catalogmigrate/internal/store"
)

// InitUsers creates the auth-backed users collection with a mentor/mentee role.
var InitUsers = migrate.Migration{
	ID:          "1723867000_init_users",
	Description: "create users collection",
	Up: func(ctx context.Context, cat store.Catalog) error {
		users := schema.NewAuthCollection(UsersCollectionID, "users")
		users.Fields = []schema.Field{
			schema.MustField(schema.NewTextField("users_name", "name", schema.TextOptions{Max: schema.IntPtr(120)})),
			schema.MustField(schema.NewSelectField("users_role", "role", 1, "mentor", "mentee")),
		}
		users.Fields[0].Presentable = true
		return cat.SaveCollection(ctx, users)
	},
	Down: func(ctx context.Context, cat store.Catalog) error {
		users, err := cat.FindCollection(ctx, UsersCollectionID)
		if err != nil {
			return err
		}
		return cat.DeleteCollection(ctx, users)
	},
}

func init() {
	migrate.Register(InitUsers)
}
