package migrations

import (
	"context"
	"encoding/json"

	"github.com/roach88/catalogmigrate/internal/migrate"
	"github.com/roach88/catalogmigrate/internal/schema"
	"github.com/roach88/catalogmigrate/internal/store"
)

// SessionsCollectionID is the id of the sessions collection.
const SessionsCollectionID = "q7d2sw8kx4ntm1e"

// A session groups up to five allocations of one mentor.
const sessionsJSON = `{
	"id": "q7d2sw8kx4ntm1e",
	"created": "2024-08-17 04:00:00.000Z",
	"updated": "2024-08-17 04:00:00.000Z",
	"name": "sessions",
	"type": "base",
	"system": false,
	"schema": [
		{
			"system": false,
			"id": "k2mbq8ze",
			"name": "mentor_id",
			"type": "relation",
			"required": false,
			"presentable": false,
			"unique": false,
			"options": {
				"collectionId": "_pb_users_auth_",
				"cascadeDelete": false,
				"minSelect": null,
				"maxSelect": 1,
				"displayFields": null
			}
		},
		{
			"system": false,
			"id": "w5hxn3ua",
			"name": "session_students",
			"type": "relation",
			"required": false,
			"presentable": false,
			"unique": false,
			"options": {
				"collectionId": "vegm1c8n4vzwxrl",
				"cascadeDelete": false,
				"minSelect": null,
				"maxSelect": null,
				"displayFields": null
			}
		},
		{
			"system": false,
			"id": "c7rt0vgy",
			"name": "venue",
			"type": "text",
			"required": false,
			"presentable": true,
			"unique": false,
			"options": {
				"min": null,
				"max": null,
				"pattern": ""
			}
		},
		{
			"system": false,
			"id": "j4ep9sld",
			"name": "datetime",
			"type": "date",
			"required": false,
			"presentable": false,
			"unique": false,
			"options": {
				"min": "",
				"max": ""
			}
		}
	],
	"indexes": [],
	"listRule": null,
	"viewRule": null,
	"createRule": null,
	"updateRule": null,
	"deleteRule": null,
	"options": {}
}`

// SessionsCollection decodes the sessions schema.
func SessionsCollection() (*schema.Collection, error) {
	collection := &schema.Collection{}
	if err := json.Unmarshal([]byte(sessionsJSON), collection); err != nil {
		return nil, err
	}
	return collection, nil
}

// CreatedSessions creates the sessions collection, which groups a mentor's
// allocations.
var CreatedSessions = migrate.Migration{
	ID:          "1723867200_created_sessions",
	Description: "create sessions collection",
	Up: func(ctx context.Context, cat store.Catalog) error {
		collection, err := SessionsCollection()
		if err != nil {
			return err
		}
		return cat.SaveCollection(ctx, collection)
	},
	Down: func(ctx context.Context, cat store.Catalog) error {
		collection, err := cat.FindCollection(ctx, SessionsCollectionID)
		if err != nil {
			return err
		}
		return cat.DeleteCollection(ctx, collection)
	},
}

func init() {
	migrate.Register(CreatedSessions)
}
