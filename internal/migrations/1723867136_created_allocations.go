package migrations

import (
	"context"
	"encoding/json"

	"github.com/roach88/catalogmigrate/internal/migrate"
	"github.com/roach88/catalogmigrate/internal/schema"
	"github.com/roach88/catalogmigrate/internal/store"
)

// AllocationsCollectionID is the id of the allocations collection.
const AllocationsCollectionID = "vegm1c8n4vzwxrl"

const allocationsJSON = `{
	"id": "vegm1c8n4vzwxrl",
	"created": "2024-08-17 03:58:56.216Z",
	"updated": "2024-08-17 03:58:56.216Z",
	"name": "allocations",
	"type": "base",
	"system": false,
	"schema": [
		{
			"system": false,
			"id": "r6j9qfyb",
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
			"id": "liqkccib",
			"name": "mentee_id",
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
			"id": "tt0qulti",
			"name": "allocated_on",
			"type": "date",
			"required": false,
			"presentable": false,
			"unique": false,
			"options": {
				"min": "",
				"max": ""
			}
		},
		{
			"system": false,
			"id": "ryouc6yq",
			"name": "status",
			"type": "select",
			"required": false,
			"presentable": false,
			"unique": false,
			"options": {
				"maxSelect": 1,
				"values": [
					"active",
					"completed",
					"pending"
				]
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

// AllocationsCollection decodes the allocations schema.
func AllocationsCollection() (*schema.Collection, error) {
	collection := &schema.Collection{}
	if err := json.Unmarshal([]byte(allocationsJSON), collection); err != nil {
		return nil, err
	}
	return collection, nil
}

// CreatedAllocations creates the allocations collection linking a mentor
// and a mentee user.
var CreatedAllocations = migrate.Migration{
	ID:          "1723867136_created_allocations",
	Description: "create allocations collection",
	Up: func(ctx context.Context, cat store.Catalog) error {
		collection, err := AllocationsCollection()
		if err != nil {
			return err
		}
		return cat.SaveCollection(ctx, collection)
	},
	Down: func(ctx context.Context, cat store.Catalog) error {
		collection, err := cat.FindCollection(ctx, AllocationsCollectionID)
		if err != nil {
			return err
		}
		return cat.DeleteCollection(ctx, collection)
	},
}

func init() {
	migrate.Register(CreatedAllocations)
}
