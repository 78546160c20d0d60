package schema

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allocationsJSON is the collection body as exported by PocketBase.
const allocationsJSON = `{
    "id": "vegm1c8n4vzwxrl",
    "created": "2024-08-17 03:58:56.216Z",
    "updated": "2024-08-17 03:58:56.216Z",
    "name": "allocations",
    "type": "base",
    "system": false,
    "schema": [
      {"system": false, "id": "r6j9qfyb", "name": "mentor_id", "type": "relation",
       "required": false, "presentable": false, "unique": false,
       "options": {"collectionId": "_pb_users_auth_", "cascadeDelete": false, "minSelect": null, "maxSelect": 1, "displayFields": null}},
      {"system": false, "id": "liqkccib", "name": "mentee_id", "type": "relation",
       "required": false, "presentable": false, "unique": false,
       "options": {"collectionId": "_pb_users_auth_", "cascadeDelete": false, "minSelect": null, "maxSelect": 1, "displayFields": null}},
      {"system": false, "id": "tt0qulti", "name": "allocated_on", "type": "date",
       "required": false, "presentable": false, "unique": false,
       "options": {"min": "", "max": ""}},
      {"system": false, "id": "ryouc6yq", "name": "status", "type": "select",
       "required": false, "presentable": false, "unique": false,
       "options": {"maxSelect": 1, "values": ["active", "completed", "pending"]}}
    ],
    "indexes": [],
    "listRule": null,
    "viewRule": null,
    "createRule": null,
    "updateRule": null,
    "deleteRule": null,
    "options": {}
}`

func TestCollectionJSON_DecodesPocketBaseShape(t *testing.T) {
	var c Collection
	require.NoError(t, json.Unmarshal([]byte(allocationsJSON), &c))

	assert.Equal(t, "vegm1c8n4vzwxrl", c.ID)
	assert.Equal(t, "allocations", c.Name)
	assert.Equal(t, TypeBase, c.Type)
	require.Len(t, c.Fields, 4)
	assert.Nil(t, c.ListRule)
	assert.Equal(t, 2024, c.Created.Year())

	mentor := c.Fields[0].Options.(RelationOptions)
	assert.Equal(t, "_pb_users_auth_", mentor.CollectionID)
	assert.False(t, mentor.CascadeDelete)
	assert.Nil(t, mentor.MinSelect)
	require.NotNil(t, mentor.MaxSelect)
	assert.Equal(t, 1, *mentor.MaxSelect)

	date := c.Fields[2].Options.(DateOptions)
	assert.Nil(t, date.Min)
	assert.Nil(t, date.Max)

	status := c.Fields[3].Options.(SelectOptions)
	assert.Equal(t, []string{"active", "completed", "pending"}, status.Values)
	assert.NoError(t, Validate(&c, nil))
}

func TestCollectionJSON_RoundTripPreservesSchema(t *testing.T) {
	var c Collection
	require.NoError(t, json.Unmarshal([]byte(allocationsJSON), &c))

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var back Collection
	require.NoError(t, json.Unmarshal(data, &back))

	if diff := cmp.Diff(c.Fields, back.Fields, cmp.Comparer(fieldEqual)); diff != "" {
		t.Errorf("fields changed after round trip (-want +got):\n%s", diff)
	}
	assert.JSONEq(t, allocationsJSON, string(data))
}

func fieldEqual(a, b Field) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

func TestFieldJSON_UnknownType(t *testing.T) {
	var f Field
	err := json.Unmarshal([]byte(`{"id":"abcdefgh","name":"x","type":"geo","options":{}}`), &f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown field type "geo"`)
}

func TestFieldJSON_RejectsForeignOptions(t *testing.T) {
	var f Field
	err := json.Unmarshal([]byte(`{"id":"abcdefgh","name":"x","type":"select","options":{"collectionId":"users"}}`), &f)
	assert.Error(t, err)
}

func TestFieldJSON_NullOptionsDefault(t *testing.T) {
	var f Field
	require.NoError(t, json.Unmarshal([]byte(`{"id":"abcdefgh","name":"done","type":"bool","options":null}`), &f))
	assert.Equal(t, FieldBool, f.Type())
}

func TestFieldJSON_DateBounds(t *testing.T) {
	var f Field
	require.NoError(t, json.Unmarshal([]byte(`{"id":"abcdefgh","name":"on","type":"date","options":{"min":"2024-01-01","max":"2024-12-31 00:00:00.000Z"}}`), &f))
	opts := f.Options.(DateOptions)
	require.NotNil(t, opts.Min)
	require.NotNil(t, opts.Max)
	assert.Equal(t, "2024-01-01 00:00:00.000Z", FormatDate(*opts.Min))

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"min":"2024-01-01 00:00:00.000Z"`)
}

func TestCollectionJSON_DefaultsType(t *testing.T) {
	var c Collection
	require.NoError(t, json.Unmarshal([]byte(`{"id":"abc","name":"notes","schema":[]}`), &c))
	assert.Equal(t, TypeBase, c.Type)
}
