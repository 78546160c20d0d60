// Package schema defines the collection catalog types for catalogmigrate.
//
// A Collection is a named, schema-typed grouping of records. Its Fields are
// a tagged union: every Field carries exactly one FieldOptions variant
// (TextOptions, SelectOptions, RelationOptions, ...), and the field's type tag
// is derived from that variant. A field whose type and options disagree
// cannot be represented.
//
// # Wire Shape
//
// Collections marshal to the PocketBase collection JSON shape:
//
//	{"id": "...", "name": "...", "type": "base", "schema": [
//	    {"id": "r6j9qfyb", "name": "mentor_id", "type": "relation",
//	     "options": {"collectionId": "_pb_users_auth_", "maxSelect": 1, ...}}
//	], "listRule": null, ...}
//
// # Validation
//
// Validate checks every field's option shape, field id and name uniqueness,
// and access-rule expressions. All problems are reported together in a
// single *ValidationError rather than failing on the first.
//
// # Snapshots
//
// SnapshotHash computes a content hash over the observable schema state
// (fields, types, options, rules, indexes) of a set of collections using
// canonical JSON. Timestamps are excluded so that an up/down round trip
// hashes identically.
//
// This package imports nothing else from the module except internal/rules.
package schema
