// Package migrations holds the built-in catalog migrations.
//
// Importing the package registers them with migrate.Default():
//
//	import _ "github.com/roach88/catalogmigrate/internal/migrations"
package migrations

// UsersCollectionID is the id of the auth collection that user relations target.
const UsersCollectionID = "_pb_users_auth_"
