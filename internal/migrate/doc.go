// Package migrate applies and reverts catalog migrations.
//
// A Migration is a typed record {ID, Description, Up, Down}. Migrations are
// collected in a Registry, usually from init() functions:
//
//	func init() {
//		migrate.Register(migrate.Migration{
//			ID:   "1723867136_created_allocations",
//			Up:   createAllocations,
//			Down: dropAllocations,
//		})
//	}
//
// A Runner executes them against a store.Store. Each step runs in its own
// transaction together with the write to the applied-migrations table, so a
// step is either fully applied or not applied at all. A batch is not atomic:
// when a step fails the runner stops, earlier steps stay applied and the
// failing step is reported as a *MigrationError.
//
// Applied state: a migration is applied iff its id is in the migrations table.
// Up skips applied migrations; Down only visits applied ones.
package migrate
