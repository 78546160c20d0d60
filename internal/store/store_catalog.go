package store

import (
	"context"

	"github.com/roach88/catalogmigrate/internal/schema"
)

// The Store's Catalog methods each run in their own transaction.

func (s *Store) FindCollection(ctx context.Context, idOrName string) (col *schema.Collection, err error) {
	err = s.RunInTx(ctx, func(tx *Tx) error {
		col, err = tx.FindCollection(ctx, idOrName)
		return err
	})
	return col, err
}

func (s *Store) ListCollections(ctx context.Context) (cols []*schema.Collection, err error) {
	err = s.RunInTx(ctx, func(tx *Tx) error {
		cols, err = tx.ListCollections(ctx)
		return err
	})
	return cols, err
}

func (s *Store) SaveCollection(ctx context.Context, c *schema.Collection) error {
	return s.RunInTx(ctx, func(tx *Tx) error {
		return tx.SaveCollection(ctx, c)
	})
}

func (s *Store) DeleteCollection(ctx context.Context, c *schema.Collection) error {
	return s.RunInTx(ctx, func(tx *Tx) error {
		return tx.DeleteCollection(ctx, c)
	})
}

func (s *Store) FindRecord(ctx context.Context, collection, id string) (r *Record, err error) {
	err = s.RunInTx(ctx, func(tx *Tx) error {
		r, err = tx.FindRecord(ctx, collection, id)
		return err
	})
	return r, err
}

func (s *Store) ListRecords(ctx context.Context, collection string) (rs []*Record, err error) {
	err = s.RunInTx(ctx, func(tx *Tx) error {
		rs, err = tx.ListRecords(ctx, collection)
		return err
	})
	return rs, err
}

func (s *Store) SaveRecord(ctx context.Context, collection string, r *Record) error {
	return s.RunInTx(ctx, func(tx *Tx) error {
		return tx.SaveRecord(ctx, collection, r)
	})
}

func (s *Store) DeleteRecord(ctx context.Context, collection, id string) error {
	return s.RunInTx(ctx, func(tx *Tx) error {
		return tx.DeleteRecord(ctx, collection, id)
	})
}
