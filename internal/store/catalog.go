package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/roach88/catalogmigrate/internal/schema"
)

// Catalog is the handle migrations and services operate on.
//
// It is implemented by *Store (one transaction per call) and by *Tx (inside a
// caller-scoped transaction).
type Catalog interface {
	FindCollection(ctx context.Context, idOrName string) (*schema.Collection, error)
	ListCollections(ctx context.Context) ([]*schema.Collection, error)
	SaveCollection(ctx context.Context, c *schema.Collection) error
	DeleteCollection(ctx context.Context, c *schema.Collection) error

	FindRecord(ctx context.Context, collection, id string) (*Record, error)
	ListRecords(ctx context.Context, collection string) ([]*Record, error)
	SaveRecord(ctx context.Context, collection string, r *Record) error
	DeleteRecord(ctx context.Context, collection, id string) error
}

var (
	_ Catalog = (*Store)(nil)
	_ Catalog = (*Tx)(nil)
)

// Tx is a Catalog bound to one open transaction. See Store.RunInTx.
type Tx struct {
	catalog
	tx *sqlx.Tx
}

// catalog implements the catalog operations against any sqlx executor.
type catalog struct {
	q   sqlx.ExtContext
	log *zap.Logger
	now func() time.Time
	ids IDGenerator
}

type collectionRow struct {
	ID      string `db:"id"`
	Name    string `db:"name"`
	Type    string `db:"type"`
	System  bool   `db:"system"`
	Body    string `db:"body"`
	Created string `db:"created"`
	Updated string `db:"updated"`
}

func (row collectionRow) decode() (*schema.Collection, error) {
	var c schema.Collection
	if err := json.Unmarshal([]byte(row.Body), &c); err != nil {
		return nil, fmt.Errorf("decode collection %q: %w", row.ID, err)
	}
	c.ID = row.ID
	c.Name = row.Name
	c.Type = schema.CollectionType(row.Type)
	c.System = row.System

	var err error
	if c.Created, err = schema.ParseDate(row.Created); err != nil {
		return nil, fmt.Errorf("decode collection %q: created: %w", row.ID, err)
	}
	if c.Updated, err = schema.ParseDate(row.Updated); err != nil {
		return nil, fmt.Errorf("decode collection %q: updated: %w", row.ID, err)
	}
	return &c, nil
}

const selectCollection = `SELECT id, name, type, system, body, created, updated FROM collections`

// FindCollection returns the collection with the given id, or failing that
// the given name (case-insensitive). Returns *NotFoundError if neither exists.
func (c *catalog) FindCollection(ctx context.Context, idOrName string) (*schema.Collection, error) {
	var row collectionRow
	err := sqlx.GetContext(ctx, c.q, &row, selectCollection+`
		WHERE id = ? OR name = ? COLLATE NOCASE
		ORDER BY (id = ?) DESC
		LIMIT 1
	`, idOrName, idOrName, idOrName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "collection", Key: idOrName}
	}
	if err != nil {
		return nil, fmt.Errorf("find collection: %w", err)
	}
	return row.decode()
}

// ListCollections returns all collections ordered by creation.
func (c *catalog) ListCollections(ctx context.Context) ([]*schema.Collection, error) {
	var rows []collectionRow
	if err := sqlx.SelectContext(ctx, c.q, &rows, selectCollection+`
		ORDER BY created ASC, id COLLATE BINARY ASC
	`); err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	out := make([]*schema.Collection, 0, len(rows))
	for _, row := range rows {
		col, err := row.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return out, nil
}

func (c *catalog) collectionIDs(ctx context.Context) (map[string]bool, error) {
	var ids []string
	if err := sqlx.SelectContext(ctx, c.q, &ids, `SELECT id FROM collections`); err != nil {
		return nil, fmt.Errorf("list collection ids: %w", err)
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// collectionIDByName returns the id of the collection named name
// (case-insensitive), or "" if there is none. Ids are not matched.
func (c *catalog) collectionIDByName(ctx context.Context, name string) (string, error) {
	var id string
	err := sqlx.GetContext(ctx, c.q, &id, `SELECT id FROM collections WHERE name = ? COLLATE NOCASE LIMIT 1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find collection name: %w", err)
	}
	return id, nil
}

// SaveCollection inserts col, or updates the stored collection with the same id.
//
// Missing collection and field ids are generated and written back into col,
// as are the Created/Updated timestamps. The collection is validated as a
// whole before anything is written; on failure a *schema.ValidationError is
// returned and the catalog is unchanged.
//
// When an update removes or renames fields, stored records are rewritten to
// match: values of removed fields are dropped and renamed keys are moved.
func (c *catalog) SaveCollection(ctx context.Context, col *schema.Collection) error {
	if col.ID == "" {
		col.ID = c.ids.CollectionID()
	}
	if col.Type == "" {
		col.Type = schema.TypeBase
	}
	for i := range col.Fields {
		if col.Fields[i].ID == "" {
			col.Fields[i].ID = c.ids.FieldID()
		}
	}

	existing, err := c.FindCollection(ctx, col.ID)
	if err != nil && !IsNotFound(err) {
		return err
	}
	if existing != nil && existing.ID != col.ID {
		// Matched by name, not id: the name belongs to another collection.
		existing = nil
	}

	var identityErrs []schema.FieldError
	owner, err := c.collectionIDByName(ctx, col.Name)
	if err != nil {
		return err
	}
	if owner != "" && owner != col.ID {
		identityErrs = append(identityErrs, schema.FieldError{
			Path:    "name",
			Code:    schema.ErrCollectionName,
			Message: fmt.Sprintf("collection name %q is already used by %q", col.Name, owner),
		})
	}
	if existing != nil && existing.Type != col.Type {
		identityErrs = append(identityErrs, schema.FieldError{
			Path:    "type",
			Code:    schema.ErrCollectionType,
			Message: fmt.Sprintf("collection type cannot change from %q to %q", existing.Type, col.Type),
		})
	}

	known, err := c.collectionIDs(ctx)
	if err != nil {
		return err
	}
	if err := schema.Validate(col, func(id string) bool { return known[id] }); err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			verr.Errors = append(identityErrs, verr.Errors...)
		}
		return err
	}
	if len(identityErrs) > 0 {
		return &schema.ValidationError{Errors: identityErrs}
	}

	now := c.now().UTC()
	col.Updated = now
	if existing != nil {
		col.Created = existing.Created
	} else {
		col.Created = now
	}

	if err := c.putCollection(ctx, col); err != nil {
		return err
	}

	if existing != nil {
		if err := c.reshapeRecords(ctx, existing, col); err != nil {
			return err
		}
	}

	c.log.Debug("Saved collection",
		zap.String("collection_id", col.ID),
		zap.String("collection_name", col.Name),
		zap.Int("field_count", len(col.Fields)),
		zap.Bool("created", existing == nil))
	return nil
}

// putCollection writes col without validation.
func (c *catalog) putCollection(ctx context.Context, col *schema.Collection) error {
	body, err := json.Marshal(col)
	if err != nil {
		return fmt.Errorf("save collection: marshal: %w", err)
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO collections (id, name, type, system, body, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			system = excluded.system,
			body = excluded.body,
			updated = excluded.updated
	`,
		col.ID,
		col.Name,
		string(col.Type),
		col.System,
		string(body),
		schema.FormatDate(col.Created),
		schema.FormatDate(col.Updated),
	)
	if err != nil {
		return fmt.Errorf("save collection: %w", err)
	}
	return nil
}

// reshapeRecords rewrites stored records after a schema change from old to updated.
func (c *catalog) reshapeRecords(ctx context.Context, old, updated *schema.Collection) error {
	renames := make(map[string]string)
	var dropped []string
	for _, f := range old.Fields {
		nf, ok := updated.FieldByID(f.ID)
		switch {
		case !ok:
			dropped = append(dropped, f.Name)
		case nf.Name != f.Name:
			renames[f.Name] = nf.Name
		}
	}
	if len(renames) == 0 && len(dropped) == 0 {
		return nil
	}

	return c.rewriteRecords(ctx, updated.ID, func(data map[string]any) (map[string]any, bool) {
		for _, name := range dropped {
			delete(data, name)
		}
		for from, to := range renames {
			if v, ok := data[from]; ok {
				delete(data, from)
				data[to] = v
			}
		}
		return data, true
	})
}

// DeleteCollection removes col and its records.
//
// Relation fields in other collections that target col are removed from
// their schemas. Records referencing col through a cascadeDelete relation are
// deleted; otherwise the reference value is dropped and the record kept.
func (c *catalog) DeleteCollection(ctx context.Context, col *schema.Collection) error {
	existing, err := c.FindCollection(ctx, col.ID)
	if err != nil {
		return err
	}
	if existing.ID != col.ID {
		return &NotFoundError{Kind: "collection", Key: col.ID}
	}
	if existing.System {
		return fmt.Errorf("delete collection %q: %w", existing.Name, ErrSystemCollection)
	}

	all, err := c.ListCollections(ctx)
	if err != nil {
		return err
	}
	for _, other := range all {
		if other.ID == existing.ID {
			continue
		}
		refs := other.RelationsTo(existing.ID)
		if len(refs) == 0 {
			continue
		}
		if err := c.detachRelations(ctx, other, refs); err != nil {
			return fmt.Errorf("delete collection %q: %w", existing.Name, err)
		}
	}

	if _, err := c.q.ExecContext(ctx, `DELETE FROM records WHERE collection_id = ?`, existing.ID); err != nil {
		return fmt.Errorf("delete collection records: %w", err)
	}
	res, err := c.q.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, existing.ID)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{Kind: "collection", Key: existing.ID}
	}

	c.log.Debug("Deleted collection",
		zap.String("collection_id", existing.ID),
		zap.String("collection_name", existing.Name))
	return nil
}

// detachRelations removes refs (relation fields of owner) and applies their
// cascade policy to owner's records.
func (c *catalog) detachRelations(ctx context.Context, owner *schema.Collection, refs []schema.Field) error {
	cascading := make(map[string]bool)
	for _, f := range refs {
		if f.Options.(schema.RelationOptions).CascadeDelete {
			cascading[f.Name] = true
		}
		c.log.Warn("Removing relation field to deleted collection",
			zap.String("collection", owner.Name),
			zap.String("field", f.Name),
			zap.Bool("cascade_delete", cascading[f.Name]))
	}

	records, err := c.listRecordRows(ctx, owner.ID)
	if err != nil {
		return err
	}
	for _, row := range records {
		data, err := row.decodeData()
		if err != nil {
			return err
		}
		cascade := false
		for _, f := range refs {
			if cascading[f.Name] && len(schema.RelationIDs(data[f.Name])) > 0 {
				cascade = true
			}
			delete(data, f.Name)
		}
		if cascade {
			if _, err := c.q.ExecContext(ctx, `DELETE FROM records WHERE collection_id = ? AND id = ?`, owner.ID, row.ID); err != nil {
				return fmt.Errorf("cascade delete record %q: %w", row.ID, err)
			}
			continue
		}
		if err := c.updateRecordData(ctx, owner.ID, row.ID, data); err != nil {
			return err
		}
	}

	for _, f := range refs {
		owner.RemoveField(f.Name)
	}
	owner.Updated = c.now().UTC()
	return c.putCollection(ctx, owner)
}
