package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/roach88/catalogmigrate/internal/schema"
)

// Record is one row of a collection. Data is keyed by field name.
type Record struct {
	ID           string
	CollectionID string
	Data         map[string]any
	Created      time.Time
	Updated      time.Time
}

// NewRecord returns a record with the given field values.
func NewRecord(data map[string]any) *Record {
	if data == nil {
		data = map[string]any{}
	}
	return &Record{Data: data}
}

// Get returns the value of a field, or nil.
func (r *Record) Get(name string) any {
	return r.Data[name]
}

// GetString returns the value of a field if it is a string, or "".
func (r *Record) GetString(name string) string {
	s, _ := r.Data[name].(string)
	return s
}

// Fields returns Data plus the id, for rule evaluation.
func (r *Record) Fields() map[string]any {
	out := maps.Clone(r.Data)
	if out == nil {
		out = map[string]any{}
	}
	out["id"] = r.ID
	return out
}

// FieldsOf is Fields with every field of col present: fields the record has
// no value for hold their zero value.
func (r *Record) FieldsOf(col *schema.Collection) map[string]any {
	out := r.Fields()
	for _, f := range col.Fields {
		if v, ok := out[f.Name]; !ok || v == nil {
			out[f.Name] = f.ZeroValue()
		}
	}
	return out
}

// MarshalJSON flattens the record: system attributes and field values share
// one object.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Data)+4)
	for k, v := range r.Data {
		out[k] = v
	}
	out["id"] = r.ID
	out["collectionId"] = r.CollectionID
	out["created"] = schema.FormatDate(r.Created)
	out["updated"] = schema.FormatDate(r.Updated)
	return json.Marshal(out)
}

type recordRow struct {
	ID           string `db:"id"`
	CollectionID string `db:"collection_id"`
	Data         string `db:"data"`
	Created      string `db:"created"`
	Updated      string `db:"updated"`
}

func (row recordRow) decodeData() (map[string]any, error) {
	data := map[string]any{}
	if row.Data == "" {
		return data, nil
	}
	if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
		return nil, fmt.Errorf("decode record %q: %w", row.ID, err)
	}
	return data, nil
}

func (row recordRow) decode() (*Record, error) {
	data, err := row.decodeData()
	if err != nil {
		return nil, err
	}
	r := &Record{ID: row.ID, CollectionID: row.CollectionID, Data: data}
	if r.Created, err = schema.ParseDate(row.Created); err != nil {
		return nil, fmt.Errorf("decode record %q: created: %w", row.ID, err)
	}
	if r.Updated, err = schema.ParseDate(row.Updated); err != nil {
		return nil, fmt.Errorf("decode record %q: updated: %w", row.ID, err)
	}
	return r, nil
}

const selectRecord = `SELECT id, collection_id, data, created, updated FROM records`

// FindRecord returns a record of the named collection.
func (c *catalog) FindRecord(ctx context.Context, collection, id string) (*Record, error) {
	col, err := c.FindCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	var row recordRow
	err = sqlx.GetContext(ctx, c.q, &row, selectRecord+` WHERE collection_id = ? AND id = ?`, col.ID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "record", Key: col.Name + "/" + id}
	}
	if err != nil {
		return nil, fmt.Errorf("find record: %w", err)
	}
	return row.decode()
}

// ListRecords returns every record of the named collection in creation order.
func (c *catalog) ListRecords(ctx context.Context, collection string) ([]*Record, error) {
	col, err := c.FindCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	rows, err := c.listRecordRows(ctx, col.ID)
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		r, err := row.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (c *catalog) listRecordRows(ctx context.Context, collectionID string) ([]recordRow, error) {
	var rows []recordRow
	if err := sqlx.SelectContext(ctx, c.q, &rows, selectRecord+`
		WHERE collection_id = ?
		ORDER BY created ASC, id COLLATE BINARY ASC
	`, collectionID); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return rows, nil
}

// SaveRecord validates r against the collection schema and inserts or
// updates it. r.ID, r.CollectionID, r.Data (normalized) and the timestamps
// are written back into r.
//
// Relation values must reference existing records of the target collection
// and unique fields must not repeat another record's value; both are
// reported as *schema.ValidationError.
func (c *catalog) SaveRecord(ctx context.Context, collection string, r *Record) error {
	col, err := c.FindCollection(ctx, collection)
	if err != nil {
		return err
	}

	data, err := col.NormalizeRecord(r.Data)
	if err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = c.ids.RecordID()
	}

	var errs []schema.FieldError
	for _, f := range col.Fields {
		switch opts := f.Options.(type) {
		case schema.RelationOptions:
			for _, id := range schema.RelationIDs(data[f.Name]) {
				ok, err := c.recordExists(ctx, opts.CollectionID, id)
				if err != nil {
					return err
				}
				if !ok {
					errs = append(errs, schema.FieldError{
						Path:    f.Name,
						Code:    schema.ErrRelationTarget,
						Message: fmt.Sprintf("related record %q does not exist", id),
					})
				}
			}
		}
		if f.Unique && !isBlank(data[f.Name]) {
			dup, err := c.valueTaken(ctx, col.ID, r.ID, f.Name, data[f.Name])
			if err != nil {
				return err
			}
			if dup {
				errs = append(errs, schema.FieldError{
					Path:    f.Name,
					Code:    schema.ErrValueRange,
					Message: "value must be unique",
				})
			}
		}
	}
	if len(errs) > 0 {
		return &schema.ValidationError{Errors: errs}
	}

	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("save record: marshal: %w", err)
	}

	now := c.now().UTC()
	existing, err := c.FindRecord(ctx, col.ID, r.ID)
	switch {
	case err == nil:
		r.Created = existing.Created
	case IsNotFound(err):
		r.Created = now
	default:
		return err
	}
	r.Updated = now
	r.CollectionID = col.ID
	r.Data = data

	_, err = c.q.ExecContext(ctx, `
		INSERT INTO records (id, collection_id, data, created, updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection_id, id) DO UPDATE SET
			data = excluded.data,
			updated = excluded.updated
	`, r.ID, col.ID, string(body), schema.FormatDate(r.Created), schema.FormatDate(r.Updated))
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}

	c.log.Debug("Saved record",
		zap.String("collection", col.Name),
		zap.String("record_id", r.ID))
	return nil
}

// DeleteRecord removes one record.
//
// Records of any collection that reference it through a relation field are
// updated: with cascadeDelete they are deleted too (recursively), otherwise
// the id is removed from the relation value.
func (c *catalog) DeleteRecord(ctx context.Context, collection, id string) error {
	col, err := c.FindCollection(ctx, collection)
	if err != nil {
		return err
	}
	all, err := c.ListCollections(ctx)
	if err != nil {
		return err
	}
	return c.deleteRecord(ctx, all, col, id, map[string]bool{})
}

func (c *catalog) deleteRecord(ctx context.Context, all []*schema.Collection, col *schema.Collection, id string, seen map[string]bool) error {
	key := col.ID + "/" + id
	if seen[key] {
		return nil
	}
	seen[key] = true

	res, err := c.q.ExecContext(ctx, `DELETE FROM records WHERE collection_id = ? AND id = ?`, col.ID, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record: rows affected: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "record", Key: col.Name + "/" + id}
	}

	for _, owner := range all {
		refs := owner.RelationsTo(col.ID)
		if len(refs) == 0 {
			continue
		}
		if err := c.releaseReferences(ctx, all, owner, refs, id, seen); err != nil {
			return fmt.Errorf("delete record %q: %w", key, err)
		}
	}

	c.log.Debug("Deleted record",
		zap.String("collection", col.Name),
		zap.String("record_id", id))
	return nil
}

// releaseReferences applies the cascade policy of refs (relation fields of
// owner) to owner's records that point at the deleted record id.
func (c *catalog) releaseReferences(ctx context.Context, all []*schema.Collection, owner *schema.Collection, refs []schema.Field, id string, seen map[string]bool) error {
	rows, err := c.listRecordRows(ctx, owner.ID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if seen[owner.ID+"/"+row.ID] {
			continue
		}
		data, err := row.decodeData()
		if err != nil {
			return err
		}
		cascade, changed := false, false
		for _, f := range refs {
			ids := schema.RelationIDs(data[f.Name])
			if !slices.Contains(ids, id) {
				continue
			}
			opts := f.Options.(schema.RelationOptions)
			if opts.CascadeDelete {
				cascade = true
				break
			}
			changed = true
			kept := slices.DeleteFunc(ids, func(v string) bool { return v == id })
			if opts.IsMultiple() {
				data[f.Name] = kept
			} else {
				data[f.Name] = ""
			}
		}
		switch {
		case cascade:
			if err := c.deleteRecord(ctx, all, owner, row.ID, seen); err != nil {
				return err
			}
		case changed:
			if err := c.updateRecordData(ctx, owner.ID, row.ID, data); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *catalog) recordExists(ctx context.Context, collectionID, id string) (bool, error) {
	var count int
	if err := sqlx.GetContext(ctx, c.q, &count,
		`SELECT COUNT(*) FROM records WHERE collection_id = ? AND id = ?`, collectionID, id); err != nil {
		return false, fmt.Errorf("check record: %w", err)
	}
	return count > 0, nil
}

func (c *catalog) valueTaken(ctx context.Context, collectionID, recordID, field string, value any) (bool, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("check unique: %w", err)
	}
	var count int
	if err := sqlx.GetContext(ctx, c.q, &count, `
		SELECT COUNT(*) FROM records
		WHERE collection_id = ? AND id != ?
		AND json_extract(data, '$.' || ?) = json_extract(?, '$')
	`, collectionID, recordID, field, string(encoded)); err != nil {
		return false, fmt.Errorf("check unique: %w", err)
	}
	return count > 0, nil
}

func (c *catalog) updateRecordData(ctx context.Context, collectionID, id string, data map[string]any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("update record %q: marshal: %w", id, err)
	}
	_, err = c.q.ExecContext(ctx, `
		UPDATE records SET data = ?, updated = ? WHERE collection_id = ? AND id = ?
	`, string(body), schema.FormatDate(c.now().UTC()), collectionID, id)
	if err != nil {
		return fmt.Errorf("update record %q: %w", id, err)
	}
	return nil
}

// rewriteRecords applies fn to the data of every record of a collection.
// Records for which fn reports false are left untouched.
func (c *catalog) rewriteRecords(ctx context.Context, collectionID string, fn func(map[string]any) (map[string]any, bool)) error {
	rows, err := c.listRecordRows(ctx, collectionID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		data, err := row.decodeData()
		if err != nil {
			return err
		}
		updated, changed := fn(data)
		if !changed {
			continue
		}
		if err := c.updateRecordData(ctx, collectionID, row.ID, updated); err != nil {
			return err
		}
	}
	return nil
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []string:
		return len(val) == 0
	}
	return false
}
