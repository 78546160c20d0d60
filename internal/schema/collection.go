package schema

import (
	"strings"
	"time"
)

// CollectionType tags how a collection's records are backed.
type CollectionType string

const (
	TypeBase CollectionType = "base"
	TypeAuth CollectionType = "auth"
)

// RuleKind names one of the five access-control predicates.
type RuleKind string

const (
	RuleList   RuleKind = "list"
	RuleView   RuleKind = "view"
	RuleCreate RuleKind = "create"
	RuleUpdate RuleKind = "update"
	RuleDelete RuleKind = "delete"
)

// RuleKinds lists the rule kinds in wire order.
var RuleKinds = []RuleKind{RuleList, RuleView, RuleCreate, RuleUpdate, RuleDelete}

// Collection is the schema of one record collection.
//
// ID is immutable once the collection is saved and is the target of relation
// fields in other collections. A nil rule means the operation is unrestricted.
type Collection struct {
	ID      string
	Name    string
	Type    CollectionType
	System  bool
	Fields  []Field
	Indexes []string

	ListRule   *string
	ViewRule   *string
	CreateRule *string
	UpdateRule *string
	DeleteRule *string

	Created time.Time
	Updated time.Time
}

// NewBaseCollection returns an empty base collection.
func NewBaseCollection(id, name string) *Collection {
	return &Collection{ID: id, Name: name, Type: TypeBase}
}

// NewAuthCollection returns an empty auth-backed collection.
func NewAuthCollection(id, name string) *Collection {
	return &Collection{ID: id, Name: name, Type: TypeAuth}
}

// FieldByName returns the field with the given name, case-insensitively.
func (c *Collection) FieldByName(name string) (*Field, bool) {
	for i := range c.Fields {
		if strings.EqualFold(c.Fields[i].Name, name) {
			return &c.Fields[i], true
		}
	}
	return nil, false
}

// FieldByID returns the field with the given id.
func (c *Collection) FieldByID(id string) (*Field, bool) {
	for i := range c.Fields {
		if c.Fields[i].ID == id {
			return &c.Fields[i], true
		}
	}
	return nil, false
}

// AddField appends f, or replaces an existing field with the same id.
func (c *Collection) AddField(f Field) {
	if f.ID != "" {
		for i := range c.Fields {
			if c.Fields[i].ID == f.ID {
				c.Fields[i] = f
				return
			}
		}
	}
	c.Fields = append(c.Fields, f)
}

// RemoveField drops the field with the given name and reports whether it existed.
func (c *Collection) RemoveField(name string) bool {
	for i := range c.Fields {
		if strings.EqualFold(c.Fields[i].Name, name) {
			c.Fields = append(c.Fields[:i], c.Fields[i+1:]...)
			return true
		}
	}
	return false
}

// Rule returns the rule of the given kind.
func (c *Collection) Rule(kind RuleKind) *string {
	switch kind {
	case RuleList:
		return c.ListRule
	case RuleView:
		return c.ViewRule
	case RuleCreate:
		return c.CreateRule
	case RuleUpdate:
		return c.UpdateRule
	case RuleDelete:
		return c.DeleteRule
	}
	return nil
}

// SetRule replaces the rule of the given kind. Nil clears it.
func (c *Collection) SetRule(kind RuleKind, expr *string) {
	switch kind {
	case RuleList:
		c.ListRule = expr
	case RuleView:
		c.ViewRule = expr
	case RuleCreate:
		c.CreateRule = expr
	case RuleUpdate:
		c.UpdateRule = expr
	case RuleDelete:
		c.DeleteRule = expr
	}
}

// RelationsTo returns the relation fields of c that target collectionID.
func (c *Collection) RelationsTo(collectionID string) []Field {
	var out []Field
	for _, f := range c.Fields {
		if opts, ok := f.Options.(RelationOptions); ok && opts.CollectionID == collectionID {
			out = append(out, f)
		}
	}
	return out
}

// Clone returns a deep copy of c.
// Slices and rule pointers are copied so that mutating the clone never
// affects the original.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	out := *c
	out.Fields = make([]Field, len(c.Fields))
	for i, f := range c.Fields {
		out.Fields[i] = f.Clone()
	}
	out.Indexes = append([]string(nil), c.Indexes...)
	out.ListRule = cloneString(c.ListRule)
	out.ViewRule = cloneString(c.ViewRule)
	out.CreateRule = cloneString(c.CreateRule)
	out.UpdateRule = cloneString(c.UpdateRule)
	out.DeleteRule = cloneString(c.DeleteRule)
	return &out
}

// Clone returns a copy of f whose options share no memory with f.
func (f Field) Clone() Field {
	f.Options = cloneOptions(f.Options)
	return f
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

func cloneOptions(o FieldOptions) FieldOptions {
	switch opts := o.(type) {
	case TextOptions:
		opts.Min, opts.Max = cloneInt(opts.Min), cloneInt(opts.Max)
		return opts
	case NumberOptions:
		if opts.Min != nil {
			v := *opts.Min
			opts.Min = &v
		}
		if opts.Max != nil {
			v := *opts.Max
			opts.Max = &v
		}
		return opts
	case EmailOptions:
		opts.ExceptDomains = append([]string(nil), opts.ExceptDomains...)
		opts.OnlyDomains = append([]string(nil), opts.OnlyDomains...)
		return opts
	case DateOptions:
		if opts.Min != nil {
			v := *opts.Min
			opts.Min = &v
		}
		if opts.Max != nil {
			v := *opts.Max
			opts.Max = &v
		}
		return opts
	case SelectOptions:
		opts.Values = append([]string(nil), opts.Values...)
		return opts
	case RelationOptions:
		opts.MinSelect, opts.MaxSelect = cloneInt(opts.MinSelect), cloneInt(opts.MaxSelect)
		opts.DisplayFields = append([]string(nil), opts.DisplayFields...)
		return opts
	}
	return o
}
