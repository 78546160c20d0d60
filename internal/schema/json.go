package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire format for dates and timestamps.
const DateLayout = "2006-01-02 15:04:05.000Z"

// ParseDate accepts DateLayout, RFC 3339 and a bare YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{DateLayout, time.RFC3339Nano, "2006-01-02 15:04:05Z07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// FormatDate renders t in DateLayout, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

type fieldJSON struct {
	System      bool            `json:"system"`
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        FieldType       `json:"type"`
	Required    bool            `json:"required"`
	Presentable bool            `json:"presentable"`
	Unique      bool            `json:"unique"`
	Options     json.RawMessage `json:"options"`
}

type textJSON struct {
	Min     *int   `json:"min"`
	Max     *int   `json:"max"`
	Pattern string `json:"pattern"`
}

type numberJSON struct {
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
	NoDecimal bool     `json:"noDecimal"`
}

type emailJSON struct {
	ExceptDomains []string `json:"exceptDomains"`
	OnlyDomains   []string `json:"onlyDomains"`
}

type dateJSON struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

type selectJSON struct {
	MaxSelect int      `json:"maxSelect"`
	Values    []string `json:"values"`
}

type relationJSON struct {
	CollectionID  string   `json:"collectionId"`
	CascadeDelete bool     `json:"cascadeDelete"`
	MinSelect     *int     `json:"minSelect"`
	MaxSelect     *int     `json:"maxSelect"`
	DisplayFields []string `json:"displayFields"`
}

type jsonOptionsJSON struct {
	MaxSize int `json:"maxSize"`
}

// MarshalJSON encodes f in the PocketBase field shape.
func (f Field) MarshalJSON() ([]byte, error) {
	opts, err := marshalOptions(f.Options)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", f.Name, err)
	}
	return json.Marshal(fieldJSON{
		System:      f.System,
		ID:          f.ID,
		Name:        f.Name,
		Type:        f.Type(),
		Required:    f.Required,
		Presentable: f.Presentable,
		Unique:      f.Unique,
		Options:     opts,
	})
}

// UnmarshalJSON decodes the PocketBase field shape, choosing the options
// variant from the "type" tag. Unknown option keys are rejected.
func (f *Field) UnmarshalJSON(data []byte) error {
	var raw fieldJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	opts, err := unmarshalOptions(raw.Type, raw.Options)
	if err != nil {
		return fmt.Errorf("field %q: %w", raw.Name, err)
	}
	*f = Field{
		ID:          raw.ID,
		Name:        raw.Name,
		System:      raw.System,
		Required:    raw.Required,
		Presentable: raw.Presentable,
		Unique:      raw.Unique,
		Options:     opts,
	}
	return nil
}

func marshalOptions(o FieldOptions) (json.RawMessage, error) {
	var v any
	switch opts := o.(type) {
	case TextOptions:
		v = textJSON{Min: opts.Min, Max: opts.Max, Pattern: opts.Pattern}
	case NumberOptions:
		v = numberJSON{Min: opts.Min, Max: opts.Max, NoDecimal: opts.NoDecimal}
	case BoolOptions:
		v = struct{}{}
	case EmailOptions:
		v = emailJSON{ExceptDomains: opts.ExceptDomains, OnlyDomains: opts.OnlyDomains}
	case DateOptions:
		d := dateJSON{}
		if opts.Min != nil {
			d.Min = FormatDate(*opts.Min)
		}
		if opts.Max != nil {
			d.Max = FormatDate(*opts.Max)
		}
		v = d
	case SelectOptions:
		values := opts.Values
		if values == nil {
			values = []string{}
		}
		v = selectJSON{MaxSelect: opts.MaxSelect, Values: values}
	case RelationOptions:
		v = relationJSON{
			CollectionID:  opts.CollectionID,
			CascadeDelete: opts.CascadeDelete,
			MinSelect:     opts.MinSelect,
			MaxSelect:     opts.MaxSelect,
			DisplayFields: opts.DisplayFields,
		}
	case JSONOptions:
		v = jsonOptionsJSON{MaxSize: opts.MaxSize}
	case nil:
		return nil, fmt.Errorf("missing field options")
	default:
		return nil, fmt.Errorf("unsupported options type %T", o)
	}
	return json.Marshal(v)
}

func unmarshalOptions(t FieldType, data json.RawMessage) (FieldOptions, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		data = json.RawMessage("{}")
	}
	switch t {
	case FieldText:
		var o textJSON
		if err := decodeStrict(data, &o); err != nil {
			return nil, err
		}
		return TextOptions{Min: o.Min, Max: o.Max, Pattern: o.Pattern}, nil
	case FieldNumber:
		var o numberJSON
		if err := decodeStrict(data, &o); err != nil {
			return nil, err
		}
		return NumberOptions{Min: o.Min, Max: o.Max, NoDecimal: o.NoDecimal}, nil
	case FieldBool:
		var o struct{}
		if err := decodeStrict(data, &o); err != nil {
			return nil, err
		}
		return BoolOptions{}, nil
	case FieldEmail:
		var o emailJSON
		if err := decodeStrict(data, &o); err != nil {
			return nil, err
		}
		return EmailOptions{ExceptDomains: o.ExceptDomains, OnlyDomains: o.OnlyDomains}, nil
	case FieldDate:
		var o dateJSON
		if err := decodeStrict(data, &o); err != nil {
			return nil, err
		}
		var opts DateOptions
		if o.Min != "" {
			t, err := ParseDate(o.Min)
			if err != nil {
				return nil, fmt.Errorf("options.min: %w", err)
			}
			opts.Min = &t
		}
		if o.Max != "" {
			t, err := ParseDate(o.Max)
			if err != nil {
				return nil, fmt.Errorf("options.max: %w", err)
			}
			opts.Max = &t
		}
		return opts, nil
	case FieldSelect:
		var o selectJSON
		if err := decodeStrict(data, &o); err != nil {
			return nil, err
		}
		return SelectOptions{MaxSelect: o.MaxSelect, Values: o.Values}, nil
	case FieldRelation:
		var o relationJSON
		if err := decodeStrict(data, &o); err != nil {
			return nil, err
		}
		return RelationOptions{
			CollectionID:  o.CollectionID,
			CascadeDelete: o.CascadeDelete,
			MinSelect:     o.MinSelect,
			MaxSelect:     o.MaxSelect,
			DisplayFields: o.DisplayFields,
		}, nil
	case FieldJSON:
		var o jsonOptionsJSON
		if err := decodeStrict(data, &o); err != nil {
			return nil, err
		}
		return JSONOptions{MaxSize: o.MaxSize}, nil
	case "":
		return nil, fmt.Errorf("missing field type")
	default:
		return nil, fmt.Errorf("unknown field type %q", t)
	}
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("options: %w", err)
	}
	return nil
}

type collectionJSON struct {
	ID         string         `json:"id"`
	Created    string         `json:"created,omitempty"`
	Updated    string         `json:"updated,omitempty"`
	Name       string         `json:"name"`
	Type       CollectionType `json:"type"`
	System     bool           `json:"system"`
	Schema     []Field        `json:"schema"`
	Indexes    []string       `json:"indexes"`
	ListRule   *string        `json:"listRule"`
	ViewRule   *string        `json:"viewRule"`
	CreateRule *string        `json:"createRule"`
	UpdateRule *string        `json:"updateRule"`
	DeleteRule *string        `json:"deleteRule"`
	Options    map[string]any `json:"options"`
}

// MarshalJSON encodes c in the PocketBase collection shape.
func (c Collection) MarshalJSON() ([]byte, error) {
	fields := c.Fields
	if fields == nil {
		fields = []Field{}
	}
	indexes := c.Indexes
	if indexes == nil {
		indexes = []string{}
	}
	return json.Marshal(collectionJSON{
		ID:         c.ID,
		Created:    FormatDate(c.Created),
		Updated:    FormatDate(c.Updated),
		Name:       c.Name,
		Type:       c.Type,
		System:     c.System,
		Schema:     fields,
		Indexes:    indexes,
		ListRule:   c.ListRule,
		ViewRule:   c.ViewRule,
		CreateRule: c.CreateRule,
		UpdateRule: c.UpdateRule,
		DeleteRule: c.DeleteRule,
		Options:    map[string]any{},
	})
}

// UnmarshalJSON decodes the PocketBase collection shape.
// A missing type defaults to base. Collection-level options are ignored.
func (c *Collection) UnmarshalJSON(data []byte) error {
	var raw collectionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Collection{
		ID:         raw.ID,
		Name:       raw.Name,
		Type:       raw.Type,
		System:     raw.System,
		Fields:     raw.Schema,
		Indexes:    raw.Indexes,
		ListRule:   raw.ListRule,
		ViewRule:   raw.ViewRule,
		CreateRule: raw.CreateRule,
		UpdateRule: raw.UpdateRule,
		DeleteRule: raw.DeleteRule,
	}
	if out.Type == "" {
		out.Type = TypeBase
	}
	if len(out.Indexes) == 0 {
		out.Indexes = nil
	}
	var err error
	if raw.Created != "" {
		if out.Created, err = ParseDate(raw.Created); err != nil {
			return fmt.Errorf("created: %w", err)
		}
	}
	if raw.Updated != "" {
		if out.Updated, err = ParseDate(raw.Updated); err != nil {
			return fmt.Errorf("updated: %w", err)
		}
	}
	*c = out
	return nil
}
