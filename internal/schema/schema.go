// Package schema defines the record schema the store enforces: an ordered
// field list with types and nullability, a primary key, and zero or more
// secondary keys. Validation here is a pure function of value tags and
// nullability — it never touches disk.
package schema

import (
	"fmt"

	"github.com/iamNilotpal/strata/internal/codec"
)

// Field describes one position in a Record.
type Field struct {
	Name     string
	Type     codec.Kind
	Nullable bool
}

// Schema is an ordered field list plus key designations.
type Schema struct {
	Fields        []Field
	PrimaryKey    string
	SecondaryKeys []string
}

// IsIndexableType reports whether values of kind k can serve as a primary
// or secondary key.
func IsIndexableType(k codec.Kind) bool {
	return k == codec.KindInt || k == codec.KindString
}

// New validates and constructs a Schema. The primary key and every
// secondary key must name an existing field of Int or String type.
func New(fields []Field, primaryKey string, secondaryKeys []string) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema: at least one field is required")
	}

	seen := make(map[string]Field, len(fields))
	for _, f := range fields {
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate field name %q", f.Name)
		}
		seen[f.Name] = f
	}

	pk, ok := seen[primaryKey]
	if !ok {
		return nil, fmt.Errorf("schema: primary key %q is not a declared field", primaryKey)
	}
	if !IsIndexableType(pk.Type) {
		return nil, fmt.Errorf("schema: primary key %q must be Int or String, got %s", primaryKey, pk.Type)
	}

	for _, sk := range secondaryKeys {
		f, ok := seen[sk]
		if !ok {
			return nil, fmt.Errorf("schema: secondary key %q is not a declared field", sk)
		}
		if !IsIndexableType(f.Type) {
			return nil, fmt.Errorf("schema: secondary key %q must be Int or String, got %s", sk, f.Type)
		}
	}

	return &Schema{Fields: fields, PrimaryKey: primaryKey, SecondaryKeys: secondaryKeys}, nil
}

// FieldByName returns the field and its position, if declared.
func (s *Schema) FieldByName(name string) (Field, int, bool) {
	for i, f := range s.Fields {
		if f.Name == name {
			return f, i, true
		}
	}
	return Field{}, 0, false
}

// IsKeyField reports whether name is the primary key or a secondary key.
func (s *Schema) IsKeyField(name string) bool {
	if name == s.PrimaryKey {
		return true
	}
	for _, sk := range s.SecondaryKeys {
		if sk == name {
			return true
		}
	}
	return false
}

// ValidateRecord checks field count, positional types, and nullability.
func (s *Schema) ValidateRecord(r codec.Record) error {
	if len(r.Values) != len(s.Fields) {
		return fmt.Errorf("schema: record has %d values, schema declares %d fields", len(r.Values), len(s.Fields))
	}
	for i, f := range s.Fields {
		v := r.Values[i]
		if v.Kind == codec.KindNull {
			if !f.Nullable {
				return fmt.Errorf("schema: field %q is not nullable but value is Null", f.Name)
			}
			continue
		}
		if v.Kind != f.Type {
			return fmt.Errorf("schema: field %q expects %s, got %s", f.Name, f.Type, v.Kind)
		}
	}
	return nil
}

// ValidateEvolution checks this schema against the first record already
// stored on disk, per the evolution rule: the new schema's field list must
// have the old record's value sequence as a type-compatible prefix, and
// every field appended beyond that prefix must be nullable.
func (s *Schema) ValidateEvolution(firstRecord codec.Record) error {
	if len(firstRecord.Values) > len(s.Fields) {
		return fmt.Errorf("schema: existing data has %d fields, new schema only declares %d", len(firstRecord.Values), len(s.Fields))
	}

	for i, v := range firstRecord.Values {
		f := s.Fields[i]
		if v.Kind == codec.KindNull {
			continue
		}
		if v.Kind != f.Type {
			return fmt.Errorf("schema: field %q (position %d) was %s on disk, new schema declares %s", f.Name, i, v.Kind, f.Type)
		}
	}

	for i := len(firstRecord.Values); i < len(s.Fields); i++ {
		if !s.Fields[i].Nullable {
			return fmt.Errorf("schema: new field %q at position %d must be nullable for schema evolution", s.Fields[i].Name, i)
		}
	}

	return nil
}

// ValueToIndexable converts a schema-typed key value to the comparable
// representation memtables index on. ok is false for non-indexable kinds
// (Float, Bytes) or Null.
func ValueToIndexable(v codec.Value) (Indexable, bool) {
	switch v.Kind {
	case codec.KindInt:
		return Indexable{Kind: IndexableInt, Int: v.Int}, true
	case codec.KindString:
		return Indexable{Kind: IndexableString, Str: v.Str}, true
	default:
		return Indexable{}, false
	}
}

// IndexableKind distinguishes the two key types memtables support.
type IndexableKind int

const (
	IndexableInt IndexableKind = iota
	IndexableString
)

// Indexable is the comparable key type used by primary and secondary
// memtables: either an Int or a String, never Float/Bytes/Null.
type Indexable struct {
	Kind IndexableKind
	Int  int64
	Str  string
}

// Less gives Indexable a total order: all Ints before all Strings, then
// by value within a kind. Used by the btree-backed memtables.
func (a Indexable) Less(b Indexable) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.Kind == IndexableInt {
		return a.Int < b.Int
	}
	return a.Str < b.Str
}
