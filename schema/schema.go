// Package schema describes the fields of an entity and the semantic type of each one.
// The type drives both filter coercion on the way in and formatting on the way out.
package schema

import "strings"

// Type is the semantic tag of a field.
type Type string

const (
	Plain    Type = ""
	Text     Type = "text"
	Number   Type = "number"
	Date     Type = "date"
	DateTime Type = "datetime"
	File     Type = "file"
)

// ValueSuffix is appended to property fields to get the key their value is stored under.
const ValueSuffix = "_VALUE"

// Field is one entry of the metadata table.
type Field struct {
	Name     string
	Type     Type
	Property bool
}

// ValueKey is the row key holding the field's value.
func (f Field) ValueKey() string {
	if f.Property {
		return f.Name + ValueSuffix
	}
	return f.Name
}

// IsDate is true for Date and DateTime fields.
func (f Field) IsDate() bool {
	return f.Type == Date || f.Type == DateTime
}

// ParseType maps a legacy tag such as "date", "datetime", "file", "PROPERTY_FILE" or
// "property:date" to a Type and a property flag. Unknown tags are Plain.
func ParseType(tag string) (Type, bool) {

	t := strings.ToLower(strings.TrimSpace(tag))

	property := false
	switch {
	case t == "property":
		return Plain, true
	case strings.HasPrefix(t, "property:"):
		property = true
		t = strings.TrimPrefix(t, "property:")
	case strings.HasPrefix(t, "property_"):
		property = true
		t = strings.TrimPrefix(t, "property_")
	}

	switch t {
	case "date":
		return Date, property
	case "datetime", "timestamp":
		return DateTime, property
	case "file", "image":
		return File, property
	case "number", "int", "integer", "float", "double":
		return Number, property
	case "text", "string", "html":
		return Text, property
	}
	return Plain, property
}

// Schema is an ordered table of fields keyed by exact name.
type Schema struct {
	order  []string
	fields map[string]Field
}

func New(fields ...Field) *Schema {
	s := &Schema{fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		s.Set(f)
	}
	return s
}

// Set adds or replaces a field. Replacing keeps the original position.
func (s *Schema) Set(f Field) {
	if s.fields == nil {
		s.fields = map[string]Field{}
	}
	if _, ok := s.fields[f.Name]; !ok {
		s.order = append(s.order, f.Name)
	}
	s.fields[f.Name] = f
}

// SetType is shorthand for Set with a legacy tag.
func (s *Schema) SetType(name, tag string) {
	t, property := ParseType(tag)
	s.Set(Field{Name: name, Type: t, Property: property})
}

func (s *Schema) Get(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	f, ok := s.fields[name]
	return f, ok
}

func (s *Schema) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

func (s *Schema) Fields() []Field {
	if s == nil {
		return nil
	}
	out := make([]Field, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.fields[name])
	}
	return out
}

// OfTypes returns the fields whose type is one of types, in schema order.
func (s *Schema) OfTypes(types ...Type) []Field {
	var out []Field
	for _, f := range s.Fields() {
		for _, t := range types {
			if f.Type == t {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// DateFields returns the Date and DateTime fields.
func (s *Schema) DateFields() []Field {
	return s.OfTypes(Date, DateTime)
}

func (s *Schema) Clone() *Schema {
	return New(s.Fields()...)
}
