package executor

import (
	"strings"

	"github.com/jeremywhuff/restify/schema"
	"github.com/jeremywhuff/restify/transform"
)

// Operation is one verb a variant may expose.
type Operation string

const (
	Read   Operation = "read"
	Create Operation = "create"
	Update Operation = "update"
	Delete Operation = "delete"
)

// ParseOperation accepts the config spelling of an operation.
func ParseOperation(s string) (Operation, bool) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(s))); op {
	case Read, Create, Update, Delete:
		return op, true
	}
	return "", false
}

// Variant describes one entity binding: what it reads, which modules it needs and what
// it may do.
type Variant struct {
	Entity  string
	Modules []string

	// Operations defaults to Read only.
	Operations []Operation

	IDField   string // "ID" when empty
	CodeField string // "CODE" when empty

	// Augment runs after the schema is built from the entity's field map.
	Augment func(*schema.Schema)

	// Transforms are appended after the base pipeline.
	Transforms []transform.Stage
}

func (v Variant) Allows(op Operation) bool {
	if len(v.Operations) == 0 {
		return op == Read
	}
	for _, o := range v.Operations {
		if o == op {
			return true
		}
	}
	return false
}

func (v Variant) idField() string {
	if v.IDField == "" {
		return "ID"
	}
	return v.IDField
}

func (v Variant) codeField() string {
	if v.CodeField == "" {
		return "CODE"
	}
	return v.CodeField
}

// MarkFiles is an Augment that types the named fields as files, keeping their
// property flag.
func MarkFiles(names ...string) func(*schema.Schema) {
	return func(s *schema.Schema) {
		for _, n := range names {
			f, ok := s.Get(n)
			if !ok {
				f = schema.Field{Name: n}
			}
			f.Type = schema.File
			s.Set(f)
		}
	}
}
