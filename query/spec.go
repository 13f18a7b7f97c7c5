// Package query turns request parameters into the filter, order, select and paging a
// repository call runs with.
package query

import (
	"strings"
)

// Op is a filter comparison.
type Op string

const (
	Eq          Op = "="
	NotEq       Op = "!="
	Gt          Op = ">"
	Gte         Op = ">="
	Lt          Op = "<"
	Lte         Op = "<="
	Contains    Op = "%"
	NotContains Op = "!%"
)

// Longest first so ">=" wins over ">".
var ops = []struct {
	token string
	op    Op
}{
	{">=", Gte},
	{"<=", Lte},
	{"!=", NotEq},
	{"!%", NotContains},
	{">", Gt},
	{"<", Lt},
	{"!", NotEq},
	{"%", Contains},
	{"=", Eq},
}

// ParseKey splits a filter key into its field and operator. The operator may be a
// prefix (">=CREATED") or an underscore suffix ("CREATED_>="). A bare key means Eq.
func ParseKey(key string) (string, Op) {

	for _, o := range ops {
		if strings.HasPrefix(key, o.token) && len(key) > len(o.token) {
			return key[len(o.token):], o.op
		}
	}

	for _, o := range ops {
		suffix := "_" + o.token
		if strings.HasSuffix(key, suffix) && len(key) > len(suffix) {
			return key[:len(key)-len(suffix)], o.op
		}
	}

	return key, Eq
}

// Logic joins the filters of a group.
type Logic string

const (
	And Logic = "AND"
	Or  Logic = "OR"
)

// Group is a nested clause. The group as a whole is ANDed with its parent's conditions.
type Group struct {
	Logic   Logic
	Filters []Filter
}

// Filter is a set of ANDed conditions plus nested groups.
type Filter struct {
	Conditions map[string]any
	Groups     []Group
}

// Where builds a filter from key/value pairs.
func Where(kv map[string]any) Filter {
	f := Filter{Conditions: make(map[string]any, len(kv))}
	for k, v := range kv {
		f.Conditions[k] = v
	}
	return f
}

// AnyOf builds an OR group.
func AnyOf(filters ...Filter) Group {
	return Group{Logic: Or, Filters: filters}
}

func (f Filter) IsEmpty() bool {
	return len(f.Conditions) == 0 && len(f.Groups) == 0
}

// With returns a copy of f with g appended.
func (f Filter) With(g Group) Filter {
	out := f.Clone()
	out.Groups = append(out.Groups, g)
	return out
}

func (f Filter) Clone() Filter {
	out := Filter{Conditions: make(map[string]any, len(f.Conditions))}
	for k, v := range f.Conditions {
		if vs, ok := v.([]any); ok {
			v = append([]any(nil), vs...)
		}
		out.Conditions[k] = v
	}
	for _, g := range f.Groups {
		cg := Group{Logic: g.Logic, Filters: make([]Filter, len(g.Filters))}
		for i, sub := range g.Filters {
			cg.Filters[i] = sub.Clone()
		}
		out.Groups = append(out.Groups, cg)
	}
	return out
}

// Dir is a sort direction.
type Dir string

const (
	Asc  Dir = "ASC"
	Desc Dir = "DESC"
)

// ParseDir accepts asc/desc in any case. Anything else sorts ascending.
func ParseDir(s string) Dir {
	if strings.EqualFold(strings.TrimSpace(s), string(Desc)) {
		return Desc
	}
	return Asc
}

type Sort struct {
	Field string
	Dir   Dir
}

// Order is applied left to right.
type Order []Sort

// Page is a paging window. Size 0 means no limit; Number starts at 1.
type Page struct {
	Size   int
	Number int
}

func (p Page) Offset() int {
	if p.Size <= 0 || p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// AllFields in Select means every field of the entity.
const AllFields = "*"

// Spec is everything one repository call needs.
type Spec struct {
	Filter Filter
	Order  Order
	Select []string
	Page   Page
}

func (s Spec) Clone() Spec {
	return Spec{
		Filter: s.Filter.Clone(),
		Order:  append(Order(nil), s.Order...),
		Select: append([]string(nil), s.Select...),
		Page:   s.Page,
	}
}

// SelectsAll is true when Select is empty or contains "*".
func (s Spec) SelectsAll() bool {
	if len(s.Select) == 0 {
		return true
	}
	for _, f := range s.Select {
		if f == AllFields {
			return true
		}
	}
	return false
}
