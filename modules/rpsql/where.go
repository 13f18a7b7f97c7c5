package rpsql

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/jeremywhuff/restify/query"
	"github.com/jeremywhuff/restify/schema"
	"github.com/spf13/cast"
)

const (
	matchAll  = "1=1"
	matchNone = "1=0"
)

// where compiles filters into a WHERE body and its arguments. Placeholders are
// numbered from len(args)+1 so callers can append further parameters.
type where struct {
	dialect Dialect
	columns map[string]schema.Field
	args    []any
}

func (w *where) bind(v any) string {
	w.args = append(w.args, v)
	return w.dialect.Placeholder(len(w.args))
}

// filter returns the clause for f, or "" when it places no constraint.
func (w *where) filter(f query.Filter) string {

	keys := make([]string, 0, len(f.Conditions))
	for k := range f.Conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		if c := w.condition(k, f.Conditions[k]); c != "" {
			parts = append(parts, c)
		}
	}

	for _, g := range f.Groups {
		if c := w.group(g); c != "" {
			parts = append(parts, c)
		}
	}

	return strings.Join(parts, " AND ")
}

func (w *where) group(g query.Group) string {

	if len(g.Filters) == 0 {
		return ""
	}

	sep := " AND "
	if g.Logic == query.Or {
		sep = " OR "
	}

	parts := make([]string, 0, len(g.Filters))
	for _, sub := range g.Filters {
		c := w.filter(sub)
		if c == "" {
			c = matchAll
		}
		parts = append(parts, "("+c+")")
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func (w *where) condition(key string, value any) string {

	name, op := query.ParseKey(key)
	field, ok := w.columns[name]
	if !ok {
		return ""
	}
	col := w.dialect.mustQuote(name)

	if values, ok := value.([]any); ok {
		return w.set(col, field, op, values)
	}

	if value == nil {
		switch op {
		case query.Eq:
			return col + " IS NULL"
		case query.NotEq:
			return col + " IS NOT NULL"
		}
		return matchNone
	}

	switch op {
	case query.Contains:
		return "LOWER(" + col + ") LIKE " + w.bind(like(value)) + w.dialect.likeEscape()
	case query.NotContains:
		return "(" + col + " IS NULL OR LOWER(" + col + ") NOT LIKE " + w.bind(like(value)) + w.dialect.likeEscape() + ")"
	}

	v, ok := coerce(field, value)
	if !ok {
		if op == query.NotEq {
			return matchAll
		}
		return matchNone
	}
	return col + " " + sqlOp(op) + " " + w.bind(v)
}

// set handles a sequence value: Eq and NotEq become IN lists, everything else ORs (or
// for the negations ANDs) one comparison per element.
func (w *where) set(col string, field schema.Field, op query.Op, values []any) string {

	switch op {
	case query.Eq, query.NotEq:
		var ph []string
		for _, v := range values {
			if cv, ok := coerce(field, v); ok {
				ph = append(ph, w.bind(cv))
			}
		}
		if len(ph) == 0 {
			if op == query.Eq {
				return matchNone
			}
			return ""
		}
		in := " IN "
		if op == query.NotEq {
			in = " NOT IN "
		}
		return col + in + "(" + strings.Join(ph, ", ") + ")"
	}

	sep := " OR "
	if op == query.NotContains {
		sep = " AND "
	}
	var parts []string
	for _, v := range values {
		parts = append(parts, w.condition(field.Name+"_"+string(op), v))
	}
	if len(parts) == 0 {
		return matchNone
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func sqlOp(op query.Op) string {
	switch op {
	case query.NotEq:
		return "<>"
	case query.Gt, query.Gte, query.Lt, query.Lte:
		return string(op)
	}
	return "="
}

func like(v any) string {
	s := strings.ToLower(cast.ToString(v))
	s = strings.NewReplacer(`%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + s + "%"
}

// coerce converts a filter value to what the column compares against. Number columns
// need a number; a value that is not one can never match.
func coerce(field schema.Field, v any) (any, bool) {

	v = normalize(v)
	if field.Type != schema.Number {
		switch v.(type) {
		case string, int64, float64, bool:
			return v, true
		}
		return cast.ToString(v), true
	}

	switch t := v.(type) {
	case int64, float64:
		return t, true
	case string:
		if n, err := cast.ToInt64E(strings.TrimSpace(t)); err == nil {
			return n, true
		}
		if f, err := cast.ToFloat64E(strings.TrimSpace(t)); err == nil {
			return f, true
		}
		return nil, false
	}
	f, err := cast.ToFloat64E(v)
	return f, err == nil
}

// normalize turns request JSON numbers into Go numbers.
func normalize(v any) any {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}
