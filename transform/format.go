package transform

import (
	"context"
	"fmt"
	"time"

	"github.com/araddon/dateparse"
	"github.com/jeremywhuff/restify/schema"
	"github.com/jeremywhuff/restify/store"
)

// Formatter renders one value of the field types it declares.
type Formatter interface {
	Types() []schema.Type
	Format(v any) any
}

// Format applies each formatter to the schema fields of its types. Property fields are
// read from their _VALUE key. Slices are formatted element-wise and empty values are
// left alone.
func Format(s *schema.Schema, formatters ...Formatter) Stage {
	return Stage{
		Name: "format",
		Fn: func(row *store.Row) {
			for _, f := range formatters {
				for _, field := range s.OfTypes(f.Types()...) {
					key := field.ValueKey()
					v, ok := row.Get(key)
					if !ok || isEmpty(v) {
						continue
					}
					row.Set(key, apply(f, v))
				}
			}
		},
	}
}

func apply(f Formatter, v any) any {
	switch vs := v.(type) {
	case []any:
		out := make([]any, len(vs))
		for i, e := range vs {
			out[i] = f.Format(e)
		}
		return out
	case []string:
		out := make([]any, len(vs))
		for i, e := range vs {
			out[i] = f.Format(e)
		}
		return out
	}
	return f.Format(v)
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == "" || t == "0"
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case int:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	}
	return false
}

// DateFormatter renders Date and DateTime values. Strings are parsed permissively;
// values that do not parse are returned unchanged.
type DateFormatter struct {
	Layout   string // Go layout, time.RFC3339 when empty
	Location *time.Location
}

func (DateFormatter) Types() []schema.Type {
	return []schema.Type{schema.Date, schema.DateTime}
}

func (d DateFormatter) Format(v any) any {

	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	layout := d.Layout
	if layout == "" {
		layout = time.RFC3339
	}

	switch t := v.(type) {
	case time.Time:
		return t.In(loc).Format(layout)
	case *time.Time:
		if t == nil {
			return v
		}
		return t.In(loc).Format(layout)
	case string:
		parsed, err := dateparse.ParseIn(t, loc)
		if err != nil {
			return v
		}
		return parsed.In(loc).Format(layout)
	}
	return v
}

// FileResolver turns a stored file key into a URL clients can fetch.
type FileResolver interface {
	Resolve(ctx context.Context, key string) (string, error)
}

// FileFormatter replaces a file key with {"ID": key, "SRC": url}. Keys the resolver
// cannot resolve, and values that are already formatted, are returned unchanged.
type FileFormatter struct {
	Resolver FileResolver
}

func (FileFormatter) Types() []schema.Type {
	return []schema.Type{schema.File}
}

func (f FileFormatter) Format(v any) any {

	if f.Resolver == nil {
		return v
	}

	var key string
	switch t := v.(type) {
	case map[string]any:
		return v
	case string:
		key = t
	case int, int32, int64, float64, fmt.Stringer:
		key = fmt.Sprint(t)
	default:
		return v
	}

	src, err := f.Resolver.Resolve(context.Background(), key)
	if err != nil || src == "" {
		return v
	}
	return map[string]any{"ID": key, "SRC": src}
}
