package store

import (
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Row is one record in the order its store produced the fields. It marshals to a JSON
// object with the same key order.
type Row = orderedmap.OrderedMap[string, any]

// NewRow builds a row from alternating key, value arguments.
func NewRow(kv ...any) *Row {
	r := orderedmap.New[string, any]()
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		r.Set(key, kv[i+1])
	}
	return r
}

// RowFromMap builds a row from m with keys sorted, since maps carry no order.
func RowFromMap(m map[string]any) *Row {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r := orderedmap.New[string, any](len(keys))
	for _, k := range keys {
		r.Set(k, m[k])
	}
	return r
}

func Keys(r *Row) []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, r.Len())
	for pair := r.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func ToMap(r *Row) map[string]any {
	if r == nil {
		return nil
	}
	m := make(map[string]any, r.Len())
	for pair := r.Oldest(); pair != nil; pair = pair.Next() {
		m[pair.Key] = pair.Value
	}
	return m
}

// Project keeps only fields, in the order given. Missing fields are skipped.
func Project(r *Row, fields []string) *Row {
	out := orderedmap.New[string, any](len(fields))
	for _, f := range fields {
		if v, ok := r.Get(f); ok {
			out.Set(f, v)
		}
	}
	return out
}

// Lookup reads one field from a row, tolerating a nil row.
func Lookup(r *Row, field string) (any, bool) {
	if r == nil {
		return nil, false
	}
	return r.Get(field)
}
