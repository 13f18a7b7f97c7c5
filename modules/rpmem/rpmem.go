// Package rpmem is an in-memory store.Repository. It backs the examples and the tests
// of every package that needs a repository without a database.
package rpmem

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jeremywhuff/restify/query"
	"github.com/jeremywhuff/restify/schema"
	"github.com/jeremywhuff/restify/store"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Name is the module name variants require to read from this store.
const Name = "rpmem"

const idField = "ID"

type table struct {
	fields []schema.Field
	rows   []*store.Row
	seq    int64
}

type Repository struct {
	mu       sync.RWMutex
	entities map[string]*table
}

func New() *Repository {
	return &Repository{entities: map[string]*table{}}
}

// DateFormat is the strftime layout dates are stored and compared in.
func (r *Repository) DateFormat() string {
	return query.DefaultDateFormat
}

// Define declares an entity and its fields. An ID field is added first when missing.
func (r *Repository) Define(entity string, fields ...schema.Field) {

	r.mu.Lock()
	defer r.mu.Unlock()

	hasID := false
	for _, f := range fields {
		if f.Name == idField {
			hasID = true
		}
	}
	if !hasID {
		fields = append([]schema.Field{{Name: idField, Type: schema.Number}}, fields...)
	}
	r.entities[entity] = &table{fields: fields}
}

// Seed appends rows to entity. Rows without an ID get the next one.
func (r *Repository) Seed(entity string, rows ...*store.Row) error {

	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.table(entity)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if v, ok := row.Get(idField); ok {
			if n, err := cast.ToInt64E(v); err == nil && n > t.seq {
				t.seq = n
			}
		} else {
			t.seq++
			row.Set(idField, t.seq)
			_ = row.MoveToFront(idField)
		}
		t.rows = append(t.rows, clone(row))
	}
	return nil
}

func (r *Repository) table(entity string) (*table, error) {
	t, ok := r.entities[entity]
	if !ok {
		return nil, errors.Wrap(store.ErrUnknownEntity, entity)
	}
	return t, nil
}

func (r *Repository) Fields(_ context.Context, entity string) ([]schema.Field, error) {

	r.mu.RLock()
	defer r.mu.RUnlock()

	t, err := r.table(entity)
	if err != nil {
		return nil, err
	}
	return append([]schema.Field(nil), t.fields...), nil
}

func (r *Repository) Find(ctx context.Context, entity string, spec query.Spec) ([]*store.Row, error) {

	r.mu.RLock()
	defer r.mu.RUnlock()

	t, err := r.table(entity)
	if err != nil {
		return nil, err
	}

	var matched []*store.Row
	for _, row := range t.rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if Match(row, spec.Filter) {
			matched = append(matched, row)
		}
	}

	sortRows(matched, spec.Order)

	offset := spec.Page.Offset()
	if offset >= len(matched) {
		return []*store.Row{}, nil
	}
	matched = matched[offset:]
	if spec.Page.Size > 0 && len(matched) > spec.Page.Size {
		matched = matched[:spec.Page.Size]
	}

	out := make([]*store.Row, len(matched))
	for i, row := range matched {
		if spec.SelectsAll() {
			out[i] = clone(row)
		} else {
			out[i] = store.Project(row, spec.Select)
		}
	}
	return out, nil
}

func (r *Repository) Count(_ context.Context, entity string, f query.Filter) (int64, error) {

	r.mu.RLock()
	defer r.mu.RUnlock()

	t, err := r.table(entity)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, row := range t.rows {
		if Match(row, f) {
			n++
		}
	}
	return n, nil
}

func (r *Repository) Insert(_ context.Context, entity string, values map[string]any) (string, error) {

	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.table(entity)
	if err != nil {
		return "", err
	}

	t.seq++
	row := store.NewRow(idField, t.seq)
	for _, f := range t.fields {
		// Property fields store their value under the _VALUE key.
		if v, ok := values[f.ValueKey()]; ok && f.Name != idField {
			row.Set(f.ValueKey(), normalize(v))
		} else if v, ok := values[f.Name]; ok && f.Name != idField {
			row.Set(f.Name, normalize(v))
		}
	}
	t.rows = append(t.rows, row)
	return strconv.FormatInt(t.seq, 10), nil
}

func (r *Repository) Update(_ context.Context, entity string, id string, values map[string]any) error {

	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.table(entity)
	if err != nil {
		return err
	}
	i := t.index(id)
	if i < 0 {
		return errors.Errorf("rpmem: %s %s not found", entity, id)
	}
	for k, v := range values {
		if k != idField {
			t.rows[i].Set(k, normalize(v))
		}
	}
	return nil
}

func (r *Repository) Delete(_ context.Context, entity string, id string) error {

	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.table(entity)
	if err != nil {
		return err
	}
	i := t.index(id)
	if i < 0 {
		return errors.Errorf("rpmem: %s %s not found", entity, id)
	}
	t.rows = append(t.rows[:i], t.rows[i+1:]...)
	return nil
}

func (t *table) index(id string) int {
	for i, row := range t.rows {
		if v, ok := row.Get(idField); ok && cast.ToString(v) == id {
			return i
		}
	}
	return -1
}

func clone(row *store.Row) *store.Row {
	out := orderedmap.New[string, any](row.Len())
	for pair := row.Oldest(); pair != nil; pair = pair.Next() {
		if vs, ok := pair.Value.([]any); ok {
			out.Set(pair.Key, append([]any(nil), vs...))
			continue
		}
		out.Set(pair.Key, pair.Value)
	}
	return out
}

// normalize turns request JSON numbers into Go numbers.
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}

// Match reports whether row satisfies f: every condition, and every group.
func Match(row *store.Row, f query.Filter) bool {

	for key, want := range f.Conditions {
		field, op := query.ParseKey(key)
		have, _ := row.Get(field)
		if !condition(have, op, want) {
			return false
		}
	}

	for _, g := range f.Groups {
		if !matchGroup(row, g) {
			return false
		}
	}
	return true
}

func matchGroup(row *store.Row, g query.Group) bool {
	if len(g.Filters) == 0 {
		return true
	}
	if g.Logic == query.Or {
		for _, sub := range g.Filters {
			if Match(row, sub) {
				return true
			}
		}
		return false
	}
	for _, sub := range g.Filters {
		if !Match(row, sub) {
			return false
		}
	}
	return true
}

func condition(have any, op query.Op, want any) bool {

	// A sequence is a set: Eq and Contains match any element, the negations match none.
	if ws, ok := want.([]any); ok {
		switch op {
		case query.NotEq, query.NotContains:
			positive := query.Eq
			if op == query.NotContains {
				positive = query.Contains
			}
			for _, w := range ws {
				if condition(have, positive, w) {
					return false
				}
			}
			return true
		}
		for _, w := range ws {
			if condition(have, op, w) {
				return true
			}
		}
		return false
	}

	// Multi-valued fields match when any value does.
	if hs, ok := have.([]any); ok {
		if op == query.NotEq || op == query.NotContains {
			for _, h := range hs {
				if !condition(h, op, want) {
					return false
				}
			}
			return true
		}
		for _, h := range hs {
			if condition(h, op, want) {
				return true
			}
		}
		return false
	}

	switch op {
	case query.Contains:
		return strings.Contains(strings.ToLower(cast.ToString(have)), strings.ToLower(cast.ToString(want)))
	case query.NotContains:
		return !strings.Contains(strings.ToLower(cast.ToString(have)), strings.ToLower(cast.ToString(want)))
	}

	c := Compare(have, want)
	switch op {
	case query.NotEq:
		return c != 0
	case query.Gt:
		return c > 0
	case query.Gte:
		return c >= 0
	case query.Lt:
		return c < 0
	case query.Lte:
		return c <= 0
	}
	return c == 0
}

// Compare orders two values numerically when both are numbers, else as strings.
func Compare(a, b any) int {

	af, aErr := number(a)
	bf, bErr := number(b)
	if aErr == nil && bErr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(cast.ToString(a), cast.ToString(b))
}

func number(v any) (float64, error) {
	switch t := v.(type) {
	case nil, bool:
		return 0, errors.New("not a number")
	case string:
		if strings.TrimSpace(t) == "" {
			return 0, errors.New("not a number")
		}
	}
	return cast.ToFloat64E(v)
}

func sortRows(rows []*store.Row, order query.Order) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, s := range order {
			a, _ := rows[i].Get(s.Field)
			b, _ := rows[j].Get(s.Field)
			c := Compare(a, b)
			if c == 0 {
				continue
			}
			if s.Dir == query.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
