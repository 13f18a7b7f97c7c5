// Package executor binds one entity of a repository to the read and write operations a
// REST route exposes. An Executor is built once, then copied per request with Factory.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/jeremywhuff/restify/apperr"
	"github.com/jeremywhuff/restify/internal/i18n"
	"github.com/jeremywhuff/restify/query"
	"github.com/jeremywhuff/restify/schema"
	"github.com/jeremywhuff/restify/store"
	"github.com/jeremywhuff/restify/transform"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Deps are the process-wide collaborators an executor is built with.
type Deps struct {
	Modules  *Modules
	Files    transform.FileResolver
	Location *time.Location
}

type Executor struct {
	variant Variant
	repo    store.Repository
	opts    Options

	schema     *schema.Schema
	formatters []transform.Formatter
	pipeline   transform.Pipeline
	builder    query.Builder

	// Per request.
	spec    query.Spec
	body    map[string]any
	dropped []string
}

// New builds the prototype executor for v. The steps run in a fixed order: required
// modules, entity binding, default select, option overrides, base pipeline, schema.
func New(ctx context.Context, v Variant, repo store.Repository, deps Deps, opts Options) (*Executor, error) {

	lang := opts.Language

	// 1
	if missing := deps.Modules.Missing(v.Modules...); len(missing) > 0 {
		err := deps.Modules.Require(v.Modules...)
		return nil, apperr.Internal(i18n.Sprintf(lang, i18n.ModuleNotInstalled, strings.Join(missing, ", ")), err)
	}

	// 2
	if repo == nil {
		return nil, apperr.Internal(i18n.Sprintf(lang, i18n.EntityNotBound, v.Entity), store.ErrUnknownEntity)
	}
	fields, err := repo.Fields(ctx, v.Entity)
	if err != nil {
		if errors.Is(err, store.ErrUnknownEntity) {
			return nil, apperr.Internal(i18n.Sprintf(lang, i18n.EntityNotBound, v.Entity), err)
		}
		return nil, apperr.Internal(i18n.Sprintf(lang, i18n.StoreFailed, v.Entity), err)
	}

	// 3
	defaults := DefaultOptions()
	defaults.Select = make([]string, 0, len(fields))
	for _, f := range fields {
		defaults.Select = append(defaults.Select, f.Name)
	}

	// 4
	e := &Executor{
		variant: v,
		repo:    repo,
		opts:    defaults.Merge(opts),
	}

	// 5
	e.schema = schema.New()
	e.formatters = []transform.Formatter{
		transform.DateFormatter{Location: deps.Location},
		transform.FileFormatter{Resolver: deps.Files},
	}
	e.compose()

	// 6
	for _, f := range fields {
		e.schema.Set(f)
	}
	if v.Augment != nil {
		v.Augment(e.schema)
	}

	dateFormat := e.opts.DateFormat
	if dateFormat == "" {
		dateFormat = store.DateFormatOf(repo)
	}
	e.builder = query.Builder{
		Schema: e.schema,
		Defaults: query.Spec{
			Filter: query.Where(e.opts.Filter),
			Order:  e.opts.order(),
			Select: e.opts.Select,
			Page:   query.Page{Size: e.opts.PageSize, Number: 1},
		},
		DateFormat:     dateFormat,
		Location:       deps.Location,
		SubstringMatch: e.opts.SubstringMatch,
		StrictDates:    e.opts.StrictDates,
	}
	e.spec, e.dropped = e.sanitize(e.builder.Defaults.Clone())

	return e, nil
}

// compose rebuilds the pipeline over the current schema.
func (e *Executor) compose() {
	e.pipeline = transform.Base(e.schema, e.formatters...).Then(e.variant.Transforms...)
}

// Factory returns a copy for one request. Schema and pipeline are shared read-only;
// the query and body start from the defaults.
func (e *Executor) Factory() *Executor {
	cp := *e
	cp.spec, cp.dropped = e.sanitize(e.builder.Defaults.Clone())
	cp.body = nil
	return &cp
}

func (e *Executor) Variant() Variant { return e.variant }
func (e *Executor) Options() Options { return e.opts }
func (e *Executor) Schema() *schema.Schema { return e.schema }
func (e *Executor) Pipeline() transform.Pipeline { return e.pipeline }
func (e *Executor) Spec() query.Spec { return e.spec.Clone() }
func (e *Executor) Body() map[string]any { return e.body }

// Dropped lists the request fields that were ignored because the entity does not have
// them.
func (e *Executor) Dropped() []string { return e.dropped }

// PrepareQuery compiles the request parameters and, when present, the JSON body.
func (e *Executor) PrepareQuery(params query.Params, body []byte) error {

	spec, err := e.builder.Build(params)
	if err != nil {
		return err
	}
	e.spec, e.dropped = e.sanitize(spec)

	e.body = nil
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return apperr.BadRequest(i18n.Sprintf(e.opts.Language, i18n.InvalidBody), err)
	}
	e.body = m
	return nil
}

// ReadMany runs the prepared query and transforms every row.
func (e *Executor) ReadMany(ctx context.Context) ([]*store.Row, error) {

	if err := e.allow(Read); err != nil {
		return nil, err
	}
	rows, err := e.repo.Find(ctx, e.variant.Entity, e.spec.Clone())
	if err != nil {
		return nil, e.storeErr(err)
	}
	return e.pipeline.ApplyAll(rows), nil
}

// Count returns how many rows match the prepared filter, ignoring paging.
func (e *Executor) Count(ctx context.Context) (int64, error) {

	if err := e.allow(Read); err != nil {
		return 0, err
	}
	n, err := e.repo.Count(ctx, e.variant.Entity, e.spec.Filter.Clone())
	if err != nil {
		return 0, e.storeErr(err)
	}
	return n, nil
}

// ReadOne finds the first row matching the prepared filter whose id or code equals id.
func (e *Executor) ReadOne(ctx context.Context, id string) (*store.Row, error) {

	if err := e.allow(Read); err != nil {
		return nil, err
	}
	return e.readOne(ctx, id)
}

func (e *Executor) readOne(ctx context.Context, id string) (*store.Row, error) {

	match := []query.Filter{query.Where(map[string]any{e.variant.idField(): id})}
	if code := e.variant.codeField(); e.schema.Has(code) {
		match = append(match, query.Where(map[string]any{code: id}))
	}

	spec := e.spec.Clone()
	spec.Filter = spec.Filter.With(query.AnyOf(match...))
	spec.Page = query.Page{Size: 1, Number: 1}

	return e.first(ctx, spec, id)
}

// byID reads a row by id alone, without the default filter.
func (e *Executor) byID(ctx context.Context, id string) (*store.Row, error) {
	return e.first(ctx, query.Spec{
		Filter: query.Where(map[string]any{e.variant.idField(): id}),
		Select: e.spec.Select,
		Page:   query.Page{Size: 1, Number: 1},
	}, id)
}

func (e *Executor) first(ctx context.Context, spec query.Spec, id string) (*store.Row, error) {

	rows, err := e.repo.Find(ctx, e.variant.Entity, spec)
	if err != nil {
		return nil, e.storeErr(err)
	}
	row, ok := transform.PopOne(rows)
	if !ok {
		return nil, apperr.NotFound(i18n.Sprintf(e.opts.Language, i18n.ItemNotFound, id))
	}
	e.pipeline.Apply(row)
	return row, nil
}

// Update writes body to the row identified by id and returns the stored row. An empty
// id creates a new row.
func (e *Executor) Update(ctx context.Context, id string, body map[string]any) (*store.Row, error) {

	values := e.writable(body)

	if id == "" {
		if err := e.allow(Create); err != nil {
			return nil, err
		}
		newID, err := e.repo.Insert(ctx, e.variant.Entity, values)
		if err != nil {
			return nil, e.storeErr(err)
		}
		return e.byID(ctx, newID)
	}

	if err := e.allow(Update); err != nil {
		return nil, err
	}
	row, err := e.readOne(ctx, id)
	if err != nil {
		return nil, err
	}
	realID := e.rowID(row, id)
	if len(values) > 0 {
		if err := e.repo.Update(ctx, e.variant.Entity, realID, values); err != nil {
			return nil, e.storeErr(err)
		}
	}
	return e.byID(ctx, realID)
}

// Delete removes the row identified by id and returns it as it was.
func (e *Executor) Delete(ctx context.Context, id string) (*store.Row, error) {

	if err := e.allow(Delete); err != nil {
		return nil, err
	}
	row, err := e.readOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.repo.Delete(ctx, e.variant.Entity, e.rowID(row, id)); err != nil {
		return nil, e.storeErr(err)
	}
	return row, nil
}

// Get reads one of order, filter, select, navParams, body or schema.
func (e *Executor) Get(name string) (any, error) {
	switch name {
	case query.ParamOrder:
		return append(query.Order(nil), e.spec.Order...), nil
	case query.ParamFilter:
		return e.spec.Filter.Clone(), nil
	case query.ParamSelect:
		return append([]string(nil), e.spec.Select...), nil
	case query.ParamNavParams:
		return e.spec.Page, nil
	case "body":
		return e.body, nil
	case "schema":
		return e.schema, nil
	}
	return nil, errors.Errorf("executor: unknown property %q", name)
}

// Set replaces one of order, filter, select, navParams, body or schema. Setting the
// schema recomposes the pipeline over a copy of it.
func (e *Executor) Set(name string, value any) error {

	switch name {
	case query.ParamOrder:
		switch v := value.(type) {
		case query.Order:
			e.spec.Order = append(query.Order(nil), v...)
		case []string:
			e.spec.Order = Options{Order: v}.order()
		default:
			return badValue(name, value)
		}
	case query.ParamFilter:
		switch v := value.(type) {
		case query.Filter:
			e.spec.Filter = v.Clone()
		case map[string]any:
			e.spec.Filter = query.Where(v)
		default:
			return badValue(name, value)
		}
	case query.ParamSelect:
		v, err := cast.ToStringSliceE(value)
		if err != nil {
			return badValue(name, value)
		}
		e.spec.Select = v
	case query.ParamNavParams:
		switch v := value.(type) {
		case query.Page:
			e.spec.Page = v
		case map[string]any:
			e.spec.Page = query.Page{
				Size:   Options{NavParams: v}.pageSize(),
				Number: firstInt(v, "page", "iNumPage"),
			}
			if e.spec.Page.Size == 0 {
				e.spec.Page.Size = e.opts.PageSize
			}
		default:
			return badValue(name, value)
		}
	case "body":
		v, ok := value.(map[string]any)
		if !ok && value != nil {
			return badValue(name, value)
		}
		e.body = v
	case "schema":
		v, ok := value.(*schema.Schema)
		if !ok || v == nil {
			return badValue(name, value)
		}
		e.schema = v.Clone()
		e.builder.Schema = e.schema
		e.compose()
	default:
		return errors.Errorf("executor: unknown property %q", name)
	}

	e.spec, e.dropped = e.sanitize(e.spec)
	return nil
}

// firstInt reads the first of keys holding a positive int, like the navParams query
// parameter does.
func firstInt(m map[string]any, keys ...string) int {
	for _, k := range keys {
		if n, err := cast.ToIntE(m[k]); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func badValue(name string, value any) error {
	return errors.Errorf("executor: cannot set %s to %T", name, value)
}

func (e *Executor) allow(op Operation) error {
	if e.variant.Allows(op) {
		return nil
	}
	return apperr.MethodNotAllowed(i18n.Sprintf(e.opts.Language, i18n.MethodNotAllowed, string(op), e.variant.Entity))
}

func (e *Executor) storeErr(err error) error {
	if _, ok := err.(*apperr.Error); ok {
		return err
	}
	return apperr.Internal(i18n.Sprintf(e.opts.Language, i18n.StoreFailed, e.variant.Entity), err)
}

func (e *Executor) rowID(row *store.Row, fallback string) string {
	if v, ok := store.Lookup(row, e.variant.idField()); ok {
		if s := cast.ToString(v); s != "" {
			return s
		}
	}
	return fallback
}

// writable keeps the body keys that are schema fields or property value keys, minus
// the id and tilde keys.
func (e *Executor) writable(body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		if k == e.variant.idField() || strings.HasPrefix(k, transform.TildePrefix) {
			continue
		}
		if e.known(k) {
			out[k] = v
		}
	}
	return out
}

// known is true for schema fields and the _VALUE key of property fields.
func (e *Executor) known(name string) bool {
	if e.schema.Has(name) {
		return true
	}
	if base, ok := strings.CutSuffix(name, schema.ValueSuffix); ok {
		f, ok := e.schema.Get(base)
		return ok && f.Property
	}
	return false
}

// sanitize drops filter, order and select fields the entity does not have.
func (e *Executor) sanitize(spec query.Spec) (query.Spec, []string) {

	var dropped []string

	spec.Filter = e.sanitizeFilter(spec.Filter, &dropped)

	order := make(query.Order, 0, len(spec.Order))
	for _, s := range spec.Order {
		if e.known(s.Field) {
			order = append(order, s)
		} else {
			dropped = append(dropped, s.Field)
		}
	}
	spec.Order = order

	// A selected property field also selects the key its value is stored under.
	sel := make([]string, 0, len(spec.Select))
	seen := make(map[string]bool, len(spec.Select))
	keep := func(name string) {
		if !seen[name] {
			seen[name] = true
			sel = append(sel, name)
		}
	}
	for _, f := range spec.Select {
		if f != query.AllFields && !e.known(f) {
			dropped = append(dropped, f)
			continue
		}
		keep(f)
		if field, ok := e.schema.Get(f); ok && field.Property {
			keep(field.ValueKey())
		}
	}
	spec.Select = sel

	sort.Strings(dropped)
	return spec, dropped
}

func (e *Executor) sanitizeFilter(f query.Filter, dropped *[]string) query.Filter {

	out := query.Filter{Conditions: make(map[string]any, len(f.Conditions))}
	for k, v := range f.Conditions {
		field, _ := query.ParseKey(k)
		if e.known(field) {
			out.Conditions[k] = v
		} else {
			*dropped = append(*dropped, k)
		}
	}
	for _, g := range f.Groups {
		sg := query.Group{Logic: g.Logic}
		for _, sub := range g.Filters {
			sg.Filters = append(sg.Filters, e.sanitizeFilter(sub, dropped))
		}
		out.Groups = append(out.Groups, sg)
	}
	return out
}
