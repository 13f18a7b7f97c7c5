package executor

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/jeremywhuff/restify/apperr"
	"github.com/jeremywhuff/restify/modules/rpmem"
	"github.com/jeremywhuff/restify/query"
	"github.com/jeremywhuff/restify/schema"
	"github.com/jeremywhuff/restify/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fileMap map[string]string

func (f fileMap) Resolve(_ context.Context, key string) (string, error) {
	return f[key], nil
}

func repo(t *testing.T) *rpmem.Repository {

	r := rpmem.New()
	r.Define("paysystems",
		schema.Field{Name: "CODE"},
		schema.Field{Name: "NAME", Type: schema.Text},
		schema.Field{Name: "ACTIVE"},
		schema.Field{Name: "SORT", Type: schema.Number},
		schema.Field{Name: "CREATED", Type: schema.DateTime},
		schema.Field{Name: "LOGOTIP"},
		schema.Field{Name: "~SECRET"},
	)
	require.NoError(t, r.Seed("paysystems",
		store.NewRow("CODE", "cash", "NAME", "Cash", "ACTIVE", "Y", "SORT", 20, "CREATED", "2024-01-01 00:00:00", "LOGOTIP", "7", "~SECRET", "x"),
		store.NewRow("CODE", "card", "NAME", "Card &amp; Co", "ACTIVE", "Y", "SORT", 10, "CREATED", "2024-03-01 00:00:00", "LOGOTIP", "", "~SECRET", "y"),
		store.NewRow("CODE", "old", "NAME", "Old", "ACTIVE", "N", "SORT", 5, "CREATED", "2023-01-01 00:00:00"),
	))
	return r
}

func variant() Variant {
	return Variant{
		Entity:     "paysystems",
		Modules:    []string{rpmem.Name},
		Operations: []Operation{Read, Create, Update, Delete},
		Augment:    MarkFiles("LOGOTIP"),
	}
}

func newExecutor(t *testing.T, v Variant, opts Options) *Executor {

	e, err := New(context.Background(), v, repo(t), Deps{
		Modules: NewModules(rpmem.Name),
		Files:   fileMap{"7": "/upload/7.png"},
	}, opts)
	require.NoError(t, err)
	return e
}

func codes(t *testing.T, rows []*store.Row) []string {
	var out []string
	for _, row := range rows {
		v, ok := row.Get("CODE")
		require.True(t, ok)
		out = append(out, v.(string))
	}
	return out
}

func TestNewRequiresModules(t *testing.T) {

	v := variant()
	v.Modules = []string{rpmem.Name, "sale"}

	_, err := New(context.Background(), v, repo(t), Deps{Modules: NewModules(rpmem.Name)}, Options{Language: "ru"})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperr.CodeOf(err))
	assert.Equal(t, "Модуль sale не установлен", apperr.MessageOf(err))
	assert.ErrorIs(t, err, ErrModuleNotInstalled)
}

func TestNewRequiresEntity(t *testing.T) {

	v := variant()
	v.Entity = "baskets"

	_, err := New(context.Background(), v, repo(t), Deps{Modules: NewModules(rpmem.Name)}, Options{})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperr.CodeOf(err))
	assert.Equal(t, "Entity baskets is not available", apperr.MessageOf(err))
	assert.ErrorIs(t, err, store.ErrUnknownEntity)
}

func TestReadManyDefaults(t *testing.T) {

	e := newExecutor(t, variant(), Options{}).Factory()
	require.NoError(t, e.PrepareQuery(url.Values{}, nil))

	rows, err := e.ReadMany(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"card", "cash"}, codes(t, rows))

	// Tilde keys are gone, content is decoded, files are resolved.
	assert.Equal(t, []string{"ID", "CODE", "NAME", "ACTIVE", "SORT", "CREATED", "LOGOTIP"}, store.Keys(rows[0]))
	name, _ := rows[0].Get("NAME")
	assert.Equal(t, "Card & Co", name)
	logo, _ := rows[1].Get("LOGOTIP")
	assert.Equal(t, map[string]any{"ID": "7", "SRC": "/upload/7.png"}, logo)
	created, _ := rows[1].Get("CREATED")
	assert.Equal(t, "2024-01-01T00:00:00Z", created)
}

func TestReadManyWithParams(t *testing.T) {

	e := newExecutor(t, variant(), Options{}).Factory()
	params := url.Values{
		"filter":    {`{"ACTIVE":"Y","CREATED_>=":"2024-02-01","NOPE":1}`},
		"order":     {`{"SORT":"DESC"}`},
		"select":    {`["CODE","MISSING"]`},
		"navParams": {`{"nPageSize":1}`},
	}
	require.NoError(t, e.PrepareQuery(params, nil))
	assert.Equal(t, []string{"MISSING", "NOPE"}, e.Dropped())

	filter, err := e.Get("filter")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01 00:00:00", filter.(query.Filter).Conditions["CREATED_>="])

	rows, err := e.ReadMany(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"CODE"}, store.Keys(rows[0]))
	assert.Equal(t, []string{"card"}, codes(t, rows))

	n, err := e.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUnknownOperatorIsDropped(t *testing.T) {

	e := newExecutor(t, variant(), Options{}).Factory()
	require.NoError(t, e.PrepareQuery(url.Values{"filter": {`{"><CREATED":"2024-02-01","ACTIVE":"Y"}`}}, nil))
	assert.Equal(t, []string{"><CREATED"}, e.Dropped())

	rows, err := e.ReadMany(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"card", "cash"}, codes(t, rows))
}

func TestOptionsOverrideDefaults(t *testing.T) {

	e := newExecutor(t, variant(), Options{
		Filter:   map[string]any{"ACTIVE": "N"},
		PageSize: 10,
	}).Factory()

	rows, err := e.ReadMany(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, codes(t, rows))

	page, err := e.Get("navParams")
	require.NoError(t, err)
	assert.Equal(t, query.Page{Size: 10, Number: 1}, page)
}

func TestReadOne(t *testing.T) {

	e := newExecutor(t, variant(), Options{}).Factory()
	ctx := context.Background()

	byID, err := e.ReadOne(ctx, "2")
	require.NoError(t, err)
	code, _ := byID.Get("CODE")
	assert.Equal(t, "card", code)

	byCode, err := e.ReadOne(ctx, "cash")
	require.NoError(t, err)
	id, _ := byCode.Get("ID")
	assert.EqualValues(t, 1, id)

	// Inactive rows are outside the default filter.
	_, err = e.ReadOne(ctx, "old")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, "Item old not found", apperr.MessageOf(err))
}

func TestWrites(t *testing.T) {

	e := newExecutor(t, variant(), Options{}).Factory()
	ctx := context.Background()

	require.NoError(t, e.PrepareQuery(nil, []byte(`{"CODE":"sbp","NAME":"SBP","ACTIVE":"Y","SORT":1,"ID":99,"~SECRET":"z","JUNK":true}`)))
	created, err := e.Update(ctx, "", e.Body())
	require.NoError(t, err)
	id, _ := created.Get("ID")
	assert.EqualValues(t, 4, id)
	assert.Equal(t, []string{"ID", "CODE", "NAME", "ACTIVE", "SORT"}, store.Keys(created))

	updated, err := e.Update(ctx, "sbp", map[string]any{"NAME": "Fast payments"})
	require.NoError(t, err)
	name, _ := updated.Get("NAME")
	assert.Equal(t, "Fast payments", name)

	removed, err := e.Delete(ctx, "4")
	require.NoError(t, err)
	code, _ := removed.Get("CODE")
	assert.Equal(t, "sbp", code)

	_, err = e.Delete(ctx, "4")
	assert.True(t, apperr.IsNotFound(err))
}

func TestOperationsAreEnforced(t *testing.T) {

	v := variant()
	v.Operations = nil
	e := newExecutor(t, v, Options{}).Factory()
	ctx := context.Background()

	_, err := e.Update(ctx, "", map[string]any{"NAME": "x"})
	assert.Equal(t, http.StatusMethodNotAllowed, apperr.CodeOf(err))
	_, err = e.Update(ctx, "1", map[string]any{"NAME": "x"})
	assert.Equal(t, http.StatusMethodNotAllowed, apperr.CodeOf(err))
	_, err = e.Delete(ctx, "1")
	assert.Equal(t, http.StatusMethodNotAllowed, apperr.CodeOf(err))

	_, err = e.ReadOne(ctx, "1")
	assert.NoError(t, err)
}

func TestInvalidBody(t *testing.T) {

	e := newExecutor(t, variant(), Options{}).Factory()
	err := e.PrepareQuery(nil, []byte(`[1,2]`))
	assert.Equal(t, http.StatusBadRequest, apperr.CodeOf(err))
}

func TestFactoryIsolatesRequests(t *testing.T) {

	proto := newExecutor(t, variant(), Options{})

	a := proto.Factory()
	require.NoError(t, a.PrepareQuery(url.Values{"filter": {`{"CODE":"cash"}`}}, nil))

	b := proto.Factory()
	rows, err := b.ReadMany(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = a.ReadMany(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cash"}, codes(t, rows))
}

func TestGetSet(t *testing.T) {

	e := newExecutor(t, variant(), Options{}).Factory()

	require.NoError(t, e.Set("order", []string{"NAME:DESC"}))
	order, err := e.Get("order")
	require.NoError(t, err)
	assert.Equal(t, query.Order{{Field: "NAME", Dir: query.Desc}}, order)

	require.NoError(t, e.Set("navParams", map[string]any{"size": 1, "page": 2}))
	page, _ := e.Get("navParams")
	assert.Equal(t, query.Page{Size: 1, Number: 2}, page)

	// Both page keys mean the same page; the first present one wins.
	require.NoError(t, e.Set("navParams", map[string]any{"nPageSize": 1, "iNumPage": 2, "page": 2}))
	page, _ = e.Get("navParams")
	assert.Equal(t, query.Page{Size: 1, Number: 2}, page)
	require.NoError(t, e.Set("navParams", map[string]any{"size": 1, "page": 0, "iNumPage": 3}))
	page, _ = e.Get("navParams")
	assert.Equal(t, query.Page{Size: 1, Number: 3}, page)

	require.NoError(t, e.Set("navParams", map[string]any{"size": 1, "page": 2}))

	require.NoError(t, e.Set("select", []string{"CODE"}))
	rows, err := e.ReadMany(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"card"}, codes(t, rows))

	// A schema without the file tag stops file formatting.
	plain := schema.New(e.Schema().Fields()...)
	plain.SetType("LOGOTIP", "")
	require.NoError(t, e.Set("schema", plain))
	require.NoError(t, e.Set("navParams", query.Page{Size: 1, Number: 1}))
	require.NoError(t, e.Set("select", []string{"LOGOTIP"}))
	rows, err = e.ReadMany(context.Background())
	require.NoError(t, err)
	logo, _ := rows[0].Get("LOGOTIP")
	assert.Equal(t, "7", logo)

	assert.Error(t, e.Set("filter", 42))
	_, err = e.Get("nope")
	assert.Error(t, err)
}

func TestDecodeOptions(t *testing.T) {

	o, err := DecodeOptions(map[string]any{
		"filter":     `{"ACTIVE":"Y","IBLOCK_ID":3}`,
		"order":      []any{"SORT:ASC", "NAME"},
		"pageSize":   "50",
		"countTotal": true,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ACTIVE": "Y", "IBLOCK_ID": float64(3)}, o.Filter)
	assert.Equal(t, 50, o.PageSize)
	assert.Equal(t, query.Order{{Field: "SORT", Dir: query.Asc}, {Field: "NAME", Dir: query.Asc}}, o.order())

	_, err = DecodeOptions(map[string]any{"fliter": "{}"})
	assert.Error(t, err)
}

func TestMergeKeepsDefaults(t *testing.T) {

	merged := DefaultOptions().Merge(Options{NavParams: map[string]any{"nPageSize": "7"}})
	assert.Equal(t, 7, merged.PageSize)
	assert.Equal(t, []string{"SORT:ASC"}, merged.Order)
	assert.Equal(t, map[string]any{"ACTIVE": "Y"}, merged.Filter)
}

func releases(t *testing.T) *Executor {

	r := rpmem.New()
	r.Define("releases",
		schema.Field{Name: "CODE"},
		schema.Field{Name: "ACTIVE"},
		schema.Field{Name: "SORT", Type: schema.Number},
		schema.Field{Name: "PROPERTY_RELEASED", Type: schema.Date, Property: true},
	)
	require.NoError(t, r.Seed("releases",
		store.NewRow("CODE", "v1", "ACTIVE", "Y", "SORT", 1, "PROPERTY_RELEASED_VALUE", "2024-02-01 00:00:00"),
		store.NewRow("CODE", "v2", "ACTIVE", "Y", "SORT", 2),
	))

	e, err := New(context.Background(), Variant{
		Entity:     "releases",
		Modules:    []string{rpmem.Name},
		Operations: []Operation{Read, Create, Update},
	}, r, Deps{Modules: NewModules(rpmem.Name)}, Options{})
	require.NoError(t, err)
	return e.Factory()
}

func TestPropertyValuesAreRead(t *testing.T) {

	e := releases(t)
	ctx := context.Background()
	require.NoError(t, e.PrepareQuery(nil, nil))

	sel, err := e.Get("select")
	require.NoError(t, err)
	assert.Contains(t, sel, "PROPERTY_RELEASED_VALUE")

	rows, err := e.ReadMany(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"v1", "v2"}, codes(t, rows))
	released, ok := rows[0].Get("PROPERTY_RELEASED_VALUE")
	require.True(t, ok)
	assert.Equal(t, "2024-02-01T00:00:00Z", released)
	_, ok = rows[1].Get("PROPERTY_RELEASED_VALUE")
	assert.False(t, ok)

	one, err := e.ReadOne(ctx, "v1")
	require.NoError(t, err)
	released, _ = one.Get("PROPERTY_RELEASED_VALUE")
	assert.Equal(t, "2024-02-01T00:00:00Z", released)
}

func TestPropertySelectedByName(t *testing.T) {

	e := releases(t)
	require.NoError(t, e.PrepareQuery(url.Values{"select": {`["CODE","PROPERTY_RELEASED"]`}}, nil))
	assert.Empty(t, e.Dropped())

	rows, err := e.ReadMany(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"CODE", "PROPERTY_RELEASED_VALUE"}, store.Keys(rows[0]))
	assert.Equal(t, []string{"CODE"}, store.Keys(rows[1]))

	// Selecting the value key itself does not repeat it.
	require.NoError(t, e.Set("select", []string{"PROPERTY_RELEASED_VALUE", "PROPERTY_RELEASED"}))
	sel, _ := e.Get("select")
	assert.Equal(t, []string{"PROPERTY_RELEASED_VALUE", "PROPERTY_RELEASED"}, sel)
}

func TestPropertyValuesAreWritten(t *testing.T) {

	e := releases(t)
	ctx := context.Background()

	require.NoError(t, e.PrepareQuery(nil, []byte(`{"CODE":"v3","ACTIVE":"Y","SORT":3,"PROPERTY_RELEASED_VALUE":"2024-05-01"}`)))
	created, err := e.Update(ctx, "", e.Body())
	require.NoError(t, err)
	released, ok := created.Get("PROPERTY_RELEASED_VALUE")
	require.True(t, ok)
	assert.Equal(t, "2024-05-01T00:00:00Z", released)

	updated, err := e.Update(ctx, "v2", map[string]any{"PROPERTY_RELEASED_VALUE": "2024-06-15"})
	require.NoError(t, err)
	released, _ = updated.Get("PROPERTY_RELEASED_VALUE")
	assert.Equal(t, "2024-06-15T00:00:00Z", released)

	// The property name is not where the value lives.
	updated, err = e.Update(ctx, "v1", map[string]any{"PROPERTY_RELEASED_VALUE_X": "2025-01-01"})
	require.NoError(t, err)
	released, _ = updated.Get("PROPERTY_RELEASED_VALUE")
	assert.Equal(t, "2024-02-01T00:00:00Z", released)
}
