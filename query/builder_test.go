package query

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/jeremywhuff/restify/apperr"
	"github.com/jeremywhuff/restify/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBuilder() *Builder {
	return &Builder{
		Schema: schema.New(
			schema.Field{Name: "ID", Type: schema.Number},
			schema.Field{Name: "ACTIVE"},
			schema.Field{Name: "CREATED", Type: schema.Date},
			schema.Field{Name: "TIMESTAMP_X", Type: schema.DateTime},
		),
		Defaults: Spec{
			Filter: Where(map[string]any{"ACTIVE": "Y"}),
			Order:  Order{{Field: "SORT", Dir: Asc}},
			Select: []string{"*"},
			Page:   Page{Size: 25},
		},
	}
}

func TestBuildKeepsDefaultsWhenParamsAbsent(t *testing.T) {
	b := testBuilder()

	for _, params := range []url.Values{
		nil,
		{},
		{"order": {""}, "filter": {"0"}, "unrelated": {"x"}},
	} {
		spec, err := b.Build(params)
		require.NoError(t, err)
		assert.Equal(t, b.Defaults, spec)
	}
}

func TestBuildDoesNotMutateDefaults(t *testing.T) {
	b := testBuilder()

	spec, err := b.Build(url.Values{})
	require.NoError(t, err)
	spec.Filter.Conditions["ACTIVE"] = "N"
	spec.Select[0] = "NAME"

	assert.Equal(t, "Y", b.Defaults.Filter.Conditions["ACTIVE"])
	assert.Equal(t, "*", b.Defaults.Select[0])
}

func TestBuildFilterRewritesDates(t *testing.T) {
	b := testBuilder()

	spec, err := b.Build(url.Values{
		"filter": {`{"ACTIVE":"Y","CREATED_>=":"2024-01-01",">=TIMESTAMP_X":"2024-03-05T10:11:12Z"}`},
	})
	require.NoError(t, err)

	assert.Equal(t, "Y", spec.Filter.Conditions["ACTIVE"])
	assert.Equal(t, "2024-01-01 00:00:00", spec.Filter.Conditions["CREATED_>="])
	assert.Equal(t, "2024-03-05 10:11:12", spec.Filter.Conditions[">=TIMESTAMP_X"])
	assert.Equal(t, 25, spec.Page.Size)
}

func TestBuildFilterUsesStoreDateFormat(t *testing.T) {
	b := testBuilder()
	b.DateFormat = "%d.%m.%Y"

	spec, err := b.Build(url.Values{"filter": {`{"CREATED":["2024-01-01","2024-02-29"]}`}})
	require.NoError(t, err)

	assert.Equal(t, []any{"01.01.2024", "29.02.2024"}, spec.Filter.Conditions["CREATED"])
}

func TestBuildFilterPassesInvalidDatesThrough(t *testing.T) {
	b := testBuilder()

	spec, err := b.Build(url.Values{"filter": {`{"CREATED_<":"not a date","CREATED":""}`}})
	require.NoError(t, err)

	assert.Equal(t, "not a date", spec.Filter.Conditions["CREATED_<"])
	assert.Equal(t, "", spec.Filter.Conditions["CREATED"])
}

func TestBuildFilterStrictDates(t *testing.T) {
	b := testBuilder()
	b.StrictDates = true

	_, err := b.Build(url.Values{"filter": {`{"CREATED_<":"not a date"}`}})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperr.CodeOf(err))
}

func TestBuildFilterExactVersusSubstringMatch(t *testing.T) {
	b := testBuilder()
	params := url.Values{"filter": {`{"DATE_CREATED_BY":"2024-01-01"}`}}

	spec, err := b.Build(params)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", spec.Filter.Conditions["DATE_CREATED_BY"])

	b.SubstringMatch = true
	spec, err = b.Build(params)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01 00:00:00", spec.Filter.Conditions["DATE_CREATED_BY"])
}

func TestBuildFilterLeavesUnknownOperatorsAlone(t *testing.T) {
	b := testBuilder()

	spec, err := b.Build(url.Values{"filter": {`{"><CREATED":"2024-01-01",">=CREATED":"2024-01-01"}`}})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", spec.Filter.Conditions["><CREATED"])
	assert.Equal(t, "2024-01-01 00:00:00", spec.Filter.Conditions[">=CREATED"])
}

func TestBuildScalarFilterKeepsDefaults(t *testing.T) {
	b := testBuilder()

	spec, err := b.Build(url.Values{"filter": {"ACTIVE"}})
	require.NoError(t, err)
	assert.Equal(t, b.Defaults.Filter, spec.Filter)
}

func TestBuildSelect(t *testing.T) {
	b := testBuilder()

	spec, err := b.Build(url.Values{"select": {"NAME"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"NAME"}, spec.Select)

	spec, err = b.Build(url.Values{"select": {`["ID","NAME"]`}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "NAME"}, spec.Select)
	assert.False(t, spec.SelectsAll())

	// JSON scalars are a list of one.
	spec, err = b.Build(url.Values{"select": {`"NAME"`}})
	require.NoError(t, err)
	assert.Equal(t, []string{"NAME"}, spec.Select)

	spec, err = b.Build(url.Values{"select": {"5"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, spec.Select)

	spec, err = b.Build(url.Values{"select": {`{"NAME":1}`}})
	require.NoError(t, err)
	assert.Equal(t, b.Defaults.Select, spec.Select)
}

func TestBuildOrderKeepsKeyOrder(t *testing.T) {
	b := testBuilder()

	spec, err := b.Build(url.Values{"order": {`{"NAME":"desc","ID":"ASC","SORT":"sideways"}`}})
	require.NoError(t, err)
	assert.Equal(t, Order{
		{Field: "NAME", Dir: Desc},
		{Field: "ID", Dir: Asc},
		{Field: "SORT", Dir: Asc},
	}, spec.Order)

	spec, err = b.Build(url.Values{"order": {"NAME"}})
	require.NoError(t, err)
	assert.Equal(t, Order{{Field: "NAME", Dir: Asc}}, spec.Order)

	spec, err = b.Build(url.Values{"order": {`"NAME"`}})
	require.NoError(t, err)
	assert.Equal(t, Order{{Field: "NAME", Dir: Asc}}, spec.Order)

	spec, err = b.Build(url.Values{"order": {"7"}})
	require.NoError(t, err)
	assert.Equal(t, Order{{Field: "7", Dir: Asc}}, spec.Order)
}

func TestBuildNavParams(t *testing.T) {
	b := testBuilder()

	spec, err := b.Build(url.Values{"navParams": {`{"page":3}`}})
	require.NoError(t, err)
	assert.Equal(t, Page{Size: 25, Number: 3}, spec.Page)
	assert.Equal(t, 50, spec.Page.Offset())

	spec, err = b.Build(url.Values{"navParams": {`{"nPageSize":"10","iNumPage":"2"}`}})
	require.NoError(t, err)
	assert.Equal(t, Page{Size: 10, Number: 2}, spec.Page)

	spec, err = b.Build(url.Values{"navParams": {`{"size":""}`}})
	require.NoError(t, err)
	assert.Equal(t, 25, spec.Page.Size)
}

func TestParseKey(t *testing.T) {
	for key, want := range map[string]struct {
		field string
		op    Op
	}{
		"ACTIVE":      {"ACTIVE", Eq},
		">=CREATED":   {"CREATED", Gte},
		"CREATED_>=":  {"CREATED", Gte},
		"<DATE":       {"DATE", Lt},
		"!ID":         {"ID", NotEq},
		"NAME_!=":     {"NAME", NotEq},
		"%NAME":       {"NAME", Contains},
		"!%NAME":      {"NAME", NotContains},
		"PRICE_>":     {"PRICE", Gt},
		"SORT_<=":     {"SORT", Lte},
		"DATE_CREATE": {"DATE_CREATE", Eq},
		">":           {">", Eq},
	} {
		field, op := ParseKey(key)
		assert.Equal(t, want.field, field, key)
		assert.Equal(t, want.op, op, key)
	}
}

func TestFilterWithAddsGroupOnCopy(t *testing.T) {
	base := Where(map[string]any{"ACTIVE": "Y"})
	withID := base.With(AnyOf(
		Where(map[string]any{"ID": "7"}),
		Where(map[string]any{"CODE": "7"}),
	))

	assert.Empty(t, base.Groups)
	require.Len(t, withID.Groups, 1)
	assert.Equal(t, Or, withID.Groups[0].Logic)
	assert.Len(t, withID.Groups[0].Filters, 2)
	assert.False(t, withID.IsEmpty())
	assert.True(t, Filter{}.IsEmpty())
}
