package rpmem

import (
	"context"
	"strings"
	"testing"

	"github.com/jeremywhuff/restify/query"
	"github.com/jeremywhuff/restify/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJSON(t *testing.T) {

	r := New()
	err := r.LoadJSON(strings.NewReader(`{
		"paysystems": [
			{"NAME": "Cash", "SORT": 20, "ID": 5},
			{"NAME": "Card", "ACTIVE": "Y"}
		],
		"basket": []
	}`))
	require.NoError(t, err)

	ctx := context.Background()

	fields, err := r.Fields(ctx, "paysystems")
	require.NoError(t, err)
	var names []string
	for _, f := range fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"ID", "ACTIVE", "NAME", "SORT"}, names)

	rows, err := r.Find(ctx, "paysystems", query.Spec{Select: []string{query.AllFields}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"ID", "NAME", "SORT"}, store.Keys(rows[0]))
	assert.EqualValues(t, 20, store.ToMap(rows[0])["SORT"])
	assert.EqualValues(t, 6, store.ToMap(rows[1])["ID"])

	_, err = r.Fields(ctx, "basket")
	assert.NoError(t, err)

	assert.Error(t, New().LoadJSON(strings.NewReader(`[1, 2]`)))
}
