package rpmem

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"

	"github.com/jeremywhuff/restify/schema"
	"github.com/jeremywhuff/restify/store"
	"github.com/pkg/errors"
)

// LoadJSON defines and seeds entities from a document such as
//
//	{"paysystems": [{"ID": 1, "NAME": "Cash", "ACTIVE": "Y"}]}
//
// Each entity's fields are the union of its rows' keys, sorted, with ID first. Field
// types are plain; variants assign them through their schema augmentation.
func (r *Repository) LoadJSON(src io.Reader) error {

	data, err := io.ReadAll(src)
	if err != nil {
		return errors.WithStack(err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string][]map[string]any
	if err := dec.Decode(&doc); err != nil {
		return errors.Wrap(err, "rpmem: decoding fixtures")
	}

	entities := make([]string, 0, len(doc))
	for entity := range doc {
		entities = append(entities, entity)
	}
	sort.Strings(entities)

	for _, entity := range entities {
		seen := map[string]bool{}
		var names []string
		rows := make([]*store.Row, 0, len(doc[entity]))

		for _, m := range doc[entity] {
			for k, v := range m {
				m[k] = normalize(v)
				if !seen[k] && k != idField {
					seen[k] = true
					names = append(names, k)
				}
			}
			row := store.RowFromMap(m)
			if _, ok := row.Get(idField); ok {
				_ = row.MoveToFront(idField)
			}
			rows = append(rows, row)
		}
		sort.Strings(names)

		fields := make([]schema.Field, len(names))
		for i, name := range names {
			fields[i] = schema.Field{Name: name}
		}
		r.Define(entity, fields...)
		if err := r.Seed(entity, rows...); err != nil {
			return err
		}
	}
	return nil
}
