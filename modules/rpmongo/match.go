package rpmongo

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/jeremywhuff/restify/query"
	"github.com/jeremywhuff/restify/schema"
	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// matchNone is a $match clause no document satisfies.
var matchNone = bson.D{{Key: "$expr", Value: false}}

// translator turns filters into $match documents for one collection.
type translator struct {
	idField string
	fields  map[string]schema.Field
}

func (t translator) key(name string) string {
	if name == t.idField {
		return "_id"
	}
	return name
}

// Match returns the $match document for f.
func (t translator) Match(f query.Filter) bson.D {

	keys := make([]string, 0, len(f.Conditions))
	for k := range f.Conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses bson.A
	for _, k := range keys {
		if c := t.condition(k, f.Conditions[k]); c != nil {
			clauses = append(clauses, c)
		}
	}

	for _, g := range f.Groups {
		if len(g.Filters) == 0 {
			continue
		}
		op := "$and"
		if g.Logic == query.Or {
			op = "$or"
		}
		subs := make(bson.A, 0, len(g.Filters))
		for _, sub := range g.Filters {
			subs = append(subs, t.Match(sub))
		}
		clauses = append(clauses, bson.D{{Key: op, Value: subs}})
	}

	switch len(clauses) {
	case 0:
		return bson.D{}
	case 1:
		return clauses[0].(bson.D)
	}
	return bson.D{{Key: "$and", Value: clauses}}
}

func (t translator) condition(key string, value any) bson.D {

	name, op := query.ParseKey(key)
	field, ok := t.fields[name]
	if !ok && name != t.idField {
		return nil
	}
	if name == t.idField {
		field = schema.Field{Name: name}
	}
	k := t.key(name)

	if values, ok := value.([]any); ok {
		return t.set(k, field, op, values)
	}

	switch op {
	case query.Contains:
		return bson.D{{Key: k, Value: primitive.Regex{Pattern: regexp.QuoteMeta(cast.ToString(value)), Options: "i"}}}
	case query.NotContains:
		return bson.D{{Key: k, Value: bson.D{{Key: "$not", Value: primitive.Regex{Pattern: regexp.QuoteMeta(cast.ToString(value)), Options: "i"}}}}}
	}

	v, ok := t.coerce(field, value)
	if !ok {
		if op == query.NotEq {
			return nil
		}
		return matchNone
	}
	if op == query.Eq {
		return bson.D{{Key: k, Value: v}}
	}
	return bson.D{{Key: k, Value: bson.D{{Key: mongoOp(op), Value: v}}}}
}

func (t translator) set(k string, field schema.Field, op query.Op, values []any) bson.D {

	switch op {
	case query.Eq, query.NotEq:
		list := bson.A{}
		for _, v := range values {
			if cv, ok := t.coerce(field, v); ok {
				list = append(list, cv)
			}
		}
		if op == query.Eq {
			if len(list) == 0 {
				return matchNone
			}
			return bson.D{{Key: k, Value: bson.D{{Key: "$in", Value: list}}}}
		}
		if len(list) == 0 {
			return nil
		}
		return bson.D{{Key: k, Value: bson.D{{Key: "$nin", Value: list}}}}
	}

	join := "$or"
	if op == query.NotContains {
		join = "$and"
	}
	subs := bson.A{}
	for _, v := range values {
		if c := t.condition(field.Name+"_"+string(op), v); c != nil {
			subs = append(subs, c)
		}
	}
	if len(subs) == 0 {
		return matchNone
	}
	return bson.D{{Key: join, Value: subs}}
}

func mongoOp(op query.Op) string {
	switch op {
	case query.NotEq:
		return "$ne"
	case query.Gt:
		return "$gt"
	case query.Gte:
		return "$gte"
	case query.Lt:
		return "$lt"
	case query.Lte:
		return "$lte"
	}
	return "$eq"
}

// coerce converts a filter value to the BSON type the field is stored as: ObjectIDs for
// the id, numbers for Number fields, dates for Date and DateTime fields.
func (t translator) coerce(field schema.Field, v any) (any, bool) {

	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			v = i
		} else if f, err := n.Float64(); err == nil {
			v = f
		}
	}

	if field.Name == t.idField {
		s := cast.ToString(v)
		if oid, err := primitive.ObjectIDFromHex(s); err == nil {
			return oid, true
		}
		return s, true
	}

	switch {
	case field.Type == schema.Number:
		if s, ok := v.(string); ok {
			if i, err := cast.ToInt64E(strings.TrimSpace(s)); err == nil {
				return i, true
			}
		}
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, false
		}
		if f == float64(int64(f)) {
			return int64(f), true
		}
		return f, true
	case field.IsDate():
		if s, ok := v.(string); ok {
			if tm, err := dateparse.ParseIn(s, time.UTC); err == nil {
				return tm, true
			}
		}
	}
	return v, true
}

// Pipeline is the aggregation run by Find.
func (t translator) Pipeline(spec query.Spec) mongoPipeline {

	p := mongoPipeline{{{Key: "$match", Value: t.Match(spec.Filter)}}}

	if len(spec.Order) > 0 {
		sortDoc := bson.D{}
		for _, s := range spec.Order {
			if _, ok := t.fields[s.Field]; !ok && s.Field != t.idField {
				continue
			}
			dir := 1
			if s.Dir == query.Desc {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: t.key(s.Field), Value: dir})
		}
		if len(sortDoc) > 0 {
			p = append(p, bson.D{{Key: "$sort", Value: sortDoc}})
		}
	}

	if off := spec.Page.Offset(); off > 0 {
		p = append(p, bson.D{{Key: "$skip", Value: int64(off)}})
	}
	if spec.Page.Size > 0 {
		p = append(p, bson.D{{Key: "$limit", Value: int64(spec.Page.Size)}})
	}

	if !spec.SelectsAll() {
		proj := bson.D{}
		hasID := false
		for _, name := range spec.Select {
			if name == t.idField {
				hasID = true
			}
			proj = append(proj, bson.E{Key: t.key(name), Value: 1})
		}
		if !hasID {
			proj = append(proj, bson.E{Key: "_id", Value: 0})
		}
		p = append(p, bson.D{{Key: "$project", Value: proj}})
	}

	return p
}

type mongoPipeline = []bson.D
