package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/jeremywhuff/restify/apperr"
	"github.com/jeremywhuff/restify/schema"
	"github.com/ncruces/go-strftime"
	"github.com/spf13/cast"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Request parameter names.
const (
	ParamOrder     = "order"
	ParamFilter    = "filter"
	ParamSelect    = "select"
	ParamNavParams = "navParams"
)

// DefaultDateFormat is the strftime pattern dates are rewritten to when the store does
// not say otherwise.
const DefaultDateFormat = "%Y-%m-%d %H:%M:%S"

// Params is the read side of url.Values.
type Params interface {
	Get(key string) string
}

// Builder compiles request parameters over a set of defaults.
//
// Filter values on date fields are parsed and rewritten to DateFormat. A key is a date
// key when ParseKey yields a date field, so "CREATED", ">=CREATED" and "CREATED_<" are
// coerced. Keys whose operator ParseKey does not know, such as "><CREATED", name no
// field; they pass through untouched here and the executor drops them, listing them in
// Dropped.
type Builder struct {
	Schema   *schema.Schema
	Defaults Spec

	// DateFormat is a strftime pattern. Empty means DefaultDateFormat.
	DateFormat string
	Location   *time.Location

	// SubstringMatch treats every filter key containing a date field's name as a date
	// key, instead of matching the parsed field exactly.
	SubstringMatch bool

	// StrictDates turns an unparseable date into a 400 instead of passing it through.
	StrictDates bool
}

// Build returns a fresh Spec. Absent parameters keep their defaults.
func (b *Builder) Build(params Params) (Spec, error) {

	spec := b.Defaults.Clone()
	if params == nil {
		return spec, nil
	}

	if raw, ok := present(params, ParamOrder); ok {
		if order := parseOrder(raw); len(order) > 0 {
			spec.Order = order
		}
	}

	if raw, ok := present(params, ParamFilter); ok {
		if f, ok := parseFilter(raw); ok {
			if err := b.coerceDates(f); err != nil {
				return Spec{}, err
			}
			spec.Filter = f
		}
	}

	if raw, ok := present(params, ParamSelect); ok {
		if sel := parseSelect(raw); len(sel) > 0 {
			spec.Select = sel
		}
	}

	if raw, ok := present(params, ParamNavParams); ok {
		spec.Page = parsePage(raw)
		if spec.Page.Size <= 0 {
			spec.Page.Size = b.Defaults.Page.Size
		}
	}

	return spec, nil
}

// present mirrors a falsy check: "" and "0" count as absent.
func present(params Params, key string) (string, bool) {
	raw := strings.TrimSpace(params.Get(key))
	if raw == "" || raw == "0" {
		return "", false
	}
	return raw, true
}

// decode parses raw as JSON. A value that does not parse, or parses to a zero value, is
// wrapped into a single-element sequence instead.
func decode(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil && !isZero(v) {
		return v
	}
	return []any{raw}
}

func isZero(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case float64:
		return t == 0
	case string:
		return t == "" || t == "0"
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// sequence reads a decoded value as a list. A lone scalar is a list of one; objects
// have no list reading.
func sequence(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case map[string]any:
		return nil, false
	}
	return []any{v}, true
}

func parseSelect(raw string) []string {

	seq, ok := sequence(decode(raw))
	if !ok {
		return nil
	}

	out := make([]string, 0, len(seq))
	for _, v := range seq {
		if s := strings.TrimSpace(cast.ToString(v)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseOrder(raw string) Order {

	// Objects go through an ordered map so the client's key order is the sort order.
	if strings.HasPrefix(raw, "{") {
		om := orderedmap.New[string, any]()
		if err := json.Unmarshal([]byte(raw), om); err == nil && om.Len() > 0 {
			order := make(Order, 0, om.Len())
			for pair := om.Oldest(); pair != nil; pair = pair.Next() {
				order = append(order, Sort{Field: pair.Key, Dir: ParseDir(cast.ToString(pair.Value))})
			}
			return order
		}
	}

	seq, ok := sequence(decode(raw))
	if !ok {
		return nil
	}
	order := make(Order, 0, len(seq))
	for _, v := range seq {
		if s := strings.TrimSpace(cast.ToString(v)); s != "" {
			order = append(order, Sort{Field: s, Dir: Asc})
		}
	}
	return order
}

// parseFilter accepts only JSON objects. A scalar filter has no field to apply to and
// leaves the defaults in place.
func parseFilter(raw string) (Filter, bool) {

	m, ok := decode(raw).(map[string]any)
	if !ok {
		return Filter{}, false
	}

	// Numbers stay json.Number so large ids survive.
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var exact map[string]any
	if err := dec.Decode(&exact); err == nil {
		m = exact
	}

	return Where(m), true
}

func parsePage(raw string) Page {

	var p Page
	m, ok := decode(raw).(map[string]any)
	if !ok {
		return p
	}

	for _, key := range []string{"size", "nPageSize"} {
		if v, ok := m[key]; ok {
			if n, err := cast.ToIntE(v); err == nil && n > 0 {
				p.Size = n
				break
			}
		}
	}
	for _, key := range []string{"page", "iNumPage"} {
		if v, ok := m[key]; ok {
			if n, err := cast.ToIntE(v); err == nil && n > 0 {
				p.Number = n
				break
			}
		}
	}
	return p
}

func (b *Builder) isDateKey(key string) bool {

	if b.SubstringMatch {
		for _, f := range b.Schema.DateFields() {
			if strings.Contains(key, f.Name) {
				return true
			}
		}
		return false
	}

	field, _ := ParseKey(key)
	f, ok := b.Schema.Get(field)
	return ok && f.IsDate()
}

func (b *Builder) coerceDates(f Filter) error {

	for key, v := range f.Conditions {
		if !b.isDateKey(key) {
			continue
		}

		switch t := v.(type) {
		case string:
			s, err := b.reformatDate(t)
			if err != nil {
				return apperr.BadRequest(fmt.Sprintf("Invalid date in filter %q", key), err)
			}
			f.Conditions[key] = s
		case []any:
			for i, elem := range t {
				s, ok := elem.(string)
				if !ok {
					continue
				}
				out, err := b.reformatDate(s)
				if err != nil {
					return apperr.BadRequest(fmt.Sprintf("Invalid date in filter %q", key), err)
				}
				t[i] = out
			}
		}
	}
	return nil
}

// reformatDate parses s permissively and renders it in the store's format. Empty strings
// are left alone. Without StrictDates an unparseable value comes back unchanged.
func (b *Builder) reformatDate(s string) (string, error) {

	if s == "" {
		return s, nil
	}

	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}

	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		if b.StrictDates {
			return "", err
		}
		return s, nil
	}

	format := b.DateFormat
	if format == "" {
		format = DefaultDateFormat
	}
	return strftime.Format(format, t), nil
}
