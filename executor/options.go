package executor

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/jeremywhuff/restify/query"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Options are the caller-settable defaults of an executor. Zero values never override
// a default.
type Options struct {
	// Order entries are "FIELD" or "FIELD:DIR".
	Order  []string       `mapstructure:"order"`
	Filter map[string]any `mapstructure:"filter"`
	Select []string       `mapstructure:"select"`

	PageSize int `mapstructure:"pageSize"`
	// NavParams is the legacy spelling of PageSize ({"nPageSize": 25}).
	NavParams map[string]any `mapstructure:"navParams"`

	// DateFormat is the strftime pattern filter dates are rewritten to. Defaults to the
	// repository's format.
	DateFormat     string `mapstructure:"dateFormat"`
	StrictDates    bool   `mapstructure:"strictDates"`
	SubstringMatch bool   `mapstructure:"substringMatch"`

	// CountTotal makes list routes report the total row count.
	CountTotal bool   `mapstructure:"countTotal"`
	Language   string `mapstructure:"language"`
}

// DefaultOptions are the defaults every executor starts from.
func DefaultOptions() Options {
	return Options{
		Order:    []string{"SORT:ASC"},
		Filter:   map[string]any{"ACTIVE": "Y"},
		Select:   []string{query.AllFields},
		PageSize: 25,
	}
}

// DecodeOptions reads options from a loosely typed map, such as a config file section.
// Unknown keys are an error. A string filter is parsed as JSON, which keeps the key
// case that config loaders tend to fold.
func DecodeOptions(raw map[string]any) (Options, error) {

	var o Options
	if len(raw) == 0 {
		return o, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &o,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       jsonStringToMap,
	})
	if err != nil {
		return o, errors.WithStack(err)
	}
	if err := dec.Decode(raw); err != nil {
		return o, errors.Wrap(err, "decoding executor options")
	}
	return o, nil
}

func jsonStringToMap(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Map {
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if s == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, errors.Wrap(err, "parsing JSON object option")
	}
	return m, nil
}

// Merge returns o with every non-zero field of over applied.
func (o Options) Merge(over Options) Options {
	if len(over.Order) > 0 {
		o.Order = over.Order
	}
	if len(over.Filter) > 0 {
		o.Filter = over.Filter
	}
	if len(over.Select) > 0 {
		o.Select = over.Select
	}
	if size := over.pageSize(); size > 0 {
		o.PageSize = size
		o.NavParams = nil
	}
	if over.DateFormat != "" {
		o.DateFormat = over.DateFormat
	}
	if over.StrictDates {
		o.StrictDates = true
	}
	if over.SubstringMatch {
		o.SubstringMatch = true
	}
	if over.CountTotal {
		o.CountTotal = true
	}
	if over.Language != "" {
		o.Language = over.Language
	}
	return o
}

func (o Options) pageSize() int {
	if o.PageSize > 0 {
		return o.PageSize
	}
	for _, key := range []string{"nPageSize", "size"} {
		for k, v := range o.NavParams {
			if strings.EqualFold(k, key) {
				if n, err := cast.ToIntE(v); err == nil && n > 0 {
					return n
				}
			}
		}
	}
	return 0
}

// order parses the "FIELD:DIR" entries.
func (o Options) order() query.Order {
	out := make(query.Order, 0, len(o.Order))
	for _, entry := range o.Order {
		field, dir, _ := strings.Cut(entry, ":")
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		out = append(out, query.Sort{Field: field, Dir: query.ParseDir(dir)})
	}
	return out
}
