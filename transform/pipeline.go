// Package transform reshapes repository rows before they are serialized. A Pipeline is
// composed once per executor and applied to every row of every result.
package transform

import (
	"strings"

	"github.com/jeremywhuff/restify/schema"
	"github.com/jeremywhuff/restify/store"
	"golang.org/x/net/html"
)

// TildePrefix marks internal keys that are never exposed.
const TildePrefix = "~"

// ContentFields are decoded from HTML entities by the base pipeline.
var ContentFields = []string{"NAME", "PREVIEW_TEXT", "DETAIL_TEXT"}

// Stage mutates a row in place. It must be idempotent.
type Stage struct {
	Name string
	Fn   func(*store.Row)
}

// Pipeline is an ordered list of stages.
type Pipeline []Stage

// Base is the pipeline every executor starts with: strip tilde keys, decode content
// fields, then run the formatters over the schema.
func Base(s *schema.Schema, formatters ...Formatter) Pipeline {
	return Pipeline{
		StripTildeKeys(),
		DecodeContent(ContentFields...),
		Format(s, formatters...),
	}
}

// Then returns a new pipeline with stages appended.
func (p Pipeline) Then(stages ...Stage) Pipeline {
	out := make(Pipeline, 0, len(p)+len(stages))
	out = append(out, p...)
	return append(out, stages...)
}

func (p Pipeline) Names() []string {
	names := make([]string, len(p))
	for i, s := range p {
		names[i] = s.Name
	}
	return names
}

// Apply runs every stage over one row.
func (p Pipeline) Apply(row *store.Row) {
	if row == nil {
		return
	}
	for _, s := range p {
		s.Fn(row)
	}
}

// ApplyAll runs the pipeline over each row, in order.
func (p Pipeline) ApplyAll(rows []*store.Row) []*store.Row {
	for _, row := range rows {
		p.Apply(row)
	}
	return rows
}

func StripTildeKeys() Stage {
	return Stage{
		Name: "strip_tilde_keys",
		Fn: func(row *store.Row) {
			for _, key := range store.Keys(row) {
				if strings.HasPrefix(key, TildePrefix) {
					row.Delete(key)
				}
			}
		},
	}
}

// DecodeContent unescapes HTML entities in the given string fields when they are
// present and non-empty.
func DecodeContent(fields ...string) Stage {
	return Stage{
		Name: "decode_content",
		Fn: func(row *store.Row) {
			for _, f := range fields {
				v, ok := row.Get(f)
				if !ok {
					continue
				}
				if s, ok := v.(string); ok && s != "" {
					row.Set(f, html.UnescapeString(s))
				}
			}
		},
	}
}

// PopOne collapses a result to its first row.
func PopOne(rows []*store.Row) (*store.Row, bool) {
	if len(rows) == 0 {
		return nil, false
	}
	return rows[0], true
}
