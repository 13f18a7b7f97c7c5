// Package store defines the repository contract executors call and the ordered row
// type repositories return.
package store

import (
	"context"

	"github.com/jeremywhuff/restify/query"
	"github.com/jeremywhuff/restify/schema"
	"github.com/pkg/errors"
)

// ErrUnknownEntity is returned by Fields when the repository has no such entity.
var ErrUnknownEntity = errors.New("unknown entity")

// Repository is the generic store an executor reads and writes through.
type Repository interface {
	// Fields returns the entity's field map in declaration order.
	Fields(ctx context.Context, entity string) ([]schema.Field, error)

	// Find returns the rows matching spec. OR groups in the filter must be honoured.
	Find(ctx context.Context, entity string, spec query.Spec) ([]*Row, error)

	// Count returns how many rows match f, ignoring paging.
	Count(ctx context.Context, entity string, f query.Filter) (int64, error)

	// Insert stores values and returns the new row's id.
	Insert(ctx context.Context, entity string, values map[string]any) (string, error)

	Update(ctx context.Context, entity string, id string, values map[string]any) error

	Delete(ctx context.Context, entity string, id string) error
}

// DateFormatter is implemented by repositories that compare dates in a specific
// textual format. The value is a strftime pattern.
type DateFormatter interface {
	DateFormat() string
}

// DateFormatOf returns repo's date format, or query.DefaultDateFormat.
func DateFormatOf(repo Repository) string {
	if df, ok := repo.(DateFormatter); ok && df.DateFormat() != "" {
		return df.DateFormat()
	}
	return query.DefaultDateFormat
}
