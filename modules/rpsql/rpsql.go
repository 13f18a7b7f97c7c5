// Package rpsql is a store.Repository over database/sql. Entities are tables and the
// field map is read from the database catalog.
package rpsql

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jeremywhuff/restify/query"
	"github.com/jeremywhuff/restify/schema"
	"github.com/jeremywhuff/restify/store"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	_ "modernc.org/sqlite"
)

// Name is the module name variants require to read from SQL tables.
const Name = "rpsql"

type Repository struct {
	db      *sql.DB
	dialect Dialect
	idField string

	mu     sync.RWMutex
	tables map[string][]schema.Field
}

// Open connects with the driver registered for dialect.
func Open(dialect Dialect, dsn string) (*Repository, error) {

	db, err := sql.Open(dialect.Driver(), dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s database", dialect)
	}
	if dialect == SQLite {
		// Every connection to ":memory:" is a different database.
		db.SetMaxOpenConns(1)
	}
	return New(db, dialect), nil
}

func New(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{
		db:      db,
		dialect: dialect,
		idField: "ID",
		tables:  map[string][]schema.Field{},
	}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) DateFormat() string {
	return query.DefaultDateFormat
}

// Fields reads the table's columns, caching them for the life of the repository.
func (r *Repository) Fields(ctx context.Context, entity string) ([]schema.Field, error) {

	r.mu.RLock()
	fields, ok := r.tables[entity]
	r.mu.RUnlock()
	if ok {
		return append([]schema.Field(nil), fields...), nil
	}

	if _, err := r.dialect.Quote(entity); err != nil {
		return nil, errors.Wrap(store.ErrUnknownEntity, err.Error())
	}

	fields, err := r.introspect(ctx, entity)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errors.Wrap(store.ErrUnknownEntity, entity)
	}

	r.mu.Lock()
	r.tables[entity] = fields
	r.mu.Unlock()

	return append([]schema.Field(nil), fields...), nil
}

func (r *Repository) introspect(ctx context.Context, entity string) ([]schema.Field, error) {

	var (
		rows *sql.Rows
		err  error
	)
	switch r.dialect {
	case SQLite:
		rows, err = r.db.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?) ORDER BY cid", entity)
	case Postgres:
		rows, err = r.db.QueryContext(ctx,
			"SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position", entity)
	case MySQL:
		rows, err = r.db.QueryContext(ctx,
			"SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position", entity)
	default:
		return nil, errors.Errorf("rpsql: unknown dialect %q", r.dialect)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading columns of %s", entity)
	}
	defer rows.Close()

	var fields []schema.Field
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, errors.WithStack(err)
		}
		if !identRe.MatchString(name) {
			continue
		}
		fields = append(fields, schema.Field{Name: name, Type: columnType(typ)})
	}
	return fields, errors.WithStack(rows.Err())
}

// columnType maps a declared SQL type to a field type.
func columnType(decl string) schema.Type {
	t := strings.ToUpper(decl)
	switch {
	case strings.Contains(t, "TIMESTAMP"), strings.Contains(t, "DATETIME"):
		return schema.DateTime
	case strings.HasPrefix(t, "DATE"):
		return schema.Date
	case strings.Contains(t, "INT"), strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"),
		strings.Contains(t, "DOUB"), strings.Contains(t, "NUMERIC"), strings.Contains(t, "DECIMAL"):
		return schema.Number
	case strings.Contains(t, "CHAR"), strings.Contains(t, "TEXT"), strings.Contains(t, "CLOB"):
		return schema.Text
	}
	return schema.Plain
}

func (r *Repository) columns(ctx context.Context, entity string) ([]schema.Field, map[string]schema.Field, error) {
	fields, err := r.Fields(ctx, entity)
	if err != nil {
		return nil, nil, err
	}
	byName := make(map[string]schema.Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	return fields, byName, nil
}

func (r *Repository) Find(ctx context.Context, entity string, spec query.Spec) ([]*store.Row, error) {

	fields, byName, err := r.columns(ctx, entity)
	if err != nil {
		return nil, err
	}

	var selected []string
	if spec.SelectsAll() {
		for _, f := range fields {
			selected = append(selected, f.Name)
		}
	} else {
		for _, name := range spec.Select {
			if _, ok := byName[name]; ok {
				selected = append(selected, name)
			}
		}
	}
	if len(selected) == 0 {
		return []*store.Row{}, nil
	}

	quoted := make([]string, len(selected))
	for i, name := range selected {
		quoted[i] = r.dialect.mustQuote(name)
	}

	w := &where{dialect: r.dialect, columns: byName}
	var b strings.Builder
	b.WriteString("SELECT " + strings.Join(quoted, ", ") + " FROM " + r.dialect.mustQuote(entity))
	if c := w.filter(spec.Filter); c != "" {
		b.WriteString(" WHERE " + c)
	}

	var order []string
	for _, s := range spec.Order {
		if _, ok := byName[s.Field]; ok {
			order = append(order, r.dialect.mustQuote(s.Field)+" "+string(s.Dir))
		}
	}
	if len(order) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(order, ", "))
	}

	if spec.Page.Size > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(spec.Page.Size) + " OFFSET " + strconv.Itoa(spec.Page.Offset()))
	}

	rows, err := r.db.QueryContext(ctx, b.String(), w.args...)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", entity)
	}
	defer rows.Close()

	out := []*store.Row{}
	for rows.Next() {
		dest := make([]any, len(selected))
		ptrs := make([]any, len(selected))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.WithStack(err)
		}
		row := orderedmap.New[string, any](len(selected))
		for i, name := range selected {
			if bs, ok := dest[i].([]byte); ok {
				dest[i] = string(bs)
			}
			row.Set(name, dest[i])
		}
		out = append(out, row)
	}
	return out, errors.WithStack(rows.Err())
}

func (r *Repository) Count(ctx context.Context, entity string, f query.Filter) (int64, error) {

	_, byName, err := r.columns(ctx, entity)
	if err != nil {
		return 0, err
	}

	w := &where{dialect: r.dialect, columns: byName}
	stmt := "SELECT COUNT(*) FROM " + r.dialect.mustQuote(entity)
	if c := w.filter(f); c != "" {
		stmt += " WHERE " + c
	}

	var n int64
	if err := r.db.QueryRowContext(ctx, stmt, w.args...).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "counting %s", entity)
	}
	return n, nil
}

// assignable returns the known, non-id columns of values in a stable order.
func (r *Repository) assignable(byName map[string]schema.Field, values map[string]any) []string {
	var cols []string
	for k := range values {
		if _, ok := byName[k]; ok && k != r.idField {
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	return cols
}

func (r *Repository) Insert(ctx context.Context, entity string, values map[string]any) (string, error) {

	_, byName, err := r.columns(ctx, entity)
	if err != nil {
		return "", err
	}

	cols := r.assignable(byName, values)
	table := r.dialect.mustQuote(entity)

	var stmt string
	args := make([]any, 0, len(cols))
	if len(cols) == 0 {
		stmt = "INSERT INTO " + table + " DEFAULT VALUES"
		if r.dialect == MySQL {
			stmt = "INSERT INTO " + table + " () VALUES ()"
		}
	} else {
		quoted := make([]string, len(cols))
		ph := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = r.dialect.mustQuote(c)
			ph[i] = r.dialect.Placeholder(i + 1)
			args = append(args, normalize(values[c]))
		}
		stmt = "INSERT INTO " + table + " (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(ph, ", ") + ")"
	}

	if r.dialect == Postgres {
		var id any
		stmt += " RETURNING " + r.dialect.mustQuote(r.idField)
		if err := r.db.QueryRowContext(ctx, stmt, args...).Scan(&id); err != nil {
			return "", errors.Wrapf(err, "inserting into %s", entity)
		}
		return idString(id), nil
	}

	res, err := r.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return "", errors.Wrapf(err, "inserting into %s", entity)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", errors.WithStack(err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (r *Repository) Update(ctx context.Context, entity string, id string, values map[string]any) error {

	_, byName, err := r.columns(ctx, entity)
	if err != nil {
		return err
	}

	cols := r.assignable(byName, values)
	if len(cols) == 0 {
		return nil
	}

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = r.dialect.mustQuote(c) + " = " + r.dialect.Placeholder(i+1)
		args = append(args, normalize(values[c]))
	}
	w := &where{dialect: r.dialect, columns: byName, args: args}
	cond := w.condition(r.idField, id)
	if cond == "" {
		return errors.Errorf("rpsql: %s has no %s column", entity, r.idField)
	}

	stmt := "UPDATE " + r.dialect.mustQuote(entity) + " SET " + strings.Join(sets, ", ") + " WHERE " + cond
	if _, err := r.db.ExecContext(ctx, stmt, w.args...); err != nil {
		return errors.Wrapf(err, "updating %s %s", entity, id)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, entity string, id string) error {

	_, byName, err := r.columns(ctx, entity)
	if err != nil {
		return err
	}

	w := &where{dialect: r.dialect, columns: byName}
	cond := w.condition(r.idField, id)
	if cond == "" {
		return errors.Errorf("rpsql: %s has no %s column", entity, r.idField)
	}

	res, err := r.db.ExecContext(ctx, "DELETE FROM "+r.dialect.mustQuote(entity)+" WHERE "+cond, w.args...)
	if err != nil {
		return errors.Wrapf(err, "deleting %s %s", entity, id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Errorf("rpsql: %s %s not found", entity, id)
	}
	return nil
}

func idString(v any) string {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case string:
		return t
	}
	return cast.ToString(v)
}
