// Package rpmongo is a store.Repository over MongoDB collections. Collections carry no
// schema, so each entity's fields are declared up front.
package rpmongo

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/jeremywhuff/restify/query"
	"github.com/jeremywhuff/restify/schema"
	"github.com/jeremywhuff/restify/store"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Name is the module name variants require to read from MongoDB.
const Name = "rpmongo"

type Repository struct {
	db      *mongo.Database
	idField string

	mu       sync.RWMutex
	entities map[string][]schema.Field
}

// Connect opens a client for uri and uses database.
func Connect(ctx context.Context, uri, database string) (*Repository, error) {

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, errors.Wrap(err, "pinging mongo")
	}
	return New(client.Database(database)), nil
}

func New(db *mongo.Database) *Repository {
	return &Repository{
		db:       db,
		idField:  "ID",
		entities: map[string][]schema.Field{},
	}
}

// Database is the database the repository reads from.
func (r *Repository) Database() *mongo.Database { return r.db }

func (r *Repository) Close(ctx context.Context) error {
	return r.db.Client().Disconnect(ctx)
}

func (r *Repository) DateFormat() string {
	return query.DefaultDateFormat
}

// Define declares the fields of collection entity. The id field maps to _id.
func (r *Repository) Define(entity string, fields ...schema.Field) {

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range fields {
		if f.Name == r.idField {
			r.entities[entity] = fields
			return
		}
	}
	r.entities[entity] = append([]schema.Field{{Name: r.idField}}, fields...)
}

func (r *Repository) Fields(_ context.Context, entity string) ([]schema.Field, error) {

	r.mu.RLock()
	defer r.mu.RUnlock()

	fields, ok := r.entities[entity]
	if !ok {
		return nil, errors.Wrap(store.ErrUnknownEntity, entity)
	}
	return append([]schema.Field(nil), fields...), nil
}

func (r *Repository) translator(ctx context.Context, entity string) (translator, error) {
	fields, err := r.Fields(ctx, entity)
	if err != nil {
		return translator{}, err
	}
	t := translator{idField: r.idField, fields: make(map[string]schema.Field, len(fields))}
	for _, f := range fields {
		t.fields[f.Name] = f
	}
	return t, nil
}

func (r *Repository) Find(ctx context.Context, entity string, spec query.Spec) ([]*store.Row, error) {

	t, err := r.translator(ctx, entity)
	if err != nil {
		return nil, err
	}

	cur, err := r.db.Collection(entity).Aggregate(ctx, t.Pipeline(spec))
	if err != nil {
		return nil, errors.Wrapf(err, "aggregating %s", entity)
	}
	defer cur.Close(ctx)

	var docs []bson.D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", entity)
	}

	out := make([]*store.Row, 0, len(docs))
	for _, doc := range docs {
		row := r.toRow(doc)
		if !spec.SelectsAll() {
			row = store.Project(row, spec.Select)
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *Repository) Count(ctx context.Context, entity string, f query.Filter) (int64, error) {

	t, err := r.translator(ctx, entity)
	if err != nil {
		return 0, err
	}
	n, err := r.db.Collection(entity).CountDocuments(ctx, t.Match(f))
	if err != nil {
		return 0, errors.Wrapf(err, "counting %s", entity)
	}
	return n, nil
}

// document keeps the declared fields of values, in a stable order.
func (r *Repository) document(t translator, values map[string]any) bson.D {

	keys := make([]string, 0, len(values))
	for k := range values {
		if _, ok := t.fields[k]; ok && k != r.idField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: toBSON(values[k])})
	}
	return doc
}

func (r *Repository) Insert(ctx context.Context, entity string, values map[string]any) (string, error) {

	t, err := r.translator(ctx, entity)
	if err != nil {
		return "", err
	}
	res, err := r.db.Collection(entity).InsertOne(ctx, r.document(t, values))
	if err != nil {
		return "", errors.Wrapf(err, "inserting into %s", entity)
	}
	return idString(res.InsertedID), nil
}

func (r *Repository) Update(ctx context.Context, entity string, id string, values map[string]any) error {

	t, err := r.translator(ctx, entity)
	if err != nil {
		return err
	}
	doc := r.document(t, values)
	if len(doc) == 0 {
		return nil
	}
	res, err := r.db.Collection(entity).UpdateOne(ctx, t.Match(query.Where(map[string]any{r.idField: id})), bson.D{{Key: "$set", Value: doc}})
	if err != nil {
		return errors.Wrapf(err, "updating %s %s", entity, id)
	}
	if res.MatchedCount == 0 {
		return errors.Wrapf(mongo.ErrNoDocuments, "updating %s %s", entity, id)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, entity string, id string) error {

	t, err := r.translator(ctx, entity)
	if err != nil {
		return err
	}
	res, err := r.db.Collection(entity).DeleteOne(ctx, t.Match(query.Where(map[string]any{r.idField: id})))
	if err != nil {
		return errors.Wrapf(err, "deleting %s %s", entity, id)
	}
	if res.DeletedCount == 0 {
		return errors.Wrapf(mongo.ErrNoDocuments, "deleting %s %s", entity, id)
	}
	return nil
}

// toRow converts a document into a row, renaming _id to the id field in place.
func (r *Repository) toRow(doc bson.D) *store.Row {
	row := orderedmap.New[string, any](len(doc))
	for _, e := range doc {
		key := e.Key
		if key == "_id" {
			key = r.idField
		}
		row.Set(key, fromBSON(e.Value))
	}
	return row
}

func fromBSON(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Decimal128:
		return t.String()
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = fromBSON(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSON(e)
		}
		return out
	}
	return v
}

func toBSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = toBSON(e)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		doc := make(bson.D, 0, len(t))
		for _, k := range keys {
			doc = append(doc, bson.E{Key: k, Value: toBSON(t[k])})
		}
		return doc
	}
	return v
}

func idString(v any) string {
	if oid, ok := v.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return cast.ToString(v)
}
