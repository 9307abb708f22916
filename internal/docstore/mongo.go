package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore maps each logical collection to a Mongo collection of the same name.
// Documents are keyed by a string _id which is exposed as "id".
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore creates a MongoStore.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Record, error) {
	var doc bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		return nil, mapMongoError(collection, id, err)
	}
	return fromBSON(doc), nil
}

func (s *MongoStore) List(ctx context.Context, collection string, q Query) ([]Record, error) {
	filter := bson.M{}
	for k, v := range q.Filter {
		filter[k] = v
	}

	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, mapMongoError(collection, "", err)
	}
	defer cur.Close(ctx)

	var out []Record
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		out = append(out, fromBSON(doc))
	}
	return out, cur.Err()
}

func (s *MongoStore) Create(ctx context.Context, collection string, data Record) (Record, error) {
	rec := stamp(cloneRecord(data), true)
	if rec.ID() == "" {
		rec["id"] = uuid.NewString()
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, toBSON(rec)); err != nil {
		return nil, mapMongoError(collection, rec.ID(), err)
	}
	return rec, nil
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, patch Record) (Record, error) {
	set := toBSON(stamp(cloneRecord(patch), false))
	delete(set, "_id")

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc bson.M
	err := s.db.Collection(collection).
		FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).
		Decode(&doc)
	if err != nil {
		return nil, mapMongoError(collection, id, err)
	}
	return fromBSON(doc), nil
}

// BulkCreate inserts rows with a single unordered InsertMany.
func (s *MongoStore) BulkCreate(ctx context.Context, collection string, rows []Record) error {
	docs := make([]any, 0, len(rows))
	for _, r := range rows {
		rec := stamp(cloneRecord(r), true)
		if rec.ID() == "" {
			rec["id"] = uuid.NewString()
		}
		docs = append(docs, toBSON(rec))
	}
	_, err := s.db.Collection(collection).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		return mapMongoError(collection, "", err)
	}
	return nil
}

func toBSON(rec Record) bson.M {
	doc := bson.M{}
	for k, v := range rec {
		if k == "id" {
			doc["_id"] = v
			continue
		}
		doc[k] = v
	}
	return doc
}

func fromBSON(doc bson.M) Record {
	rec := Record{}
	for k, v := range doc {
		if k == "_id" {
			k = "id"
		}
		rec[k] = normalizeBSON(v)
	}
	return rec
}

// normalizeBSON rewrites driver types into the plain JSON-like values the other backends return.
func normalizeBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := map[string]any{}
		for k, val := range t {
			out[k] = normalizeBSON(val)
		}
		return out
	case bson.D:
		out := map[string]any{}
		for _, e := range t {
			out[e.Key] = normalizeBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeBSON(val)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}

// Mongo server error code 13 is Unauthorized.
func mapMongoError(collection, id string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == 13 {
		return fmt.Errorf("%s: %w: %s", collection, ErrPermissionDenied, cmdErr.Message)
	}
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, we := range writeErr.WriteErrors {
			if we.Code == 13 {
				return fmt.Errorf("%s: %w: %s", collection, ErrPermissionDenied, we.Message)
			}
		}
	}
	return fmt.Errorf("%s: %w", collection, err)
}
