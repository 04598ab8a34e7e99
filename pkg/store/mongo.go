package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCloseTimeout = 5 * time.Second

// MongoStore maps each table to a collection; the record id becomes the
// document _id.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) Insert(ctx context.Context, table string, record Record) (Record, error) {
	stored := cloneRecord(record)
	id, _ := stored["id"].(string)
	if id == "" {
		id = uuid.NewString()
		stored["id"] = id
	}

	doc := bson.M{"_id": id}
	for k, v := range stored {
		if k == "id" {
			continue
		}
		doc[k] = v
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(table).ReplaceOne(ctx, bson.M{"_id": id}, doc, opts); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *MongoStore) Get(ctx context.Context, table, id string) (Record, error) {
	var doc bson.M
	err := s.db.Collection(table).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(table, id)
	}
	if err != nil {
		return nil, err
	}
	return recordFromDoc(doc), nil
}

func (s *MongoStore) Select(ctx context.Context, table string, filter Record) ([]Record, error) {
	query := bson.M{}
	for k, v := range filter {
		if k == "id" {
			query["_id"] = v
			continue
		}
		query[k] = v
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(table).Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Record
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, recordFromDoc(doc))
	}
	return out, cursor.Err()
}

func (s *MongoStore) Update(ctx context.Context, table, id string, changes Record) (Record, error) {
	update, ok := updateDocument(changes)
	if !ok {
		// MongoDB rejects an empty update document; treat it as a no-op
		// merge like the other backends do.
		return s.Get(ctx, table, id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc bson.M
	err := s.db.Collection(table).FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(table, id)
	}
	if err != nil {
		return nil, err
	}
	return recordFromDoc(doc), nil
}

func (s *MongoStore) Delete(ctx context.Context, table, id string) error {
	res, err := s.db.Collection(table).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return notFound(table, id)
	}
	return nil
}

// Close disconnects from the server.
func (s *MongoStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// updateDocument builds the $set document for Update. ok is false when
// the changes carry nothing to set, since the id key never moves.
func updateDocument(changes Record) (bson.M, bool) {
	set := bson.M{}
	for k, v := range changes {
		if k == "id" {
			continue
		}
		set[k] = v
	}
	if len(set) == 0 {
		return nil, false
	}
	return bson.M{"$set": set}, true
}

func recordFromDoc(doc bson.M) Record {
	rec := make(Record, len(doc))
	for k, v := range doc {
		if k == "_id" {
			rec["id"] = v
			continue
		}
		rec[k] = v
	}
	return rec
}

var _ Store = (*MongoStore)(nil)
