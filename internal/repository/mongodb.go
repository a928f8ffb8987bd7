package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/m2tx/function_calling/internal/model"
)

// MongoDispatchRepository implements DispatchRepository using MongoDB.
type MongoDispatchRepository struct {
	collection *mongo.Collection
}

// NewMongoDispatchRepository creates a new MongoDispatchRepository.
// collectionName defaults to "dispatches" if empty.
func NewMongoDispatchRepository(db *mongo.Database, collectionName string) *MongoDispatchRepository {
	if collectionName == "" {
		collectionName = "dispatches"
	}
	return &MongoDispatchRepository{
		collection: db.Collection(collectionName),
	}
}

func (r *MongoDispatchRepository) Save(ctx context.Context, record model.DispatchRecord) error {
	filter := bson.M{"_id": record.ID}
	opts := options.Replace().SetUpsert(true)

	_, err := r.collection.ReplaceOne(ctx, filter, record, opts)
	if err != nil {
		return fmt.Errorf("repository: upsert dispatch %q: %w", record.ID, err)
	}

	return nil
}

func (r *MongoDispatchRepository) Load(ctx context.Context, id string) (*model.DispatchRecord, error) {
	filter := bson.M{"_id": id}

	var record model.DispatchRecord
	err := r.collection.FindOne(ctx, filter).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: find dispatch %q: %w", id, err)
	}

	return &record, nil
}

func (r *MongoDispatchRepository) Delete(ctx context.Context, id string) error {
	filter := bson.M{"_id": id}

	_, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("repository: delete dispatch %q: %w", id, err)
	}

	return nil
}
