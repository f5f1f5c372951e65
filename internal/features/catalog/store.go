package catalog

import (
	"context"
	"time"

	"go-catalog/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// RecordStore is the write side of the catalog the import executor commits
// batches into.
type RecordStore interface {
	CreateBatch(ctx context.Context, schemaName, importID, actorID string, batchIndex int, rows []map[string]interface{}) error
	DeleteBatch(ctx context.Context, importID string, batchIndex int) error
	CountByImport(ctx context.Context, importID string) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type RecordStoreImpl struct {
	Collection *mongo.Collection
}

func NewRecordStore(mongodb *database.MongodbDB) RecordStore {
	return &RecordStoreImpl{
		Collection: mongodb.DB.Collection("catalog_records"),
	}
}

func (r *RecordStoreImpl) CreateBatch(ctx context.Context, schemaName, importID, actorID string, batchIndex int, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	now := time.Now()
	docs := make([]interface{}, 0, len(rows))
	for _, data := range rows {
		docs = append(docs, Record{
			ID:         primitive.NewObjectID(),
			Schema:     schemaName,
			Data:       data,
			ImportID:   importID,
			BatchIndex: batchIndex,
			CreatedBy:  actorID,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	// Ordered insert: a mid-batch failure aborts the remainder so the
	// executor can clear and retry the batch as a unit.
	_, err := r.Collection.InsertMany(ctx, docs)
	return err
}

// DeleteBatch removes whatever part of a batch landed before a failed insert,
// so a retry starts from a clean slate.
func (r *RecordStoreImpl) DeleteBatch(ctx context.Context, importID string, batchIndex int) error {
	_, err := r.Collection.DeleteMany(ctx, bson.M{"import_id": importID, "batch_index": batchIndex})
	return err
}

func (r *RecordStoreImpl) CountByImport(ctx context.Context, importID string) (int64, error) {
	return r.Collection.CountDocuments(ctx, bson.M{"import_id": importID})
}

func (r *RecordStoreImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "schema", Value: 1}, {Key: "import_id", Value: 1}},
	})
	return err
}
