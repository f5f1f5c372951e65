package catalog

import (
	"context"

	"go-catalog/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SchemaRepository interface {
	Create(ctx context.Context, schema *Schema) error
	FindByName(ctx context.Context, name string) (*Schema, error)
	List(ctx context.Context) ([]Schema, error)
	Update(ctx context.Context, schema *Schema) error
	Count(ctx context.Context) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type SchemaRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewSchemaRepository(mongodb *database.MongodbDB) SchemaRepository {
	return &SchemaRepositoryImpl{
		Collection: mongodb.DB.Collection("catalog_schemas"),
	}
}

func (r *SchemaRepositoryImpl) Create(ctx context.Context, schema *Schema) error {
	_, err := r.Collection.InsertOne(ctx, schema)
	return err
}

func (r *SchemaRepositoryImpl) FindByName(ctx context.Context, name string) (*Schema, error) {
	var schema Schema
	err := r.Collection.FindOne(ctx, bson.M{"name": name}).Decode(&schema)
	if err != nil {
		return nil, err
	}
	return &schema, nil
}

func (r *SchemaRepositoryImpl) List(ctx context.Context) ([]Schema, error) {
	cursor, err := r.Collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var schemas []Schema
	if err = cursor.All(ctx, &schemas); err != nil {
		return nil, err
	}
	return schemas, nil
}

func (r *SchemaRepositoryImpl) Update(ctx context.Context, schema *Schema) error {
	filter := bson.M{"name": schema.Name}
	update := bson.M{"$set": schema}
	_, err := r.Collection.UpdateOne(ctx, filter, update)
	return err
}

func (r *SchemaRepositoryImpl) Count(ctx context.Context) (int64, error) {
	return r.Collection.CountDocuments(ctx, bson.M{})
}

func (r *SchemaRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
