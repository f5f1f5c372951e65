package catalog

import (
	"context"
	"errors"
	"time"

	"go-catalog/pkg/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var ErrSchemaNotFound = errors.New("schema not found")

type SchemaService interface {
	GetSchemaByName(ctx context.Context, name string) (*Schema, error)
	ListSchemas(ctx context.Context) ([]Schema, error)
	SeedDefaults(ctx context.Context) error
}

type SchemaServiceImpl struct {
	Repo   SchemaRepository
	Logger *zap.Logger
}

func NewSchemaService(repo SchemaRepository, logger *zap.Logger) SchemaService {
	return &SchemaServiceImpl{
		Repo:   repo,
		Logger: logger,
	}
}

func (s *SchemaServiceImpl) GetSchemaByName(ctx context.Context, name string) (*Schema, error) {
	schema, err := s.Repo.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSchemaNotFound
		}
		return nil, err
	}
	return schema, nil
}

func (s *SchemaServiceImpl) ListSchemas(ctx context.Context) ([]Schema, error) {
	return s.Repo.List(ctx)
}

// SeedDefaults installs the built-in schemas when the registry is empty.
func (s *SchemaServiceImpl) SeedDefaults(ctx context.Context) error {
	count, err := s.Repo.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, schema := range SeedSchemas() {
		schema.ID = primitive.NewObjectID()
		schema.Slug = utils.Slugify(schema.Name)
		schema.CreatedAt = time.Now()
		schema.UpdatedAt = time.Now()
		if err := s.Repo.Create(ctx, &schema); err != nil {
			return err
		}
		s.Logger.Info("Seeded catalog schema", zap.String("schema", schema.Name))
	}
	return nil
}
