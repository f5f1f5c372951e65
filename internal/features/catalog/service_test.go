package catalog

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type fakeSchemaRepo struct {
	schemas   []Schema
	countErr  error
	createErr error
	created   []Schema
}

func (r *fakeSchemaRepo) Create(ctx context.Context, schema *Schema) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.created = append(r.created, *schema)
	r.schemas = append(r.schemas, *schema)
	return nil
}

func (r *fakeSchemaRepo) FindByName(ctx context.Context, name string) (*Schema, error) {
	for i := range r.schemas {
		if r.schemas[i].Name == name {
			return &r.schemas[i], nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (r *fakeSchemaRepo) List(ctx context.Context) ([]Schema, error) {
	return append([]Schema(nil), r.schemas...), nil
}

func (r *fakeSchemaRepo) Update(ctx context.Context, schema *Schema) error { return nil }

func (r *fakeSchemaRepo) Count(ctx context.Context) (int64, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	return int64(len(r.schemas)), nil
}

func (r *fakeSchemaRepo) EnsureIndexes(ctx context.Context) error { return nil }

func TestGetSchemaByName(t *testing.T) {
	repo := &fakeSchemaRepo{schemas: []Schema{{Name: "product", Label: "Product"}}}
	svc := NewSchemaService(repo, zap.NewNop())

	schema, err := svc.GetSchemaByName(context.Background(), "product")
	if err != nil {
		t.Fatalf("GetSchemaByName: %v", err)
	}
	if schema.Label != "Product" {
		t.Errorf("Label = %q, want Product", schema.Label)
	}

	if _, err := svc.GetSchemaByName(context.Background(), "invoice"); !errors.Is(err, ErrSchemaNotFound) {
		t.Errorf("missing schema err = %v, want ErrSchemaNotFound", err)
	}
}

func TestSeedDefaultsInstallsBuiltins(t *testing.T) {
	repo := &fakeSchemaRepo{}
	svc := NewSchemaService(repo, zap.NewNop())

	if err := svc.SeedDefaults(context.Background()); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}

	want := len(SeedSchemas())
	if len(repo.created) != want {
		t.Fatalf("created %d schemas, want %d", len(repo.created), want)
	}
	for _, schema := range repo.created {
		if schema.ID.IsZero() {
			t.Errorf("schema %s seeded without an id", schema.Name)
		}
		if schema.Slug == "" {
			t.Errorf("schema %s seeded without a slug", schema.Name)
		}
		if !schema.IsSystem {
			t.Errorf("schema %s seeded without the system flag", schema.Name)
		}
		if schema.CreatedAt.IsZero() || schema.UpdatedAt.IsZero() {
			t.Errorf("schema %s seeded without timestamps", schema.Name)
		}
	}
	if repo.created[0].Name != "product" || repo.created[0].Slug != "product" {
		t.Errorf("first seed = %s/%s, want product/product", repo.created[0].Name, repo.created[0].Slug)
	}
}

func TestSeedDefaultsSkipsPopulatedRegistry(t *testing.T) {
	repo := &fakeSchemaRepo{schemas: []Schema{{Name: "custom"}}}
	svc := NewSchemaService(repo, zap.NewNop())

	if err := svc.SeedDefaults(context.Background()); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	if len(repo.created) != 0 {
		t.Errorf("created %d schemas on a populated registry, want 0", len(repo.created))
	}
}

func TestSeedDefaultsPropagatesRepoErrors(t *testing.T) {
	countErr := errors.New("count failed")
	svc := NewSchemaService(&fakeSchemaRepo{countErr: countErr}, zap.NewNop())
	if err := svc.SeedDefaults(context.Background()); !errors.Is(err, countErr) {
		t.Errorf("err = %v, want the count error", err)
	}

	createErr := errors.New("create failed")
	svc = NewSchemaService(&fakeSchemaRepo{createErr: createErr}, zap.NewNop())
	if err := svc.SeedDefaults(context.Background()); !errors.Is(err, createErr) {
		t.Errorf("err = %v, want the create error", err)
	}
}

func TestFieldByName(t *testing.T) {
	schema := SeedSchemas()[0]

	field := schema.FieldByName("price")
	if field == nil {
		t.Fatal("price field missing from the product schema")
	}
	if field.Type != FieldTypeCurrency || !field.Required {
		t.Errorf("price field = %+v, want required currency", field)
	}
	if schema.FieldByName("weight_kg") != nil {
		t.Error("unknown field name resolved")
	}
}

func TestRequiredFields(t *testing.T) {
	tests := []struct {
		schema string
		want   []string
	}{
		{"product", []string{"name", "price"}},
		{"brand", []string{"name"}},
	}
	for _, tt := range tests {
		var schema *Schema
		for _, s := range SeedSchemas() {
			if s.Name == tt.schema {
				schema = &s
				break
			}
		}
		if schema == nil {
			t.Fatalf("no seed schema %q", tt.schema)
		}
		got := schema.RequiredFields()
		if len(got) != len(tt.want) {
			t.Fatalf("%s required fields = %v, want %v", tt.schema, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s required fields = %v, want %v", tt.schema, got, tt.want)
			}
		}
	}
}
