package catalog

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeCurrency FieldType = "currency"
	FieldTypeDate     FieldType = "date"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeEmail    FieldType = "email"
	FieldTypeURL      FieldType = "url"
	FieldTypeSelect   FieldType = "select"
)

type SelectOption struct {
	Label string `json:"label" bson:"label"`
	Value string `json:"value" bson:"value"`
}

// SchemaField describes one target field of a catalog schema, including the
// constraints the import validation rules evaluate against.
type SchemaField struct {
	Name     string         `json:"name" bson:"name"`
	Label    string         `json:"label" bson:"label"`
	Type     FieldType      `json:"type" bson:"type"`
	Required bool           `json:"required" bson:"required"`
	Unique   bool           `json:"unique" bson:"unique"`
	Synonyms []string       `json:"synonyms,omitempty" bson:"synonyms,omitempty"` // alternate header names accepted by the mapper
	Options  []SelectOption `json:"options,omitempty" bson:"options,omitempty"`   // for select fields
	Min      *float64       `json:"min,omitempty" bson:"min,omitempty"`
	Max      *float64       `json:"max,omitempty" bson:"max,omitempty"`
	Pattern  string         `json:"pattern,omitempty" bson:"pattern,omitempty"`
	Default  string         `json:"default,omitempty" bson:"default,omitempty"`
	// Validate holds an optional script evaluated per record with `value` and
	// `record` in scope; it sets `ok` and `msg`.
	Validate string `json:"validate,omitempty" bson:"validate,omitempty"`
}

type Schema struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name      string             `json:"name" bson:"name"` // Unique Identifier (e.g., "product", "brand")
	Label     string             `json:"label" bson:"label"`
	Slug      string             `json:"slug" bson:"slug"`
	IsSystem  bool               `json:"is_system" bson:"is_system"` // If true, cannot be deleted
	Fields    []SchemaField      `json:"fields" bson:"fields"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// FieldByName returns the schema field with the given name, or nil.
func (s *Schema) FieldByName(name string) *SchemaField {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// RequiredFields returns the names of all required fields in declaration order.
func (s *Schema) RequiredFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Record is one committed catalog row. Data holds the typed values keyed by
// schema field name; ImportID ties the row back to the session that wrote it.
type Record struct {
	ID         primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	Schema     string                 `json:"schema" bson:"schema"`
	Data       map[string]interface{} `json:"data" bson:"data"`
	ImportID   string                 `json:"import_id,omitempty" bson:"import_id,omitempty"`
	BatchIndex int                    `json:"batch_index" bson:"batch_index"`
	CreatedBy  string                 `json:"created_by" bson:"created_by"`
	CreatedAt  time.Time              `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at" bson:"updated_at"`
}

func float64Ptr(v float64) *float64 { return &v }

// SeedSchemas are the built-in catalog schemas installed on startup when the
// registry is empty.
func SeedSchemas() []Schema {
	return []Schema{
		{
			Name:     "product",
			Label:    "Product",
			IsSystem: true,
			Fields: []SchemaField{
				{Name: "name", Label: "Name", Type: FieldTypeText, Required: true, Synonyms: []string{"product name", "product", "title", "item name"}},
				{Name: "sku", Label: "SKU", Type: FieldTypeText, Unique: true, Pattern: `^[A-Za-z0-9_-]+$`, Synonyms: []string{"sku code", "item code", "code", "article number"}},
				{Name: "price", Label: "Price", Type: FieldTypeCurrency, Required: true, Min: float64Ptr(0), Synonyms: []string{"cost", "amount", "unit price", "list price"}},
				{Name: "quantity", Label: "Quantity", Type: FieldTypeNumber, Min: float64Ptr(0), Default: "0", Synonyms: []string{"qty", "stock", "count", "inventory", "units"}},
				{Name: "category", Label: "Category", Type: FieldTypeSelect, Synonyms: []string{"product category", "type", "group"},
					Options: []SelectOption{
						{Label: "Electronics", Value: "electronics"},
						{Label: "Apparel", Value: "apparel"},
						{Label: "Home", Value: "home"},
						{Label: "Toys", Value: "toys"},
						{Label: "Other", Value: "other"},
					}},
				{Name: "brand", Label: "Brand", Type: FieldTypeText, Synonyms: []string{"manufacturer", "maker", "vendor"}},
				{Name: "description", Label: "Description", Type: FieldTypeText, Synonyms: []string{"details", "summary", "long description"}},
				{Name: "launched_at", Label: "Launch Date", Type: FieldTypeDate, Synonyms: []string{"launch date", "release date", "available from"}},
				{Name: "active", Label: "Active", Type: FieldTypeBoolean, Default: "true", Synonyms: []string{"enabled", "is active", "available"},
					Validate: `ok := true
msg := ""
if record.active == false && record.quantity != undefined && record.quantity > 0 {
	ok = false
	msg = "inactive product still carries stock"
}`},
				{Name: "product_url", Label: "Product URL", Type: FieldTypeURL, Synonyms: []string{"url", "link", "website"}},
			},
		},
		{
			Name:     "brand",
			Label:    "Brand",
			IsSystem: true,
			Fields: []SchemaField{
				{Name: "name", Label: "Name", Type: FieldTypeText, Required: true, Unique: true, Synonyms: []string{"brand name", "title"}},
				{Name: "slug", Label: "Slug", Type: FieldTypeText, Pattern: `^[a-z0-9-]+$`, Synonyms: []string{"handle"}},
				{Name: "contact_email", Label: "Contact Email", Type: FieldTypeEmail, Synonyms: []string{"email", "contact"}},
				{Name: "website", Label: "Website", Type: FieldTypeURL, Synonyms: []string{"url", "site", "homepage"}},
				{Name: "founded", Label: "Founded", Type: FieldTypeDate, Synonyms: []string{"founded date", "since", "established"}},
				{Name: "active", Label: "Active", Type: FieldTypeBoolean, Default: "true", Synonyms: []string{"enabled"}},
			},
		},
	}
}
