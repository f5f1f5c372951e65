package imports

import (
	"context"
	"time"

	"go-catalog/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionArchive is the session summary persisted on every status change.
// The in-memory registry stays authoritative while a session is live; the
// archive is what outlives it for the history listing.
type SessionArchive struct {
	ID           string         `json:"id" bson:"_id"`
	ActorID      string         `json:"actor_id" bson:"actor_id"`
	SchemaName   string         `json:"schema_name" bson:"schema_name"`
	Status       Status         `json:"status" bson:"status"`
	Reason       string         `json:"reason,omitempty" bson:"reason,omitempty"`
	SourceMeta   SourceMeta     `json:"source_meta" bson:"source_meta"`
	Mappings     []FieldMapping `json:"mappings" bson:"mappings"`
	Progress     Progress       `json:"progress" bson:"progress"`
	OpenErrors   int            `json:"open_errors" bson:"open_errors"`
	OpenWarnings int            `json:"open_warnings" bson:"open_warnings"`
	CreatedAt    time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" bson:"updated_at"`
}

// newSessionArchive snapshots a live session into its archive document. The
// mapping slice is copied so the document can be written after the session
// lock is released.
func newSessionArchive(sess *ImportSession) SessionArchive {
	openErrors, openWarnings := sess.IssueCounts()
	return SessionArchive{
		ID:           sess.ID,
		ActorID:      sess.ActorID,
		SchemaName:   sess.SchemaName,
		Status:       sess.Status,
		Reason:       sess.Reason,
		SourceMeta:   sess.SourceMeta,
		Mappings:     append([]FieldMapping(nil), sess.Mappings...),
		Progress:     sess.Progress,
		OpenErrors:   openErrors,
		OpenWarnings: openWarnings,
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
	}
}

type SessionRepository interface {
	Save(ctx context.Context, archive SessionArchive) error
	FindByID(ctx context.Context, id string) (*SessionArchive, error)
	List(ctx context.Context, actorID string, limit int64) ([]SessionArchive, error)
	EnsureIndexes(ctx context.Context) error
}

type SessionRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewSessionRepository(mongodb *database.MongodbDB) SessionRepository {
	return &SessionRepositoryImpl{
		Collection: mongodb.DB.Collection("import_sessions"),
	}
}

func (r *SessionRepositoryImpl) Save(ctx context.Context, archive SessionArchive) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.Collection.ReplaceOne(ctx, bson.M{"_id": archive.ID}, archive, opts)
	return err
}

func (r *SessionRepositoryImpl) FindByID(ctx context.Context, id string) (*SessionArchive, error) {
	var archive SessionArchive
	err := r.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&archive)
	if err == mongo.ErrNoDocuments {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &archive, nil
}

func (r *SessionRepositoryImpl) List(ctx context.Context, actorID string, limit int64) ([]SessionArchive, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	opts := options.Find().SetLimit(limit).SetSort(bson.M{"updated_at": -1})

	query := bson.M{}
	if actorID != "" {
		query["actor_id"] = actorID
	}

	cursor, err := r.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	var archives []SessionArchive
	if err = cursor.All(ctx, &archives); err != nil {
		return nil, err
	}
	return archives, nil
}

func (r *SessionRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "actor_id", Value: 1}, {Key: "updated_at", Value: -1}},
	})
	return err
}
