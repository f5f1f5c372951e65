package models

import (
	"time"
)

type ContextKey string

const (
	// ActorIDKey is the Locals/context key carrying the caller identity
	// extracted from the X-Actor-ID header.
	ActorIDKey ContextKey = "actor_id"
)

// Log is the record shape the async zap sink persists to the logs collection.
type Log struct {
	Message      string    `bson:"message" json:"message"`
	SessionId    string    `bson:"session_id,omitempty" json:"session_id,omitempty"`
	Caller       string    `bson:"caller,omitempty" json:"caller,omitempty"`
	LogLevelId   int       `bson:"log_level_id" json:"log_level_id"`
	CreatedOnUtc time.Time `bson:"created_on_utc" json:"created_on_utc"`
}
