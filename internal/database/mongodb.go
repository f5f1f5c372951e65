package database

import (
	"go.mongodb.org/mongo-driver/mongo"
)

// MongodbDB wraps the active database handle so Fx has a concrete type to inject.
type MongodbDB struct {
	DB *mongo.Database
}
