package dbmanager

import (
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoDBWrapper wraps a MongoDB client
type MongoDBWrapper struct {
	Client   *mongo.Client
	Database string
}

// mongoCollection adapts *mongo.Collection to Collection.
type mongoCollection struct {
	coll *mongo.Collection
}
