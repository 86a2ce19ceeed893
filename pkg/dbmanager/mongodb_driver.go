package dbmanager

import (
	"context"
	"crypto/tls"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mongoscan/pkg/locator"
)

// MongoDBDriver dials real deployments with the official driver.
type MongoDBDriver struct {
	// MaxPoolSize bounds the driver's own socket pool per client.
	MaxPoolSize uint64
}

// NewMongoDBDriver creates a new MongoDB driver
func NewMongoDBDriver() *MongoDBDriver {
	return &MongoDBDriver{MaxPoolSize: 25}
}

// Dial connects to the deployment named by loc. The liveness probe is left
// to the caller.
func (d *MongoDBDriver) Dial(ctx context.Context, loc *locator.Locator) (NativeClient, error) {
	log.Printf("MongoDBDriver -> Dial -> Connecting to %s", loc.Redacted())

	clientOptions := options.Client().ApplyURI(loc.ConnectionString())
	if loc.ConnectTimeout > 0 {
		clientOptions.SetConnectTimeout(loc.ConnectTimeout)
		clientOptions.SetServerSelectionTimeout(loc.ConnectTimeout)
	}
	if loc.SocketTimeout > 0 {
		clientOptions.SetSocketTimeout(loc.SocketTimeout)
	}
	if d.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(d.MaxPoolSize)
	}
	clientOptions.SetMaxConnIdleTime(time.Hour)
	if loc.TLS {
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		log.Printf("MongoDBDriver -> Dial -> Error connecting to MongoDB: %v", err)
		return nil, err
	}

	return &MongoDBWrapper{Client: client, Database: loc.Database}, nil
}
