package dbmanager

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Ping runs the ping command against database.
func (w *MongoDBWrapper) Ping(ctx context.Context, database string) error {
	if database == "" {
		database = w.Database
	}
	var result bson.M
	if err := w.Client.Database(database).RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Decode(&result); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// CollectionExists reports whether database holds collection.
func (w *MongoDBWrapper) CollectionExists(ctx context.Context, database, collection string) (bool, error) {
	names, err := w.Client.Database(database).ListCollectionNames(ctx, bson.D{{Key: "name", Value: collection}})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

func (w *MongoDBWrapper) Collection(database, collection string) Collection {
	return &mongoCollection{coll: w.Client.Database(database).Collection(collection)}
}

func (w *MongoDBWrapper) Disconnect(ctx context.Context) error {
	return w.Client.Disconnect(ctx)
}

func (c *mongoCollection) Find(ctx context.Context, filter bson.D, opts FindOptions) (Cursor, error) {
	if filter == nil {
		filter = bson.D{}
	}

	findOptions := options.Find()
	if len(opts.Projection) > 0 {
		findOptions.SetProjection(opts.Projection)
	}
	if len(opts.Sort) > 0 {
		findOptions.SetSort(opts.Sort)
	}
	if opts.Limit > 0 {
		findOptions.SetLimit(opts.Limit)
	}
	if opts.BatchSize > 0 {
		findOptions.SetBatchSize(opts.BatchSize)
	}

	cursor, err := c.coll.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

func (c *mongoCollection) CountDocuments(ctx context.Context, filter bson.D) (int64, error) {
	if filter == nil {
		filter = bson.D{}
	}
	return c.coll.CountDocuments(ctx, filter)
}

func (c *mongoCollection) EstimatedDocumentCount(ctx context.Context) (int64, error) {
	return c.coll.EstimatedDocumentCount(ctx)
}

// Sample draws up to size random documents. Deployments that reject $sample
// fall back to the first size documents in natural order.
func (c *mongoCollection) Sample(ctx context.Context, size int) ([]bson.D, error) {
	pipeline := mongo.Pipeline{{{Key: "$sample", Value: bson.D{{Key: "size", Value: size}}}}}

	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		log.Printf("MongoDBWrapper -> Sample -> $sample failed on %s, using natural order: %v", c.coll.Name(), err)
		cursor, err = c.coll.Find(ctx, bson.D{}, options.Find().SetLimit(int64(size)))
		if err != nil {
			return nil, err
		}
	}
	defer cursor.Close(ctx)

	var docs []bson.D
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}
