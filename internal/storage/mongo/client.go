// Package mongo is the MongoDB document store backend.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/content-agent/backend/internal/models"
	"github.com/content-agent/backend/internal/storage/docstore"
	"github.com/content-agent/backend/pkg/logger"
)

type Config struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
}

// Client implements docstore.Store over one MongoDB database. A single Client
// is shared by every request; the driver pools connections internally.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	logger.Info("Mongo client initialized", zap.String("database", cfg.Database))

	return &Client{client: client, db: client.Database(cfg.Database)}, nil
}

func (c *Client) Insert(ctx context.Context, collection string, doc interface{}) (primitive.ObjectID, error) {
	raw, id, err := docstore.PrepareInsert(doc)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}

	if _, err := c.db.Collection(collection).InsertOne(ctx, raw); err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: insert into %s: %v", models.ErrStoreFailure, collection, err)
	}

	logger.Debug("Document inserted", zap.String("collection", collection), zap.String("id", id.Hex()))
	return id, nil
}

func (c *Client) Find(ctx context.Context, collection string, filter bson.M, opts *docstore.FindOptions, results interface{}) error {
	if filter == nil {
		filter = bson.M{}
	}

	findOpts := options.Find()
	if opts != nil {
		if len(opts.Sort) > 0 {
			sort := bson.D{}
			for _, key := range opts.Sort {
				dir := 1
				if key.Descending {
					dir = -1
				}
				sort = append(sort, bson.E{Key: key.Field, Value: dir})
			}
			findOpts.SetSort(sort)
		}
		if opts.Limit > 0 {
			findOpts.SetLimit(opts.Limit)
		}
	}

	cursor, err := c.db.Collection(collection).Find(ctx, filter, findOpts)
	if err != nil {
		return fmt.Errorf("%w: find in %s: %v", models.ErrStoreFailure, collection, err)
	}
	if err := cursor.All(ctx, results); err != nil {
		return fmt.Errorf("%w: decode %s: %v", models.ErrStoreFailure, collection, err)
	}
	return nil
}

func (c *Client) UpdateField(ctx context.Context, collection string, id primitive.ObjectID, field string, value interface{}) error {
	res, err := c.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{field: value}},
	)
	if err != nil {
		return fmt.Errorf("%w: update %s: %v", models.ErrStoreFailure, collection, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: no document %s in %s", models.ErrNotFound, id.Hex(), collection)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
