// Package mongo implements the storage interfaces on MongoDB, keeping one
// collection per entity and one per aggregate level.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"perp-stats/internal/domain"
	"perp-stats/internal/observability"
	"perp-stats/internal/storage"
)

// Collection names.
const (
	positionsCollection  = "positions"
	tradesCollection     = "trades"
	hourPricesCollection = "hourPrices"
	tokenInfosCollection = "tokenInfos"
	usersCollection      = "users"
	progressCollection   = "syncProgress"
)

// Client wraps a connected client and its database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewClient connects to uri and selects database.
func NewClient(ctx context.Context, uri, database string) (*Client, error) {
	if database == "" {
		return nil, errors.New("mongo database name is empty")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Client{client: client, db: client.Database(database)}, nil
}

// Database returns the selected database.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// NewStores returns the MongoDB backend on db.
func NewStores(db *mongo.Database) *storage.Stores {
	return &storage.Stores{
		Positions:  NewPositionStore(db),
		Aggregates: NewAggregateStore(db),
		Trades:     NewTradeStore(db),
		HourPrices: NewHourPriceStore(db),
		TokenInfos: NewTokenInfoStore(db),
		Users:      NewUserStore(db),
		Progress:   NewProgressStore(db),
	}
}

// EnsureIndexes creates the secondary indexes the stores query by.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		tradesCollection: {{
			Keys: bson.D{{Key: "chainId", Value: 1}, {Key: "positionKey", Value: 1}, {Key: "timestamp", Value: 1}},
		}},
		hourPricesCollection: {{
			Keys: bson.D{{Key: "currency", Value: 1}, {Key: "chainId", Value: 1}, {Key: "hourTimestamp", Value: 1}},
		}},
	}
	for _, kind := range domain.AllAggregateKinds {
		if kind.IsDaily() {
			indexes[string(kind)] = []mongo.IndexModel{{
				Keys: bson.D{{Key: "chainId", Value: 1}, {Key: "date", Value: 1}},
			}}
		}
	}

	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func byID(id string) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}

func upsert() *options.ReplaceOptions {
	return options.Replace().SetUpsert(true)
}

func findOne(ctx context.Context, coll *mongo.Collection, filter any, out any, opts ...*options.FindOneOptions) error {
	err := coll.FindOne(ctx, filter, opts...).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	return err
}

func observe(operation string, start time.Time, err error) {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrDuplicateKey) {
		err = nil
	}
	observability.RecordDBQuery("mongo", operation, time.Since(start).Seconds(), err)
}
