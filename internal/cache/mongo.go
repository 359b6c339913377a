package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/kjstillabower/event-weather-service/internal/models"
)

const (
	defaultMongoDatabase   = "event_weather"
	defaultMongoCollection = "weather_cache"
)

// weatherDocument is the persisted shape: one document per (location, date).
type weatherDocument struct {
	ID        primitive.ObjectID    `bson:"_id,omitempty"`
	Location  string                `bson:"location"`
	Date      string                `bson:"date"`
	Summary   models.WeatherSummary `bson:"summary"`
	Timestamp time.Time             `bson:"timestamp"`
}

// MongoStore implements Store on a MongoDB collection with a unique (location, date) index.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to uri and ensures indexes. Documents older than retention(ttl)
// are reaped by a TTL index on timestamp.
func NewMongoStore(ctx context.Context, uri, database, collection string, ttl time.Duration) (*MongoStore, error) {
	if database == "" {
		database = defaultMongoDatabase
	}
	if collection == "" {
		collection = defaultMongoCollection
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	s := &MongoStore{client: client, coll: client.Database(database).Collection(collection)}
	if err := s.ensureIndexes(ctx, retention(ttl)); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context, keep time.Duration) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "location", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(keep.Seconds())),
		},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func keyFilter(key Key) bson.M {
	return bson.M{"location": key.Location, "date": key.Date}
}

// Get implements Store.
func (s *MongoStore) Get(ctx context.Context, key Key) (Entry, bool, error) {
	var doc weatherDocument
	err := s.coll.FindOne(ctx, keyFilter(key)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{Summary: doc.Summary, Timestamp: doc.Timestamp}, true, nil
}

// Upsert implements Store.
func (s *MongoStore) Upsert(ctx context.Context, key Key, entry Entry) error {
	update := bson.M{"$set": bson.M{
		"location":  key.Location,
		"date":      key.Date,
		"summary":   entry.Summary,
		"timestamp": entry.Timestamp,
	}}
	_, err := s.coll.UpdateOne(ctx, keyFilter(key), update, options.Update().SetUpsert(true))
	return err
}

// Ping checks the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
