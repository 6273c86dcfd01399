package bench

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMongoDatabase is used when no database name is configured.
const DefaultMongoDatabase = "batchtower"

// Collection names used by [MongoSink].
const (
	RunsCollection    = "runs"
	TimingsCollection = "timings"
)

// MongoSink stores one document per run in the runs collection and one
// document per finished node in the timings collection.
type MongoSink struct {
	client  *mongo.Client
	runs    *mongo.Collection
	timings *mongo.Collection
}

// NewMongoSink connects to uri and uses the given database.
func NewMongoSink(ctx context.Context, uri, database string) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	if database == "" {
		database = DefaultMongoDatabase
	}
	db := client.Database(database)
	return &MongoSink{
		client:  client,
		runs:    db.Collection(RunsCollection),
		timings: db.Collection(TimingsCollection),
	}, nil
}

func (s *MongoSink) RunStarted(ctx context.Context, runID string, start time.Time) error {
	_, err := s.runs.InsertOne(ctx, runDocument(runID, start))
	return err
}

func (s *MongoSink) NodeStarted(ctx context.Context, runID, node string, start time.Time) error {
	_, err := s.runs.UpdateByID(ctx, runID, bson.M{
		"$push": bson.M{"launched": bson.M{"node": node, "start": start}},
	})
	return err
}

func (s *MongoSink) NodeFinished(ctx context.Context, rec Record) error {
	_, err := s.timings.InsertOne(ctx, rec)
	return err
}

func (s *MongoSink) RunFinished(ctx context.Context, runID string, _, end time.Time, runErr error) error {
	_, err := s.runs.UpdateByID(ctx, runID, runUpdate(end, runErr))
	return err
}

func (s *MongoSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func runDocument(runID string, start time.Time) bson.M {
	return bson.M{"_id": runID, "start": start, "status": "running", "launched": bson.A{}}
}

func runUpdate(end time.Time, runErr error) bson.M {
	set := bson.M{"end": end, "status": runStatus(runErr)}
	if runErr != nil {
		set["error"] = runErr.Error()
	}
	return bson.M{"$set": set}
}

var _ Sink = (*MongoSink)(nil)
