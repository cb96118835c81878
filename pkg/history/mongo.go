package history

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/thehanda/countcam-app/pkg/models"
)

// MongoCollection is the document collection holding visitor logs.
const MongoCollection = "visitor_logs"

type mongoRecord struct {
	ID                     string    `bson:"_id"`
	VisitorCount           int       `bson:"visitorCount"`
	CountedDirection       string    `bson:"countedDirection"`
	DirectionMismatch      bool      `bson:"directionMismatch"`
	VideoFileName          string    `bson:"videoFileName"`
	RecordingStartDateTime *string   `bson:"recordingStartDateTime"`
	ProcessingTimestamp    time.Time `bson:"processingTimestamp"`
	UploadSource           string    `bson:"uploadSource"`
	LocationName           string    `bson:"locationName"`
	WriteSeq               int64     `bson:"writeSeq"`
}

// MongoRepository stores records in a MongoDB collection.
type MongoRepository struct {
	client  *mongo.Client
	coll    *mongo.Collection
	lastSeq atomic.Int64
}

// NewMongoRepository connects to uri, selects database dbName and ensures
// the ordering index exists.
func NewMongoRepository(ctx context.Context, uri, dbName string) (*MongoRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}

	coll := client.Database(dbName).Collection(MongoCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "processingTimestamp", Value: -1}, {Key: "writeSeq", Value: -1}},
		Options: options.Index().SetName("processingTimestamp_desc"),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create visitor_logs index: %w", err)
	}
	return &MongoRepository{client: client, coll: coll}, nil
}

// nextSeq is strictly increasing within this process.
func (r *MongoRepository) nextSeq() int64 {
	for {
		last := r.lastSeq.Load()
		next := time.Now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if r.lastSeq.CompareAndSwap(last, next) {
			return next
		}
	}
}

func (r *MongoRepository) Insert(ctx context.Context, rec models.VisitorLogRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	doc := mongoRecord{
		ID:                     rec.ID,
		VisitorCount:           rec.VisitorCount,
		CountedDirection:       string(rec.CountedDirection),
		DirectionMismatch:      rec.DirectionMismatch,
		VideoFileName:          rec.VideoFileName,
		RecordingStartDateTime: formatRecording(rec.RecordingStartDateTime),
		ProcessingTimestamp:    rec.ProcessingTimestamp.UTC(),
		UploadSource:           string(rec.UploadSource),
		LocationName:           rec.LocationName,
		WriteSeq:               r.nextSeq(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert visitor log: %w", err)
	}
	return nil
}

func (r *MongoRepository) List(ctx context.Context) ([]models.VisitorLogRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "processingTimestamp", Value: -1}, {Key: "writeSeq", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query visitor logs: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoRecord
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode visitor logs: %w", err)
	}

	records := make([]models.VisitorLogRecord, 0, len(docs))
	for _, doc := range docs {
		recording, err := parseRecording(doc.RecordingStartDateTime)
		if err != nil {
			return nil, err
		}
		records = append(records, models.VisitorLogRecord{
			ID:                     doc.ID,
			VisitorCount:           doc.VisitorCount,
			CountedDirection:       models.Direction(doc.CountedDirection),
			DirectionMismatch:      doc.DirectionMismatch,
			VideoFileName:          doc.VideoFileName,
			RecordingStartDateTime: recording,
			ProcessingTimestamp:    doc.ProcessingTimestamp.UTC(),
			UploadSource:           models.UploadSource(doc.UploadSource),
			LocationName:           doc.LocationName,
		})
	}
	return records, nil
}

func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
