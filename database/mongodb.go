package database

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/config"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/csvcodec"
)

// NamespaceExists is returned by create when the collection is already there.
const errNamespaceExists = 48

type MongoDBClient struct {
	URI      string
	DBName   string
	Client   *mongo.Client
	Database *mongo.Database
}

func NewMongoDBClient(uri, dbname string) *MongoDBClient {
	return &MongoDBClient{
		URI:    uri,
		DBName: dbname,
	}
}

func NewMongoDBClientFromConfig(cfg *config.Config) *MongoDBClient {
	return NewMongoDBClient(cfg.MongoDB.ConnectionURI(), cfg.MongoDB.DBName)
}

// NewMongoDBClientFromDatabase wraps an already connected database.
func NewMongoDBClientFromDatabase(db *mongo.Database) *MongoDBClient {
	return &MongoDBClient{
		DBName:   db.Name(),
		Client:   db.Client(),
		Database: db,
	}
}

func (m *MongoDBClient) Connect(ctx context.Context) error {
	clientOptions := options.Client().ApplyURI(m.URI)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB at %s: %w", config.RedactURI(m.URI), err)
	}

	m.Client = client
	m.Database = client.Database(m.DBName)
	log.Printf("Connected to MongoDB database %s at %s", m.DBName, config.RedactURI(m.URI))
	return nil
}

func (m *MongoDBClient) Close(ctx context.Context) error {
	if m.Client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.Client.Disconnect(ctx)
}

func (m *MongoDBClient) ready() error {
	if m.Database == nil {
		return errors.New("mongodb connection not established")
	}
	return nil
}

// ToDocuments widens records for InsertMany.
func ToDocuments[T any](records []T) []any {
	docs := make([]any, len(records))
	for i, r := range records {
		docs[i] = r
	}
	return docs
}

// InsertInBatches inserts docs with one InsertMany per batch and returns the
// number inserted before any failure.
func (m *MongoDBClient) InsertInBatches(ctx context.Context, collection string, docs []any, batchSize int) (int64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	coll := m.Database.Collection(collection)

	var inserted int64
	err := ProcessInBatches(docs, batchSize, func(batch []any) error {
		res, err := coll.InsertMany(ctx, batch)
		if res != nil {
			inserted += int64(len(res.InsertedIDs))
		}
		return err
	})
	if err != nil {
		return inserted, fmt.Errorf("insert into %s: %w", collection, err)
	}
	return inserted, nil
}

// DropCollection drops a collection. Dropping a missing one succeeds.
func (m *MongoDBClient) DropCollection(ctx context.Context, collection string) error {
	if err := m.ready(); err != nil {
		return err
	}
	if err := m.Database.Collection(collection).Drop(ctx); err != nil {
		return fmt.Errorf("drop %s: %w", collection, err)
	}
	return nil
}

// CreateCollection creates a collection, treating an existing one as success.
func (m *MongoDBClient) CreateCollection(ctx context.Context, collection string) error {
	if err := m.ready(); err != nil {
		return err
	}
	err := m.Database.CreateCollection(ctx, collection)
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == errNamespaceExists {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", collection, err)
	}
	return nil
}

// CountRows implements RowCounter over collections.
func (m *MongoDBClient) CountRows(ctx context.Context, collection string) (int64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	n, err := m.Database.Collection(collection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count documents of %s: %w", collection, err)
	}
	return n, nil
}

// Projection selects fields and drops _id.
func Projection(fields []string) bson.D {
	proj := bson.D{{Key: "_id", Value: 0}}
	for _, f := range fields {
		proj = append(proj, bson.E{Key: f, Value: 1})
	}
	return proj
}

// ExportCSV writes fields of every document to path in csvcodec format and
// returns the number of documents written. Missing fields are written as
// NULL.
func (m *MongoDBClient) ExportCSV(ctx context.Context, collection string, fields []string, path string) (int64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, errors.New("csv export needs at least one field")
	}
	cursor, err := m.Database.Collection(collection).Find(ctx, bson.D{}, options.Find().SetProjection(Projection(fields)))
	if err != nil {
		return 0, fmt.Errorf("find in %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	return writeFile(path, func(w *bufio.Writer) (int64, error) {
		if _, err := w.WriteString(strings.Join(fields, ",") + "\n"); err != nil {
			return 0, err
		}
		var count int64
		values := make([]any, len(fields))
		for cursor.Next(ctx) {
			var doc bson.M
			if err := cursor.Decode(&doc); err != nil {
				return count, fmt.Errorf("decode document: %w", err)
			}
			for i, f := range fields {
				values[i] = doc[f]
			}
			line, err := csvcodec.FormatRow(values)
			if err != nil {
				return count, err
			}
			if _, err := w.WriteString(line + "\n"); err != nil {
				return count, err
			}
			count++
		}
		return count, cursor.Err()
	})
}

// ExportJSON writes every document as one relaxed extended JSON line.
func (m *MongoDBClient) ExportJSON(ctx context.Context, collection, path string) (int64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	cursor, err := m.Database.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("find in %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	return writeFile(path, func(w *bufio.Writer) (int64, error) {
		var count int64
		for cursor.Next(ctx) {
			line, err := bson.MarshalExtJSON(cursor.Current, false, false)
			if err != nil {
				return count, fmt.Errorf("marshal document: %w", err)
			}
			if _, err := w.Write(append(line, '\n')); err != nil {
				return count, err
			}
			count++
		}
		return count, cursor.Err()
	})
}

func writeFile(path string, write func(w *bufio.Writer) (int64, error)) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	n, err := write(w)
	if err != nil {
		return n, err
	}
	if err := w.Flush(); err != nil {
		return n, err
	}
	return n, f.Close()
}
