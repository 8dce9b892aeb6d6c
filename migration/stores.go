package migration

import (
	"context"
	"fmt"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/config"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/database"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/generator"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/loader"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/process"
)

// FileLayout describes how a CSV file maps onto a table.
type FileLayout struct {
	Columns []string
	// NullIfEmpty lists columns whose empty field loads as NULL.
	NullIfEmpty []string
}

// RelationalStore is the MySQL side of the benchmark.
type RelationalStore interface {
	database.RowCounter
	SetupSchema(ctx context.Context) error
	CreateUsers(ctx context.Context, users config.UsersConfig) error
	Truncate(ctx context.Context, tables ...string) error
	LoadFile(ctx context.Context, path, table string, layout FileLayout) (int64, error)
	ExportTableCSV(ctx context.Context, table string, columns []string, path string) (int64, error)
	BookStats(ctx context.Context) (database.BookStats, error)
	InsertBooks(ctx context.Context, books []generator.Book, batchSize int) (int64, error)
	InsertTestRecords(ctx context.Context, records []generator.TestRecord, batchSize int) (int64, error)
	// ProbeInsert connects as user and tries to write one row to table.
	ProbeInsert(ctx context.Context, user, password, table string) error
}

// DocumentStore is the MongoDB side of the benchmark.
type DocumentStore interface {
	database.RowCounter
	InsertInBatches(ctx context.Context, collection string, docs []any, batchSize int) (int64, error)
	DropCollection(ctx context.Context, collection string) error
	CreateCollection(ctx context.Context, collection string) error
	ExportCSV(ctx context.Context, collection string, fields []string, path string) (int64, error)
	ExportJSON(ctx context.Context, collection, path string) (int64, error)
}

// BookStore is the optional PostgreSQL target.
type BookStore interface {
	database.RowCounter
	SetupSchema(ctx context.Context) error
	LoadCSV(ctx context.Context, path, table string, columns []string, transform loader.Transform, opts ...loader.Option) (*loader.Result, error)
	CopyCSV(ctx context.Context, path, table string, columns []string, transform loader.Transform, batchSize int) (int64, error)
}

// Tools runs the external database clients.
type Tools interface {
	MySQLDump(ctx context.Context, outFile string, tables ...string) (process.Output, error)
	MySQLRestore(ctx context.Context, dumpFile string) (process.Output, error)
	// MySQLExec runs script through the mysql client; an empty database runs
	// it without a default schema.
	MySQLExec(ctx context.Context, database, script string) (process.Output, error)
	MongoImport(ctx context.Context, collection, file string, opts process.ImportOptions) (process.Output, error)
	MongoExport(ctx context.Context, collection, outFile string, opts process.ExportOptions) (process.Output, error)
	MongoDropCollection(ctx context.Context, collection string) (process.Output, error)
}

var (
	_ DocumentStore   = (*database.MongoDBClient)(nil)
	_ BookStore       = (*database.PostgreSQLClient)(nil)
	_ Tools           = (*process.Toolkit)(nil)
	_ RelationalStore = (*MySQLStore)(nil)
)

// MySQLStore adapts a connected MySQLClient to RelationalStore.
type MySQLStore struct {
	Client      *database.MySQLClient
	LocalInfile bool
	LoadOptions []loader.Option
}

func NewMySQLStore(client *database.MySQLClient, localInfile bool, opts ...loader.Option) *MySQLStore {
	return &MySQLStore{Client: client, LocalInfile: localInfile, LoadOptions: opts}
}

func (s *MySQLStore) CountRows(ctx context.Context, table string) (int64, error) {
	return s.Client.CountRows(ctx, table)
}

func (s *MySQLStore) SetupSchema(ctx context.Context) error {
	return s.Client.SetupSchema(ctx)
}

func (s *MySQLStore) CreateUsers(ctx context.Context, users config.UsersConfig) error {
	return s.Client.CreateUsers(ctx, users)
}

func (s *MySQLStore) Truncate(ctx context.Context, tables ...string) error {
	return s.Client.Truncate(ctx, tables...)
}

// LoadFile uses LOAD DATA when enabled, falling back to batched INSERTs.
func (s *MySQLStore) LoadFile(ctx context.Context, path, table string, layout FileLayout) (int64, error) {
	transform := database.ColumnTransform(layout.Columns)
	if s.LocalInfile {
		n, _, err := s.Client.BulkLoadCSV(ctx, path, table,
			database.LoadDataOptions{Columns: layout.Columns, NullIfEmpty: layout.NullIfEmpty},
			transform, s.LoadOptions...)
		return n, err
	}
	res, err := s.Client.LoadCSV(ctx, path, table, layout.Columns, transform, s.LoadOptions...)
	if res == nil {
		return 0, err
	}
	return res.Inserted, err
}

func (s *MySQLStore) ExportTableCSV(ctx context.Context, table string, columns []string, path string) (int64, error) {
	return s.Client.ExportTableCSV(ctx, table, columns, path)
}

func (s *MySQLStore) BookStats(ctx context.Context) (database.BookStats, error) {
	return s.Client.BookStats(ctx)
}

func (s *MySQLStore) InsertBooks(ctx context.Context, books []generator.Book, batchSize int) (int64, error) {
	return database.InsertInTransaction(ctx, s.Client.DB, loader.MySQL, database.TableBooks, generator.BookSchema, books, batchSize)
}

func (s *MySQLStore) InsertTestRecords(ctx context.Context, records []generator.TestRecord, batchSize int) (int64, error) {
	return database.InsertInTransaction(ctx, s.Client.DB, loader.MySQL, database.TableTest, generator.TestRecordSchema, records, batchSize)
}

func (s *MySQLStore) ProbeInsert(ctx context.Context, user, password, table string) error {
	client := s.Client.As(user, password)
	if err := client.ConnectContext(ctx); err != nil {
		return fmt.Errorf("connect as %s: %w", user, err)
	}
	defer client.Close()
	return client.InsertProbeRow(ctx, table)
}
