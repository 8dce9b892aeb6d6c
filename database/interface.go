package database

import "context"

// RowCounter is implemented by every store the validation checks read.
// For MongoDB the name is a collection.
type RowCounter interface {
	CountRows(ctx context.Context, name string) (int64, error)
}

var (
	_ RowCounter = (*MySQLClient)(nil)
	_ RowCounter = (*PostgreSQLClient)(nil)
	_ RowCounter = (*MongoDBClient)(nil)
)
