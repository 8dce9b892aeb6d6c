package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/csvcodec"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/loader"
)

// InsertRecords inserts records with one multi-row INSERT over the schema's
// columns.
func InsertRecords[T csvcodec.Record](ctx context.Context, db loader.Execer, d loader.Dialect, table string, schema csvcodec.Schema, records []T) (int64, error) {
	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(schema.Columns))
		for j, col := range schema.Columns {
			v, ok := rec.CSVValue(col)
			if !ok {
				return 0, &csvcodec.CodecError{Row: i + 1, Column: col, Msg: "unknown column"}
			}
			row[j] = v
		}
		rows[i] = row
	}
	return loader.InsertRows(ctx, db, d, table, schema.Columns, rows)
}

// InsertInTransaction inserts records in batches inside a single
// transaction. Any batch failure rolls back everything.
func InsertInTransaction[T csvcodec.Record](ctx context.Context, db *sql.DB, d loader.Dialect, table string, schema csvcodec.Schema, records []T, batchSize int) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	var inserted int64
	err = ProcessInBatches(records, batchSize, func(batch []T) error {
		n, err := InsertRecords(ctx, tx, d, table, schema, batch)
		inserted += n
		return err
	})
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("rollback of %s insert failed: %v", table, rbErr)
		}
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// ColumnTransform maps CSV fields onto columns by header name, ignoring
// case, and turns empty fields into NULL. Columns missing from the header
// load as NULL.
func ColumnTransform(columns []string) loader.Transform {
	return func(fields, header []string) (loader.Row, error) {
		index := make(map[string]int, len(header))
		for i, h := range header {
			index[strings.ToLower(h)] = i
		}
		values := make([]any, len(columns))
		for i, col := range columns {
			pos, ok := index[strings.ToLower(col)]
			if !ok || pos >= len(fields) {
				continue
			}
			values[i] = loader.NullIfEmpty(fields[pos])
		}
		return loader.Row{Values: values}, nil
	}
}

// TypedColumnTransform is ColumnTransform with intColumns parsed as int64.
func TypedColumnTransform(columns, intColumns []string) loader.Transform {
	base := ColumnTransform(columns)
	isInt := make([]bool, len(columns))
	for i, col := range columns {
		for _, ic := range intColumns {
			if strings.EqualFold(col, ic) {
				isInt[i] = true
			}
		}
	}
	return func(fields, header []string) (loader.Row, error) {
		row, err := base(fields, header)
		if err != nil {
			return row, err
		}
		for i, v := range row.Values {
			s, ok := v.(string)
			if !ok || !isInt[i] {
				continue
			}
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return row, fmt.Errorf("column %s: %w", columns[i], err)
			}
			row.Values[i] = n
		}
		return row, nil
	}
}
