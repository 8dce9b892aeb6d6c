// Package loader reads a CSV file produced by csvcodec and inserts its rows
// with one multi-row parameterized INSERT per batch.
//
// Batches run strictly in file order, one statement each. The context is only
// checked between batches: once a statement is issued it runs to completion.
// A row that cannot be parsed or transformed is logged and left out of its
// batch. A failed batch stops the load unless WithContinueOnError is set.
package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/csvcodec"
)

const DefaultBatchSize = 1000

// Execer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Row is what a Transform hands back for one CSV line.
type Row struct {
	Values []any
	Skip   bool
}

// Transform adapts the raw fields of one line into insert values. It must
// return exactly one value per target column unless it marks the row Skip.
type Transform func(fields, header []string) (Row, error)

// LoadError reports the batch whose statement failed. Batch is 1-based.
type LoadError struct {
	Table string
	Batch int
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load into %s failed at batch %d: %v", e.Table, e.Batch, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// BatchFailure is one failed batch recorded in continue-on-error mode.
type BatchFailure struct {
	Batch int
	Rows  int
	Err   error
}

// Result summarizes one LoadCSV call.
type Result struct {
	Inserted  int64
	Skipped   int
	RowErrors int
	Batches   int
	Failures  []BatchFailure
	Elapsed   time.Duration
}

// Err joins every recorded batch failure, or returns nil.
func (r *Result) Err() error {
	if r == nil || len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("batch %d (%d rows): %w", f.Batch, f.Rows, f.Err))
	}
	return errors.Join(errs...)
}

type options struct {
	batchSize       int
	dialect         Dialect
	continueOnError bool
	progress        func(int64)
}

// Option tunes LoadCSV.
type Option func(*options)

func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

func WithDialect(d Dialect) Option {
	return func(o *options) { o.dialect = d }
}

// WithContinueOnError keeps loading after a failed batch and records it in
// Result.Failures instead of returning a LoadError.
func WithContinueOnError() Option {
	return func(o *options) { o.continueOnError = true }
}

// WithProgress is called with the number of rows inserted by every batch
// that succeeds.
func WithProgress(fn func(inserted int64)) Option {
	return func(o *options) { o.progress = fn }
}

// LoadCSV inserts the data lines of path into table. A nil transform passes
// the parsed fields straight through.
func LoadCSV(ctx context.Context, db Execer, path, table string, columns []string, transform Transform, opts ...Option) (*Result, error) {
	o := options{batchSize: DefaultBatchSize, dialect: MySQL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d", o.batchSize)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns given for table %s", table)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	lines := strings.Split(string(content), "\n")
	header := csvcodec.ParseHeader(lines[0])

	var (
		res     = &Result{}
		start   = time.Now()
		batch   = make([][]any, 0, o.batchSize)
		lastTS  = start
		batchNo int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		batchNo++
		n, err := InsertRows(ctx, db, o.dialect, table, columns, batch)
		rows := len(batch)
		batch = batch[:0]
		res.Batches++

		if err != nil {
			log.Printf("loader: batch #%d into %s failed rows=%d err=%v", batchNo, table, rows, err)
			if !o.continueOnError {
				return &LoadError{Table: table, Batch: batchNo, Err: err}
			}
			res.Failures = append(res.Failures, BatchFailure{Batch: batchNo, Rows: rows, Err: err})
			return nil
		}

		res.Inserted += n
		if o.progress != nil {
			o.progress(n)
		}

		now := time.Now()
		sinceLast := now.Sub(lastTS)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(n) / sinceLast.Seconds()
		}
		log.Printf("batch #%d: table=%s rps=%.0f inserted=%d total_inserted=%d elapsed=%s",
			batchNo, table, rps, n, res.Inserted, now.Sub(start).Truncate(time.Millisecond))
		lastTS = now
		return nil
	}

	for i, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lineNo := i + 2

		values, skip, err := transformLine(line, header, columns, transform)
		if err != nil {
			res.RowErrors++
			log.Printf("loader: skipping %s line %d: %v", path, lineNo, err)
			continue
		}
		if skip {
			res.Skipped++
			continue
		}

		batch = append(batch, values)
		if len(batch) >= o.batchSize {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if err := flush(); err != nil {
				res.Elapsed = time.Since(start)
				return res, err
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	err = flush()
	res.Elapsed = time.Since(start)
	if err != nil {
		return res, err
	}

	log.Printf("loader: %s done, batches=%d total_inserted=%d skipped=%d row_errors=%d failed_batches=%d",
		table, res.Batches, res.Inserted, res.Skipped, res.RowErrors, len(res.Failures))
	return res, nil
}

func transformLine(line string, header, columns []string, transform Transform) ([]any, bool, error) {
	fields, err := csvcodec.ParseRow(line)
	if err != nil {
		return nil, false, err
	}

	if transform == nil {
		if len(fields) != len(columns) {
			return nil, false, fmt.Errorf("got %d fields, want %d", len(fields), len(columns))
		}
		values := make([]any, len(fields))
		for i, f := range fields {
			values[i] = f
		}
		return values, false, nil
	}

	row, err := transform(fields, header)
	if err != nil {
		return nil, false, err
	}
	if row.Skip {
		return nil, true, nil
	}
	if len(row.Values) != len(columns) {
		return nil, false, fmt.Errorf("transform returned %d values, want %d", len(row.Values), len(columns))
	}
	return row.Values, false, nil
}

// BuildInsert renders a multi-row INSERT for rowCount rows.
func BuildInsert(d Dialect, table string, columns []string, rowCount int) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdentifier(c)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", d.QuoteIdentifier(table), strings.Join(quoted, ", "))

	arg := 1
	for r := 0; r < rowCount; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := range columns {
			if c > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.Placeholder(arg))
			arg++
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// InsertRows runs one INSERT for all rows and returns the affected row count.
// Every row must have one value per column.
func InsertRows(ctx context.Context, db Execer, d Dialect, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
		args = append(args, row...)
	}

	result, err := db.ExecContext(ctx, BuildInsert(d, table, columns, len(rows)), args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		// drivers that cannot report it still inserted the whole statement
		return int64(len(rows)), nil
	}
	return n, nil
}

// NullIfEmpty maps the empty field written for a null value back to nil.
func NullIfEmpty(field string) any {
	if field == "" {
		return nil
	}
	return field
}
