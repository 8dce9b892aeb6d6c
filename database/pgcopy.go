package database

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/csvcodec"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/loader"
)

// CopyCSV streams a CSV file into table with the COPY protocol, one COPY per
// batchSize rows. Values go out in binary form, so transform must return
// typed values for numeric columns (see TypedColumnTransform).
func (p *PostgreSQLClient) CopyCSV(ctx context.Context, path, table string, columns []string, transform loader.Transform, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	pool, err := pgxpool.New(ctx, p.DSN())
	if err != nil {
		return 0, fmt.Errorf("pgxpool: %w", err)
	}
	defer pool.Close()

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		return 0, scanner.Err()
	}
	header := csvcodec.ParseHeader(scanner.Text())

	var (
		copied int64
		batch  = make([][]any, 0, batchSize)
		ident  = pgx.Identifier{table}
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := pool.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(batch))
		copied += n
		batch = batch[:0]
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Detail != "" {
				return fmt.Errorf("copy into %s: %s (%s)", table, pgErr.Detail, pgErr.SQLState())
			}
			return fmt.Errorf("copy into %s: %w", table, err)
		}
		return nil
	}

	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields, err := csvcodec.ParseRow(line)
		if err != nil {
			log.Printf("copy: skipping %s line %d: %v", path, lineNo, err)
			continue
		}
		row, err := transform(fields, header)
		if err != nil {
			log.Printf("copy: skipping %s line %d: %v", path, lineNo, err)
			continue
		}
		if row.Skip {
			continue
		}
		batch = append(batch, row.Values)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return copied, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return copied, err
	}
	if err := flush(); err != nil {
		return copied, err
	}

	log.Printf("copy: %s done, copied=%d", table, copied)
	return copied, nil
}
