package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/csvcodec"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/generator"
)

func writeCSV(t *testing.T, header string, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	content := header + "\n" + strings.Join(rows, "\n")
	if len(rows) > 0 {
		content += "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func numberedRows(n int) []string {
	rows := make([]string, n)
	for i := range rows {
		rows[i] = fmt.Sprintf(`"%d","name%d"`, i+1, i+1)
	}
	return rows
}

func newMock(t *testing.T) (sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, db
}

func TestBuildInsert(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		rows    int
		want    string
	}{
		{"mysql single", MySQL, 1, "INSERT INTO `books` (`id`, `name`) VALUES (?, ?)"},
		{"mysql multi", MySQL, 2, "INSERT INTO `books` (`id`, `name`) VALUES (?, ?), (?, ?)"},
		{"postgres multi", Postgres, 2, `INSERT INTO "books" ("id", "name") VALUES ($1, $2), ($3, $4)`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BuildInsert(tc.dialect, "books", []string{"id", "name"}, tc.rows))
		})
	}
}

func TestQuoteIdentifierEscapes(t *testing.T) {
	assert.Equal(t, "`we``ird`", MySQL.QuoteIdentifier("we`ird"))
	assert.Equal(t, `"we""ird"`, Postgres.QuoteIdentifier(`we"ird`))
}

func TestDialectFor(t *testing.T) {
	assert.Equal(t, Postgres, DialectFor("postgresql"))
	assert.Equal(t, Postgres, DialectFor("Postgres"))
	assert.Equal(t, MySQL, DialectFor("mysql"))
	assert.Equal(t, MySQL, DialectFor(""))
}

func TestLoadCSVExactBatches(t *testing.T) {
	mock, db := newMock(t)
	path := writeCSV(t, "id,name", numberedRows(6)...)

	query := BuildInsert(MySQL, "people", []string{"id", "name"}, 3)
	mock.ExpectExec(query).
		WithArgs("1", "name1", "2", "name2", "3", "name3").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(query).
		WithArgs("4", "name4", "5", "name5", "6", "name6").
		WillReturnResult(sqlmock.NewResult(0, 3))

	var progress []int64
	res, err := LoadCSV(context.Background(), db, path, "people", []string{"id", "name"}, nil,
		WithBatchSize(3), WithProgress(func(n int64) { progress = append(progress, n) }))
	require.NoError(t, err)

	assert.Equal(t, int64(6), res.Inserted)
	assert.Equal(t, 2, res.Batches)
	assert.Equal(t, []int64{3, 3}, progress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCSVRemainderBatch(t *testing.T) {
	mock, db := newMock(t)
	path := writeCSV(t, "id,name", numberedRows(4)...)

	mock.ExpectExec(BuildInsert(MySQL, "people", []string{"id", "name"}, 3)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(BuildInsert(MySQL, "people", []string{"id", "name"}, 1)).
		WithArgs("4", "name4").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := LoadCSV(context.Background(), db, path, "people", []string{"id", "name"}, nil, WithBatchSize(3))
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Inserted)
	assert.Equal(t, 2, res.Batches)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCSVSkipsBlankLinesAndBadRows(t *testing.T) {
	mock, db := newMock(t)
	path := writeCSV(t, "id,name",
		`"1","one"`,
		``,
		`"2","unterminated`,
		`"3","three","extra"`,
		`"4","skip"`,
		`   `,
		`"5","five"`,
	)

	transform := func(fields, header []string) (Row, error) {
		if fields[1] == "skip" {
			return Row{Skip: true}, nil
		}
		if len(fields) != len(header) {
			return Row{}, fmt.Errorf("want %d fields", len(header))
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return Row{}, err
		}
		return Row{Values: []any{id, strings.ToUpper(fields[1])}}, nil
	}

	mock.ExpectExec(BuildInsert(MySQL, "people", []string{"id", "name"}, 2)).
		WithArgs(1, "ONE", 5, "FIVE").
		WillReturnResult(sqlmock.NewResult(0, 2))

	res, err := LoadCSV(context.Background(), db, path, "people", []string{"id", "name"}, transform)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Inserted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.RowErrors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCSVTransformWidthMismatch(t *testing.T) {
	_, db := newMock(t)
	path := writeCSV(t, "id,name", `"1","one"`)

	transform := func(fields, header []string) (Row, error) {
		return Row{Values: []any{fields[0]}}, nil
	}

	res, err := LoadCSV(context.Background(), db, path, "people", []string{"id", "name"}, transform)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Inserted)
	assert.Equal(t, 1, res.RowErrors)
	assert.Equal(t, 0, res.Batches)
}

func TestLoadCSVStopsOnBatchError(t *testing.T) {
	mock, db := newMock(t)
	path := writeCSV(t, "id,name", numberedRows(4)...)

	mock.ExpectExec(BuildInsert(MySQL, "people", []string{"id", "name"}, 2)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(BuildInsert(MySQL, "people", []string{"id", "name"}, 2)).
		WillReturnError(errors.New("Duplicate entry"))

	res, err := LoadCSV(context.Background(), db, path, "people", []string{"id", "name"}, nil, WithBatchSize(2))
	require.Error(t, err)

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "people", loadErr.Table)
	assert.Equal(t, 2, loadErr.Batch)
	assert.Contains(t, loadErr.Error(), "Duplicate entry")
	assert.Equal(t, int64(2), res.Inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCSVContinueOnError(t *testing.T) {
	mock, db := newMock(t)
	path := writeCSV(t, "id,name", numberedRows(5)...)

	query := BuildInsert(MySQL, "people", []string{"id", "name"}, 2)
	mock.ExpectExec(query).WillReturnError(errors.New("constraint violation"))
	mock.ExpectExec(query).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(BuildInsert(MySQL, "people", []string{"id", "name"}, 1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := LoadCSV(context.Background(), db, path, "people", []string{"id", "name"}, nil,
		WithBatchSize(2), WithContinueOnError())
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.Inserted)
	assert.Equal(t, 3, res.Batches)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Failures[0].Batch)
	assert.Equal(t, 2, res.Failures[0].Rows)
	assert.ErrorContains(t, res.Err(), "constraint violation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCSVCanceledContext(t *testing.T) {
	mock, db := newMock(t)
	path := writeCSV(t, "id,name", numberedRows(3)...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := LoadCSV(ctx, db, path, "people", []string{"id", "name"}, nil, WithBatchSize(2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), res.Inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCSVPostgresDialect(t *testing.T) {
	mock, db := newMock(t)
	path := writeCSV(t, "id,name", numberedRows(2)...)

	mock.ExpectExec(`INSERT INTO "people" ("id", "name") VALUES ($1, $2), ($3, $4)`).
		WithArgs("1", "name1", "2", "name2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	res, err := LoadCSV(context.Background(), db, path, "people", []string{"id", "name"}, nil, WithDialect(Postgres))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCSVRejectsBadInput(t *testing.T) {
	_, db := newMock(t)

	_, err := LoadCSV(context.Background(), db, "unused.csv", "people", []string{"id"}, nil, WithBatchSize(0))
	assert.Error(t, err)

	_, err = LoadCSV(context.Background(), db, "unused.csv", "people", nil, nil)
	assert.Error(t, err)

	_, err = LoadCSV(context.Background(), db, filepath.Join(t.TempDir(), "missing.csv"), "people", []string{"id"}, nil)
	assert.Error(t, err)
}

func TestLoadGeneratedAuthors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := generator.New(generator.WithSeed(21))
	authors, err := g.GenerateAuthors(5, 0)
	require.NoError(t, err)

	doc, err := csvcodec.ToCSV(generator.AuthorLoadSchema, authors)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "authors.csv")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	transform := func(fields, header []string) (Row, error) {
		year, err := strconv.Atoi(fields[4])
		if err != nil {
			return Row{}, err
		}
		return Row{Values: []any{fields[0], fields[1], fields[2], NullIfEmpty(fields[3]), year}}, nil
	}

	mock.ExpectExec("INSERT INTO `Autor`").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO `Autor`").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO `Autor`").WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := LoadCSV(context.Background(), db, path, "Autor", generator.AuthorLoadSchema.Columns, transform, WithBatchSize(2))
	require.NoError(t, err)
	assert.Equal(t, int64(len(authors)), res.Inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRowsWidthCheck(t *testing.T) {
	_, db := newMock(t)
	_, err := InsertRows(context.Background(), db, MySQL, "t", []string{"a", "b"}, [][]any{{1}})
	assert.Error(t, err)

	n, err := InsertRows(context.Background(), db, MySQL, "t", []string{"a"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, NullIfEmpty(""))
	assert.Equal(t, "x", NullIfEmpty("x"))
}
