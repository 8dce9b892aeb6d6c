package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedColumnTransform(t *testing.T) {
	transform := TypedColumnTransform([]string{"ISBN", "pages", "year"}, []string{"PAGES", "year"})

	row, err := transform([]string{"978-1", "120", "1999"}, []string{"isbn", "pages", "year"})
	require.NoError(t, err)
	assert.Equal(t, []any{"978-1", int64(120), int64(1999)}, row.Values)

	row, err = transform([]string{"978-2", "", "2001"}, []string{"isbn", "pages", "year"})
	require.NoError(t, err)
	assert.Equal(t, []any{"978-2", nil, int64(2001)}, row.Values)

	_, err = transform([]string{"978-3", "many", "2001"}, []string{"isbn", "pages", "year"})
	assert.ErrorContains(t, err, "column pages")
}

func TestCopyCSVRejectsBatchSize(t *testing.T) {
	client := NewPostgreSQLClient("postgres", "", "localhost", 5432, "librosautores")
	_, err := client.CopyCSV(context.Background(), "books.csv", TableBooks, BookColumns, ColumnTransform(BookColumns), 0)
	assert.EqualError(t, err, "batch size must be positive, got 0")
}

// Copies a small file into a live server when POSTGRES_HOST is set.
func TestCopyCSVIntegration(t *testing.T) {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		t.Skip("Skipping Tests: POSTGRES_HOST must be present")
	}
	client := NewPostgreSQLClient(os.Getenv("POSTGRES_USER"), os.Getenv("POSTGRES_PASSWORD"), host, 5432, os.Getenv("POSTGRES_DATABASE"))
	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))
	defer client.Close()
	require.NoError(t, client.SetupSchema(ctx))

	path := filepath.Join(t.TempDir(), "books.csv")
	content := "isbn,title,autor_license,editorial,pages,year,genre,language,format,sinopsis,content\n" +
		`"111-1","Uno",,"Ed","10","2000","g","es","f","s","c"` + "\n" +
		`"111-2","Dos",,,,"2001",,"es",,,` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	n, err := client.CopyCSV(ctx, path, TableBooks, BookColumns, TypedColumnTransform(BookColumns, []string{"pages", "year"}), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := client.CountRows(ctx, TableBooks)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
