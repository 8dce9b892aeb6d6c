package csvcodec

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRecord map[string]any

func (r sampleRecord) CSVValue(column string) (any, bool) {
	v, ok := r[column]
	return v, ok
}

var sampleSchema = Schema{Name: "sample", Columns: []string{"id", "title", "note"}}

func TestToCSV(t *testing.T) {
	note := "second"
	var missing *string
	records := []sampleRecord{
		{"id": 1, "title": `say "hi", then leave`, "note": &note},
		{"id": int64(2), "title": "plain", "note": missing},
		{"id": nil, "title": "", "note": nil},
	}

	doc, err := ToCSV(sampleSchema, records)
	require.NoError(t, err)

	want := "id,title,note\n" +
		`"1","say ""hi"", then leave","second"` + "\n" +
		`"2","plain",` + "\n" +
		`,"",` + "\n"
	assert.Equal(t, want, doc)
}

func TestToCSVUnknownColumn(t *testing.T) {
	_, err := ToCSV(sampleSchema, []sampleRecord{{"id": 1}})
	var codecErr *CodecError
	require.True(t, errors.As(err, &codecErr))
	assert.Equal(t, "title", codecErr.Column)
	assert.Equal(t, 1, codecErr.Row)
}

func TestToCSVUnsupportedType(t *testing.T) {
	_, err := ToCSV(sampleSchema, []sampleRecord{{"id": struct{}{}, "title": "x", "note": nil}})
	var codecErr *CodecError
	assert.True(t, errors.As(err, &codecErr))
}

func TestParseRow(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"quoted", `"a","b","c"`, []string{"a", "b", "c"}},
		{"unquoted numbers", `1,"x",2`, []string{"1", "x", "2"}},
		{"embedded comma", `"a,b","c"`, []string{"a,b", "c"}},
		{"doubled quotes", `"he said ""no""",x`, []string{`he said "no"`, "x"}},
		{"empty fields", `,,`, []string{"", "", ""}},
		{"empty quoted", `""`, []string{""}},
		{"carriage return", "\"a\",\"b\"\r", []string{"a", "b"}},
		{"single", `solo`, []string{"solo"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRow(tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseRowUnterminated(t *testing.T) {
	_, err := ParseRow(`"open,field`)
	var codecErr *CodecError
	assert.True(t, errors.As(err, &codecErr))
}

func TestRoundTrip(t *testing.T) {
	values := []string{
		`plain`,
		`with "quotes"`,
		`with, commas, "and" quotes`,
		`""`,
		`,`,
		`trailing quote"`,
	}

	for _, v := range values {
		row, err := FormatRow([]any{v, "next"})
		require.NoError(t, err)

		fields, err := ParseRow(row)
		require.NoError(t, err)
		assert.Equal(t, []string{v, "next"}, fields, "row %s", row)
	}
}

func TestParseHeader(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, ParseHeader("a, b ,c\r"))
	assert.Equal(t, []string{"ISBN", "year"}, ParseHeader(`"ISBN","year"`))
}

func TestAppendFileAndCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")

	require.NoError(t, AppendFile(path, sampleSchema, []sampleRecord{{"id": 1, "title": "a", "note": nil}}, true))
	require.NoError(t, AppendFile(path, sampleSchema, []sampleRecord{{"id": 2, "title": "b", "note": nil}}, false))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id,title,note\n\"1\",\"a\",\n\"2\",\"b\",\n", string(content))

	rows, err := CountDataRows(path)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	// a header-only write truncates what was there
	require.NoError(t, AppendFile[sampleRecord](path, sampleSchema, nil, true))
	rows, err = CountDataRows(path)
	require.NoError(t, err)
	assert.Equal(t, 0, rows)
}

func TestCountDataRowsMissingFile(t *testing.T) {
	_, err := CountDataRows(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
