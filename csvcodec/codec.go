// Package csvcodec writes and reads the quoted, comma-separated format shared by
// the generator, the batch loader and the database export steps.
//
// Every non-null value is wrapped in double quotes and embedded quotes are
// doubled. Null values are written as an empty, unquoted field. Rows are single
// lines: values containing line breaks are not supported by ParseRow.
package csvcodec

import (
	"bufio"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Schema names the ordered columns of a CSV file.
type Schema struct {
	Name    string
	Columns []string
}

// Header returns the comma-joined column names.
func (s Schema) Header() string {
	return strings.Join(s.Columns, ",")
}

// Record is anything that can look up its value for a schema column. A nil
// value (or a nil pointer) is written as an empty field.
type Record interface {
	CSVValue(column string) (any, bool)
}

// CodecError reports a value or row the codec cannot handle.
type CodecError struct {
	Row    int
	Column string
	Msg    string
}

func (e *CodecError) Error() string {
	switch {
	case e.Column != "":
		return fmt.Sprintf("csv: row %d, column %q: %s", e.Row, e.Column, e.Msg)
	case e.Row > 0:
		return fmt.Sprintf("csv: row %d: %s", e.Row, e.Msg)
	default:
		return "csv: " + e.Msg
	}
}

// Encode writes the header followed by one line per record. The last row is
// terminated by a newline.
func Encode[T Record](w io.Writer, schema Schema, records []T) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(schema.Header() + "\n"); err != nil {
		return err
	}
	if err := encodeRows(bw, schema, records); err != nil {
		return err
	}
	return bw.Flush()
}

// EncodeRows writes only the data lines, for appending chunks to a file that
// already carries a header.
func EncodeRows[T Record](w io.Writer, schema Schema, records []T) error {
	bw := bufio.NewWriter(w)
	if err := encodeRows(bw, schema, records); err != nil {
		return err
	}
	return bw.Flush()
}

// ToCSV renders records as a complete CSV document.
func ToCSV[T Record](schema Schema, records []T) (string, error) {
	var sb strings.Builder
	if err := Encode(&sb, schema, records); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func encodeRows[T Record](bw *bufio.Writer, schema Schema, records []T) error {
	values := make([]any, len(schema.Columns))
	for i, rec := range records {
		for j, col := range schema.Columns {
			v, ok := rec.CSVValue(col)
			if !ok {
				return &CodecError{Row: i + 1, Column: col, Msg: "unknown column"}
			}
			values[j] = v
		}
		line, err := formatRow(values)
		if err != nil {
			return &CodecError{Row: i + 1, Msg: err.Error()}
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// FormatRow renders one row without the trailing newline.
func FormatRow(values []any) (string, error) {
	return formatRow(values)
}

func formatRow(values []any) (string, error) {
	var sb strings.Builder
	for i, v := range values {
		if i > 0 {
			sb.WriteByte(',')
		}
		s, null, err := formatValue(v)
		if err != nil {
			return "", err
		}
		if null {
			continue
		}
		sb.WriteString(Quote(s))
	}
	return sb.String(), nil
}

// Quote wraps s in double quotes, doubling any quote inside it.
func Quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func formatValue(v any) (string, bool, error) {
	switch t := v.(type) {
	case nil:
		return "", true, nil
	case string:
		return t, false, nil
	case []byte:
		if t == nil {
			return "", true, nil
		}
		return string(t), false, nil
	case int:
		return strconv.Itoa(t), false, nil
	case int64:
		return strconv.FormatInt(t, 10), false, nil
	case int32:
		return strconv.FormatInt(int64(t), 10), false, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), false, nil
	case bool:
		return strconv.FormatBool(t), false, nil
	case time.Time:
		return t.Format("2006-01-02 15:04:05"), false, nil
	case fmt.Stringer:
		return t.String(), false, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", true, nil
		}
		return formatValue(rv.Elem().Interface())
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), false, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), false, nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), false, nil
	case reflect.String:
		return rv.String(), false, nil
	}
	return "", false, fmt.Errorf("unsupported value type %T", v)
}

// ParseRow splits one line into its raw fields, removing the enclosing quotes
// and collapsing doubled quotes.
func ParseRow(line string) ([]string, error) {
	line = strings.TrimSuffix(line, "\r")

	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				current.WriteByte('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == ',' && !inQuotes:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, &CodecError{Msg: "unterminated quoted field"}
	}
	fields = append(fields, current.String())
	return fields, nil
}

// ParseHeader splits a header line into trimmed column names.
func ParseHeader(line string) []string {
	fields, err := ParseRow(line)
	if err != nil {
		fields = strings.Split(strings.TrimSuffix(line, "\r"), ",")
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}
