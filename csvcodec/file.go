package csvcodec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AppendFile appends records to path. With withHeader the file is truncated
// first and the schema header is written, so the first chunk of a chunked
// generation run starts a fresh file and later chunks only add rows.
func AppendFile[T Record](path string, schema Schema, records []T, withHeader bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if withHeader {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	if withHeader {
		err = Encode(f, schema, records)
	} else {
		err = EncodeRows(f, schema, records)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// CountDataRows returns the number of non-blank lines after the header.
func CountDataRows(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	lines := strings.Split(string(content), "\n")
	count := 0
	for i, line := range lines {
		if i == 0 {
			continue
		}
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count, nil
}
