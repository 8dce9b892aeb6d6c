package generator

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/csvcodec"
)

// WriteBooksCSV generates count books in chunks of chunkSize and writes them
// to one CSV file, so the full set is never held in memory at once.
func (g *Generator) WriteBooksCSV(path string, count, chunkSize int, licenses []string) error {
	return writeChunked(path, BookSchema, count, chunkSize, func(n, offset int) ([]Book, error) {
		return g.GenerateBooks(n, int64(offset+1), licenses)
	})
}

// WriteAuthorsCSV generates count authors in chunks into one CSV file using
// the given schema. Ids start at startID.
func (g *Generator) WriteAuthorsCSV(path string, schema csvcodec.Schema, count, chunkSize int, startID int64) error {
	return writeChunked(path, schema, count, chunkSize, func(n, offset int) ([]Author, error) {
		return g.GenerateAuthors(n, startID+int64(offset))
	})
}

// WriteBookFiles writes files CSV files of perFile books each into dir and
// returns their paths in order.
func (g *Generator) WriteBookFiles(dir, prefix string, files, perFile int) ([]string, error) {
	if files < 0 || perFile < 0 {
		return nil, &GenerationError{Op: "write book files", Err: fmt.Errorf("negative file count %d or size %d", files, perFile)}
	}

	paths := make([]string, 0, files)
	for i := 0; i < files; i++ {
		books, err := g.GenerateBooks(perFile, 0, nil)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%d.csv", prefix, i+1))
		if err := csvcodec.AppendFile(path, BookSchema, books, true); err != nil {
			return paths, err
		}
		paths = append(paths, path)

		if (i+1)%10 == 0 {
			log.Printf("Generated %d of %d %s files", i+1, files, prefix)
		}
	}
	return paths, nil
}

func writeChunked[T csvcodec.Record](path string, schema csvcodec.Schema, count, chunkSize int, next func(n, offset int) ([]T, error)) error {
	if count < 0 {
		return &GenerationError{Op: "write chunked csv", Err: &InvalidRangeError{Min: 0, Max: count}}
	}
	if chunkSize <= 0 {
		return &GenerationError{Op: "write chunked csv", Err: fmt.Errorf("chunk size must be > 0, got %d", chunkSize)}
	}

	if err := csvcodec.AppendFile[T](path, schema, nil, true); err != nil {
		return err
	}

	chunks := (count + chunkSize - 1) / chunkSize
	for i := 0; i < chunks; i++ {
		offset := i * chunkSize
		n := min(chunkSize, count-offset)
		log.Printf("Generating chunk %d/%d (%d %s)", i+1, chunks, n, schema.Name)

		records, err := next(n, offset)
		if err != nil {
			return err
		}
		if err := csvcodec.AppendFile(path, schema, records, false); err != nil {
			return err
		}
	}
	return nil
}
