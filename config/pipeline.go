package config

import (
	"errors"
	"fmt"
	"strings"
)

// Pipeline sizes every stage of a benchmark run.
type Pipeline struct {
	Reduced bool `yaml:"reduced"`

	BooksCount      int   `yaml:"books_count"`
	AuthorsCount    int   `yaml:"authors_count"`
	AuthorStartID   int64 `yaml:"author_start_id"`
	StressCount     int   `yaml:"stress_count"`
	BatchFiles      int   `yaml:"batch_files"`
	BooksPerFile    int   `yaml:"books_per_file"`
	MongoBooksCount int   `yaml:"mongo_books_count"`
	TestRecords     int   `yaml:"test_records"`

	ChunkSize       int `yaml:"chunk_size"`
	BatchSize       int `yaml:"batch_size"`
	StressBatchSize int `yaml:"stress_batch_size"`
	MongoBatchSize  int `yaml:"mongo_batch_size"`

	ContinueOnBatchError bool     `yaml:"continue_on_batch_error"`
	StopOnError          bool     `yaml:"stop_on_error"`
	Skip                 []string `yaml:"skip"`
	Only                 []string `yaml:"only"`
	Seed                 int64    `yaml:"seed"`
}

// DefaultPipeline is the full dataset.
func DefaultPipeline() Pipeline {
	return Pipeline{
		BooksCount:      100000,
		AuthorsCount:    150000,
		AuthorStartID:   51,
		StressCount:     3500,
		BatchFiles:      100,
		BooksPerFile:    1000,
		MongoBooksCount: 1000000,
		TestRecords:     100000,
		ChunkSize:       10000,
		BatchSize:       1000,
		StressBatchSize: 100,
		MongoBatchSize:  10000,
	}
}

// ApplyReduced switches the record counts to the reduced dataset. Batch and
// chunk sizes are left alone.
func (p *Pipeline) ApplyReduced() {
	p.Reduced = true
	p.BooksCount = 10000
	p.AuthorsCount = 15000
	p.StressCount = 1000
	p.BatchFiles = 10
	p.MongoBooksCount = 100000
	p.TestRecords = 10000
}

// Validate rejects negative counts and non-positive sizes.
func (p Pipeline) Validate() error {
	var errs []error
	counts := map[string]int{
		"books_count":       p.BooksCount,
		"authors_count":     p.AuthorsCount,
		"stress_count":      p.StressCount,
		"batch_files":       p.BatchFiles,
		"books_per_file":    p.BooksPerFile,
		"mongo_books_count": p.MongoBooksCount,
		"test_records":      p.TestRecords,
	}
	for name, v := range counts {
		if v < 0 {
			errs = append(errs, fmt.Errorf("pipeline.%s must not be negative, got %d", name, v))
		}
	}
	sizes := map[string]int{
		"chunk_size":        p.ChunkSize,
		"batch_size":        p.BatchSize,
		"stress_batch_size": p.StressBatchSize,
		"mongo_batch_size":  p.MongoBatchSize,
	}
	for name, v := range sizes {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("pipeline.%s must be positive, got %d", name, v))
		}
	}
	if len(p.Skip) > 0 && len(p.Only) > 0 {
		errs = append(errs, errors.New("pipeline.skip and pipeline.only are mutually exclusive"))
	}
	return errors.Join(errs...)
}

// Enabled reports whether the stage with this label should run. Labels in
// Skip and Only match case-insensitively.
func (p Pipeline) Enabled(label string) bool {
	if len(p.Only) > 0 {
		return contains(p.Only, label)
	}
	return !contains(p.Skip, label)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}
