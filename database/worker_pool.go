package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// DefaultWorkers is the number of files loaded at the same time.
const DefaultWorkers = 4

// LoadFunc loads one file and returns the rows it inserted.
type LoadFunc func(ctx context.Context, path string) (int64, error)

// FileJob is one file waiting for a worker.
type FileJob struct {
	Index int
	Path  string
}

// FileResult is the outcome of loading one file.
type FileResult struct {
	Index    int
	Path     string
	Inserted int64
	Err      error
}

// WorkerPool loads files concurrently with a fixed number of workers.
type WorkerPool struct {
	numWorkers int
	load       LoadFunc
	jobs       chan FileJob
	results    chan FileResult
	wg         sync.WaitGroup
}

func NewWorkerPool(numWorkers int, load LoadFunc) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}
	return &WorkerPool{
		numWorkers: numWorkers,
		load:       load,
		jobs:       make(chan FileJob, numWorkers*2),
		results:    make(chan FileResult, numWorkers*2),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for job := range wp.jobs {
		result := FileResult{Index: job.Index, Path: job.Path}
		if err := ctx.Err(); err != nil {
			result.Err = err
		} else {
			log.Printf("Worker %d loading file: %s", id, job.Path)
			result.Inserted, result.Err = wp.load(ctx, job.Path)
		}
		wp.results <- result
	}
}

func (wp *WorkerPool) SubmitJob(job FileJob) {
	wp.jobs <- job
}

// Close stops accepting jobs, waits for the workers and closes the results.
func (wp *WorkerPool) Close() {
	close(wp.jobs)
	wp.wg.Wait()
	close(wp.results)
}

func (wp *WorkerPool) GetResults() <-chan FileResult {
	return wp.results
}

// LoadFilesWithWorkerPool loads every file and returns the results in input
// order. The error joins every failed file; files that succeeded still count.
func LoadFilesWithWorkerPool(ctx context.Context, files []string, numWorkers int, load LoadFunc) ([]FileResult, error) {
	if len(files) == 0 {
		return nil, errors.New("no files to load")
	}

	wp := NewWorkerPool(numWorkers, load)
	wp.Start(ctx)

	go func() {
		for i, path := range files {
			wp.SubmitJob(FileJob{Index: i, Path: path})
		}
		wp.Close()
	}()

	results := make([]FileResult, len(files))
	var errs []error
	for result := range wp.GetResults() {
		results[result.Index] = result
		if result.Err != nil {
			errs = append(errs, fmt.Errorf("error loading file %s: %w", result.Path, result.Err))
			continue
		}
		log.Printf("Completed loading file %s: %d rows", result.Path, result.Inserted)
	}
	return results, errors.Join(errs...)
}

// TotalInserted sums the rows inserted over results.
func TotalInserted(results []FileResult) int64 {
	var total int64
	for _, r := range results {
		total += r.Inserted
	}
	return total
}

// ProcessInBatches calls process with consecutive slices of at most batchSize
// items and stops at the first error.
func ProcessInBatches[T any](items []T, batchSize int, process func(batch []T) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	for i := 0; i < len(items); i += batchSize {
		end := min(i+batchSize, len(items))
		if err := process(items[i:end]); err != nil {
			return fmt.Errorf("failed to process the batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}
