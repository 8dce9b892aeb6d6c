package monitoring

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ProcessTracker follows one benchmark run: rows pushed into the stores and
// stages finished. Row updates come from loader progress callbacks during a
// stage and from the stage total once it ends, and may arrive from several
// goroutines.
type ProcessTracker struct {
	mu              sync.RWMutex
	totalRows       int64
	processedRows   int64
	totalStages     int
	completedStages int
	failedStages    int
	currentStage    string
	errors          []string
	startTime       time.Time
	lastUpdate      time.Time
	logger          Logger
}

// RunMetrics is a point-in-time view of a ProcessTracker.
type RunMetrics struct {
	TotalRows         int64         `json:"total_rows"`
	ProcessedRows     int64         `json:"processed_rows"`
	TotalStages       int           `json:"total_stages"`
	CompletedStages   int           `json:"completed_stages"`
	FailedStages      int           `json:"failed_stages"`
	RowsPerSecond     float64       `json:"rows_per_second"`
	EstimatedTimeLeft time.Duration `json:"estimated_time_left"`
	ElapsedTime       time.Duration `json:"elapsed_time"`
	CurrentStage      string        `json:"current_stage"`
	ErrorCount        int           `json:"error_count"`
	ProgressPercent   float64       `json:"progress_percent"`
}

// NewProgressTracker expects totalRows to be the number of rows the run plans
// to insert; zero disables the percentage and ETA.
func NewProgressTracker(totalRows int64, totalStages int, logger Logger) *ProcessTracker {
	if logger == nil {
		logger = NewMigrationLogger(nil, "progress")
	}
	now := time.Now()
	return &ProcessTracker{
		totalRows:   totalRows,
		totalStages: totalStages,
		startTime:   now,
		lastUpdate:  now,
		logger:      logger,
	}
}

// UpdateProgress adds rows to the processed count. It matches the loader's
// progress callback signature.
func (pt *ProcessTracker) UpdateProgress(rows int64) {
	atomic.AddInt64(&pt.processedRows, rows)
	pt.mu.Lock()
	pt.lastUpdate = time.Now()
	pt.mu.Unlock()
}

func (pt *ProcessTracker) SetCurrentStage(name string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.currentStage = name
}

// CompleteStage marks the current stage finished, failed when err is non-nil.
func (pt *ProcessTracker) CompleteStage(err error) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.completedStages++
	if err != nil {
		pt.failedStages++
		pt.errors = append(pt.errors, fmt.Sprintf("[%s] %s: %v", time.Now().Format("15:04:05"), pt.currentStage, err))
	}
	pt.currentStage = ""
}

func (pt *ProcessTracker) AddError(msg string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.errors = append(pt.errors, fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), msg))
}

func (pt *ProcessTracker) GetMetrics() RunMetrics {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	processed := atomic.LoadInt64(&pt.processedRows)
	elapsed := time.Since(pt.startTime)

	m := RunMetrics{
		TotalRows:       pt.totalRows,
		ProcessedRows:   processed,
		TotalStages:     pt.totalStages,
		CompletedStages: pt.completedStages,
		FailedStages:    pt.failedStages,
		ElapsedTime:     elapsed,
		CurrentStage:    pt.currentStage,
		ErrorCount:      len(pt.errors),
	}
	if pt.totalRows > 0 {
		m.ProgressPercent = float64(processed) / float64(pt.totalRows) * 100
	}
	if elapsed.Seconds() > 0 {
		m.RowsPerSecond = float64(processed) / elapsed.Seconds()
	}
	if m.RowsPerSecond > 0 && pt.totalRows > processed {
		m.EstimatedTimeLeft = time.Duration(float64(pt.totalRows-processed)/m.RowsPerSecond) * time.Second
	}
	return m
}

// GetRecentErrors returns at most limit errors, newest last.
func (pt *ProcessTracker) GetRecentErrors(limit int) []string {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	if limit <= 0 {
		return nil
	}
	start := 0
	if len(pt.errors) > limit {
		start = len(pt.errors) - limit
	}
	return append([]string(nil), pt.errors[start:]...)
}

func (pt *ProcessTracker) PrintProgress() {
	m := pt.GetMetrics()
	line := fmt.Sprintf("Progress: %.1f%% (%d/%d rows, %d/%d stages) | Speed: %.0f rows/sec | ETA: %s",
		m.ProgressPercent, m.ProcessedRows, m.TotalRows,
		m.CompletedStages, m.TotalStages, m.RowsPerSecond, formatDuration(m.EstimatedTimeLeft))
	if m.CurrentStage != "" {
		line += " | Current: " + m.CurrentStage
	}
	pt.logger.Printf("%s", line)
}

// StartProgressMonitor prints progress every interval until the returned
// channel is closed, then prints once more.
func (pt *ProcessTracker) StartProgressMonitor(interval time.Duration) chan<- struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				pt.PrintProgress()
			case <-stop:
				pt.PrintProgress()
				return
			}
		}
	}()
	return stop
}

func (pt *ProcessTracker) PrintFinalSummary(w io.Writer) {
	m := pt.GetMetrics()

	fmt.Fprintln(w, "\n===== Benchmark Summary =====")
	fmt.Fprintf(w, "Total Duration: %s\n", formatDuration(m.ElapsedTime))
	fmt.Fprintf(w, "Rows Inserted: %d / %d (%.1f%%)\n", m.ProcessedRows, m.TotalRows, m.ProgressPercent)
	fmt.Fprintf(w, "Stages: %d / %d (%d failed)\n", m.CompletedStages, m.TotalStages, m.FailedStages)
	fmt.Fprintf(w, "Average Speed: %.0f rows/sec (%.0f rows/min)\n", m.RowsPerSecond, m.RowsPerSecond*60)

	if m.ErrorCount > 0 {
		fmt.Fprintf(w, "Errors Encountered: %d\n", m.ErrorCount)
		for _, e := range pt.GetRecentErrors(5) {
			fmt.Fprintf(w, " - %s\n", e)
		}
	}
	fmt.Fprintln(w, "=============================")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
