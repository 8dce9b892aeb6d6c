package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/config"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/generator"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/loader"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/monitoring"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/validation"
)

// TotalLabel is the timer label spanning the whole run.
const TotalLabel = "total_performance_test"

// DefaultProgressInterval is used when Engine.ProgressInterval is not positive.
const DefaultProgressInterval = 10 * time.Second

// Stage is one timed step of the benchmark.
type Stage struct {
	Label string
	Name  string
	// Inserts marks stages whose rows count towards the progress total.
	Inserts bool
	// Run returns the number of rows it moved.
	Run func(ctx context.Context) (int64, error)
}

type StageResult struct {
	Label    string
	Name     string
	Duration time.Duration
	Rows     int64
	Skipped  bool
	Err      error
}

// StageError ties a failure to the stage that produced it.
type StageError struct {
	Label string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Label, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// RunResult is the outcome of Engine.Run.
type RunResult struct {
	RunID     string
	Stages    []StageResult
	Checks    []validation.ValidationResult
	StartTime time.Time
	EndTime   time.Time
	Total     time.Duration
}

// Failed lists the labels of failed stages.
func (r *RunResult) Failed() []string {
	var labels []string
	for _, s := range r.Stages {
		if s.Err != nil {
			labels = append(labels, s.Label)
		}
	}
	return labels
}

// Err joins every stage failure, nil when all stages passed or were skipped.
func (r *RunResult) Err() error {
	var errs []error
	for _, s := range r.Stages {
		if s.Err != nil {
			errs = append(errs, &StageError{Label: s.Label, Err: s.Err})
		}
	}
	return errors.Join(errs...)
}

// Engine runs the benchmark stages in order against the configured stores.
type Engine struct {
	Config    *config.Config
	MySQL     RelationalStore
	Mongo     DocumentStore
	Postgres  BookStore
	Tools     Tools
	Generator *generator.Generator
	Snapshots *SnapshotManager
	Timer     *monitoring.Timer
	Tracker   *monitoring.ProcessTracker
	Logger    *monitoring.MigrationLogger
	RunID     string

	// Stdout receives the summaries printed at the end of a run.
	Stdout           io.Writer
	ProgressInterval time.Duration
	// PostgresOptions are passed to the PostgreSQL CSV load.
	PostgresOptions []loader.Option

	mu         sync.Mutex
	checks     []validation.ValidationResult
	batchFiles []string
	lastDump   *DumpSnapshot

	// counting is set while an insert stage runs; streamed holds the rows
	// that stage already reported through ReportRows.
	counting atomic.Bool
	streamed atomic.Int64
}

// NewEngine wires an engine with a fresh timer, generator and snapshot
// manager. Postgres stays nil until set by the caller.
func NewEngine(cfg *config.Config, mysql RelationalStore, mongo DocumentStore, tools Tools, logger *monitoring.MigrationLogger) (*Engine, error) {
	if logger == nil {
		logger = monitoring.NewMigrationLogger(nil, "engine")
	}

	var genOpts []generator.Option
	if cfg.Pipeline.Seed != 0 {
		genOpts = append(genOpts, generator.WithSeed(cfg.Pipeline.Seed))
	}

	snapshots, err := NewSnapshotManager(cfg.Paths.SnapshotDir, mysql, logger.With("snapshots"))
	if err != nil {
		return nil, err
	}

	return &Engine{
		Config:           cfg,
		MySQL:            mysql,
		Mongo:            mongo,
		Tools:            tools,
		Generator:        generator.New(genOpts...),
		Snapshots:        snapshots,
		Timer:            monitoring.NewTimer(logger.With("timer")),
		Logger:           logger,
		RunID:            uuid.NewString(),
		Stdout:           os.Stdout,
		ProgressInterval: DefaultProgressInterval,
	}, nil
}

// plannedRows estimates the rows the enabled insert stages will write, for
// the progress percentage.
func (e *Engine) plannedRows() int64 {
	p := e.Config.Pipeline
	planned := map[string]int{
		"insert_large_books_csv":   p.BooksCount,
		"stress_test_mysql":        p.StressCount,
		"insert_multiple_csv":      p.BatchFiles * p.BooksPerFile,
		"generate_insert_authors":  p.AuthorsCount,
		"generate_million_mongodb": p.MongoBooksCount,
		"import_to_mysql":          p.MongoBooksCount,
		"dual_insert":              2 * p.TestRecords,
		"postgres_books":           p.BooksCount,
	}
	var total int64
	for _, st := range e.Stages() {
		if st.Inserts && p.Enabled(st.Label) {
			total += int64(planned[st.Label])
		}
	}
	return total
}

// ReportRows feeds rows inserted so far into the progress tracker. It is
// meant for loader.WithProgress and only counts during insert stages.
func (e *Engine) ReportRows(n int64) {
	if !e.counting.Load() {
		return
	}
	e.streamed.Add(n)
	if tracker := e.Tracker; tracker != nil {
		tracker.UpdateProgress(n)
	}
}

// Run executes every enabled stage in order. A failed stage does not stop
// the run unless the pipeline sets StopOnError. The report and metrics files
// are written even when the run fails.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	stages := e.Stages()
	enabled := 0
	for _, st := range stages {
		if e.Config.Pipeline.Enabled(st.Label) {
			enabled++
		}
	}

	result := &RunResult{RunID: e.RunID, StartTime: time.Now()}
	e.Tracker = monitoring.NewProgressTracker(e.plannedRows(), enabled, e.Logger.With("progress"))
	interval := e.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	stop := e.Tracker.StartProgressMonitor(interval)
	if err := e.Timer.Start(TotalLabel); err != nil {
		close(stop)
		return result, err
	}
	e.Logger.Info(fmt.Sprintf("Starting benchmark run %s with %d stages", e.RunID, enabled))

	defer func() {
		close(stop)
		result.Total, _ = e.Timer.End(TotalLabel)
		result.EndTime = time.Now()
		result.Checks = e.Checks()

		if err := e.writeArtifacts(result); err != nil {
			e.Logger.Error("Failed to write run artifacts", err.Error())
		}
		validation.GenerateValidationSummary(result.Checks, result.StartTime).Fprint(e.Stdout, "Run")
		e.Tracker.PrintFinalSummary(e.Stdout)
	}()

	halted := false
	for _, st := range stages {
		sr := StageResult{Label: st.Label, Name: st.Name}
		if halted || !e.Config.Pipeline.Enabled(st.Label) {
			sr.Skipped = true
			result.Stages = append(result.Stages, sr)
			continue
		}
		if err := ctx.Err(); err != nil {
			sr.Err = err
			halted = true
			result.Stages = append(result.Stages, sr)
			continue
		}

		e.Tracker.SetCurrentStage(st.Name)
		e.Logger.Info("Starting stage: " + st.Name)

		e.streamed.Store(0)
		e.counting.Store(st.Inserts)
		var rows int64
		d, err := e.Timer.Time(st.Label, func() error {
			var runErr error
			rows, runErr = st.Run(ctx)
			return runErr
		})
		e.counting.Store(false)
		sr.Duration, sr.Rows, sr.Err = d, rows, err
		if rest := rows - e.streamed.Load(); st.Inserts && rest > 0 {
			e.Tracker.UpdateProgress(rest)
		}
		e.Tracker.CompleteStage(err)

		if err != nil {
			e.Logger.Error(fmt.Sprintf("Stage %s failed after %v", st.Name, d), err.Error())
			if e.Config.Pipeline.StopOnError {
				halted = true
			}
		} else {
			e.Logger.Info(fmt.Sprintf("Stage %s completed in %v (%d rows)", st.Name, d, rows))
		}
		result.Stages = append(result.Stages, sr)
	}

	return result, result.Err()
}

// Checks returns the row-count checks recorded so far.
func (e *Engine) Checks() []validation.ValidationResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]validation.ValidationResult(nil), e.checks...)
}

// recordChecks stores results and turns failed ones into an error, unless
// the pipeline tolerates batch errors.
func (e *Engine) recordChecks(results ...validation.ValidationResult) error {
	e.mu.Lock()
	e.checks = append(e.checks, results...)
	e.mu.Unlock()

	var errs []error
	for _, r := range results {
		if r.IsValid {
			continue
		}
		e.Logger.Warn(fmt.Sprintf("Check %s failed: %s", r.Name, r.ErrorMessage))
		errs = append(errs, fmt.Errorf("check %s: %s", r.Name, r.ErrorMessage))
	}
	if e.Config.Pipeline.ContinueOnBatchError {
		return nil
	}
	return errors.Join(errs...)
}

// BuildReport converts a run into the HTML report model.
func BuildReport(result *RunResult, reduced bool) monitoring.Report {
	report := monitoring.Report{
		Title:       "LibrosAutores Performance Report",
		RunID:       result.RunID,
		GeneratedAt: result.EndTime,
		Reduced:     reduced,
		Total:       result.Total,
	}
	for _, s := range result.Stages {
		sr := monitoring.StageReport{
			Label:    s.Label,
			Name:     s.Name,
			Duration: s.Duration,
			Skipped:  s.Skipped,
			Rows:     s.Rows,
		}
		if s.Err != nil {
			sr.Err = s.Err.Error()
		}
		report.Stages = append(report.Stages, sr)
	}
	for _, c := range result.Checks {
		report.Checks = append(report.Checks, monitoring.CheckReport{
			Name:     c.Name,
			Expected: c.Expected,
			Actual:   c.RowCount,
			OK:       c.IsValid,
			Message:  c.ErrorMessage,
		})
	}
	return report
}

type metricsFile struct {
	RunID   string                `json:"run_id"`
	Reduced bool                  `json:"reduced"`
	Failed  []string              `json:"failed_stages"`
	Timers  json.RawMessage       `json:"timers"`
	Run     monitoring.RunMetrics `json:"run"`
}

func (e *Engine) writeArtifacts(result *RunResult) error {
	var errs []error

	report := BuildReport(result, e.Config.Pipeline.Reduced)
	if err := monitoring.WriteReport(e.Config.Paths.ReportPath, report); err != nil {
		errs = append(errs, fmt.Errorf("write report: %w", err))
	} else {
		e.Logger.Info("Report written to " + e.Config.Paths.ReportPath)
	}

	timers, err := e.Timer.JSON()
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("encode timers: %w", err))...)
	}
	body, err := json.MarshalIndent(metricsFile{
		RunID:   result.RunID,
		Reduced: e.Config.Pipeline.Reduced,
		Failed:  result.Failed(),
		Timers:  timers,
		Run:     e.Tracker.GetMetrics(),
	}, "", "  ")
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("encode metrics: %w", err))...)
	}

	path := e.Config.Paths.MetricsPath
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Join(append(errs, err)...)
		}
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		errs = append(errs, fmt.Errorf("write metrics: %w", err))
	}
	return errors.Join(errs...)
}
