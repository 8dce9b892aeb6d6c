package validation

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/csvcodec"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/database"
)

// ValidationResult is the outcome of one row-count check.
type ValidationResult struct {
	Name         string
	Source       string
	Target       string
	Expected     int64
	RowCount     int64
	IsValid      bool
	ErrorMessage string
	TimeStamp    time.Time
}

// MigrationValidator compares row counts before and after data moves
// between stores.
type MigrationValidator struct {
	SourceClient database.RowCounter
	TargetClient database.RowCounter
	// TargetNames maps a source table to its name in the target, for example
	// Libro to the Libros collection. Unmapped tables keep their name.
	TargetNames map[string]string
}

func NewMigrationValidator(source, target database.RowCounter) *MigrationValidator {
	return &MigrationValidator{
		SourceClient: source,
		TargetClient: target,
		TargetNames:  make(map[string]string),
	}
}

func (m *MigrationValidator) targetName(table string) string {
	if name, ok := m.TargetNames[table]; ok {
		return name
	}
	return table
}

// PreMigrationValidation records the source row count of every table.
func (m *MigrationValidator) PreMigrationValidation(ctx context.Context, tables []string) ([]ValidationResult, error) {
	log.Println("Starting pre-migration validation...")

	results := make([]ValidationResult, 0, len(tables))
	for _, table := range tables {
		result := ValidationResult{
			Name:      "pre " + table,
			Source:    table,
			TimeStamp: time.Now(),
		}
		n, err := m.SourceClient.CountRows(ctx, table)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			result.ErrorMessage = fmt.Sprintf("failed to count source table %s: %v", table, err)
			results = append(results, result)
			continue
		}
		result.RowCount = n
		result.Expected = n
		result.IsValid = true
		log.Printf("Pre-validation: table %s contains %d rows", table, n)
		results = append(results, result)
	}
	return results, nil
}

// PostMigrationValidation checks that every table reached the target with
// the row count recorded before the migration.
func (m *MigrationValidator) PostMigrationValidation(ctx context.Context, tables []string, pre []ValidationResult) ([]ValidationResult, error) {
	log.Println("Starting post-migration validation...")

	preByTable := make(map[string]ValidationResult, len(pre))
	for _, r := range pre {
		preByTable[r.Source] = r
	}

	results := make([]ValidationResult, 0, len(tables))
	for _, table := range tables {
		target := m.targetName(table)
		result := ValidationResult{
			Name:      fmt.Sprintf("%s -> %s", table, target),
			Source:    table,
			Target:    target,
			TimeStamp: time.Now(),
		}

		preResult, ok := preByTable[table]
		if !ok || !preResult.IsValid {
			result.ErrorMessage = fmt.Sprintf("no pre-migration count for table %s", table)
			results = append(results, result)
			continue
		}
		result.Expected = preResult.RowCount

		n, err := m.TargetClient.CountRows(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			result.ErrorMessage = fmt.Sprintf("failed to count target %s: %v", target, err)
			results = append(results, result)
			continue
		}
		result.RowCount = n

		if n != preResult.RowCount {
			result.ErrorMessage = fmt.Sprintf("row count mismatch, expected source: %d, got target: %d", preResult.RowCount, n)
			results = append(results, result)
			continue
		}
		result.IsValid = true
		log.Printf("Post-validation: %s matches with %d rows", result.Name, n)
		results = append(results, result)
	}
	return results, nil
}

// ValidateCSVLoad checks that table grew by the number of data rows in the
// CSV files at paths. baseline is the table's count before the load.
func ValidateCSVLoad(ctx context.Context, counter database.RowCounter, table string, baseline int64, paths ...string) ValidationResult {
	source := fmt.Sprintf("%d files", len(paths))
	if len(paths) == 1 {
		source = paths[0]
	}
	result := ValidationResult{
		Name:      fmt.Sprintf("%s -> %s", source, table),
		Source:    source,
		Target:    table,
		TimeStamp: time.Now(),
	}

	var rows int64
	for _, path := range paths {
		n, err := csvcodec.CountDataRows(path)
		if err != nil {
			result.ErrorMessage = fmt.Sprintf("failed to count rows of %s: %v", path, err)
			return result
		}
		rows += int64(n)
	}
	return checkCount(ctx, counter, result, baseline+rows)
}

// ValidateCount checks that name holds exactly expected rows.
func ValidateCount(ctx context.Context, counter database.RowCounter, name string, expected int64) ValidationResult {
	result := ValidationResult{
		Name:      "count " + name,
		Target:    name,
		TimeStamp: time.Now(),
	}
	return checkCount(ctx, counter, result, expected)
}

func checkCount(ctx context.Context, counter database.RowCounter, result ValidationResult, expected int64) ValidationResult {
	result.Expected = expected
	n, err := counter.CountRows(ctx, result.Target)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to count %s: %v", result.Target, err)
		return result
	}
	result.RowCount = n

	if n != expected {
		result.ErrorMessage = fmt.Sprintf("row count mismatch, expected: %d, got: %d", expected, n)
		return result
	}
	result.IsValid = true
	return result
}

type ValidationSummary struct {
	TotalChecks    int
	ValidChecks    int
	InvalidChecks  int
	TotalRows      int64
	ValidationTime time.Duration
	Errors         []string
}

// GenerateValidationSummary aggregates results checked since startTime.
func GenerateValidationSummary(results []ValidationResult, startTime time.Time) ValidationSummary {
	summary := ValidationSummary{
		TotalChecks:    len(results),
		ValidationTime: time.Since(startTime),
		Errors:         make([]string, 0),
	}

	for _, result := range results {
		summary.TotalRows += result.RowCount
		if result.IsValid {
			summary.ValidChecks++
		} else {
			summary.InvalidChecks++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", result.Name, result.ErrorMessage))
		}
	}
	return summary
}

// Print writes the summary to stdout.
func (s ValidationSummary) Print(phase string) {
	s.Fprint(os.Stdout, phase)
}

func (s ValidationSummary) Fprint(w io.Writer, phase string) {
	fmt.Fprintf(w, "\n== %s Validation Summary ==\n", phase)
	fmt.Fprintf(w, "Total Checks: %d\n", s.TotalChecks)
	fmt.Fprintf(w, "Valid Checks: %d\n", s.ValidChecks)
	fmt.Fprintf(w, "Invalid Checks: %d\n", s.InvalidChecks)
	fmt.Fprintf(w, "Total Rows: %d\n", s.TotalRows)
	fmt.Fprintf(w, "Validation Time: %v\n", s.ValidationTime)

	if len(s.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, err := range s.Errors {
			fmt.Fprintf(w, "- %s\n", err)
		}
	}
	fmt.Fprintln(w, "--------------")
}
