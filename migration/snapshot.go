package migration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/database"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/monitoring"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/validation"
)

type DumpStatus string

const (
	StatusInProgress DumpStatus = "in_progress"
	StatusCompleted  DumpStatus = "completed"
	StatusFailed     DumpStatus = "failed"
	StatusRestored   DumpStatus = "restored"
)

// ErrNoSnapshot is returned when no completed dump is available to restore.
var ErrNoSnapshot = errors.New("no completed dump snapshot")

// DumpSnapshot describes one mysqldump file and the table sizes at the time
// it was taken.
type DumpSnapshot struct {
	ID          string           `json:"id"`
	Timestamp   time.Time        `json:"timestamp"`
	Database    string           `json:"database"`
	Tables      []string         `json:"tables"`
	File        string           `json:"file"`
	TableCounts map[string]int64 `json:"table_counts"`
	Status      DumpStatus       `json:"status"`
	Error       string           `json:"error,omitempty"`
}

// SnapshotManager keeps dump metadata as JSON files next to the dumps.
type SnapshotManager struct {
	counter      database.RowCounter
	snapshotsDir string
	logger       *monitoring.MigrationLogger
	now          func() time.Time
}

func NewSnapshotManager(dir string, counter database.RowCounter, logger *monitoring.MigrationLogger) (*SnapshotManager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if logger == nil {
		logger = monitoring.NewMigrationLogger(nil, "snapshots")
	}
	return &SnapshotManager{
		counter:      counter,
		snapshotsDir: dir,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// CreateSnapshot records the current row counts of tables and reserves a dump
// file path. The snapshot starts in progress.
func (sm *SnapshotManager) CreateSnapshot(ctx context.Context, databaseName string, tables []string) (*DumpSnapshot, error) {
	id := uuid.NewString()
	snapshot := &DumpSnapshot{
		ID:          id,
		Timestamp:   sm.now(),
		Database:    databaseName,
		Tables:      tables,
		File:        filepath.Join(sm.snapshotsDir, id+".sql"),
		TableCounts: make(map[string]int64, len(tables)),
		Status:      StatusInProgress,
	}

	for _, table := range tables {
		n, err := sm.counter.CountRows(ctx, table)
		if err != nil {
			sm.logger.Error("Failed to capture table state", fmt.Sprintf("Table: %s, Error: %v", table, err))
			continue
		}
		snapshot.TableCounts[table] = n
	}

	if err := sm.saveSnapshot(snapshot); err != nil {
		return nil, err
	}
	sm.logger.Info(fmt.Sprintf("Dump snapshot %s created for %s", id, databaseName))
	return snapshot, nil
}

func (sm *SnapshotManager) metaPath(id string) string {
	return filepath.Join(sm.snapshotsDir, id+".json")
}

func (sm *SnapshotManager) saveSnapshot(snapshot *DumpSnapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(sm.metaPath(snapshot.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return nil
}

func (sm *SnapshotManager) LoadSnapshot(id string) (*DumpSnapshot, error) {
	data, err := os.ReadFile(sm.metaPath(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	var snapshot DumpSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

func (sm *SnapshotManager) setStatus(id string, status DumpStatus, cause error) (*DumpSnapshot, error) {
	snapshot, err := sm.LoadSnapshot(id)
	if err != nil {
		return nil, err
	}
	snapshot.Status = status
	if cause != nil {
		snapshot.Error = cause.Error()
	}
	return snapshot, sm.saveSnapshot(snapshot)
}

func (sm *SnapshotManager) MarkSnapshotCompleted(id string) error {
	_, err := sm.setStatus(id, StatusCompleted, nil)
	return err
}

func (sm *SnapshotManager) MarkSnapshotFailed(id string, cause error) error {
	_, err := sm.setStatus(id, StatusFailed, cause)
	return err
}

func (sm *SnapshotManager) MarkSnapshotRestored(id string) error {
	_, err := sm.setStatus(id, StatusRestored, nil)
	return err
}

// ListSnapshots returns every readable snapshot, oldest first.
func (sm *SnapshotManager) ListSnapshots() ([]DumpSnapshot, error) {
	files, err := filepath.Glob(filepath.Join(sm.snapshotsDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list the snapshots: %w", err)
	}

	var snapshots []DumpSnapshot
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			log.Printf("Warning: could not read snapshot file %s: %v", file, err)
			continue
		}
		var snapshot DumpSnapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			log.Printf("Warning: could not parse snapshot file %s: %v", file, err)
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.Before(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

// LatestCompleted returns the newest snapshot whose dump finished.
func (sm *SnapshotManager) LatestCompleted() (*DumpSnapshot, error) {
	snapshots, err := sm.ListSnapshots()
	if err != nil {
		return nil, err
	}
	for i := len(snapshots) - 1; i >= 0; i-- {
		if snapshots[i].Status == StatusCompleted || snapshots[i].Status == StatusRestored {
			return &snapshots[i], nil
		}
	}
	return nil, ErrNoSnapshot
}

// VerifyRestore compares the current row counts with the ones recorded when
// the dump was taken.
func (sm *SnapshotManager) VerifyRestore(ctx context.Context, snapshot *DumpSnapshot) ([]validation.ValidationResult, error) {
	pre := make([]validation.ValidationResult, 0, len(snapshot.Tables))
	for _, table := range snapshot.Tables {
		n, ok := snapshot.TableCounts[table]
		pre = append(pre, validation.ValidationResult{Source: table, RowCount: n, IsValid: ok})
	}
	validator := validation.NewMigrationValidator(sm.counter, sm.counter)
	return validator.PostMigrationValidation(ctx, snapshot.Tables, pre)
}

// CleanupOldSnapshots removes finished snapshots and their dumps older than
// maxAge and returns how many were removed.
func (sm *SnapshotManager) CleanupOldSnapshots(maxAge time.Duration) (int, error) {
	snapshots, err := sm.ListSnapshots()
	if err != nil {
		return 0, err
	}
	cutoff := sm.now().Add(-maxAge)
	cleaned := 0

	for _, snapshot := range snapshots {
		if !snapshot.Timestamp.Before(cutoff) || snapshot.Status == StatusInProgress {
			continue
		}
		if err := os.Remove(sm.metaPath(snapshot.ID)); err != nil {
			log.Printf("Warning: could not remove snapshot %s: %v", snapshot.ID, err)
			continue
		}
		if err := os.Remove(snapshot.File); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("Warning: could not remove dump %s: %v", snapshot.File, err)
		}
		cleaned++
	}
	sm.logger.Info(fmt.Sprintf("Cleaned up %d old snapshots", cleaned))
	return cleaned, nil
}
