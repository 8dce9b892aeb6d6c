package monitoring

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// ErrLabelRequired is returned by Start for an empty label.
var ErrLabelRequired = errors.New("timer label is required")

// TimerNotStartedError is returned by End for a label that was never started.
type TimerNotStartedError struct {
	Label string
}

func (e *TimerNotStartedError) Error() string {
	return fmt.Sprintf("timer with label %q not found or not started", e.Label)
}

// TimerEntry is one measured span. End and Duration stay zero until End is
// called.
type TimerEntry struct {
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// Done reports whether End has been called since the last Start.
func (e TimerEntry) Done() bool {
	return !e.End.IsZero()
}

// Timer is a named stopwatch map. Starting a label that is already running
// replaces its start time.
type Timer struct {
	mu      sync.Mutex
	entries map[string]TimerEntry
	order   []string
	logger  Logger
	now     func() time.Time
}

// NewTimer logs completed spans to logger, or to the standard logger when nil.
func NewTimer(logger Logger) *Timer {
	if logger == nil {
		logger = log.Default()
	}
	return &Timer{
		entries: make(map[string]TimerEntry),
		logger:  logger,
		now:     time.Now,
	}
}

func (t *Timer) Start(label string) error {
	if label == "" {
		return ErrLabelRequired
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, seen := t.entries[label]; !seen {
		t.order = append(t.order, label)
	}
	t.entries[label] = TimerEntry{Start: t.now()}
	return nil
}

// End stops label, stores and logs its duration.
func (t *Timer) End(label string) (time.Duration, error) {
	t.mu.Lock()
	entry, ok := t.entries[label]
	if !ok || label == "" {
		t.mu.Unlock()
		return 0, &TimerNotStartedError{Label: label}
	}
	entry.End = t.now()
	entry.Duration = entry.End.Sub(entry.Start)
	t.entries[label] = entry
	t.mu.Unlock()

	t.logger.Printf("[%s] Completed in %d ms", label, entry.Duration.Milliseconds())
	return entry.Duration, nil
}

// Time runs fn between Start and End of label. The span is closed even when
// fn fails.
func (t *Timer) Time(label string, fn func() error) (time.Duration, error) {
	if err := t.Start(label); err != nil {
		return 0, err
	}
	fnErr := fn()
	d, err := t.End(label)
	if fnErr != nil {
		return d, fnErr
	}
	return d, err
}

// Metrics returns a copy of every entry.
func (t *Timer) Metrics() map[string]TimerEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]TimerEntry, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// Labels returns the labels in the order they were first started.
func (t *Timer) Labels() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.order...)
}

// Duration returns the measured duration of label, false when label is
// unknown or still running.
func (t *Timer) Duration(label string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[label]
	if !ok || !entry.Done() {
		return 0, false
	}
	return entry.Duration, true
}

func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]TimerEntry)
	t.order = nil
}

type timerJSON struct {
	Start      time.Time  `json:"startTime"`
	End        *time.Time `json:"endTime"`
	DurationMS *int64     `json:"duration"`
}

// JSON renders the entries keyed by label with millisecond durations.
// Running spans have null endTime and duration.
func (t *Timer) JSON() ([]byte, error) {
	t.mu.Lock()
	out := make(map[string]timerJSON, len(t.entries))
	for label, e := range t.entries {
		j := timerJSON{Start: e.Start}
		if e.Done() {
			end := e.End
			ms := e.Duration.Milliseconds()
			j.End = &end
			j.DurationMS = &ms
		}
		out[label] = j
	}
	t.mu.Unlock()

	return json.MarshalIndent(out, "", "  ")
}
