package monitoring

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Logger is the printf-style sink used by the timer and the tracker.
// *log.Logger and *MigrationLogger both satisfy it.
type Logger interface {
	Printf(format string, args ...any)
}

// MigrationLogger prefixes every line with a level and the component name.
type MigrationLogger struct {
	out       *log.Logger
	component string
}

// NewMigrationLogger writes to w, or to stderr when w is nil.
func NewMigrationLogger(w io.Writer, component string) *MigrationLogger {
	if w == nil {
		w = os.Stderr
	}
	return &MigrationLogger{
		out:       log.New(w, "", log.LstdFlags),
		component: component,
	}
}

// With returns a logger for a sub-component sharing the same output.
func (l *MigrationLogger) With(component string) *MigrationLogger {
	name := component
	if l.component != "" {
		name = l.component + "." + component
	}
	return &MigrationLogger{out: l.out, component: name}
}

func (l *MigrationLogger) Info(msg string) {
	l.write("INFO", msg)
}

func (l *MigrationLogger) Warn(msg string) {
	l.write("WARN", msg)
}

// Error logs msg with an optional detail line, usually err.Error().
func (l *MigrationLogger) Error(msg, detail string) {
	if detail != "" {
		msg = msg + ": " + detail
	}
	l.write("ERROR", msg)
}

func (l *MigrationLogger) Printf(format string, args ...any) {
	l.write("INFO", fmt.Sprintf(format, args...))
}

func (l *MigrationLogger) write(level, msg string) {
	if l.component != "" {
		l.out.Printf("[%s] %s: %s", level, l.component, msg)
		return
	}
	l.out.Printf("[%s] %s", level, msg)
}
