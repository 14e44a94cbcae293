// Package logging provides real-time log output for render batches.
// Lines are plain text for a terminal or a log collector; the event
// exporter in telemetry is the machine-readable record.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// ParseLevel maps a case-insensitive name to a Level. Unknown names are INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger provides structured logging to stdout.
// A nil *Logger discards everything, so callers may leave it unset.
type Logger struct {
	mu        *sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	runID     string
	now       func() time.Time
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		output:   os.Stdout,
		minLevel: LevelInfo,
		now:      time.Now,
	}
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	l := New()
	l.output = io.Discard
	return l
}

func (l *Logger) clone() *Logger {
	c := *l
	return &c
}

// WithComponent returns a new logger with the given component name.
// Derived loggers share the parent's output lock.
func (l *Logger) WithComponent(component string) *Logger {
	if l == nil {
		return nil
	}
	c := l.clone()
	c.component = component
	return c
}

// WithRunID returns a new logger that tags every line with run=id.
func (l *Logger) WithRunID(id string) *Logger {
	if l == nil {
		return nil
	}
	c := l.clone()
	c.runID = id
	return c
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Enabled reports whether level would be written.
func (l *Logger) Enabled(level Level) bool {
	return l != nil && levelPriority[level] >= levelPriority[l.minLevel]
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats fields as key=value pairs in key order.
// Values containing spaces are quoted.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := fmt.Sprintf("%v", fields[k])
		if strings.ContainsAny(v, " \t\n\"") {
			v = fmt.Sprintf("%q", v)
		}
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(v)
	}
	return b.String()
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if !l.Enabled(level) {
		return
	}

	timestamp := l.now().UTC().Format("2006-01-02T15:04:05.000Z")

	merged := map[string]interface{}{}
	if len(fields) > 0 {
		for k, v := range fields[0] {
			merged[k] = v
		}
	}
	if l.runID != "" {
		merged["run"] = l.runID
	}
	fieldStr := formatFields(merged)

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Scheduler event helpers ---

// BatchStart logs the start of a batch.
func (l *Logger) BatchStart(batch string, jobs, limit, rpm int) {
	l.Info("batch_start", map[string]interface{}{
		"batch": batch,
		"jobs":  jobs,
		"limit": limit,
		"rpm":   rpm,
	})
}

// BatchComplete logs the end of a batch with its counters.
func (l *Logger) BatchComplete(batch string, duration time.Duration, succeeded, skipped, failed, throttled int) {
	fields := map[string]interface{}{
		"batch":     batch,
		"duration":  duration.Round(time.Millisecond).String(),
		"succeeded": succeeded,
		"skipped":   skipped,
		"failed":    failed,
		"throttled": throttled,
	}
	if failed > 0 {
		l.Warn("batch_complete", fields)
		return
	}
	l.Info("batch_complete", fields)
}

// JobSkipped logs a job whose artifact already exists.
func (l *Logger) JobSkipped(job, artifact string) {
	l.Debug("job_skipped", map[string]interface{}{
		"job":      job,
		"artifact": artifact,
	})
}

// JobSucceeded logs a rendered and stored artifact.
func (l *Logger) JobSucceeded(job string, attempts int, duration time.Duration) {
	l.Info("job_succeeded", map[string]interface{}{
		"job":      job,
		"attempts": attempts,
		"duration": duration.Round(time.Millisecond).String(),
	})
}

// JobThrottled logs a rate-limited attempt and the limit it caused.
func (l *Logger) JobThrottled(job string, attempt, limit int) {
	l.Warn("job_throttled", map[string]interface{}{
		"job":     job,
		"attempt": attempt,
		"limit":   limit,
	})
}

// JobRetry logs a scheduled retry.
func (l *Logger) JobRetry(job string, attempt int, kind string, delay time.Duration, err error) {
	fields := map[string]interface{}{
		"job":     job,
		"attempt": attempt,
		"kind":    kind,
		"delay":   delay.Round(time.Millisecond).String(),
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Info("job_retry", fields)
}

// JobFailed logs a job that reached a failed terminal state.
func (l *Logger) JobFailed(job, outcome string, attempts int, err error) {
	fields := map[string]interface{}{
		"job":      job,
		"outcome":  outcome,
		"attempts": attempts,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error("job_failed", fields)
}

// LimitChanged logs a concurrency limit adjustment.
func (l *Logger) LimitChanged(old, new int, reason string) {
	l.Info("limit_changed", map[string]interface{}{
		"old":    old,
		"new":    new,
		"reason": reason,
	})
}
