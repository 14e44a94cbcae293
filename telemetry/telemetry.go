// Package telemetry provides tracing and an event log for render batches.
//
// Spans come from OpenTelemetry (see InitProvider and Tracer). The Exporter
// in this file is a simpler channel: one JSON record per finished job or
// batch, written to a file or posted to an HTTP collector, so a run can be
// audited without a tracing backend.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"
)

// Event names written by the CLI.
const (
	EventJobDone      = "job.done"
	EventBatchDone    = "batch.done"
	EventLimitChanged = "limit.changed"
)

// Exporter is the interface for event exporters.
type Exporter interface {
	// LogEvent records an event with the given name and data.
	LogEvent(name string, data map[string]interface{})
	// Flush sends any buffered data.
	Flush() error
	// Close flushes and releases resources.
	Close() error
}

// Event is one exported record.
type Event struct {
	Name      string                 `json:"name"`
	Run       string                 `json:"run,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewExporter creates an exporter for protocol: "http" (endpoint is a URL),
// "file" (endpoint is a path), or "noop".
func NewExporter(protocol, endpoint, run string) (Exporter, error) {
	switch protocol {
	case "http":
		if endpoint == "" {
			return nil, fmt.Errorf("http exporter requires an endpoint")
		}
		return NewHTTPExporter(HTTPExporterConfig{Endpoint: endpoint, Run: run}), nil
	case "file":
		return NewFileExporter(endpoint, run)
	case "noop", "":
		return NewNoopExporter(), nil
	default:
		return nil, fmt.Errorf("unknown event protocol: %s", protocol)
	}
}

// --- HTTP Exporter ---

// HTTPExporterConfig configures an HTTPExporter.
type HTTPExporterConfig struct {
	Endpoint string

	// Run tags every event.
	Run string

	// BatchSize triggers a flush when this many events are buffered.
	// Default: 100
	BatchSize int

	// Timeout bounds each POST. Default: 10s
	Timeout time.Duration
}

// HTTPExporter posts buffered events as a JSON array.
type HTTPExporter struct {
	config HTTPExporterConfig
	client *http.Client

	mu     sync.Mutex
	buffer []Event
}

// NewHTTPExporter creates a new HTTP exporter.
func NewHTTPExporter(cfg HTTPExporterConfig) *HTTPExporter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPExporter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		buffer: make([]Event, 0, cfg.BatchSize),
	}
}

func (e *HTTPExporter) LogEvent(name string, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer = append(e.buffer, Event{
		Name:      name,
		Run:       e.config.Run,
		Timestamp: time.Now(),
		Data:      data,
	})
	if len(e.buffer) >= e.config.BatchSize {
		_ = e.flush()
	}
}

func (e *HTTPExporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flush()
}

func (e *HTTPExporter) flush() error {
	if len(e.buffer) == 0 {
		return nil
	}

	data, err := json.Marshal(e.buffer)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("event endpoint returned %d", resp.StatusCode)
	}

	e.buffer = e.buffer[:0]
	return nil
}

func (e *HTTPExporter) Close() error {
	return e.Flush()
}

// --- File Exporter ---

// FileExporter appends events to a file as JSON lines.
type FileExporter struct {
	run string

	mu   sync.Mutex
	file *os.File
}

// NewFileExporter opens path for appending.
func NewFileExporter(path, run string) (*FileExporter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event file: %w", err)
	}
	return &FileExporter{file: file, run: run}, nil
}

func (e *FileExporter) LogEvent(name string, data map[string]interface{}) {
	line, err := json.Marshal(Event{
		Name:      name,
		Run:       e.run,
		Timestamp: time.Now(),
		Data:      data,
	})
	if err != nil {
		return
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	_, _ = e.file.Write(line)
}

func (e *FileExporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file.Sync()
}

func (e *FileExporter) Close() error {
	_ = e.Flush()
	return e.file.Close()
}

// --- Noop Exporter ---

// NoopExporter discards all events.
type NoopExporter struct{}

// NewNoopExporter creates a new noop exporter.
func NewNoopExporter() *NoopExporter {
	return &NoopExporter{}
}

func (e *NoopExporter) LogEvent(name string, data map[string]interface{}) {}
func (e *NoopExporter) Flush() error                                      { return nil }
func (e *NoopExporter) Close() error                                      { return nil }
