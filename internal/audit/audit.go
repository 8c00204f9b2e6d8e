package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kenneth/clipboard-service/internal/config"
)

// Event is a single audit log record for one snippet operation.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	Operation string                 `json:"operation"`
	Owner     int64                  `json:"owner,omitempty"`
	SnippetID int64                  `json:"snippet_id,omitempty"`
	Size      int                    `json:"size,omitempty"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Logger records audit events for accept/process/access/search/delete.
type Logger interface {
	Log(ctx context.Context, event Event)
	GetEvents() []Event
	Close() error
}

// auditLogger implements Logger with an in-memory ring buffer plus a
// pluggable EventWriter sink.
type auditLogger struct {
	mu         sync.Mutex
	events     []Event
	maxEvents  int
	writer     EventWriter
	redactKeys []string
}

// EventWriter is the sink interface a Logger delivers events to.
type EventWriter interface {
	WriteEvent(event Event) error
}

// NewLogger builds a Logger writing to writer (stdout if nil), retaining
// up to maxEvents in its in-memory buffer.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	return NewLoggerWithRedaction(maxEvents, writer, nil)
}

// NewLoggerWithRedaction is NewLogger plus a list of metadata keys to
// replace with "[REDACTED]" before they reach the sink.
func NewLoggerWithRedaction(maxEvents int, writer EventWriter, redactKeys []string) Logger {
	if writer == nil {
		writer = &StdoutSink{}
	}
	return &auditLogger{
		events:     make([]Event, 0, maxEvents),
		maxEvents:  maxEvents,
		writer:     writer,
		redactKeys: redactKeys,
	}
}

// NewLoggerFromConfig builds a Logger from configuration, constructing
// and batch-wrapping the configured sink.
func NewLoggerFromConfig(cfg config.AuditConfig) (Logger, error) {
	if !cfg.Enabled {
		return NewLoggerWithRedaction(cfg.MaxEvents, &noopSink{}, cfg.RedactMetadataKeys), nil
	}

	var writer EventWriter
	switch cfg.Sink.Type {
	case "http":
		writer = NewHTTPSink(cfg.Sink.HTTPEndpoint, cfg.Sink.HTTPHeaders)
	case "file":
		writer = NewFileSink(cfg.Sink.FilePath)
	case "stdout", "":
		writer = &StdoutSink{}
	default:
		return nil, fmt.Errorf("audit: unknown sink type: %s", cfg.Sink.Type)
	}

	if cfg.Sink.BatchSize > 0 || cfg.Sink.FlushInterval > 0 {
		writer = NewBatchSink(writer, cfg.Sink.BatchSize, cfg.Sink.FlushInterval, cfg.Sink.RetryCount, cfg.Sink.RetryBackoff)
	}

	return NewLoggerWithRedaction(cfg.MaxEvents, writer, cfg.RedactMetadataKeys), nil
}

// Log records one event, delivering it to the sink and the in-memory buffer.
func (l *auditLogger) Log(ctx context.Context, event Event) {
	event.Timestamp = time.Now().UTC()
	event.Metadata = l.redactMetadata(event.Metadata)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		_ = l.writer.WriteEvent(event)
	}

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}
}

// Close releases the underlying writer's resources, if any.
func (l *auditLogger) Close() error {
	if closer, ok := l.writer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (l *auditLogger) redactMetadata(metadata map[string]interface{}) map[string]interface{} {
	if len(l.redactKeys) == 0 || len(metadata) == 0 {
		return metadata
	}

	needsRedaction := false
	for _, k := range l.redactKeys {
		if _, ok := metadata[k]; ok {
			needsRedaction = true
			break
		}
	}
	if !needsRedaction {
		return metadata
	}

	clone := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		clone[k] = v
	}
	for _, key := range l.redactKeys {
		if _, ok := clone[key]; ok {
			clone[key] = "[REDACTED]"
		}
	}
	return clone
}

// GetEvents returns a copy of the in-memory event buffer.
func (l *auditLogger) GetEvents() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]Event, len(l.events))
	copy(events, l.events)
	return events
}

// StdoutSink writes each event as a JSON line to stdout.
type StdoutSink struct{}

func (w *StdoutSink) WriteEvent(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

type noopSink struct{}

func (noopSink) WriteEvent(Event) error { return nil }
