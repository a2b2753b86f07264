package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/tutor-engine/internal/domain"
)

// ErrClosed is returned by LogEvent after Close.
var ErrClosed = errors.New("audit sink closed")

const defaultQueueSize = 1000

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// FileSink appends events as NDJSON to one file per learner. Writes happen
// on a background worker; when the queue is full the oldest event is dropped.
type FileSink struct {
	dir    string
	queue  chan domain.AuditEvent
	logger *slog.Logger

	// mu guards closed; senders hold it for reading so Close cannot close
	// the queue under them.
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64

	done chan struct{}
}

// NewFileSink creates the directory and starts the writer.
func NewFileSink(dir string, queueSize int, logger *slog.Logger) (*FileSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return nil, errors.New("audit log directory is required")
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}

	s := &FileSink{
		dir:    dir,
		queue:  make(chan domain.AuditEvent, queueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// LogEvent queues event for writing. It never blocks.
func (s *FileSink) LogEvent(_ context.Context, event domain.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.queue <- event:
		return nil
	default:
	}

	// Queue full: drop the oldest queued event to make room.
	select {
	case <-s.queue:
		s.dropped.Add(1)
		s.logger.Warn("audit queue full, dropped oldest event")
	default:
	}
	select {
	case s.queue <- event:
		return nil
	default:
		return fmt.Errorf("audit queue full")
	}
}

func (s *FileSink) run() {
	defer close(s.done)
	for event := range s.queue {
		if err := s.write(event); err != nil {
			s.logger.Warn("failed to write audit event", "kind", event.Kind, "error", err)
		}
	}
}

func (s *FileSink) path(learnerID string) string {
	name := unsafeFileChars.ReplaceAllString(learnerID, "_")
	if name == "" {
		name = "_system"
	}
	return filepath.Join(s.dir, name+".ndjson")
}

func (s *FileSink) write(event domain.AuditEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	f, err := os.OpenFile(s.path(event.LearnerID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("write audit file: %w", err)
	}
	return f.Close()
}

// Dropped returns how many events were discarded under backpressure.
func (s *FileSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting events and waits up to five seconds for the queue
// to drain.
func (s *FileSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-time.After(5 * time.Second):
		s.logger.Warn("audit writer shutdown timeout", "remaining", len(s.queue))
		return errors.New("audit writer shutdown timeout")
	}
}
