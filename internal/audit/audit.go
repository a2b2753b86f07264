// Package audit provides best-effort sinks for audit events.
package audit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ashureev/tutor-engine/internal/domain"
	"github.com/ashureev/tutor-engine/internal/store"
)

// Sink receives audit events. Implementations must be safe for concurrent use.
type Sink interface {
	LogEvent(ctx context.Context, event domain.AuditEvent) error
	Close() error
}

// Noop discards all events.
type Noop struct{}

// LogEvent implements Sink.
func (Noop) LogEvent(context.Context, domain.AuditEvent) error { return nil }

// Close implements Sink.
func (Noop) Close() error { return nil }

// StoreSink writes events to the audit_events table.
type StoreSink struct {
	w store.EventWriter
}

// NewStoreSink wraps w.
func NewStoreSink(w store.EventWriter) *StoreSink {
	return &StoreSink{w: w}
}

// LogEvent implements Sink.
func (s *StoreSink) LogEvent(ctx context.Context, event domain.AuditEvent) error {
	return s.w.LogEvent(ctx, event)
}

// Close implements Sink. The underlying store is owned by the caller.
func (s *StoreSink) Close() error { return nil }

// Fanout sends each event to every sink.
type Fanout []Sink

// LogEvent implements Sink. All sinks are attempted; errors are joined.
func (f Fanout) LogEvent(ctx context.Context, event domain.AuditEvent) error {
	var errs []error
	for _, s := range f {
		if err := s.LogEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Sink.
func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config selects the enabled sinks.
type Config struct {
	FileEnabled  bool
	Dir          string
	QueueSize    int
	StoreEnabled bool
}

// New builds the sink described by cfg. It returns Noop when nothing is enabled.
func New(cfg Config, events store.EventWriter, logger *slog.Logger) (Sink, error) {
	var sinks Fanout
	if cfg.FileEnabled {
		fs, err := NewFileSink(cfg.Dir, cfg.QueueSize, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}
	if cfg.StoreEnabled && events != nil {
		sinks = append(sinks, NewStoreSink(events))
	}

	switch len(sinks) {
	case 0:
		return Noop{}, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}
