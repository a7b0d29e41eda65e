package core

import (
	"context"
	"time"

	"sampletrack/internal/blob"
	"sampletrack/internal/infra/persistence/memory"
	"sampletrack/pkg/domain"
)

// Service is the sample quantity engine. Every mutating operation runs in a
// single store transaction and commits together with its history entries.
type Service struct {
	store   PersistentStore
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	blobs   blob.Store
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for operation timing and archive keys.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder sets the operation audit sink.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithBlobStore sets the blob store history archives are written to.
func WithBlobStore(store blob.Store) Option {
	return func(s *Service) {
		s.blobs = store
	}
}

func newService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		clock:   systemClock{},
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		audit:   noopAuditRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	return newService(store, opts...)
}

// NewInMemoryService creates a service over a fresh in-memory store. The
// store shares the service clock so record timestamps follow WithClock.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	s := newService(nil, opts...)
	s.store = memory.NewStore(engine, memory.WithClock(s.clock.Now))
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// run executes fn as one transaction named op.
func (s *Service) run(ctx context.Context, op string, fn func(Transaction) error) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	s.finish(ctx, op, start, res, err)
	span.End(err)
	return res, err
}

// view executes fn against a read-only snapshot.
func (s *Service) view(ctx context.Context, op string, fn func(Reader) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	err := s.store.View(ctx, fn)
	s.finish(ctx, op, start, Result{}, err)
	span.End(err)
	return err
}

func (s *Service) finish(ctx context.Context, op string, start time.Time, res Result, err error) {
	end := s.clock.Now()
	duration := end.Sub(start)
	actor := ActorFromContext(ctx)

	for _, v := range res.Violations {
		if v.Severity == SeverityBlock {
			continue
		}
		s.logger.Warn("rule violation",
			"operation", op,
			"rule", v.Rule,
			"severity", string(v.Severity),
			"entity", string(v.Entity),
			"entity_id", v.EntityID,
			"message", v.Message,
		)
	}

	entry := AuditEntry{
		Operation: op,
		Actor:     actor,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: end,
	}
	if err != nil {
		code := domain.CodeOf(err)
		entry.Status = AuditStatusError
		entry.Code = string(code)
		entry.Error = err.Error()
		if code == domain.CodeInvariantViolation || code == domain.CodeUnknown {
			s.logger.Error("operation failed", "operation", op, "actor", actor, "code", string(code), "error", err)
		} else {
			s.logger.Info("operation rejected", "operation", op, "actor", actor, "code", string(code), "error", err)
		}
	} else {
		s.logger.Debug("operation completed", "operation", op, "actor", actor, "duration", duration)
	}

	s.metrics.Observe(ctx, op, err == nil, duration)
	s.audit.Record(ctx, entry)
}
