// Package history keeps a bounded, oldest-first ring of host metrics records
// and persists it to durable storage. Storage problems never reach the
// caller: a failed load leaves the buffer empty and a failed flush keeps
// the in-memory records.
package history

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vitalis-app/dockdash/internal/models"
	"github.com/vitalis-app/dockdash/internal/telemetry"
)

// DefaultCapacity holds 8 hours of records at a 2 second cadence.
const DefaultCapacity = 14400

// Persister reads and writes the whole history as one ordered sequence.
type Persister interface {
	// Load returns the persisted records oldest-first. Missing storage is
	// not an error and yields no records.
	Load(ctx context.Context) ([]models.HostMetrics, error)

	// Save atomically replaces the persisted records.
	Save(ctx context.Context, records []models.HostMetrics) error

	Close() error
}

// Persistence backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// OpenPersister creates the persister for backend at path.
func OpenPersister(backend, path string) (Persister, error) {
	switch backend {
	case BackendFile, "":
		return NewFilePersister(path), nil
	case BackendSQLite:
		return NewSQLitePersister(path)
	default:
		return nil, fmt.Errorf("unknown history backend %q", backend)
	}
}

// Open creates a store persisted by backend at path. When the persister
// cannot be opened the error is logged and a memory-only store is returned,
// so storage problems never stop the dashboard.
func Open(backend, path string, capacity int, logger *zap.Logger, metrics *telemetry.Metrics) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	persister, err := OpenPersister(backend, path)
	if err != nil {
		logger.Error("History storage unavailable, keeping history in memory only",
			zap.String("backend", backend),
			zap.String("path", path),
			zap.Error(err))
		return New(capacity, nil, logger, metrics)
	}
	return New(capacity, persister, logger, metrics)
}

// recoverer is implemented by persisters that replaced unusable storage
// when they were opened.
type recoverer interface {
	Recovered() (string, error)
}

// Store is a fixed-capacity FIFO ring of host records.
// All methods are safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	ring  []models.HostMetrics
	head  int // index of the oldest record
	count int

	persister Persister
	logger    *zap.Logger
	metrics   *telemetry.Metrics
}

// New creates an empty store. capacity <= 0 selects DefaultCapacity.
// persister may be nil for a memory-only store; logger and metrics may be nil.
func New(capacity int, persister Persister, logger *zap.Logger, metrics *telemetry.Metrics) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		ring:      make([]models.HostMetrics, capacity),
		persister: persister,
		logger:    logger,
		metrics:   metrics,
	}
}

// Capacity returns the maximum number of records held.
func (s *Store) Capacity() int { return len(s.ring) }

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Append adds a record at the tail, evicting the oldest one when full.
func (s *Store) Append(record models.HostMetrics) {
	s.mu.Lock()
	s.appendLocked(record)
	n := s.count
	s.mu.Unlock()

	s.metrics.SetHistoryRecords(n)
}

// Must be called with s.mu held.
func (s *Store) appendLocked(record models.HostMetrics) {
	capacity := len(s.ring)
	if s.count < capacity {
		s.ring[(s.head+s.count)%capacity] = record
		s.count++
		return
	}
	s.ring[s.head] = record
	s.head = (s.head + 1) % capacity
}

// All returns a copy of the buffer, oldest first.
func (s *Store) All() []models.HostMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Must be called with s.mu held (read or write).
func (s *Store) snapshotLocked() []models.HostMetrics {
	out := make([]models.HostMetrics, s.count)
	capacity := len(s.ring)
	for i := 0; i < s.count; i++ {
		out[i] = s.ring[(s.head+i)%capacity]
	}
	return out
}

// Load replaces the buffer with the persisted records, keeping the newest
// Capacity() of them. Absent or unreadable storage leaves the buffer empty.
func (s *Store) Load(ctx context.Context) {
	if s.persister == nil {
		return
	}

	if r, ok := s.persister.(recoverer); ok {
		if aside, cause := r.Recovered(); aside != "" {
			s.logger.Warn("History storage was unusable and has been moved aside, starting empty",
				zap.String("moved_to", aside),
				zap.Error(cause))
		}
	}

	records, err := s.persister.Load(ctx)

	s.mu.Lock()
	s.head, s.count = 0, 0
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("Failed to load history, starting empty", zap.Error(err))
		s.metrics.SetHistoryRecords(0)
		return
	}
	if skip := len(records) - len(s.ring); skip > 0 {
		records = records[skip:]
	}
	for _, r := range records {
		s.appendLocked(r)
	}
	n := s.count
	s.mu.Unlock()

	s.metrics.SetHistoryRecords(n)
	s.logger.Info("Loaded history", zap.Int("records", n))
}

// Flush writes the whole buffer to durable storage. Failures are logged and
// reported; the in-memory buffer is left untouched either way.
func (s *Store) Flush(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}

	records := s.All()
	if err := s.persister.Save(ctx, records); err != nil {
		s.metrics.FlushFailed()
		s.logger.Error("Failed to flush history", zap.Int("records", len(records)), zap.Error(err))
		return err
	}
	s.logger.Debug("Flushed history", zap.Int("records", len(records)))
	return nil
}

// Close releases the persister.
func (s *Store) Close() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Close()
}
