// Package messaging implements the trigger queue: the per-user lane
// dispatcher that consumes triggers and the event bus that fans out
// resulting domain events.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// Consumes triggers with at-least-once semantics:
// - Lanes: triggers hash onto a fixed lane by user id, one goroutine
//   per lane, so all work for one user runs serialized and in enqueue
//   order while different users proceed in parallel.
// - Retry with exponential backoff for retryable failures.
// - Dead letter queue for triggers that exhaust their retry budget or
//   fail permanently.
// ══════════════════════════════════════════════════════════════════════════════

// TriggerHandler processes one dequeued trigger. A nil return
// acknowledges it; a retryable error redelivers it on the same lane.
type TriggerHandler func(ctx context.Context, trg shared.Trigger) error

// ErrDispatcherClosed is returned by Enqueue after Stop.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// DispatcherConfig configures the Dispatcher.
type DispatcherConfig struct {
	// LaneCount is the number of serial lanes. More lanes mean more
	// cross-user parallelism; per-user ordering holds at any count.
	LaneCount int

	// LaneBuffer is the queue depth per lane. Enqueue blocks when the
	// user's lane is full.
	LaneBuffer int

	// JobTimeout bounds a single processing attempt.
	JobTimeout time.Duration

	// RetryConfig configures redelivery of failed triggers.
	RetryConfig retry.Config

	// DeadLetterQueueSize caps the DLQ; oldest entries are evicted.
	DeadLetterQueueSize int

	Logger *slog.Logger
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		LaneCount:  8,
		LaneBuffer: 256,
		JobTimeout: 30 * time.Second,
		RetryConfig: retry.Config{
			MaxAttempts:  4,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
		},
		DeadLetterQueueSize: 1000,
	}
}

type job struct {
	trigger    shared.Trigger
	enqueuedAt time.Time
}

// Dispatcher routes triggers onto per-user lanes.
type Dispatcher struct {
	handler     TriggerHandler
	lanes       []chan job
	jobTimeout  time.Duration
	retryConfig retry.Config
	deadLetterQ *DeadLetterQueue
	metrics     *Metrics
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher that feeds triggers to handler.
func NewDispatcher(handler TriggerHandler, config DispatcherConfig) *Dispatcher {
	def := DefaultDispatcherConfig()
	if config.LaneCount <= 0 {
		config.LaneCount = def.LaneCount
	}
	if config.LaneBuffer <= 0 {
		config.LaneBuffer = def.LaneBuffer
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = def.JobTimeout
	}
	if config.RetryConfig.MaxAttempts <= 0 {
		config.RetryConfig = def.RetryConfig
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		handler:     handler,
		lanes:       make([]chan job, config.LaneCount),
		jobTimeout:  config.JobTimeout,
		retryConfig: config.RetryConfig,
		deadLetterQ: NewDeadLetterQueue(config.DeadLetterQueueSize),
		metrics:     NewMetrics(),
		logger:      config.Logger,
		ctx:         ctx,
		cancel:      cancel,
	}
	for i := range d.lanes {
		d.lanes[i] = make(chan job, config.LaneBuffer)
	}
	return d
}

// Start spins up one goroutine per lane.
func (d *Dispatcher) Start() {
	for i, lane := range d.lanes {
		d.wg.Add(1)
		go d.runLane(i, lane)
	}
	d.logger.Info("dispatcher started", slog.Int("lanes", len(d.lanes)))
}

// Enqueue places a trigger on its user's lane. Blocks while the lane
// is full; fails fast once the dispatcher is stopped or the caller's
// context expires.
func (d *Dispatcher) Enqueue(ctx context.Context, trg shared.Trigger) error {
	// The read lock is held across the send so Stop cannot close the
	// lane underneath it. Lane consumers keep draining until the close,
	// so a blocked send still makes progress.
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	lane := d.lanes[laneFor(trg.UserID, len(d.lanes))]
	select {
	case lane <- job{trigger: trg, enqueuedAt: time.Now()}:
		d.metrics.RecordEnqueue(trg.Kind)
		return nil
	case <-d.ctx.Done():
		return ErrDispatcherClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains the lanes and waits for in-flight jobs.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, lane := range d.lanes {
		close(lane)
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
	d.logger.Info("dispatcher stopped")
}

// Metrics returns the dispatcher counters.
func (d *Dispatcher) Metrics() *Metrics {
	return d.metrics
}

// DeadLetterQueue returns the DLQ.
func (d *Dispatcher) DeadLetterQueue() *DeadLetterQueue {
	return d.deadLetterQ
}

func laneFor(userID int64, lanes int) int {
	h := fnv.New32a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(userID >> (8 * i))
	}
	h.Write(buf[:])
	return int(h.Sum32() % uint32(lanes))
}

func (d *Dispatcher) runLane(id int, lane <-chan job) {
	defer d.wg.Done()

	for j := range lane {
		d.process(id, j)
	}
}

func (d *Dispatcher) process(laneID int, j job) {
	trg := j.trigger
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= d.retryConfig.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := d.retryConfig.Delay(attempt - 1)
			select {
			case <-time.After(delay):
			case <-d.ctx.Done():
			}
			d.metrics.RecordRetry(trg.Kind)
		}

		err := d.attempt(trg)
		if err == nil {
			d.metrics.RecordSuccess(trg.Kind, time.Since(start))
			return
		}
		lastErr = err

		// Unknown errors default to retryable; only classified
		// terminal failures short-circuit.
		if retry.IsPermanent(err) || shared.IsValidation(err) || shared.IsNotFound(err) {
			d.logger.Warn("trigger failed permanently",
				slog.Int("lane", laneID),
				slog.String("kind", string(trg.Kind)),
				slog.Int64("user_id", trg.UserID),
				slog.String("error", err.Error()))
			break
		}

		// A conflict past the per-user serialization guarantee means an
		// invariant is broken somewhere; one retry, then surface it.
		if errors.Is(err, shared.ErrConcurrentModification) && attempt >= 2 {
			d.logger.Error("trigger hit repeated concurrency conflict",
				slog.Int("lane", laneID),
				slog.String("kind", string(trg.Kind)),
				slog.Int64("user_id", trg.UserID),
				slog.String("error", err.Error()))
			break
		}
		d.logger.Warn("trigger attempt failed",
			slog.Int("lane", laneID),
			slog.String("kind", string(trg.Kind)),
			slog.Int64("user_id", trg.UserID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}

	d.metrics.RecordFailure(trg.Kind)
	d.deadLetterQ.Add(DeadLetterEntry{
		Trigger:  trg,
		Error:    lastErr,
		FailedAt: time.Now(),
	})
}

// attempt runs one handler invocation under the job timeout, turning
// handler panics into errors so a poison trigger cannot kill a lane.
func (d *Dispatcher) attempt(trg shared.Trigger) (err error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic recovered",
				slog.String("kind", string(trg.Kind)),
				slog.Int64("user_id", trg.UserID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = retry.Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return d.handler(ctx, trg)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry is a trigger that could not be processed.
type DeadLetterEntry struct {
	Trigger  shared.Trigger
	Error    error
	FailedAt time.Time
}

// DeadLetterQueue stores failed triggers for inspection or manual
// requeue. Bounded; oldest entries are evicted.
type DeadLetterQueue struct {
	mu      sync.RWMutex
	entries []DeadLetterEntry
	maxSize int
}

// NewDeadLetterQueue creates a bounded DLQ.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &DeadLetterQueue{maxSize: maxSize}
}

// Add appends an entry, evicting the oldest at capacity.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns a copy of the current entries.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]DeadLetterEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Size returns the current queue depth.
func (q *DeadLetterQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// Pop removes and returns the oldest entry.
func (q *DeadLetterQueue) Pop() (DeadLetterEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return DeadLetterEntry{}, false
	}
	entry := q.entries[0]
	q.entries = q.entries[1:]
	return entry, true
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics tracks dispatcher throughput per trigger kind.
type Metrics struct {
	mu sync.RWMutex

	EnqueuedTotal map[shared.TriggerKind]int64
	SuccessTotal  map[shared.TriggerKind]int64
	FailureTotal  map[shared.TriggerKind]int64
	RetriesTotal  map[shared.TriggerKind]int64

	TotalDuration time.Duration
	Processed     int64
}

// NewMetrics creates zeroed metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		EnqueuedTotal: make(map[shared.TriggerKind]int64),
		SuccessTotal:  make(map[shared.TriggerKind]int64),
		FailureTotal:  make(map[shared.TriggerKind]int64),
		RetriesTotal:  make(map[shared.TriggerKind]int64),
	}
}

func (m *Metrics) RecordEnqueue(kind shared.TriggerKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EnqueuedTotal[kind]++
}

func (m *Metrics) RecordSuccess(kind shared.TriggerKind, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SuccessTotal[kind]++
	m.Processed++
	m.TotalDuration += d
}

func (m *Metrics) RecordFailure(kind shared.TriggerKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailureTotal[kind]++
	m.Processed++
}

func (m *Metrics) RecordRetry(kind shared.TriggerKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RetriesTotal[kind]++
}

// MetricsSnapshot is a point-in-time view of the counters.
type MetricsSnapshot struct {
	Enqueued        int64         `json:"enqueued"`
	Succeeded       int64         `json:"succeeded"`
	Failed          int64         `json:"failed"`
	Retries         int64         `json:"retries"`
	AverageDuration time.Duration `json:"average_duration"`
}

// Snapshot sums the per-kind counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s MetricsSnapshot
	for _, v := range m.EnqueuedTotal {
		s.Enqueued += v
	}
	for _, v := range m.SuccessTotal {
		s.Succeeded += v
	}
	for _, v := range m.FailureTotal {
		s.Failed += v
	}
	for _, v := range m.RetriesTotal {
		s.Retries += v
	}
	if m.Processed > 0 {
		s.AverageDuration = m.TotalDuration / time.Duration(m.Processed)
	}
	return s
}
