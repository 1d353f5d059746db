// Package store sits between the loader and a durable Backend. Writes are
// coalesced per key and committed in batches by a background flush loop;
// reads check pending writes, then a soft cache, then the backend. Reads
// for the same key share one backend round trip.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/l1jgo/cubic/internal/world"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var ErrClosed = errors.New("store closed")

type Options struct {
	MinWorkers    int
	MaxWorkers    int
	CacheEntries  int
	CacheTTL      time.Duration
	FlushInterval time.Duration // 0 disables the background flush loop
	QueueSize     int
}

func DefaultOptions() Options {
	return Options{
		MinWorkers:    2,
		MaxWorkers:    16,
		CacheEntries:  4096,
		CacheTTL:      30 * time.Second,
		FlushInterval: 5 * time.Second,
		QueueSize:     4096,
	}
}

type pendingWrite struct {
	data []byte
	seq  uint64
}

// Store is safe for concurrent use. Completion callbacks of ReadAsync are
// queued and only run when the owner calls DrainCompletions, so callers can
// keep all state mutation on one goroutine.
type Store struct {
	backend Backend
	log     *zap.Logger
	opts    Options

	cache *docCache
	reads singleflight.Group

	mu      sync.Mutex
	pending map[Key]pendingWrite
	seq     uint64

	flushMu sync.Mutex

	jobs     chan func()
	workers  errgroup.Group
	poolMu   sync.Mutex
	poolCond *sync.Cond
	active   int
	limit    int
	inflight sync.WaitGroup

	doneMu sync.Mutex
	done   []func()

	preloadMiss func(Key, world.InitLevel)

	// closeMu orders submit against Close so no job is queued after the
	// jobs channel is closed.
	closeMu sync.RWMutex
	closed  atomic.Bool
	stop    chan struct{}
	loops   sync.WaitGroup
}

func New(backend Backend, opts Options, log *zap.Logger) *Store {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	if opts.MinWorkers <= 0 || opts.MinWorkers > opts.MaxWorkers {
		opts.MinWorkers = opts.MaxWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	s := &Store{
		backend: backend,
		log:     log.Named("store"),
		opts:    opts,
		cache:   newDocCache(opts.CacheEntries, opts.CacheTTL),
		pending: make(map[Key]pendingWrite),
		jobs:    make(chan func(), opts.QueueSize),
		limit:   opts.MinWorkers,
		stop:    make(chan struct{}),
	}
	s.poolCond = sync.NewCond(&s.poolMu)
	s.workers.SetLimit(opts.MaxWorkers)

	s.loops.Add(1)
	go s.dispatch()
	if opts.FlushInterval > 0 {
		s.loops.Add(1)
		go s.flushLoop()
	}
	return s
}

// OnPreloadMiss sets the delegate invoked, on a worker goroutine, when a
// preload finds nothing stored or fails.
func (s *Store) OnPreloadMiss(fn func(Key, world.InitLevel)) {
	s.preloadMiss = fn
}

// Resize sets the worker count for the given number of observers, clamped
// to the configured bounds.
func (s *Store) Resize(observers, perObserver int) {
	n := observers * perObserver
	if n < s.opts.MinWorkers {
		n = s.opts.MinWorkers
	}
	if n > s.opts.MaxWorkers {
		n = s.opts.MaxWorkers
	}
	s.poolMu.Lock()
	s.limit = n
	s.poolCond.Broadcast()
	s.poolMu.Unlock()
}

// Workers returns the current worker limit.
func (s *Store) Workers() int {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	return s.limit
}

// Exists reports whether a document is pending, cached or stored.
func (s *Store) Exists(ctx context.Context, key Key) (bool, error) {
	if _, ok := s.pendingData(key); ok {
		return true, nil
	}
	if s.cache.has(key) {
		return true, nil
	}
	ok, err := s.backend.Has(ctx, key)
	if err != nil {
		return false, fmt.Errorf("exists %v: %w", key, err)
	}
	return ok, nil
}

// Read returns the freshest copy of a document. ok is false if nothing is
// stored under key.
func (s *Store) Read(ctx context.Context, key Key) ([]byte, bool, error) {
	if data, ok := s.pendingData(key); ok {
		return data, true, nil
	}
	if data, ok := s.cache.get(key); ok {
		return data, true, nil
	}
	s.mu.Lock()
	start := s.seq
	s.mu.Unlock()

	v, err, _ := s.reads.Do(key.String(), func() (any, error) {
		data, ok, err := s.backend.Get(ctx, key)
		if err != nil || !ok {
			return []byte(nil), err
		}
		s.mu.Lock()
		// A write since the read started may be newer than what we got.
		if s.seq == start {
			s.cache.put(key, data)
		}
		s.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("read %v: %w", key, err)
	}
	data, _ := v.([]byte)
	if data == nil {
		// The backend may have lagged behind a write that landed meanwhile.
		if pd, ok := s.pendingData(key); ok {
			return pd, true, nil
		}
		return nil, false, nil
	}
	return data, true, nil
}

// Write queues a document. It replaces any not-yet-flushed write for the
// same key. The store takes ownership of data.
func (s *Store) Write(key Key, data []byte) {
	s.mu.Lock()
	s.seq++
	s.pending[key] = pendingWrite{data: data, seq: s.seq}
	s.cache.put(key, data)
	s.mu.Unlock()
}

func (s *Store) pendingData(key Key) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pw, ok := s.pending[key]
	return pw.data, ok
}

// Pending returns the number of writes not yet committed.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush commits all pending writes as one batch. Entries written again
// while the batch was in flight stay pending.
func (s *Store) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := make([]Entry, 0, len(s.pending))
	seqs := make(map[Key]uint64, len(s.pending))
	for k, pw := range s.pending {
		batch = append(batch, Entry{Key: k, Data: pw.data})
		seqs[k] = pw.seq
	}
	s.mu.Unlock()

	if err := s.backend.PutBatch(ctx, batch); err != nil {
		return fmt.Errorf("flush %d entries: %w", len(batch), err)
	}

	s.mu.Lock()
	for k, seq := range seqs {
		if pw, ok := s.pending[k]; ok && pw.seq == seq {
			delete(s.pending, k)
		}
	}
	s.mu.Unlock()
	s.log.Debug("flushed", zap.Int("entries", len(batch)))
	return nil
}

// ReadAsync reads key on a worker. fn runs during a later DrainCompletions.
func (s *Store) ReadAsync(key Key, fn func(data []byte, ok bool, err error)) {
	s.submit(func() {
		data, ok, err := s.Read(context.Background(), key)
		s.complete(func() { fn(data, ok, err) })
	}, func() {
		s.complete(func() { fn(nil, false, ErrClosed) })
	})
}

// Preload warms the soft cache for key. If nothing usable is stored the
// preload-miss delegate is told, so generation work can start early.
func (s *Store) Preload(key Key, level world.InitLevel) {
	if _, ok := s.pendingData(key); ok || s.cache.has(key) {
		return
	}
	s.submit(func() {
		_, ok, err := s.Read(context.Background(), key)
		if err != nil {
			s.log.Debug("preload failed", zap.Stringer("key", key), zap.Error(err))
		}
		if (err != nil || !ok) && s.preloadMiss != nil {
			s.preloadMiss(key, level)
		}
	}, nil)
}

// Defer queues fn to run at the next DrainCompletions.
func (s *Store) Defer(fn func()) {
	s.complete(fn)
}

// DrainCompletions runs every queued completion on the calling goroutine
// and returns how many ran.
func (s *Store) DrainCompletions() int {
	s.doneMu.Lock()
	done := s.done
	s.done = nil
	s.doneMu.Unlock()
	for _, fn := range done {
		fn()
	}
	return len(done)
}

// WaitIdle blocks until every submitted background job has finished.
func (s *Store) WaitIdle() {
	s.inflight.Wait()
}

func (s *Store) complete(fn func()) {
	s.doneMu.Lock()
	s.done = append(s.done, fn)
	s.doneMu.Unlock()
}

func (s *Store) submit(job func(), rejected func()) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed.Load() {
		if rejected != nil {
			rejected()
		}
		return
	}
	s.inflight.Add(1)
	select {
	case s.jobs <- func() {
		defer s.inflight.Done()
		job()
	}:
	default:
		// Queue full: run on a fresh goroutine rather than block the caller.
		go func() {
			defer s.inflight.Done()
			job()
		}()
	}
}

// dispatch hands queued jobs to the worker group without exceeding the
// current limit.
func (s *Store) dispatch() {
	defer s.loops.Done()
	for job := range s.jobs {
		s.poolMu.Lock()
		for s.active >= s.limit {
			s.poolCond.Wait()
		}
		s.active++
		s.poolMu.Unlock()

		s.workers.Go(func() error {
			defer func() {
				s.poolMu.Lock()
				s.active--
				s.poolCond.Signal()
				s.poolMu.Unlock()
			}()
			job()
			return nil
		})
	}
}

func (s *Store) flushLoop() {
	defer s.loops.Done()
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := s.Flush(ctx); err != nil {
				s.log.Error("background flush failed", zap.Error(err))
			}
			cancel()
		case <-s.stop:
			return
		}
	}
}

// Close stops background work, commits pending writes and closes the
// backend.
func (s *Store) Close(ctx context.Context) error {
	s.closeMu.Lock()
	wasClosed := s.closed.Swap(true)
	s.closeMu.Unlock()
	if wasClosed {
		return ErrClosed
	}
	close(s.stop)
	s.inflight.Wait()
	close(s.jobs)
	s.loops.Wait()
	_ = s.workers.Wait()

	flushErr := s.Flush(ctx)
	if err := s.backend.Close(); err != nil {
		return errors.Join(flushErr, fmt.Errorf("close backend: %w", err))
	}
	return flushErr
}
