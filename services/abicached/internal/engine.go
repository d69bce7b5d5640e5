package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/greymass/abicached/libraries/abicache"
	"github.com/greymass/abicached/libraries/chain"
	"github.com/greymass/abicached/libraries/logger"
	"github.com/greymass/abicached/services/abicached/internal/metrics"
	"github.com/greymass/abicached/services/abicached/internal/store"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

var ErrABINotFound = errors.New("ABI not found")

// storeReadTimeout bounds a read-through. The read is detached from the
// caller so one disconnecting client cannot fail lookups it shares.
const storeReadTimeout = 5 * time.Second

// FatalError is a failure inside a worker's unit of work. The engine stops
// processing after the first one.
type FatalError struct {
	Slot int
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("worker %d: %v", e.Slot, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

type EngineConfig struct {
	Workers         int
	QueueLimit      int
	StallStep       time.Duration
	StallMax        time.Duration
	CacheMaxEntries int

	// Stores is empty or holds one store per worker.
	Stores []store.Store

	// OnFatal receives the first FatalError. It runs on the failing worker
	// and must not call Close. Defaults to logger.Fatal.
	OnFatal func(*FatalError)
}

type Stats struct {
	Traces       uint64
	Pending      int
	Stall        time.Duration
	Height       uint64
	CacheEntries int
}

type Engine struct {
	cfg          EngineConfig
	cache        *abicache.Cache
	pool         *Pool
	tracker      *SequenceTracker
	processor    *Processor
	backpressure *Backpressure
	stores       []store.Store

	lookups singleflight.Group
	breaker *gobreaker.CircuitBreaker

	ctx    context.Context
	cancel context.CancelFunc

	traces   atomic.Uint64
	height   atomic.Uint64
	stall    atomic.Int64
	fatal    atomic.Pointer[FatalError]
	closed   sync.Once
	closeErr error
	stopChan chan struct{}
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive")
	}
	if len(cfg.Stores) != 0 && len(cfg.Stores) != cfg.Workers {
		return nil, fmt.Errorf("have %d stores for %d workers", len(cfg.Stores), cfg.Workers)
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = cfg.Workers * 8192
	}
	if cfg.StallStep <= 0 {
		cfg.StallStep = 5 * time.Millisecond
	}
	if cfg.StallMax <= 0 {
		cfg.StallMax = time.Second
	}
	if cfg.OnFatal == nil {
		cfg.OnFatal = func(err *FatalError) {
			logger.Fatal("Stopping after worker failure: %v", err)
		}
	}

	cache, err := abicache.NewCache(cfg.CacheMaxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create ABI cache: %w", err)
	}

	tracker := NewSequenceTracker(cfg.Workers)
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:          cfg,
		cache:        cache,
		tracker:      tracker,
		processor:    NewProcessor(cache, cfg.Stores, tracker),
		backpressure: NewBackpressure(cfg.QueueLimit, cfg.StallStep, cfg.StallMax),
		stores:       cfg.Stores,
		ctx:          ctx,
		cancel:       cancel,
		stopChan:     make(chan struct{}),
	}
	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("store", "Circuit breaker %s: %s -> %s", name, from, to)
			if to == gobreaker.StateOpen {
				metrics.CircuitBreakerOpen.Set(1)
			} else {
				metrics.CircuitBreakerOpen.Set(0)
			}
		},
	})
	e.pool = NewPool(cfg.Workers)
	return e, nil
}

// OnTrace hands one trace to the workers. It blocks while the queue is over
// its limit, so it must be called from a single producer.
func (e *Engine) OnTrace(ctx context.Context, trace *chain.TransactionTrace) error {
	if ferr := e.fatal.Load(); ferr != nil {
		return ferr
	}

	stall := e.backpressure.Wait(ctx, e.pool.Pending())
	e.stall.Store(int64(stall))
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := e.pool.Submit(func(slot int) { e.run(slot, trace) }); err != nil {
		return err
	}
	e.traces.Add(1)
	metrics.TracesTotal.Inc()

	e.publishHeight()
	return nil
}

func (e *Engine) run(slot int, trace *chain.TransactionTrace) {
	if e.fatal.Load() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.fail(slot, fmt.Errorf("panic processing trace %s: %v", trace.ID, r))
		}
	}()
	if err := e.processor.Process(e.ctx, trace, slot); err != nil {
		e.fail(slot, fmt.Errorf("trace %s: %w", trace.ID, err))
	}
}

func (e *Engine) fail(slot int, err error) {
	ferr := &FatalError{Slot: slot, Err: err}
	if !e.fatal.CompareAndSwap(nil, ferr) {
		return
	}
	logger.Error("Worker %d failed: %v", slot, err)
	e.cfg.OnFatal(ferr)
}

// Err returns the first worker failure, if any.
func (e *Engine) Err() error {
	if ferr := e.fatal.Load(); ferr != nil {
		return ferr
	}
	return nil
}

func (e *Engine) publishHeight() {
	height := e.tracker.Height()
	if e.height.Swap(height) == height {
		return
	}
	metrics.GlobalHeight.Set(float64(height))
	if len(e.stores) == 0 {
		return
	}
	// The task writes whatever height is newest when it runs so a late task
	// never moves the stored height backwards.
	err := e.pool.Submit(func(slot int) {
		if e.fatal.Load() != nil {
			return
		}
		if err := e.stores[slot].Set(e.ctx, store.HeightKey, store.FormatHeight(e.height.Load())); err != nil {
			e.fail(slot, fmt.Errorf("failed to store global sequence height: %w", err))
		}
	})
	if err != nil {
		logger.Printf("debug-trace", "Height update not queued: %v", err)
	}
}

func (e *Engine) GlobalHeight() uint64 {
	return e.tracker.Height()
}

// Resolve returns the ABI active for account at version, or nil when the
// version is unknown or recorded as unusable. A cache miss falls through to
// the backing store; store failures are logged and treated as a miss.
func (e *Engine) Resolve(ctx context.Context, account chain.Name, version uint32) *abicache.ABI {
	if abi, ok := e.cache.Find(account, version); ok {
		metrics.LookupsTotal.WithLabelValues("cache").Inc()
		return abi
	}
	if len(e.stores) == 0 || !account.Valid() {
		metrics.LookupsTotal.WithLabelValues("miss").Inc()
		return nil
	}

	key := store.ABIKey(account, version)
	v, err, _ := e.lookups.Do(key, func() (interface{}, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeReadTimeout)
		defer cancel()
		return e.breaker.Execute(func() (interface{}, error) {
			return e.readThrough(readCtx, account, version, key)
		})
	})
	if err != nil {
		logger.Printf("store", "Read-through for %s@%d failed: %v", account, version, err)
		metrics.LookupsTotal.WithLabelValues("error").Inc()
		return nil
	}
	abi, _ := v.(*abicache.ABI)
	return abi
}

func (e *Engine) readThrough(ctx context.Context, account chain.Name, version uint32, key string) (interface{}, error) {
	s := e.stores[uint64(account)%uint64(len(e.stores))]
	raw, found, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		metrics.LookupsTotal.WithLabelValues("miss").Inc()
		return (*abicache.ABI)(nil), nil
	}

	abi, err := abicache.Decode(raw, account)
	if err != nil {
		if !errors.Is(err, abicache.ErrEmptyABI) {
			logger.Printf("cache", "Failed to decode stored ABI for %s at abi_sequence %d: %v", account, version, err)
		}
		abi = nil
	}
	e.cache.Insert(account, version, abi)
	metrics.CacheEntries.Set(float64(e.cache.Len()))
	metrics.LookupsTotal.WithLabelValues("store").Inc()
	return abi, nil
}

// Decode unpacks action data against the ABI account had at version.
func (e *Engine) Decode(ctx context.Context, account chain.Name, version uint32, action chain.Name, data []byte) (interface{}, error) {
	abi := e.Resolve(ctx, account, version)
	if abi == nil {
		return nil, fmt.Errorf("%w for %s at abi_sequence %d", ErrABINotFound, account, version)
	}
	return abi.DecodeAction(action, data)
}

func (e *Engine) Stats() Stats {
	return Stats{
		Traces:       e.traces.Load(),
		Pending:      e.pool.Pending(),
		Stall:        time.Duration(e.stall.Load()),
		Height:       e.tracker.Height(),
		CacheEntries: e.cache.Len(),
	}
}

func (e *Engine) StartReporter(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := e.Stats()
		lastTime := time.Now()
		for {
			select {
			case <-e.stopChan:
				return
			case now := <-ticker.C:
				s := e.Stats()
				elapsed := now.Sub(lastTime).Seconds()
				tps := float64(s.Traces-last.Traces) / elapsed
				logger.Printf("stats", "Traces: %s (%s/s) | Queue: %s | Stall: %v | ABIs: %s | Height: %d",
					logger.FormatCount(int64(s.Traces)), logger.FormatRate(tps),
					logger.FormatCount(int64(s.Pending)), s.Stall,
					logger.FormatCount(int64(s.CacheEntries)), s.Height)
				last, lastTime = s, now
			}
		}
	}()
}

// Close drains queued traces, stores the final height and stops the
// reporter. Stores stay open; they belong to the caller.
func (e *Engine) Close() error {
	e.closed.Do(func() {
		e.pool.Close()
		close(e.stopChan)

		if ferr := e.fatal.Load(); ferr != nil {
			e.closeErr = ferr
		} else if height := e.tracker.Height(); len(e.stores) > 0 && height > 0 {
			if err := e.stores[0].Set(e.ctx, store.HeightKey, store.FormatHeight(height)); err != nil {
				e.closeErr = fmt.Errorf("failed to store final height: %w", err)
			}
		}
		e.cancel()
	})
	return e.closeErr
}
