package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble/v2"
	"github.com/greymass/abicached/libraries/compression"
	"github.com/greymass/abicached/libraries/logger"
)

// Pebble is a local persistent store shared by all worker slots. Pebble is
// safe for concurrent use, so slot handles share one DB; each handle still
// serialises its own commands.
type Pebble struct {
	db       *pebble.DB
	compress bool
	refs     atomic.Int32
}

func OpenPebble(path string, compress bool) (*Pebble, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble store %s: %w", path, err)
	}
	logger.Printf("store", "Opened pebble store at %s (compress: %v)", path, compress)
	return &Pebble{db: db, compress: compress}, nil
}

// Handles returns one Store per worker slot. The DB closes when the last
// handle is closed.
func (p *Pebble) Handles(slots int) []Store {
	stores := make([]Store, slots)
	p.refs.Add(int32(slots))
	for i := range stores {
		stores[i] = &pebbleHandle{p: p}
	}
	return stores
}

func (p *Pebble) set(key string, value []byte) error {
	framed, err := compression.Frame(value, p.compress)
	if err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	if err := p.db.Set([]byte(key), framed, pebble.Sync); err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (p *Pebble) get(key string) ([]byte, bool, error) {
	data, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &Error{Op: "get", Key: key, Err: err}
	}
	defer closer.Close()

	value, err := compression.Unframe(data)
	if err != nil {
		return nil, false, &Error{Op: "get", Key: key, Err: err}
	}
	// Unframe may alias data, which is only valid until closer.Close.
	return append([]byte(nil), value...), true, nil
}

func (p *Pebble) release() error {
	if p.refs.Add(-1) != 0 {
		return nil
	}
	logger.Printf("store", "Closing pebble store")
	return p.db.Close()
}

type pebbleHandle struct {
	mu     sync.Mutex
	p      *Pebble
	closed bool
}

func (h *pebbleHandle) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	start := time.Now()
	h.mu.Lock()
	err := h.p.set(key, value)
	h.mu.Unlock()
	observe("set", start, err)
	return err
}

func (h *pebbleHandle) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, &Error{Op: "get", Key: key, Err: err}
	}
	start := time.Now()
	h.mu.Lock()
	value, found, err := h.p.get(key)
	h.mu.Unlock()
	observe("get", start, err)
	return value, found, err
}

func (h *pebbleHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.p.release()
}
