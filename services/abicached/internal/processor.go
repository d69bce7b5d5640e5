package internal

import (
	"context"
	"errors"

	"github.com/greymass/abicached/libraries/abicache"
	"github.com/greymass/abicached/libraries/chain"
	"github.com/greymass/abicached/libraries/logger"
	"github.com/greymass/abicached/services/abicached/internal/metrics"
	"github.com/greymass/abicached/services/abicached/internal/store"
)

// Processor walks one trace on a worker, caching every executed setabi and
// recording the last global sequence it saw in the worker's tracker slot.
type Processor struct {
	cache   *abicache.Cache
	stores  []store.Store
	tracker *SequenceTracker

	// visit is called for each action in walk order.
	visit func(slot int, at *chain.ActionTrace)
}

// NewProcessor uses stores[slot] for write-through when stores is non-empty.
func NewProcessor(cache *abicache.Cache, stores []store.Store, tracker *SequenceTracker) *Processor {
	return &Processor{
		cache:   cache,
		stores:  stores,
		tracker: tracker,
	}
}

// Process visits the action tree in pre-order: top level actions left to
// right, each followed by its inline traces. Only store failures are
// returned; a bad setabi payload is cached as absent.
func (p *Processor) Process(ctx context.Context, trace *chain.TransactionTrace, slot int) error {
	if len(trace.ActionTraces) == 0 {
		return nil
	}
	executed := trace.Executed()

	stack := make([]*chain.ActionTrace, 0, len(trace.ActionTraces))
	for i := len(trace.ActionTraces) - 1; i >= 0; i-- {
		stack = append(stack, &trace.ActionTraces[i])
	}

	var last uint64
	var visited int
	for len(stack) > 0 {
		at := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited++

		if p.visit != nil {
			p.visit(slot, at)
		}
		if executed && at.IsSetabi() {
			if err := p.setabi(ctx, at, slot); err != nil {
				return err
			}
		}
		last = uint64(at.Receipt.GlobalSequence)

		for i := len(at.InlineTraces) - 1; i >= 0; i-- {
			stack = append(stack, &at.InlineTraces[i])
		}
	}

	metrics.ActionsTotal.Add(float64(visited))
	p.tracker.Record(slot, last)
	return nil
}

func (p *Processor) setabi(ctx context.Context, at *chain.ActionTrace, slot int) error {
	version := at.Receipt.AbiSequence
	account, raw, err := abicache.ParseSetabi(at.Act.Data)
	if err != nil {
		logger.Printf("cache", "Unreadable setabi in global sequence %d: %v", at.Receipt.GlobalSequence, err)
		metrics.SetabiTotal.WithLabelValues("invalid").Inc()
		return nil
	}

	abi, err := abicache.Decode(raw, account)
	switch {
	case errors.Is(err, abicache.ErrEmptyABI):
		logger.Printf("cache", "ABI cleared for %s at abi_sequence %d", account, version)
		metrics.SetabiTotal.WithLabelValues("empty").Inc()
	case err != nil:
		logger.Printf("cache", "Failed to decode ABI for %s at abi_sequence %d: %v", account, version, err)
		metrics.SetabiTotal.WithLabelValues("invalid").Inc()
		abi = nil
	default:
		logger.Printf("debug-trace", "Cached ABI for %s at abi_sequence %d (%d bytes)", account, version, len(raw))
		metrics.SetabiTotal.WithLabelValues("ok").Inc()
	}
	p.cache.Insert(account, version, abi)
	metrics.CacheEntries.Set(float64(p.cache.Len()))

	if len(p.stores) == 0 || !account.Valid() {
		return nil
	}
	return p.stores[slot].Set(ctx, store.ABIKey(account, version), raw)
}
