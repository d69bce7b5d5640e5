package internal

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/greymass/abicached/libraries/abicache"
	"github.com/greymass/abicached/libraries/chain"
	"github.com/greymass/abicached/services/abicached/internal/store"
)

func newTestProcessor(t *testing.T, slots int, stores []store.Store) (*Processor, *abicache.Cache, *SequenceTracker) {
	t.Helper()
	cache, err := abicache.NewCache(0)
	if err != nil {
		t.Fatal(err)
	}
	tracker := NewSequenceTracker(slots)
	return NewProcessor(cache, stores, tracker), cache, tracker
}

func TestProcessorPreOrderWalk(t *testing.T) {
	p, _, tracker := newTestProcessor(t, 1, nil)
	var order []uint64
	p.visit = func(_ int, at *chain.ActionTrace) {
		order = append(order, uint64(at.Receipt.GlobalSequence))
	}

	top := action("alice", "alice", "run", 1)
	child1 := action("bob", "bob", "one", 2)
	child1.InlineTraces = []chain.ActionTrace{action("carol", "carol", "deep", 3)}
	child2 := action("bob", "bob", "two", 4)
	top.InlineTraces = []chain.ActionTrace{child1, child2}
	second := action("dave", "dave", "next", 5)

	if err := p.Process(context.Background(), executed(top, second), 0); err != nil {
		t.Fatal(err)
	}

	want := []uint64{1, 2, 3, 4, 5}
	if len(order) != len(want) {
		t.Fatalf("visited %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("visited %v, want %v", order, want)
		}
	}
	if tracker.Slot(0) != 5 {
		t.Errorf("slot = %d, want last visited sequence 5", tracker.Slot(0))
	}
}

func TestProcessorCachesSetabi(t *testing.T) {
	p, cache, _ := newTestProcessor(t, 1, nil)
	raw := packedTokenABI(t)

	if err := p.Process(context.Background(), executed(setabiAction(tokenAccount, raw, 100, 3)), 0); err != nil {
		t.Fatal(err)
	}

	abi, ok := cache.Find(tokenAccount, 3)
	if !ok || abi == nil {
		t.Fatalf("Find = %v, %v", abi, ok)
	}
	v, err := abi.DecodeAction(chain.N("transfer"), transferData())
	if err != nil {
		t.Fatalf("DecodeAction: %v", err)
	}
	if v.(map[string]interface{})["quantity"] != "1.0000 EOS" {
		t.Errorf("decoded %v", v)
	}
	if _, ok := cache.Find(tokenAccount, 2); ok {
		t.Error("unexpected entry for another version")
	}
}

func TestProcessorSetabiInInlineTrace(t *testing.T) {
	p, cache, _ := newTestProcessor(t, 1, nil)
	top := action("deployer", "deployer", "deploy", 1)
	top.InlineTraces = []chain.ActionTrace{setabiAction(tokenAccount, packedTokenABI(t), 2, 9)}

	if err := p.Process(context.Background(), executed(top), 0); err != nil {
		t.Fatal(err)
	}
	if abi, ok := cache.Find(tokenAccount, 9); !ok || abi == nil {
		t.Error("inline setabi not cached")
	}
}

func TestProcessorSkipsUnexecutedAndNotifications(t *testing.T) {
	p, cache, _ := newTestProcessor(t, 1, nil)
	raw := packedTokenABI(t)

	failed := executed(setabiAction(tokenAccount, raw, 1, 1))
	failed.Receipt.Status = "hard_fail"
	if err := p.Process(context.Background(), failed, 0); err != nil {
		t.Fatal(err)
	}

	notify := setabiAction(tokenAccount, raw, 2, 2)
	notify.Receipt.Receiver = chain.N("watcher")
	if err := p.Process(context.Background(), executed(notify), 0); err != nil {
		t.Fatal(err)
	}

	if cache.Len() != 0 {
		t.Errorf("cache has %d entries, want 0", cache.Len())
	}
}

func TestProcessorAbsentMarker(t *testing.T) {
	p, cache, _ := newTestProcessor(t, 1, nil)
	trace := executed(
		setabiAction(chain.N("broken"), []byte{0x01, 0x02, 0x03}, 1, 4),
		setabiAction(chain.N("cleared"), nil, 2, 5),
	)
	if err := p.Process(context.Background(), trace, 0); err != nil {
		t.Fatal(err)
	}

	for _, key := range []abicache.Key{{Account: chain.N("broken"), Version: 4}, {Account: chain.N("cleared"), Version: 5}} {
		abi, ok := cache.Find(key.Account, key.Version)
		if !ok {
			t.Errorf("%s@%d: no entry", key.Account, key.Version)
		}
		if abi != nil {
			t.Errorf("%s@%d: want absent marker", key.Account, key.Version)
		}
	}
}

func TestProcessorEmptyTraceKeepsSlot(t *testing.T) {
	p, _, tracker := newTestProcessor(t, 2, nil)
	tracker.Record(1, 42)
	if err := p.Process(context.Background(), executed(), 1); err != nil {
		t.Fatal(err)
	}
	if tracker.Slot(1) != 42 {
		t.Errorf("slot = %d, want 42", tracker.Slot(1))
	}
}

func TestProcessorWriteThrough(t *testing.T) {
	s := miniredis.RunT(t)
	stores := redisStores(t, s, 2)
	p, _, _ := newTestProcessor(t, 2, stores)
	raw := packedTokenABI(t)

	if err := p.Process(context.Background(), executed(setabiAction(tokenAccount, raw, 7, 2)), 1); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(store.ABIKey(tokenAccount, 2))
	if err != nil {
		t.Fatalf("miniredis Get: %v", err)
	}
	if got != string(raw) {
		t.Errorf("stored %d bytes, want %d", len(got), len(raw))
	}
}

func TestProcessorStoreFailure(t *testing.T) {
	s := miniredis.RunT(t)
	stores := redisStores(t, s, 1)
	p, _, tracker := newTestProcessor(t, 1, stores)

	s.SetError("READONLY replica")
	err := p.Process(context.Background(), executed(setabiAction(tokenAccount, packedTokenABI(t), 7, 2)), 0)
	if err == nil {
		t.Fatal("expected store error")
	}
	if tracker.Slot(0) != 0 {
		t.Error("slot advanced past a failed trace")
	}
}
