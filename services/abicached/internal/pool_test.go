package internal

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsEveryTask(t *testing.T) {
	p := NewPool(4)
	var ran atomic.Int64
	var badSlot atomic.Bool
	for i := 0; i < 1000; i++ {
		if err := p.Submit(func(slot int) {
			if slot < 0 || slot >= 4 {
				badSlot.Store(true)
			}
			ran.Add(1)
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	p.Close()

	if ran.Load() != 1000 {
		t.Errorf("ran %d tasks, want 1000", ran.Load())
	}
	if badSlot.Load() {
		t.Error("task saw a slot outside [0, 4)")
	}
}

func TestPoolFIFO(t *testing.T) {
	p := NewPool(1)
	var mu sync.Mutex
	var order []int
	for i := 0; i < 100; i++ {
		i := i
		p.Submit(func(int) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	p.Close()

	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d", i, v)
		}
	}
}

func TestPoolSubmitAfterClose(t *testing.T) {
	p := NewPool(2)
	p.Close()

	var ran atomic.Bool
	err := p.Submit(func(int) { ran.Store(true) })
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Submit after Close = %v, want ErrPoolClosed", err)
	}
	if p.Pending() != 0 {
		t.Errorf("Pending = %d after rejected submit", p.Pending())
	}
	time.Sleep(10 * time.Millisecond)
	if ran.Load() {
		t.Error("rejected task ran")
	}
}

func TestPoolCloseDrainsQueue(t *testing.T) {
	p := NewPool(1)
	release := make(chan struct{})
	started := make(chan struct{})
	var ran atomic.Int64

	p.Submit(func(int) {
		close(started)
		<-release
		ran.Add(1)
	})
	<-started
	for i := 0; i < 10; i++ {
		p.Submit(func(int) { ran.Add(1) })
	}
	if p.Pending() != 10 {
		t.Errorf("Pending = %d, want 10", p.Pending())
	}

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Close returned while a task was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-done
	if ran.Load() != 11 {
		t.Errorf("ran %d tasks, want 11", ran.Load())
	}
	p.Close()
}

func TestPoolSize(t *testing.T) {
	p := NewPool(0)
	defer p.Close()
	if p.Size() != 1 {
		t.Errorf("Size = %d, want 1", p.Size())
	}
}
