package internal

import (
	"errors"
	"sync"
)

var ErrPoolClosed = errors.New("pool closed")

// Task runs on a worker and receives that worker's slot index.
type Task func(slot int)

// Pool runs tasks on a fixed set of workers pulling from one FIFO queue.
// Close drains the queue before the workers exit.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	head    int
	stopped bool
	size    int
	wg      sync.WaitGroup
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{size: size}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(size)
	for slot := 0; slot < size; slot++ {
		go p.worker(slot)
	}
	return p
}

func (p *Pool) Size() int {
	return p.size
}

// Submit queues task. After Close it returns ErrPoolClosed and queues nothing.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	p.cond.Signal()
	return nil
}

// Pending is the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) - p.head
}

// Close stops accepting work and blocks until every queued task has run.
func (p *Pool) Close() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *Pool) worker(slot int) {
	defer p.wg.Done()
	for {
		task, ok := p.next()
		if !ok {
			return
		}
		task(slot)
	}
}

func (p *Pool) next() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.head == len(p.queue) && !p.stopped {
		p.cond.Wait()
	}
	if p.head == len(p.queue) {
		return nil, false
	}
	task := p.queue[p.head]
	p.queue[p.head] = nil
	p.head++
	if p.head == len(p.queue) {
		p.queue = p.queue[:0]
		p.head = 0
	} else if p.head > 1024 && p.head*2 > len(p.queue) {
		n := copy(p.queue, p.queue[p.head:])
		p.queue = p.queue[:n]
		p.head = 0
	}
	return task, true
}
