package internal

import (
	"sync/atomic"
)

// SequenceTracker holds the last global sequence each worker slot finished.
// A slot is written only by its own worker; readers may load any slot.
type SequenceTracker struct {
	slots []atomic.Uint64
}

func NewSequenceTracker(slots int) *SequenceTracker {
	return &SequenceTracker{slots: make([]atomic.Uint64, slots)}
}

func (s *SequenceTracker) Record(slot int, seq uint64) {
	s.slots[slot].Store(seq)
}

func (s *SequenceTracker) Slot(slot int) uint64 {
	return s.slots[slot].Load()
}

// Height is the lowest sequence over all slots: everything at or below it
// has been processed by every worker. A slot that has seen nothing yet holds
// it at zero.
func (s *SequenceTracker) Height() uint64 {
	if len(s.slots) == 0 {
		return 0
	}
	low := s.slots[0].Load()
	for i := 1; i < len(s.slots); i++ {
		if v := s.slots[i].Load(); v < low {
			low = v
		}
	}
	return low
}
