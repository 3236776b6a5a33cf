package window

import "sync"

type frameCallback struct {
	id uint64
	fn func()
}

// Scheduler queues frame callbacks until the host loop runs them, once per
// swapped frame.
type Scheduler struct {
	mu      sync.Mutex
	nextID  uint64
	pending []frameCallback
	// running holds the ids of the batch RunFrame is working through.
	running map[uint64]bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// RequestFrame queues fn for the next RunFrame and returns its id. Ids start
// at 1.
func (s *Scheduler) RequestFrame(fn func()) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.pending = append(s.pending, frameCallback{id: s.nextID, fn: fn})
	return s.nextID
}

// CancelFrame drops a queued callback. Unknown ids are ignored.
func (s *Scheduler) CancelFrame(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cb := range s.pending {
		if cb.id == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
	delete(s.running, id)
}

// Pending reports how many callbacks wait for the next frame.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// RunFrame runs the callbacks queued before the call. Callbacks requested
// while it runs wait for the next frame; callbacks cancelled by an earlier
// one in the same batch are skipped. It returns the number run.
func (s *Scheduler) RunFrame() int {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.running = make(map[uint64]bool, len(batch))
	for _, cb := range batch {
		s.running[cb.id] = true
	}
	s.mu.Unlock()

	ran := 0
	for _, cb := range batch {
		s.mu.Lock()
		live := s.running[cb.id]
		delete(s.running, cb.id)
		s.mu.Unlock()
		if !live {
			continue
		}
		cb.fn()
		ran++
	}
	return ran
}
