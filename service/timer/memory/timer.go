package memory

import (
	"sync"
	"time"

	"github.com/viant/fluxgate/internal/clock"
	"github.com/viant/fluxgate/service/timer"
)

type entry struct {
	timer *time.Timer
	seq   uint64
}

// Service is an in-process timer service backed by time.AfterFunc.
type Service struct {
	mux     sync.Mutex
	entries map[string]*entry
	seq     uint64
	now     func() time.Time
}

// Option customises the service.
type Option func(s *Service)

// WithClock sets the time source used to compute delays.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty timer service.
func New(options ...Option) *Service {
	ret := &Service{entries: map[string]*entry{}, now: clock.Now}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Schedule implements timer.Service. A deadline in the past fires
// immediately on a separate goroutine.
func (s *Service) Schedule(key string, deadline time.Time, fn func()) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if prev, ok := s.entries[key]; ok {
		prev.timer.Stop()
	}
	s.seq++
	seq := s.seq
	delay := deadline.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	e := &entry{seq: seq}
	e.timer = time.AfterFunc(delay, func() {
		if !s.release(key, seq) {
			return
		}
		fn()
	})
	s.entries[key] = e
}

// release removes the entry if it is still the one scheduled under seq.
func (s *Service) release(key string, seq uint64) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	e, ok := s.entries[key]
	if !ok || e.seq != seq {
		return false
	}
	delete(s.entries, key)
	return true
}

// Cancel implements timer.Service.
func (s *Service) Cancel(key string) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, key)
	return true
}

// Pending returns the number of scheduled callbacks.
func (s *Service) Pending() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.entries)
}

// Stop implements timer.Service.
func (s *Service) Stop() {
	s.mux.Lock()
	defer s.mux.Unlock()
	for key, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, key)
	}
}

var _ timer.Service = (*Service)(nil)
