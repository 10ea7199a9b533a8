// Package memory provides an in-process, hash chained audit sink.
package memory

import (
	"context"
	"sync"

	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/service/audit"
)

// Sink keeps decisions in an append-only, hash chained slice.
type Sink struct {
	mu      sync.RWMutex
	entries []*audit.Entry
	ids     map[string]bool
}

// New creates an empty sink.
func New() *Sink {
	return &Sink{ids: map[string]bool{}}
}

// Append implements audit.Sink.
func (s *Sink) Append(_ context.Context, decision *model.Decision) error {
	if err := audit.Validate(decision); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[decision.ID] {
		return nil
	}
	entry, err := audit.Chain(s.entries, decision.Clone())
	if err != nil {
		return err
	}
	s.entries = append(s.entries, entry)
	s.ids[decision.ID] = true
	return nil
}

// List implements audit.Sink; an empty runID lists every decision.
func (s *Sink) List(_ context.Context, runID string) ([]*model.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ret []*model.Decision
	for _, entry := range s.entries {
		if runID == "" || entry.Decision.RunID == runID {
			ret = append(ret, entry.Decision.Clone())
		}
	}
	return ret, nil
}

// Entries returns the chained entries in append order.
func (s *Sink) Entries() []*audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make([]*audit.Entry, len(s.entries))
	for i, entry := range s.entries {
		clone := *entry
		clone.Decision = entry.Decision.Clone()
		ret[i] = &clone
	}
	return ret
}

// Verify checks the hash chain.
func (s *Sink) Verify() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return audit.Verify(s.entries)
}

var _ audit.Sink = (*Sink)(nil)
