package memory

import (
	"context"
	"sort"

	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/service/dao"
	"github.com/viant/fluxgate/service/dao/criteria"
	"github.com/viant/fluxgate/service/dao/store"
)

// Service implements an in-memory, thread-safe store of run snapshots. All
// API methods work with copies to eliminate data races between goroutines.
type Service struct {
	*store.MemoryStore[string, model.Run]
}

var _ dao.Service[string, model.Run] = (*Service)(nil)

// List returns snapshots ordered by creation time then id.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Run, error) {
	runs, err := s.MemoryStore.List(ctx, parameters...)
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return runs, nil
}

// New creates an empty run store.
func New() *Service {
	return &Service{MemoryStore: store.NewMemoryStore[string, model.Run](
		func(run *model.Run) string { return run.ID },
		store.WithCloner[string, model.Run]((*model.Run).Clone),
		store.WithMatcher[string, model.Run](func(run *model.Run, parameters []*dao.Parameter) bool {
			return criteria.FilterByStatus(string(run.Status()), parameters)
		}),
	)}
}
