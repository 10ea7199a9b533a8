// Package fs stores decisions as JSON documents on any viant/afs storage.
// Each run gets its own folder; file names sort in append order.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/service/audit"
)

// Sink writes <base>/<runID>/<sequence>-<decisionID>.json.
type Sink struct {
	fs      afs.Service
	baseURL string
	mu      sync.Mutex
}

// New creates a sink rooted at baseURL.
func New(fs afs.Service, baseURL string) *Sink {
	return &Sink{fs: fs, baseURL: strings.TrimRight(baseURL, "/")}
}

// Append implements audit.Sink.
func (s *Sink) Append(ctx context.Context, decision *model.Decision) error {
	if err := audit.Validate(decision); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	objects, err := s.objects(ctx, decision.RunID)
	if err != nil {
		return err
	}
	suffix := "-" + decision.ID + ".json"
	for _, object := range objects {
		if strings.HasSuffix(object.Name(), suffix) {
			return nil
		}
	}
	data, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to encode decision %s: %w", decision.ID, err)
	}
	name := fmt.Sprintf("%08d%s", len(objects)+1, suffix)
	URL := url.Join(s.baseURL, decision.RunID, name)
	if err = s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write decision %s: %w", decision.ID, err)
	}
	return nil
}

// List implements audit.Sink. runID is required.
func (s *Sink) List(ctx context.Context, runID string) ([]*model.Decision, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id was empty")
	}
	objects, err := s.objects(ctx, runID)
	if err != nil {
		return nil, err
	}
	ret := make([]*model.Decision, 0, len(objects))
	for _, object := range objects {
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", object.URL(), err)
		}
		decision := &model.Decision{}
		if err = json.Unmarshal(data, decision); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", object.URL(), err)
		}
		ret = append(ret, decision)
	}
	return ret, nil
}

func (s *Sink) objects(ctx context.Context, runID string) ([]storage.Object, error) {
	location := url.Join(s.baseURL, runID)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil || !exists {
		return nil, err
	}
	objects, err := s.fs.List(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", location, err)
	}
	var ret []storage.Object
	for _, object := range objects {
		if !object.IsDir() && strings.HasSuffix(object.Name(), ".json") {
			ret = append(ret, object)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name() < ret[j].Name() })
	return ret, nil
}

var _ audit.Sink = (*Sink)(nil)
