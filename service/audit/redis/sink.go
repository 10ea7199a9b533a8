// Package redis stores decisions in Redis lists, one list per run.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/service/audit"
)

// appendScript records the decision id and pushes the payload in one atomic
// step.
// KEYS[1] = dedup key, KEYS[2] = run list, KEYS[3] = global list
// ARGV[1] = decision JSON
var appendScript = redis.NewScript(`
if redis.call("SETNX", KEYS[1], "1") == 0 then
    return 0
end
redis.call("RPUSH", KEYS[2], ARGV[1])
redis.call("RPUSH", KEYS[3], ARGV[1])
return 1
`)

// Sink is a Redis backed audit.Sink.
type Sink struct {
	client redis.UniversalClient
	prefix string
}

// New wraps client; keys are namespaced by prefix. A prefix without a hash
// tag is wrapped in braces so that every key of the sink lands in one cluster
// slot, as the append script requires.
func New(client redis.UniversalClient, prefix string) *Sink {
	if prefix == "" {
		prefix = "fluxgate:audit"
	}
	return &Sink{client: client, prefix: hashTagged(prefix)}
}

func hashTagged(prefix string) string {
	if open := strings.Index(prefix, "{"); open != -1 {
		if end := strings.Index(prefix[open+1:], "}"); end > 0 {
			return prefix
		}
	}
	return "{" + prefix + "}"
}

// Open connects to the Redis server described by URL (redis://...).
func Open(URL, prefix string) (*Sink, error) {
	options, err := redis.ParseURL(URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return New(redis.NewClient(options), prefix), nil
}

func (s *Sink) decisionKey(id string) string { return s.prefix + ":decision:" + id }
func (s *Sink) runKey(runID string) string   { return s.prefix + ":run:" + runID }
func (s *Sink) allKey() string               { return s.prefix + ":all" }

// Append implements audit.Sink.
func (s *Sink) Append(ctx context.Context, decision *model.Decision) error {
	if err := audit.Validate(decision); err != nil {
		return err
	}
	data, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to encode decision %s: %w", decision.ID, err)
	}
	keys := []string{s.decisionKey(decision.ID), s.runKey(decision.RunID), s.allKey()}
	if err = appendScript.Run(ctx, s.client, keys, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to append decision %s: %w", decision.ID, err)
	}
	return nil
}

// List implements audit.Sink; an empty runID lists every decision.
func (s *Sink) List(ctx context.Context, runID string) ([]*model.Decision, error) {
	key := s.allKey()
	if runID != "" {
		key = s.runKey(runID)
	}
	values, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	ret := make([]*model.Decision, 0, len(values))
	for _, value := range values {
		decision := &model.Decision{}
		if err = json.Unmarshal([]byte(value), decision); err != nil {
			return nil, fmt.Errorf("failed to decode decision: %w", err)
		}
		ret = append(ret, decision)
	}
	return ret, nil
}

// Close releases the client.
func (s *Sink) Close() error {
	return s.client.Close()
}

var _ audit.Sink = (*Sink)(nil)
