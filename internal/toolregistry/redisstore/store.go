// Package redisstore implements toolregistry.Store on Redis hashes, one
// hash per run (key "toolreg:{runId}", field per nodeId) so that
// concurrent registrations for distinct node ids commute and the whole
// run's tool set can be read or torn down in one round trip (§4.6, §5).
package redisstore

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/flowforge/orchestrator/internal/toolregistry"
)

// Store is a Redis-backed toolregistry.Store.
type Store struct {
	client *redis.Client
	prefix string
}

// New constructs a Store. prefix namespaces keys, e.g. "toolreg:".
func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Put implements toolregistry.Store via HSET, a per-field atomic write.
func (s *Store) Put(ctx context.Context, tool toolregistry.RegisteredTool) error {
	payload, err := json.Marshal(tool)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.runKey(tool.RunID), tool.NodeID, payload).Err()
}

// Get implements toolregistry.Store.
func (s *Store) Get(ctx context.Context, runID, nodeID string) (toolregistry.RegisteredTool, bool, error) {
	raw, err := s.client.HGet(ctx, s.runKey(runID), nodeID).Bytes()
	if err == redis.Nil {
		return toolregistry.RegisteredTool{}, false, nil
	}
	if err != nil {
		return toolregistry.RegisteredTool{}, false, err
	}
	var tool toolregistry.RegisteredTool
	if err := json.Unmarshal(raw, &tool); err != nil {
		return toolregistry.RegisteredTool{}, false, err
	}
	return tool, true, nil
}

// ListByRun implements toolregistry.Store.
func (s *Store) ListByRun(ctx context.Context, runID string) ([]toolregistry.RegisteredTool, error) {
	raw, err := s.client.HGetAll(ctx, s.runKey(runID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]toolregistry.RegisteredTool, 0, len(raw))
	for _, v := range raw {
		var tool toolregistry.RegisteredTool
		if err := json.Unmarshal([]byte(v), &tool); err != nil {
			return nil, err
		}
		out = append(out, tool)
	}
	return out, nil
}

// DeleteByRun implements toolregistry.Store.
func (s *Store) DeleteByRun(ctx context.Context, runID string) error {
	return s.client.Del(ctx, s.runKey(runID)).Err()
}

func (s *Store) runKey(runID string) string {
	return s.prefix + runID
}
