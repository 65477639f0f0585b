// Package redisstore implements sessiontoken.Store on top of Redis,
// matching the Tool Registry's shared-KV usage of redis/go-redis/v9 (§5's
// "Tool Registry KV, Session Token Store, and Approval store are the only
// shared mutable state" note groups these stores under one backend).
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowforge/orchestrator/internal/sessiontoken"
)

// Store is a Redis-backed sessiontoken.Store. Keys are namespaced so the
// Session Token Store can share a Redis instance with the Tool Registry.
type Store struct {
	client *redis.Client
	prefix string
}

// New constructs a Store. prefix namespaces keys, e.g. "sesstok:".
func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Set implements sessiontoken.Store.
func (s *Store) Set(ctx context.Context, token string, claims sessiontoken.Claims, ttl time.Duration) error {
	payload, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(token), payload, ttl).Err()
}

// Get implements sessiontoken.Store.
func (s *Store) Get(ctx context.Context, token string) (sessiontoken.Claims, bool, error) {
	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err == redis.Nil {
		return sessiontoken.Claims{}, false, nil
	}
	if err != nil {
		return sessiontoken.Claims{}, false, err
	}
	var claims sessiontoken.Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return sessiontoken.Claims{}, false, err
	}
	return claims, true, nil
}

// Delete implements sessiontoken.Store.
func (s *Store) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}

func (s *Store) key(token string) string {
	return s.prefix + token
}
