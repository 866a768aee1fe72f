// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// tree.go provides a Valkey-backed cache for the serialized public
// category tree. Building the tree walks every category row and counts
// entries per node, so the public navigation payload is cached with a
// short TTL and invalidated on every category or repository mutation.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// treeKey is the Valkey key holding the serialized public tree.
	treeKey = "catalog:public_tree"

	// DefaultTreeTTL is how long the public tree stays cached without an
	// explicit invalidation.
	DefaultTreeTTL = 5 * time.Minute
)

// TreeCache manages the cached public category tree in Valkey.
type TreeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTreeCache creates a tree cache backed by the given Valkey client.
func NewTreeCache(client *redis.Client, ttl time.Duration) *TreeCache {
	if ttl == 0 {
		ttl = DefaultTreeTTL
	}
	return &TreeCache{client: client, ttl: ttl}
}

// Get retrieves the cached public tree payload. Returns false on miss.
func (tc *TreeCache) Get(ctx context.Context) ([]byte, bool) {
	val, err := tc.client.Get(ctx, treeKey).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("tree cache get error", "error", err)
		return nil, false
	}
	slog.Debug("tree cache hit")
	return val, true
}

// Set stores the serialized public tree with the configured TTL.
func (tc *TreeCache) Set(ctx context.Context, payload []byte) {
	if err := tc.client.Set(ctx, treeKey, payload, tc.ttl).Err(); err != nil {
		slog.Warn("tree cache set error", "error", err)
	}
}

// Invalidate drops the cached tree. Called after every category mutation
// and after every repository create/update/delete, since both can change
// which branches survive pruning and the per-node counts.
func (tc *TreeCache) Invalidate(ctx context.Context) {
	if err := tc.client.Del(ctx, treeKey).Err(); err != nil {
		slog.Warn("tree cache invalidate error", "error", err)
	}
	slog.Debug("tree cache invalidated")
}
