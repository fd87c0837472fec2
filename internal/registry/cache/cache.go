// Package cache provides a Redis-backed read-through cache for facility
// snapshots.
//
// The registry state is authoritative; the cache only accelerates the public
// read surface. Every facility-touching write invalidates the snapshot, so a
// stale entry can live at most one TTL after a crash between write and
// invalidation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"carbonledger/internal/registry/models"
	id "carbonledger/pkg/domain"
	"carbonledger/pkg/platform/sentinel"
)

const facilityKeyPrefix = "cl:facility:"

// FacilitySnapshot is the cached read model for one facility.
type FacilitySnapshot struct {
	Facility      models.Facility `json:"facility"`
	VerifiedTotal uint64          `json:"verified_total"`
	EventCount    int             `json:"event_count"`
}

// SnapshotCache stores facility snapshots in Redis with a TTL.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New constructs a snapshot cache. TTL bounds staleness after missed
// invalidations.
func New(client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

func facilityKey(facilityID id.FacilityID) string {
	return facilityKeyPrefix + facilityID.String()
}

// Get returns the cached snapshot or sentinel.ErrNotFound on a miss.
func (c *SnapshotCache) Get(ctx context.Context, facilityID id.FacilityID) (*FacilitySnapshot, error) {
	raw, err := c.client.Get(ctx, facilityKey(facilityID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get facility snapshot: %w", err)
	}

	var snapshot FacilitySnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		// A corrupt entry behaves like a miss; the write path will replace it.
		return nil, sentinel.ErrNotFound
	}
	return &snapshot, nil
}

// Put stores a snapshot with the configured TTL.
func (c *SnapshotCache) Put(ctx context.Context, snapshot *FacilitySnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal facility snapshot: %w", err)
	}
	if err := c.client.Set(ctx, facilityKey(snapshot.Facility.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("put facility snapshot: %w", err)
	}
	return nil
}

// Invalidate drops the snapshot for a facility. Missing keys are not an error.
func (c *SnapshotCache) Invalidate(ctx context.Context, facilityID id.FacilityID) error {
	if err := c.client.Del(ctx, facilityKey(facilityID)).Err(); err != nil {
		return fmt.Errorf("invalidate facility snapshot: %w", err)
	}
	return nil
}
