package hallpass

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScanGuard rate-limits kiosk scans ahead of the database. The partial
// unique index on passes is the real invariant; the guard only absorbs
// double-taps before they cost a round trip.
type ScanGuard interface {
	Allow(ctx context.Context, studentID, station string) bool
}

// RedisScanGuard holds a short-lived SETNX lock per student. Fails open:
// if redis is down or absent, scans proceed and the storage constraint
// still holds.
type RedisScanGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisScanGuard(client *redis.Client, ttl time.Duration) *RedisScanGuard {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &RedisScanGuard{client: client, ttl: ttl}
}

func (g *RedisScanGuard) Allow(ctx context.Context, studentID, station string) bool {
	if g == nil || g.client == nil {
		return true
	}
	ok, err := g.client.SetNX(ctx, "scan_guard:"+studentID, station, g.ttl).Result()
	if err != nil {
		log.Printf("scan guard unavailable: %v", err)
		return true
	}
	return ok
}
