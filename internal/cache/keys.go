package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ProfileKeyPrefix  = "profile:%d"
	AdminOverviewKey  = "admin:overview"
	BanRequestsKey    = "admin:ban_requests"
	PendingReportsKey = "admin:pending_reports"
)

const (
	ProfileTTL       = 5 * time.Minute
	AdminOverviewTTL = 30 * time.Second
	ReportListTTL    = 30 * time.Second
)

func ProfileKey(userID uint) string {
	return fmt.Sprintf(ProfileKeyPrefix, userID)
}

// Invalidate drops a key, tolerating a missing client.
func Invalidate(ctx context.Context, rdb *redis.Client, key string) {
	if rdb != nil {
		rdb.Del(ctx, key)
	}
}

// InvalidateProfile drops the cached profile view for a user.
func InvalidateProfile(ctx context.Context, rdb *redis.Client, userID uint) {
	Invalidate(ctx, rdb, ProfileKey(userID))
}

// InvalidateAdminViews drops every cached admin aggregate.
func InvalidateAdminViews(ctx context.Context, rdb *redis.Client) {
	Invalidate(ctx, rdb, AdminOverviewKey)
	Invalidate(ctx, rdb, BanRequestsKey)
	Invalidate(ctx, rdb, PendingReportsKey)
}
