package service

import (
	"context"
	"testing"

	"vivaha/internal/cache"
	"vivaha/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeOverview(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	svc := NewModerationService(db, nil, NewAuditService(db, nil))
	ctx := context.Background()

	reporter := createTestUser(t, db, "reporter", false)
	reported := createTestUser(t, db, "reported", false)
	admin := createTestUser(t, db, "admin", true)

	createTestReport(t, db, reporter.ID, reported.ID)
	banSvc := NewBanService(db, nil, nil)
	_, err := banSvc.ApplyBan(ctx, reported.ID, admin.ID, "spam", models.BanTypePermanent, "", nil)
	require.NoError(t, err)

	overview, err := svc.ComputeOverview(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), overview.Members)
	assert.Equal(t, int64(1), overview.ActiveBans)
	assert.Equal(t, int64(1), overview.PendingReports)
	assert.Zero(t, overview.InReviewReports)
	assert.False(t, overview.ComputedAt.IsZero())
}

func TestGetBanRequests_AggregatesByReportedUser(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	svc := NewModerationService(db, nil, NewAuditService(db, nil))
	ctx := context.Background()

	r1 := createTestUser(t, db, "r1", false)
	r2 := createTestUser(t, db, "r2", false)
	heavy := createTestUser(t, db, "heavy", false)
	light := createTestUser(t, db, "light", false)

	createTestReport(t, db, r1.ID, heavy.ID)
	createTestReport(t, db, r2.ID, heavy.ID)
	createTestReport(t, db, r1.ID, light.ID)

	rows, err := svc.GetBanRequests(ctx, 50, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Most-reported first.
	assert.Equal(t, heavy.ID, rows[0].ReportedUserID)
	assert.Equal(t, int64(2), rows[0].ReportCount)
	assert.Equal(t, "heavy", rows[0].User.Username)
	assert.Equal(t, light.ID, rows[1].ReportedUserID)
}

func TestCachedOverview_UsesRedis(t *testing.T) {
	t.Parallel()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	db := setupTestDB(t)
	svc := NewModerationService(db, rdb, NewAuditService(db, nil))
	ctx := context.Background()

	createTestUser(t, db, "only", false)

	require.NoError(t, svc.RefreshOverview(ctx))
	assert.True(t, mr.Exists(cache.AdminOverviewKey))

	// The cached copy is served even after the store changes.
	createTestUser(t, db, "another", false)
	overview, err := svc.CachedOverview(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), overview.Members)

	require.NoError(t, svc.RefreshOverview(ctx))
	overview, err = svc.CachedOverview(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), overview.Members)
}

func TestGetAdminUserDetail(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	audit := NewAuditService(db, nil)
	svc := NewModerationService(db, nil, audit)
	ctx := context.Background()

	reporter := createTestUser(t, db, "reporter", false)
	reported := createTestUser(t, db, "reported", false)
	admin := createTestUser(t, db, "admin", true)
	createTestReport(t, db, reporter.ID, reported.ID)

	banSvc := NewBanService(db, audit, nil)
	_, err := banSvc.ApplyBan(ctx, reported.ID, admin.ID, "spam", models.BanTypePermanent, "", nil)
	require.NoError(t, err)

	detail, err := svc.GetAdminUserDetail(ctx, reported.ID)
	require.NoError(t, err)
	assert.Equal(t, reported.ID, detail.User.ID)
	assert.Len(t, detail.Reports, 1)
	assert.Len(t, detail.AuditTrail, 1)
	assert.Empty(t, detail.Warnings)
}
