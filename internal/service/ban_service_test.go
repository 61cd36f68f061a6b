package service

import (
	"context"
	"testing"
	"time"

	"vivaha/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBanFixture(t *testing.T) (*BanService, *AuditService, context.Context) {
	t.Helper()
	db := setupTestDB(t)
	audit := NewAuditService(db, nil)
	return NewBanService(db, audit, nil), audit, context.Background()
}

func TestBanExpiry(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		duration string
		want     time.Time
	}{
		{"2_hours", now.Add(2 * time.Hour)},
		{"1_day", now.Add(24 * time.Hour)},
		{"1_week", now.Add(7 * 24 * time.Hour)},
		{"1_month", now.Add(30 * 24 * time.Hour)},
		{"1_year", now.Add(365 * 24 * time.Hour)},
	}
	for _, tt := range tests {
		got, err := BanExpiry(tt.duration, now)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.duration)
	}

	_, err := BanExpiry("fortnight", now)
	assert.Error(t, err)
}

func TestApplyBan_Temporary(t *testing.T) {
	t.Parallel()
	svc, audit, ctx := newBanFixture(t)
	admin := createTestUser(t, svc.db, "admin", true)
	target := createTestUser(t, svc.db, "target", false)

	user, err := svc.ApplyBan(ctx, target.ID, admin.ID, "harassment", models.BanTypeTemporary, "1_day", []string{"s3://evidence/1.png"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusBanned, user.Status)
	assert.True(t, user.IsBanActive)
	require.NotNil(t, user.BanType)
	assert.Equal(t, models.BanTypeTemporary, *user.BanType)
	require.NotNil(t, user.BanExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(24*time.Hour), *user.BanExpiresAt, time.Minute)
	assert.Equal(t, "harassment", user.BlockReason)
	require.NotNil(t, user.BlockedByUserID)
	assert.Equal(t, admin.ID, *user.BlockedByUserID)
	assert.Equal(t, []string{"s3://evidence/1.png"}, user.EvidenceFileRefs)

	entries, err := audit.Query(ctx, target.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionUserBanned, entries[0].ActionType)
	assert.NotEmpty(t, entries[0].OldValues)
	assert.NotEmpty(t, entries[0].NewValues)
}

func TestApplyBan_Permanent_NoExpiry(t *testing.T) {
	t.Parallel()
	svc, _, ctx := newBanFixture(t)
	admin := createTestUser(t, svc.db, "admin", true)
	target := createTestUser(t, svc.db, "target", false)

	user, err := svc.ApplyBan(ctx, target.ID, admin.ID, "fraud", models.BanTypePermanent, "", nil)
	require.NoError(t, err)
	assert.Nil(t, user.BanExpiresAt)
}

func TestApplyBan_AlreadyBanned_Conflict(t *testing.T) {
	t.Parallel()
	svc, audit, ctx := newBanFixture(t)
	admin := createTestUser(t, svc.db, "admin", true)
	other := createTestUser(t, svc.db, "admin2", true)
	target := createTestUser(t, svc.db, "target", false)

	_, err := svc.ApplyBan(ctx, target.ID, admin.ID, "spam", models.BanTypePermanent, "", nil)
	require.NoError(t, err)

	_, err = svc.ApplyBan(ctx, target.ID, other.ID, "spam again", models.BanTypePermanent, "", nil)
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeConflict, appErr.Code)

	// The losing attempt must not leave an audit entry or alter state.
	entries, err := audit.Query(ctx, target.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, admin.ID, entries[0].AdminUserID)

	var reloaded models.User
	require.NoError(t, svc.db.First(&reloaded, target.ID).Error)
	assert.Equal(t, "spam", reloaded.BlockReason)
}

func TestApplyBan_Validation(t *testing.T) {
	t.Parallel()
	svc, _, ctx := newBanFixture(t)
	admin := createTestUser(t, svc.db, "admin", true)
	target := createTestUser(t, svc.db, "target", false)

	_, err := svc.ApplyBan(ctx, target.ID, admin.ID, "", models.BanTypePermanent, "", nil)
	assert.Error(t, err, "empty reason")

	_, err = svc.ApplyBan(ctx, target.ID, admin.ID, "spam", "forever", "", nil)
	assert.Error(t, err, "unknown ban type")

	_, err = svc.ApplyBan(ctx, target.ID, admin.ID, "spam", models.BanTypeTemporary, "fortnight", nil)
	assert.Error(t, err, "unknown duration")

	_, err = svc.ApplyBan(ctx, 9999, admin.ID, "spam", models.BanTypePermanent, "", nil)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func TestLiftBan_Idempotent(t *testing.T) {
	t.Parallel()
	svc, audit, ctx := newBanFixture(t)
	admin := createTestUser(t, svc.db, "admin", true)
	target := createTestUser(t, svc.db, "target", false)

	_, err := svc.ApplyBan(ctx, target.ID, admin.ID, "spam", models.BanTypeTemporary, "1_week", nil)
	require.NoError(t, err)

	user, err := svc.LiftBan(ctx, target.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, user.Status)
	assert.False(t, user.IsBanActive)
	assert.Nil(t, user.BanType)
	assert.Nil(t, user.BanExpiresAt)
	assert.Empty(t, user.BlockReason)
	assert.Nil(t, user.BlockedByUserID)

	// A second lift is a harmless no-op that still leaves a trace.
	user, err = svc.LiftBan(ctx, target.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, user.Status)

	entries, err := audit.Query(ctx, target.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.ActionUserUnbanned, entries[0].ActionType)
	assert.Equal(t, models.ActionUserUnbanned, entries[1].ActionType)
	assert.Equal(t, models.ActionUserBanned, entries[2].ActionType)
}

func TestReconcileExpired_ClearsOnlyExpired(t *testing.T) {
	t.Parallel()
	svc, _, ctx := newBanFixture(t)
	admin := createTestUser(t, svc.db, "admin", true)

	expired := createTestUser(t, svc.db, "expired", false)
	current := createTestUser(t, svc.db, "current", false)
	permanent := createTestUser(t, svc.db, "permanent", false)

	_, err := svc.ApplyBan(ctx, expired.ID, admin.ID, "spam", models.BanTypeTemporary, "2_hours", nil)
	require.NoError(t, err)
	_, err = svc.ApplyBan(ctx, current.ID, admin.ID, "spam", models.BanTypeTemporary, "1_week", nil)
	require.NoError(t, err)
	_, err = svc.ApplyBan(ctx, permanent.ID, admin.ID, "fraud", models.BanTypePermanent, "", nil)
	require.NoError(t, err)

	// Backdate one expiry into the past.
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, svc.db.Model(&models.User{}).
		Where("id = ?", expired.ID).
		Update("ban_expires_at", past).Error)

	count, err := svc.ReconcileExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var u models.User
	require.NoError(t, svc.db.First(&u, expired.ID).Error)
	assert.Equal(t, models.StatusActive, u.Status)
	assert.False(t, u.IsBanActive)

	var cu models.User
	require.NoError(t, svc.db.First(&cu, current.ID).Error)
	assert.True(t, cu.IsBanActive)

	var pu models.User
	require.NoError(t, svc.db.First(&pu, permanent.ID).Error)
	assert.True(t, pu.IsBanActive)

	// A second sweep finds nothing left to clear.
	count, err = svc.ReconcileExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReconcileExpired_WritesOneSweepAuditEntry(t *testing.T) {
	t.Parallel()
	svc, _, ctx := newBanFixture(t)
	admin := createTestUser(t, svc.db, "admin", true)

	for _, name := range []string{"a", "b"} {
		u := createTestUser(t, svc.db, name, false)
		_, err := svc.ApplyBan(ctx, u.ID, admin.ID, "spam", models.BanTypeTemporary, "2_hours", nil)
		require.NoError(t, err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, svc.db.Model(&models.User{}).
		Where("is_ban_active = ?", true).
		Update("ban_expires_at", past).Error)

	count, err := svc.ReconcileExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	var sweepEntries []models.AdminAction
	require.NoError(t, svc.db.Where("action_type = ?", models.ActionBanExpired).Find(&sweepEntries).Error)
	require.Len(t, sweepEntries, 1)
	assert.Contains(t, sweepEntries[0].Description, "2 account(s)")
}
