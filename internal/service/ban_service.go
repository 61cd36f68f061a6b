package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vivaha/internal/models"
	"vivaha/internal/notifications"
	"vivaha/internal/observability"

	"gorm.io/gorm"
)

// banDurations is the closed enumeration of temporary ban lengths. The
// expiry is always stored as an absolute timestamp computed server-side;
// free-form durations are rejected.
var banDurations = map[string]time.Duration{
	"2_hours":  2 * time.Hour,
	"1_day":    24 * time.Hour,
	"3_days":   3 * 24 * time.Hour,
	"1_week":   7 * 24 * time.Hour,
	"1_month":  30 * 24 * time.Hour,
	"3_months": 90 * 24 * time.Hour,
	"6_months": 180 * 24 * time.Hour,
	"1_year":   365 * 24 * time.Hour,
}

// BanExpiry resolves a duration token against now into an absolute expiry.
func BanExpiry(duration string, now time.Time) (time.Time, error) {
	d, ok := banDurations[duration]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown ban duration %q", duration)
	}
	return now.Add(d), nil
}

// BanService owns account ban/unban state and time-based expiry
// reconciliation. Every mutation is a single conditional UPDATE; correctness
// under concurrent admin access rests on the store serializing those, not on
// in-process locks.
type BanService struct {
	db       *gorm.DB
	audit    *AuditService
	notifier *notifications.Notifier
}

// NewBanService returns a new BanService.
func NewBanService(db *gorm.DB, audit *AuditService, notifier *notifications.Notifier) *BanService {
	return &BanService{db: db, audit: audit, notifier: notifier}
}

// ApplyBan bans an account. The update is guarded by status <> banned, so of
// two concurrent admins exactly one succeeds and the other gets a Conflict.
func (s *BanService) ApplyBan(ctx context.Context, targetID, adminID uint, reason, banType, duration string, evidenceRefs []string) (*models.User, error) {
	if reason == "" {
		return nil, models.NewValidationError("ban reason is required")
	}
	if banType != models.BanTypePermanent && banType != models.BanTypeTemporary {
		return nil, models.NewValidationError("ban_type must be permanent or temporary")
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if banType == models.BanTypeTemporary {
		exp, err := BanExpiry(duration, now)
		if err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		expiresAt = &exp
	}

	var before models.User
	if err := s.db.WithContext(ctx).First(&before, targetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", targetID)
		}
		return nil, models.NewStoreError(err)
	}

	updates := models.User{
		Status:           models.StatusBanned,
		IsBanActive:      true,
		BanType:          &banType,
		BanExpiresAt:     expiresAt,
		BlockReason:      reason,
		BlockedByUserID:  &adminID,
		BlockedAt:        &now,
		EvidenceFileRefs: evidenceRefs,
	}
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND status <> ?", targetID, models.StatusBanned).
		Updates(&updates)
	if res.Error != nil {
		observability.ModerationActions.WithLabelValues(models.ActionUserBanned, "error").Inc()
		return nil, models.NewStoreError(res.Error)
	}
	if res.RowsAffected == 0 {
		observability.ModerationActions.WithLabelValues(models.ActionUserBanned, "conflict").Inc()
		return nil, models.NewConflictError(fmt.Sprintf("user %d is already banned", targetID))
	}

	var after models.User
	if err := s.db.WithContext(ctx).First(&after, targetID).Error; err != nil {
		return nil, models.NewStoreError(err)
	}

	s.recordAudit(ctx, &models.AdminAction{
		TargetUserID: targetID,
		AdminUserID:  adminID,
		ActionType:   models.ActionUserBanned,
		Title:        "Account banned",
		Description:  fmt.Sprintf("%s ban applied", banType),
		Reason:       reason,
		OldValues:    moderationSnapshot(&before),
		NewValues:    moderationSnapshot(&after),
		Details: snapshot(map[string]interface{}{
			"ban_type":       banType,
			"duration":       duration,
			"ban_expires_at": expiresAt,
			"evidence_refs":  evidenceRefs,
		}),
	})
	s.publishUserChange(ctx, targetID)

	observability.ModerationActions.WithLabelValues(models.ActionUserBanned, "ok").Inc()
	return &after, nil
}

// LiftBan resets an account to active. It is idempotent: lifting a ban that
// is not there succeeds as a no-op, and an audit entry is written either way
// since unbanning twice is harmless but still worth a trace.
func (s *BanService) LiftBan(ctx context.Context, targetID, adminID uint) (*models.User, error) {
	var before models.User
	if err := s.db.WithContext(ctx).First(&before, targetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", targetID)
		}
		return nil, models.NewStoreError(err)
	}

	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", targetID).
		Updates(liftBanColumns())
	if res.Error != nil {
		observability.ModerationActions.WithLabelValues(models.ActionUserUnbanned, "error").Inc()
		return nil, models.NewStoreError(res.Error)
	}

	var after models.User
	if err := s.db.WithContext(ctx).First(&after, targetID).Error; err != nil {
		return nil, models.NewStoreError(err)
	}

	s.recordAudit(ctx, &models.AdminAction{
		TargetUserID: targetID,
		AdminUserID:  adminID,
		ActionType:   models.ActionUserUnbanned,
		Title:        "Ban lifted",
		Reason:       before.BlockReason,
		OldValues:    moderationSnapshot(&before),
		NewValues:    moderationSnapshot(&after),
	})
	s.publishUserChange(ctx, targetID)

	observability.ModerationActions.WithLabelValues(models.ActionUserUnbanned, "ok").Inc()
	return &after, nil
}

// ReconcileExpired clears every temporary ban whose expiry has passed and
// returns the number of accounts unbanned. The operation is a single
// conditional bulk UPDATE; because the predicate re-checks is_ban_active at
// update time, it is safe at any call frequency from any number of
// concurrent callers, and a manual LiftBan racing with the sweep cannot
// double-fire.
func (s *BanService) ReconcileExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC()

	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_ban_active = ? AND ban_type = ? AND ban_expires_at <= ?", true, models.BanTypeTemporary, now).
		Updates(liftBanColumns())
	if res.Error != nil {
		return 0, models.NewStoreError(res.Error)
	}

	if res.RowsAffected > 0 {
		observability.BansReconciled.Add(float64(res.RowsAffected))
		// One entry per sweep pass; per-row audit history already exists
		// from the original ApplyBan entries.
		s.recordAudit(ctx, &models.AdminAction{
			ActionType:  models.ActionBanExpired,
			Title:       "Expired temporary bans cleared",
			Description: fmt.Sprintf("%d account(s) returned to active", res.RowsAffected),
			Details:     snapshot(map[string]interface{}{"count": res.RowsAffected, "swept_at": now}),
		})
		s.publishUserChange(ctx, 0)
	}

	return res.RowsAffected, nil
}

// liftBanColumns is the column set that returns an account to active.
// A map is used so nil/false/empty values are written rather than skipped.
func liftBanColumns() map[string]interface{} {
	return map[string]interface{}{
		"status":             models.StatusActive,
		"is_ban_active":      false,
		"ban_type":           nil,
		"ban_expires_at":     nil,
		"block_reason":       "",
		"blocked_by_user_id": nil,
		"blocked_at":         nil,
		"evidence_file_refs": nil,
	}
}

// recordAudit appends an audit entry. A failure is logged but never rolls
// back the primary moderation mutation: audit is best-effort observability
// here, not a transactional partner.
func (s *BanService) recordAudit(ctx context.Context, entry *models.AdminAction) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Record(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "audit write failed for moderation action",
			slog.String("action_type", entry.ActionType),
			slog.Uint64("target_user_id", uint64(entry.TargetUserID)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BanService) publishUserChange(ctx context.Context, userID uint) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishChange(ctx, models.User{}.TableName(), notifications.ChangeUpdate, userID); err != nil {
		slog.WarnContext(ctx, "failed to publish user change event",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()),
		)
	}
}
