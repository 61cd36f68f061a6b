package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"vivaha/internal/models"
	"vivaha/internal/notifications"

	"gorm.io/gorm"
)

// AuditService is the append-only recorder of administrative actions.
// There is deliberately no update or delete method: a correction of a logged
// action is modeled as a new subsequent entry, never a mutation of history.
type AuditService struct {
	db       *gorm.DB
	notifier *notifications.Notifier
}

// NewAuditService returns a new AuditService. The notifier may be nil.
func NewAuditService(db *gorm.DB, notifier *notifications.Notifier) *AuditService {
	return &AuditService{db: db, notifier: notifier}
}

// Record appends one audit entry and returns its identifier.
func (s *AuditService) Record(ctx context.Context, entry *models.AdminAction) (uint, error) {
	if !models.ValidActionType(entry.ActionType) {
		return 0, models.NewValidationError("unknown audit action type: " + entry.ActionType)
	}
	if entry.Status == "" {
		entry.Status = "completed"
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return 0, models.NewStoreError(err)
	}

	if s.notifier != nil {
		if err := s.notifier.PublishChange(ctx, models.AdminAction{}.TableName(), notifications.ChangeInsert, entry.ID); err != nil {
			slog.WarnContext(ctx, "failed to publish audit change event",
				slog.Uint64("entry_id", uint64(entry.ID)),
				slog.String("error", err.Error()),
			)
		}
	}

	return entry.ID, nil
}

// Query returns the audit trail for a target user, newest first. The caller's
// identity is not consulted here; access control over the result is the
// presentation layer's concern.
func (s *AuditService) Query(ctx context.Context, targetUserID uint, limit int) ([]models.AdminAction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var entries []models.AdminAction
	if err := s.db.WithContext(ctx).
		Where("target_user_id = ?", targetUserID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, models.NewStoreError(err)
	}
	return entries, nil
}

// snapshot marshals a value for the old_values/new_values audit columns.
func snapshot(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// moderationSnapshot captures the moderation-relevant fields of a user row.
func moderationSnapshot(u *models.User) json.RawMessage {
	return snapshot(map[string]interface{}{
		"status":             u.Status,
		"is_ban_active":      u.IsBanActive,
		"ban_type":           u.BanType,
		"ban_expires_at":     u.BanExpiresAt,
		"block_reason":       u.BlockReason,
		"blocked_by_user_id": u.BlockedByUserID,
		"blocked_at":         u.BlockedAt,
		"evidence_file_refs": u.EvidenceFileRefs,
	})
}
