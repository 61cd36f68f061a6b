package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vivaha/internal/models"
	"vivaha/internal/notifications"
	"vivaha/internal/observability"

	"gorm.io/gorm"
)

// Review verdicts accepted by Resolve.
const (
	VerdictAccepted = "accepted"
	VerdictRejected = "rejected"
)

// ReviewService owns the single-reviewer report assignment workflow:
// not_assigned -> in_progress -> completed, mirrored by
// pending -> reviewing -> resolved|rejected. The exclusive claim is a
// compare-and-set on review_status; no in-process lock exists or is needed.
type ReviewService struct {
	db       *gorm.DB
	audit    *AuditService
	notifier *notifications.Notifier
}

// NewReviewService returns a new ReviewService.
func NewReviewService(db *gorm.DB, audit *AuditService, notifier *notifications.Notifier) *ReviewService {
	return &ReviewService{db: db, audit: audit, notifier: notifier}
}

// AssignForReview claims a report for one admin. Of two concurrent callers
// exactly one wins; the loser gets a distinct not-assignable error rather
// than silently overwriting the winner's claim.
func (s *ReviewService) AssignForReview(ctx context.Context, reportID, adminID uint) (*models.Report, error) {
	now := time.Now().UTC()

	res := s.db.WithContext(ctx).
		Model(&models.Report{}).
		Where("id = ? AND review_status = ?", reportID, models.ReviewNotAssigned).
		Updates(map[string]interface{}{
			"review_status":       models.ReviewInProgress,
			"reviewed_by_user_id": adminID,
			"reviewed_at":         now,
			"status":              models.ReportStatusReviewing,
		})
	if res.Error != nil {
		observability.ModerationActions.WithLabelValues(models.ActionReportAssigned, "error").Inc()
		return nil, models.NewStoreError(res.Error)
	}

	if res.RowsAffected == 0 {
		var existing models.Report
		if err := s.db.WithContext(ctx).First(&existing, reportID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, models.NewNotFoundError("Report", reportID)
			}
			return nil, models.NewStoreError(err)
		}
		observability.ModerationActions.WithLabelValues(models.ActionReportAssigned, "conflict").Inc()
		return nil, models.NewNotAssignableError(reportID)
	}

	var report models.Report
	if err := s.db.WithContext(ctx).First(&report, reportID).Error; err != nil {
		return nil, models.NewStoreError(err)
	}

	s.recordAudit(ctx, &models.AdminAction{
		TargetUserID: report.ReportedUserID,
		AdminUserID:  adminID,
		ActionType:   models.ActionReportAssigned,
		Title:        "Report claimed for review",
		Description:  fmt.Sprintf("report %d moved to in_progress", reportID),
		Details:      snapshot(map[string]interface{}{"report_id": reportID}),
	})
	s.publishReportChange(ctx, reportID)

	observability.ModerationActions.WithLabelValues(models.ActionReportAssigned, "ok").Inc()
	return &report, nil
}

// Resolve completes a claimed report. Only the admin holding the in_progress
// claim may resolve it; completed is terminal and cannot be revisited.
func (s *ReviewService) Resolve(ctx context.Context, reportID, adminID uint, verdict, notes string, evidenceRefs []string) (*models.Report, error) {
	var finalStatus, actionType, eventType string
	switch verdict {
	case VerdictAccepted:
		finalStatus = models.ReportStatusResolved
		actionType = models.ActionReportResolved
		eventType = notifications.EventReportAccepted
	case VerdictRejected:
		finalStatus = models.ReportStatusRejected
		actionType = models.ActionReportRejected
		eventType = notifications.EventReportRejected
	default:
		return nil, models.NewValidationError("verdict must be accepted or rejected")
	}

	var before models.Report
	if err := s.db.WithContext(ctx).First(&before, reportID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Report", reportID)
		}
		return nil, models.NewStoreError(err)
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"review_status": models.ReviewCompleted,
		"status":        finalStatus,
		"review_notes":  notes,
		"reviewed_at":   now,
	}
	if len(evidenceRefs) > 0 {
		refs, err := json.Marshal(evidenceRefs)
		if err != nil {
			return nil, models.NewValidationError("invalid evidence refs")
		}
		updates["evidence_file_refs"] = string(refs)
	}

	res := s.db.WithContext(ctx).
		Model(&models.Report{}).
		Where("id = ? AND review_status = ? AND reviewed_by_user_id = ?", reportID, models.ReviewInProgress, adminID).
		Updates(updates)
	if res.Error != nil {
		observability.ModerationActions.WithLabelValues(actionType, "error").Inc()
		return nil, models.NewStoreError(res.Error)
	}

	if res.RowsAffected == 0 {
		observability.ModerationActions.WithLabelValues(actionType, "conflict").Inc()
		switch before.ReviewStatus {
		case models.ReviewCompleted:
			return nil, models.NewConflictError(fmt.Sprintf("report %d is already completed", reportID))
		case models.ReviewNotAssigned:
			return nil, models.NewConflictError(fmt.Sprintf("report %d is not under review", reportID))
		default:
			return nil, models.NewNotOwnerError(reportID, adminID)
		}
	}

	var after models.Report
	if err := s.db.WithContext(ctx).First(&after, reportID).Error; err != nil {
		return nil, models.NewStoreError(err)
	}

	s.recordAudit(ctx, &models.AdminAction{
		TargetUserID: after.ReportedUserID,
		AdminUserID:  adminID,
		ActionType:   actionType,
		Title:        "Report " + finalStatus,
		Reason:       notes,
		OldValues: snapshot(map[string]interface{}{
			"status":        before.Status,
			"review_status": before.ReviewStatus,
			"review_notes":  before.ReviewNotes,
		}),
		NewValues: snapshot(map[string]interface{}{
			"status":        after.Status,
			"review_status": after.ReviewStatus,
			"review_notes":  after.ReviewNotes,
		}),
		Details: snapshot(map[string]interface{}{"report_id": reportID, "verdict": verdict}),
	})
	s.publishReportChange(ctx, reportID)

	// Fire-and-forget: the reporter learns the outcome, delivery is the
	// notification collaborator's problem.
	if s.notifier != nil {
		if err := s.notifier.PublishModeration(ctx, after.ReporterID, eventType, after.ID, map[string]string{
			"verdict": verdict,
		}); err != nil {
			slog.WarnContext(ctx, "failed to publish report outcome event",
				slog.Uint64("report_id", uint64(after.ID)),
				slog.String("error", err.Error()),
			)
		}
	}

	observability.ModerationActions.WithLabelValues(actionType, "ok").Inc()
	return &after, nil
}

// ListReports returns reports for the admin queue with optional filters.
func (s *ReviewService) ListReports(ctx context.Context, status, reviewStatus string, limit, offset int) ([]models.Report, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := s.db.WithContext(ctx).Model(&models.Report{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if reviewStatus != "" {
		query = query.Where("review_status = ?", reviewStatus)
	}

	var reports []models.Report
	if err := query.
		Preload("Reporter").
		Preload("ReportedUser").
		Preload("ReviewedBy").
		Order("priority DESC, created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&reports).Error; err != nil {
		return nil, models.NewStoreError(err)
	}
	return reports, nil
}

func (s *ReviewService) recordAudit(ctx context.Context, entry *models.AdminAction) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Record(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "audit write failed for review action",
			slog.String("action_type", entry.ActionType),
			slog.Uint64("target_user_id", uint64(entry.TargetUserID)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ReviewService) publishReportChange(ctx context.Context, reportID uint) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishChange(ctx, models.Report{}.TableName(), notifications.ChangeUpdate, reportID); err != nil {
		slog.WarnContext(ctx, "failed to publish report change event",
			slog.Uint64("report_id", uint64(reportID)),
			slog.String("error", err.Error()),
		)
	}
}
