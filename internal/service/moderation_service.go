package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"vivaha/internal/cache"
	"vivaha/internal/models"
	"vivaha/internal/observability"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// BanRequestRow is a row for the admin ban-request listing: users with open
// reports stacked against them, most-reported first.
type BanRequestRow struct {
	ReportedUserID uint        `json:"reported_user_id"`
	ReportCount    int64       `json:"report_count"`
	LatestReportAt time.Time   `json:"latest_report_at"`
	User           models.User `json:"user"`
}

// AdminUserDetail aggregates user and moderation data for admin views.
type AdminUserDetail struct {
	User       models.User          `json:"user"`
	Reports    []models.Report      `json:"reports"`
	AuditTrail []models.AdminAction `json:"audit_trail"`
	Warnings   []string             `json:"warnings,omitempty"`
}

// Overview is the cached aggregate for the admin dashboard.
type Overview struct {
	Members         int64     `json:"members"`
	ActiveBans      int64     `json:"active_bans"`
	PendingReports  int64     `json:"pending_reports"`
	InReviewReports int64     `json:"in_review_reports"`
	ResolvedReports int64     `json:"resolved_reports"`
	AuditEntries    int64     `json:"audit_entries"`
	ComputedAt      time.Time `json:"computed_at"`
}

// ModerationService provides admin aggregate views over moderation data and
// keeps their Redis-cached copies fresh via the refresh scheduler.
type ModerationService struct {
	db    *gorm.DB
	rdb   *redis.Client
	audit *AuditService
}

// NewModerationService returns a new ModerationService. rdb may be nil.
func NewModerationService(db *gorm.DB, rdb *redis.Client, audit *AuditService) *ModerationService {
	return &ModerationService{db: db, rdb: rdb, audit: audit}
}

// GetBanRequests returns aggregated ban-request rows for admin.
func (s *ModerationService) GetBanRequests(ctx context.Context, limit, offset int) ([]BanRequestRow, error) {
	defer observability.TrackQuery("aggregate", "reports")()

	type rawRow struct {
		ReportedUserID uint
		ReportCount    int64
		LatestReportAt time.Time
	}

	var rows []rawRow
	if err := s.db.WithContext(ctx).
		Table("reports").
		Select("reported_user_id, COUNT(*) as report_count, MAX(created_at) as latest_report_at").
		Where("status = ?", models.ReportStatusPending).
		Group("reported_user_id").
		Order("report_count DESC, latest_report_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error; err != nil {
		return nil, models.NewStoreError(err)
	}

	userIDs := make([]uint, 0, len(rows))
	for _, row := range rows {
		userIDs = append(userIDs, row.ReportedUserID)
	}

	usersByID := map[uint]models.User{}
	if len(userIDs) > 0 {
		var users []models.User
		if err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return nil, models.NewStoreError(err)
		}
		for _, user := range users {
			usersByID[user.ID] = user
		}
	}

	resp := make([]BanRequestRow, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, BanRequestRow{
			ReportedUserID: row.ReportedUserID,
			ReportCount:    row.ReportCount,
			LatestReportAt: row.LatestReportAt,
			User:           usersByID[row.ReportedUserID],
		})
	}
	return resp, nil
}

// GetAdminUserDetail returns detailed user and moderation data for admin.
// Partial failures degrade to warnings instead of failing the whole view.
func (s *ModerationService) GetAdminUserDetail(ctx context.Context, userID uint) (*AdminUserDetail, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Profile").First(&user, userID).Error; err != nil {
		return nil, err
	}

	detail := &AdminUserDetail{User: user}

	if err := s.db.WithContext(ctx).
		Where("reported_user_id = ?", userID).
		Order("created_at DESC").
		Limit(200).
		Find(&detail.Reports).Error; err != nil {
		slog.WarnContext(ctx, "failed to load reports for user", "user_id", userID, "err", err)
		detail.Warnings = append(detail.Warnings, "Partial data: reports could not be loaded.")
	}

	trail, err := s.audit.Query(ctx, userID, 200)
	if err != nil {
		slog.WarnContext(ctx, "failed to load audit trail for user", "user_id", userID, "err", err)
		detail.Warnings = append(detail.Warnings, "Partial data: audit trail could not be loaded.")
	} else {
		detail.AuditTrail = trail
	}

	return detail, nil
}

// ComputeOverview counts the aggregate dashboard numbers from the store.
func (s *ModerationService) ComputeOverview(ctx context.Context) (*Overview, error) {
	defer observability.TrackQuery("aggregate", "overview")()

	o := &Overview{ComputedAt: time.Now().UTC()}

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&o.Members, s.db.WithContext(ctx).Model(&models.User{})},
		{&o.ActiveBans, s.db.WithContext(ctx).Model(&models.User{}).Where("is_ban_active = ?", true)},
		{&o.PendingReports, s.db.WithContext(ctx).Model(&models.Report{}).Where("status = ?", models.ReportStatusPending)},
		{&o.InReviewReports, s.db.WithContext(ctx).Model(&models.Report{}).Where("review_status = ?", models.ReviewInProgress)},
		{&o.ResolvedReports, s.db.WithContext(ctx).Model(&models.Report{}).Where("review_status = ?", models.ReviewCompleted)},
		{&o.AuditEntries, s.db.WithContext(ctx).Model(&models.AdminAction{})},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, models.NewStoreError(err)
		}
	}
	return o, nil
}

// RefreshOverview recomputes the overview and writes it to the Redis cache.
// Registered with the refresh scheduler under the "overview" key.
func (s *ModerationService) RefreshOverview(ctx context.Context) error {
	overview, err := s.ComputeOverview(ctx)
	if err != nil {
		return err
	}
	if s.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(overview)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, cache.AdminOverviewKey, payload, cache.AdminOverviewTTL).Err()
}

// CachedOverview returns the cached overview, recomputing on a miss.
func (s *ModerationService) CachedOverview(ctx context.Context) (*Overview, error) {
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, cache.AdminOverviewKey).Bytes()
		if err == nil {
			var o Overview
			if unmarshalErr := json.Unmarshal(raw, &o); unmarshalErr == nil {
				return &o, nil
			}
		}
	}

	overview, err := s.ComputeOverview(ctx)
	if err != nil {
		return nil, err
	}
	if s.rdb != nil {
		if payload, marshalErr := json.Marshal(overview); marshalErr == nil {
			s.rdb.Set(ctx, cache.AdminOverviewKey, payload, cache.AdminOverviewTTL)
		}
	}
	return overview, nil
}

// RefreshBanRequests recomputes the ban-request listing cache.
// Registered with the refresh scheduler under the "ban_requests" key.
func (s *ModerationService) RefreshBanRequests(ctx context.Context) error {
	rows, err := s.GetBanRequests(ctx, 100, 0)
	if err != nil {
		return err
	}
	if s.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, cache.BanRequestsKey, payload, cache.ReportListTTL).Err()
}
