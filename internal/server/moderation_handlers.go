package server

import (
	"strings"

	"vivaha/internal/cache"
	"vivaha/internal/models"

	"github.com/gofiber/fiber/v2"
)

// AdminRequired gates the moderation surface. It runs after AuthRequired and
// re-reads the account row, so a revoked admin flag takes effect on the next
// request rather than at token expiry.
func (s *Server) AdminRequired(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("authentication required"))
	}

	var user models.User
	if err := s.db.WithContext(c.UserContext()).Select("id", "is_admin", "status").First(&user, userID).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("account not found"))
	}
	if !user.IsAdmin || user.Status != models.StatusActive {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "admin access required",
		})
	}

	c.Locals("adminID", userID)
	return c.Next()
}

// GetAdminOverview returns the cached dashboard aggregate.
func (s *Server) GetAdminOverview(c *fiber.Ctx) error {
	overview, err := s.moderationService.CachedOverview(c.UserContext())
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(overview)
}

// GetAdminReports lists the report queue with optional status filters.
func (s *Server) GetAdminReports(c *fiber.Ctx) error {
	limit, offset := parsePagination(c, 50, 200)
	reports, err := s.reviewService.ListReports(c.UserContext(),
		c.Query("status"), c.Query("review_status"), limit, offset)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(fiber.Map{
		"reports": reports,
		"count":   len(reports),
	})
}

// AssignReport claims a report for the calling admin.
func (s *Server) AssignReport(c *fiber.Ctx) error {
	reportID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	adminID := c.Locals("adminID").(uint)

	report, svcErr := s.reviewService.AssignForReview(c.UserContext(), reportID, adminID)
	if svcErr != nil {
		return models.RespondWithError(c, models.StatusForError(svcErr), svcErr)
	}
	return c.JSON(report)
}

// ResolveReportRequest carries the reviewing admin's verdict.
type ResolveReportRequest struct {
	Verdict      string   `json:"verdict"`
	Notes        string   `json:"notes"`
	EvidenceRefs []string `json:"evidence_refs"`
}

// ResolveReport completes a claimed report with a verdict.
func (s *Server) ResolveReport(c *fiber.Ctx) error {
	reportID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	adminID := c.Locals("adminID").(uint)

	var req ResolveReportRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}

	report, svcErr := s.reviewService.Resolve(c.UserContext(), reportID, adminID, req.Verdict, req.Notes, req.EvidenceRefs)
	if svcErr != nil {
		return models.RespondWithError(c, models.StatusForError(svcErr), svcErr)
	}
	return c.JSON(report)
}

// GetAdminBanRequests lists users with open reports, most-reported first.
func (s *Server) GetAdminBanRequests(c *fiber.Ctx) error {
	limit, offset := parsePagination(c, 50, 200)
	rows, err := s.moderationService.GetBanRequests(c.UserContext(), limit, offset)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(fiber.Map{
		"ban_requests": rows,
		"count":        len(rows),
	})
}

// GetAdminUsers lists member accounts with optional search by name or email.
func (s *Server) GetAdminUsers(c *fiber.Ctx) error {
	limit, offset := parsePagination(c, 50, 200)

	query := s.db.WithContext(c.UserContext()).Model(&models.User{})
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var users []models.User
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&users).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewStoreError(err))
	}
	return c.JSON(fiber.Map{
		"users": users,
		"count": len(users),
	})
}

// GetAdminUserDetail returns one account with its reports and audit trail.
func (s *Server) GetAdminUserDetail(c *fiber.Ctx) error {
	userID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	detail, svcErr := s.moderationService.GetAdminUserDetail(c.UserContext(), userID)
	if svcErr != nil {
		notFound := models.NewNotFoundError("User", userID)
		return models.RespondWithError(c, models.StatusForError(notFound), notFound)
	}
	return c.JSON(detail)
}

// BanUserRequest is the moderation ban payload.
type BanUserRequest struct {
	Reason       string   `json:"reason"`
	BanType      string   `json:"ban_type"`
	Duration     string   `json:"duration"`
	EvidenceRefs []string `json:"evidence_refs"`
}

// BanUser bans a member account.
func (s *Server) BanUser(c *fiber.Ctx) error {
	targetID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	adminID := c.Locals("adminID").(uint)
	if targetID == adminID {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("you cannot ban yourself"))
	}

	var req BanUserRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}

	user, svcErr := s.banService.ApplyBan(c.UserContext(), targetID, adminID, req.Reason, req.BanType, req.Duration, req.EvidenceRefs)
	if svcErr != nil {
		return models.RespondWithError(c, models.StatusForError(svcErr), svcErr)
	}

	cache.InvalidateProfile(c.UserContext(), s.redis, targetID)
	cache.InvalidateAdminViews(c.UserContext(), s.redis)
	return c.JSON(user)
}

// UnbanUser lifts a member's ban. Unbanning an active account succeeds.
func (s *Server) UnbanUser(c *fiber.Ctx) error {
	targetID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	adminID := c.Locals("adminID").(uint)

	user, svcErr := s.banService.LiftBan(c.UserContext(), targetID, adminID)
	if svcErr != nil {
		return models.RespondWithError(c, models.StatusForError(svcErr), svcErr)
	}

	cache.InvalidateProfile(c.UserContext(), s.redis, targetID)
	cache.InvalidateAdminViews(c.UserContext(), s.redis)
	return c.JSON(user)
}

// GetUserAudit returns the audit trail for one account, newest first.
func (s *Server) GetUserAudit(c *fiber.Ctx) error {
	userID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	limit, _ := parsePagination(c, 100, 500)

	entries, svcErr := s.auditService.Query(c.UserContext(), userID, limit)
	if svcErr != nil {
		return models.RespondWithError(c, models.StatusForError(svcErr), svcErr)
	}
	return c.JSON(fiber.Map{
		"audit": entries,
		"count": len(entries),
	})
}

// RunSweep clears expired temporary bans on demand instead of waiting for the
// background ticker.
func (s *Server) RunSweep(c *fiber.Ctx) error {
	count, err := s.banService.ReconcileExpired(c.UserContext())
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(fiber.Map{
		"unbanned": count,
	})
}

// RefreshView recomputes one cached admin view right now, bypassing the
// scheduler's throttle window.
func (s *Server) RefreshView(c *fiber.Ctx) error {
	key := c.Params("key")
	if err := s.refresh.TriggerOne(c.UserContext(), key); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"refreshed": key,
	})
}

// LivenessCheck reports process health.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// ReadinessCheck reports dependency health. Redis being down degrades the
// response but does not fail it; the store being down does.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(c.UserContext()) != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
			"store":  "down",
		})
	}

	redisStatus := "ok"
	if s.redis == nil {
		redisStatus = "absent"
	} else if pingErr := s.redis.Ping(c.UserContext()).Err(); pingErr != nil {
		redisStatus = "down"
	}

	return c.JSON(fiber.Map{
		"status": "ok",
		"store":  "ok",
		"redis":  redisStatus,
	})
}
