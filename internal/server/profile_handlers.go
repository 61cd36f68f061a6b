package server

import (
	"log/slog"
	"strings"

	"vivaha/internal/models"
	"vivaha/internal/notifications"
	"vivaha/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile returns the caller's own profile.
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("authentication required"))
	}

	profile, err := s.profileService.GetByUserID(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(profile)
}

// UpdateMyProfile creates or replaces the caller's profile.
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("authentication required"))
	}

	var in models.Profile
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}

	profile, err := s.profileService.Upsert(c.UserContext(), userID, &in)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(profile)
}

// GetProfile returns another member's profile if it is browsable.
func (s *Server) GetProfile(c *fiber.Ctx) error {
	userID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	profile, svcErr := s.profileService.GetByUserID(c.UserContext(), userID)
	if svcErr != nil {
		return models.RespondWithError(c, models.StatusForError(svcErr), svcErr)
	}

	var owner models.User
	if err := s.db.WithContext(c.UserContext()).First(&owner, userID).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewStoreError(err))
	}
	// Hidden and moderated profiles look identical to missing ones.
	if !profile.Visible || owner.Status != models.StatusActive {
		notFound := models.NewNotFoundError("Profile", userID)
		return models.RespondWithError(c, models.StatusForError(notFound), notFound)
	}

	return c.JSON(profile)
}

// BrowseProfiles lists visible profiles of active members with filters.
func (s *Server) BrowseProfiles(c *fiber.Ctx) error {
	limit, offset := parsePagination(c, 20, 100)
	filter := service.ProfileFilter{
		Gender:    c.Query("gender"),
		Religion:  c.Query("religion"),
		Community: c.Query("community"),
		City:      c.Query("city"),
		MinAge:    c.QueryInt("min_age", 0),
		MaxAge:    c.QueryInt("max_age", 0),
		Limit:     limit,
		Offset:    offset,
	}

	profiles, err := s.profileService.Browse(c.UserContext(), filter)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(fiber.Map{
		"profiles": profiles,
		"count":    len(profiles),
	})
}

// ReportUserRequest is the member abuse-report payload.
type ReportUserRequest struct {
	Reason       string   `json:"reason"`
	Description  string   `json:"description"`
	Severity     string   `json:"severity"`
	EvidenceRefs []string `json:"evidence_refs"`
}

// ReportUser files an abuse report against another member. The report enters
// the admin queue unassigned; the reporter gets an acknowledgement event.
func (s *Server) ReportUser(c *fiber.Ctx) error {
	reporterID, ok := currentUserID(c)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("authentication required"))
	}
	reportedID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if reportedID == reporterID {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("you cannot report yourself"))
	}

	var req ReportUserRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}
	if strings.TrimSpace(req.Reason) == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("reason is required"))
	}
	severity := req.Severity
	switch severity {
	case "":
		severity = models.SeverityMedium
	case models.SeverityLow, models.SeverityMedium, models.SeverityHigh:
	default:
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("severity must be low, medium or high"))
	}

	var target models.User
	if err := s.db.WithContext(c.UserContext()).First(&target, reportedID).Error; err != nil {
		notFound := models.NewNotFoundError("User", reportedID)
		return models.RespondWithError(c, models.StatusForError(notFound), notFound)
	}

	report := models.Report{
		ReporterID:       reporterID,
		ReportedUserID:   reportedID,
		Reason:           req.Reason,
		Description:      req.Description,
		Severity:         severity,
		Status:           models.ReportStatusPending,
		ReviewStatus:     models.ReviewNotAssigned,
		EvidenceFileRefs: req.EvidenceRefs,
	}
	if err := s.db.WithContext(c.UserContext()).Create(&report).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewStoreError(err))
	}

	if s.notifier != nil {
		if err := s.notifier.PublishChange(c.UserContext(), models.Report{}.TableName(), notifications.ChangeInsert, report.ID); err != nil {
			slog.WarnContext(c.UserContext(), "failed to publish report insert event",
				slog.Uint64("report_id", uint64(report.ID)),
				slog.String("error", err.Error()),
			)
		}
		if err := s.notifier.PublishModeration(c.UserContext(), reporterID, notifications.EventReportReceived, report.ID, nil); err != nil {
			slog.WarnContext(c.UserContext(), "failed to publish report acknowledgement",
				slog.Uint64("report_id", uint64(report.ID)),
				slog.String("error", err.Error()),
			)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(report)
}
