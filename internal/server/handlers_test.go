package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vivaha/internal/cache"
	"vivaha/internal/config"
	"vivaha/internal/models"
	"vivaha/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.Report{},
		&models.AdminAction{},
	))

	cfg := &config.Config{JWTSecret: "test-secret-value-for-handler-tests"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := service.NewAuditService(db, nil)

	return &Server{
		config:            cfg,
		db:                db,
		refresh:           cache.NewRefreshScheduler(time.Second, logger),
		auditService:      audit,
		banService:        service.NewBanService(db, audit, nil),
		reviewService:     service.NewReviewService(db, audit, nil),
		moderationService: service.NewModerationService(db, nil, audit),
		profileService:    service.NewProfileService(db),
	}
}

func createHandlerUser(t *testing.T, db *gorm.DB, username string, isAdmin bool) models.User {
	t.Helper()
	user := models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "pw",
		IsAdmin:  isAdmin,
		Status:   models.StatusActive,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

// asUser injects the authenticated user the way AuthRequired does.
func asUser(userID uint) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("userID", userID)
		return c.Next()
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestBanUnbanHandlerFlow(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	admin := createHandlerUser(t, s.db, "admin", true)
	target := createHandlerUser(t, s.db, "target", false)

	app := fiber.New()
	app.Use(asUser(admin.ID))
	app.Post("/admin/users/:id/ban", s.AdminRequired, s.BanUser)
	app.Post("/admin/users/:id/unban", s.AdminRequired, s.UnbanUser)
	app.Get("/admin/users/:id/audit", s.AdminRequired, s.GetUserAudit)

	banPath := fmt.Sprintf("/admin/users/%d/ban", target.ID)
	unbanPath := fmt.Sprintf("/admin/users/%d/unban", target.ID)
	auditPath := fmt.Sprintf("/admin/users/%d/audit", target.ID)

	banBody := BanUserRequest{Reason: "harassment", BanType: "temporary", Duration: "1_day"}
	resp := doJSON(t, app, http.MethodPost, banPath, banBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var banned models.User
	decodeBody(t, resp, &banned)
	assert.Equal(t, models.StatusBanned, banned.Status)
	assert.True(t, banned.IsBanActive)

	// A repeated ban conflicts.
	resp = doJSON(t, app, http.MethodPost, banPath, banBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodPost, unbanPath, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lifted models.User
	decodeBody(t, resp, &lifted)
	assert.Equal(t, models.StatusActive, lifted.Status)

	resp = doJSON(t, app, http.MethodGet, auditPath, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var auditResp struct {
		Audit []models.AdminAction `json:"audit"`
		Count int                  `json:"count"`
	}
	decodeBody(t, resp, &auditResp)
	assert.Equal(t, 2, auditResp.Count)
	assert.Equal(t, models.ActionUserUnbanned, auditResp.Audit[0].ActionType)
	assert.Equal(t, models.ActionUserBanned, auditResp.Audit[1].ActionType)
}

func TestAdminRequired_RejectsNonAdmin(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	member := createHandlerUser(t, s.db, "member", false)

	app := fiber.New()
	app.Use(asUser(member.ID))
	app.Get("/admin/overview", s.AdminRequired, s.GetAdminOverview)

	resp := doJSON(t, app, http.MethodGet, "/admin/overview", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAdminRequired_RejectsBannedAdmin(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	admin := createHandlerUser(t, s.db, "admin", true)
	require.NoError(t, s.db.Model(&models.User{}).
		Where("id = ?", admin.ID).
		Updates(map[string]interface{}{"status": models.StatusBanned, "is_ban_active": true}).Error)

	app := fiber.New()
	app.Use(asUser(admin.ID))
	app.Get("/admin/overview", s.AdminRequired, s.GetAdminOverview)

	resp := doJSON(t, app, http.MethodGet, "/admin/overview", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAssignAndResolveHandlers(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	reporter := createHandlerUser(t, s.db, "reporter", false)
	reported := createHandlerUser(t, s.db, "reported", false)
	adminA := createHandlerUser(t, s.db, "admin_a", true)
	adminB := createHandlerUser(t, s.db, "admin_b", true)

	report := models.Report{
		ReporterID:     reporter.ID,
		ReportedUserID: reported.ID,
		Reason:         "fake profile",
		Severity:       models.SeverityHigh,
		Status:         models.ReportStatusPending,
		ReviewStatus:   models.ReviewNotAssigned,
	}
	require.NoError(t, s.db.Create(&report).Error)

	appFor := func(adminID uint) *fiber.App {
		app := fiber.New()
		app.Use(asUser(adminID))
		app.Post("/admin/reports/:id/assign", s.AdminRequired, s.AssignReport)
		app.Post("/admin/reports/:id/resolve", s.AdminRequired, s.ResolveReport)
		return app
	}

	resp := doJSON(t, appFor(adminA.ID), http.MethodPost, "/admin/reports/1/assign", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var claimed models.Report
	decodeBody(t, resp, &claimed)
	assert.Equal(t, models.ReviewInProgress, claimed.ReviewStatus)

	// Losing admin sees a conflict, and cannot resolve either.
	resp = doJSON(t, appFor(adminB.ID), http.MethodPost, "/admin/reports/1/assign", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doJSON(t, appFor(adminB.ID), http.MethodPost, "/admin/reports/1/resolve",
		ResolveReportRequest{Verdict: "accepted"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doJSON(t, appFor(adminA.ID), http.MethodPost, "/admin/reports/1/resolve",
		ResolveReportRequest{Verdict: "accepted", Notes: "confirmed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var resolved models.Report
	decodeBody(t, resp, &resolved)
	assert.Equal(t, models.ReportStatusResolved, resolved.Status)
	assert.Equal(t, models.ReviewCompleted, resolved.ReviewStatus)
}

func TestReportUserHandler(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	reporter := createHandlerUser(t, s.db, "reporter", false)
	reported := createHandlerUser(t, s.db, "reported", false)

	app := fiber.New()
	app.Use(asUser(reporter.ID))
	app.Post("/users/:id/report", s.ReportUser)

	resp := doJSON(t, app, http.MethodPost, "/users/2/report",
		ReportUserRequest{Reason: "harassment in messages", Severity: "high"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Report
	decodeBody(t, resp, &created)
	assert.Equal(t, reporter.ID, created.ReporterID)
	assert.Equal(t, reported.ID, created.ReportedUserID)
	assert.Equal(t, models.ReviewNotAssigned, created.ReviewStatus)

	// Self-reports and empty reasons are rejected.
	resp = doJSON(t, app, http.MethodPost, "/users/1/report",
		ReportUserRequest{Reason: "whatever"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodPost, "/users/2/report", ReportUserRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodPost, "/users/999/report",
		ReportUserRequest{Reason: "spam"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRefreshViewHandler(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	admin := createHandlerUser(t, s.db, "admin", true)

	runs := 0
	s.refresh.Register("overview", func(ctx context.Context) error {
		runs++
		return nil
	})

	app := fiber.New()
	app.Use(asUser(admin.ID))
	app.Post("/admin/refresh/:key", s.AdminRequired, s.RefreshView)

	resp := doJSON(t, app, http.MethodPost, "/admin/refresh/overview", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
	assert.Equal(t, 1, runs)

	resp = doJSON(t, app, http.MethodPost, "/admin/refresh/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRunSweepHandler(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	admin := createHandlerUser(t, s.db, "admin", true)
	target := createHandlerUser(t, s.db, "target", false)

	past := time.Now().UTC().Add(-time.Hour)
	banType := models.BanTypeTemporary
	require.NoError(t, s.db.Model(&models.User{}).
		Where("id = ?", target.ID).
		Updates(map[string]interface{}{
			"status":         models.StatusBanned,
			"is_ban_active":  true,
			"ban_type":       banType,
			"ban_expires_at": past,
		}).Error)

	app := fiber.New()
	app.Use(asUser(admin.ID))
	app.Post("/admin/sweep", s.AdminRequired, s.RunSweep)

	resp := doJSON(t, app, http.MethodPost, "/admin/sweep", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sweepResp struct {
		Unbanned int64 `json:"unbanned"`
	}
	decodeBody(t, resp, &sweepResp)
	assert.Equal(t, int64(1), sweepResp.Unbanned)
}
