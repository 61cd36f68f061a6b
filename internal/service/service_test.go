package service

import (
	"testing"

	"vivaha/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB opens an in-memory store with the full schema.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.Report{},
		&models.AdminAction{},
	))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string, isAdmin bool) models.User {
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

func createTestReport(t *testing.T, db *gorm.DB, reporterID, reportedID uint) models.Report {
	t.Helper()
	report := models.Report{
		ReporterID:     reporterID,
		ReportedUserID: reportedID,
		Reason:         "fake profile",
		Severity:       models.SeverityMedium,
		Status:         models.ReportStatusPending,
		ReviewStatus:   models.ReviewNotAssigned,
	}
	require.NoError(t, db.Create(&report).Error)
	return report
}
