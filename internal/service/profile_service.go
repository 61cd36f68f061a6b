package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"vivaha/internal/models"

	"gorm.io/gorm"
)

// ProfileFilter holds the browse filters members can combine.
type ProfileFilter struct {
	Gender    string
	Religion  string
	Community string
	City      string
	MinAge    int
	MaxAge    int
	Limit     int
	Offset    int
}

// ProfileService provides the member-facing matrimonial profile CRUD.
type ProfileService struct {
	db *gorm.DB
}

// NewProfileService returns a new ProfileService.
func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{db: db}
}

// GetByUserID loads one profile.
func (s *ProfileService) GetByUserID(ctx context.Context, userID uint) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Profile", userID)
		}
		return nil, models.NewStoreError(err)
	}
	return &profile, nil
}

// Upsert creates or updates the caller's profile.
func (s *ProfileService) Upsert(ctx context.Context, userID uint, in *models.Profile) (*models.Profile, error) {
	if strings.TrimSpace(in.FullName) == "" {
		return nil, models.NewValidationError("full_name is required")
	}
	if in.Gender != "male" && in.Gender != "female" && in.Gender != "other" {
		return nil, models.NewValidationError("gender must be male, female or other")
	}

	var existing models.Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		in.ID = 0
		in.UserID = userID
		if createErr := s.db.WithContext(ctx).Create(in).Error; createErr != nil {
			return nil, models.NewStoreError(createErr)
		}
		return in, nil
	case err != nil:
		return nil, models.NewStoreError(err)
	}

	in.ID = existing.ID
	in.UserID = userID
	in.CreatedAt = existing.CreatedAt
	if saveErr := s.db.WithContext(ctx).Save(in).Error; saveErr != nil {
		return nil, models.NewStoreError(saveErr)
	}
	return in, nil
}

// Browse returns visible profiles of active members matching the filter.
// Banned or suspended members never show up in browse results.
func (s *ProfileService) Browse(ctx context.Context, filter ProfileFilter) ([]models.Profile, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).
		Model(&models.Profile{}).
		Joins("JOIN users ON users.id = profiles.user_id").
		Where("profiles.visible = ?", true).
		Where("users.status = ?", models.StatusActive)

	if filter.Gender != "" {
		query = query.Where("profiles.gender = ?", filter.Gender)
	}
	if filter.Religion != "" {
		query = query.Where("profiles.religion = ?", filter.Religion)
	}
	if filter.Community != "" {
		query = query.Where("profiles.community = ?", filter.Community)
	}
	if filter.City != "" {
		query = query.Where("profiles.city = ?", filter.City)
	}

	now := time.Now().UTC()
	if filter.MinAge > 0 {
		query = query.Where("profiles.birth_date <= ?", now.AddDate(-filter.MinAge, 0, 0))
	}
	if filter.MaxAge > 0 {
		query = query.Where("profiles.birth_date >= ?", now.AddDate(-filter.MaxAge-1, 0, 0))
	}

	var profiles []models.Profile
	if err := query.
		Order("profiles.updated_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&profiles).Error; err != nil {
		return nil, models.NewStoreError(err)
	}
	return profiles, nil
}
