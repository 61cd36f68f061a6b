// Package seed populates a development database with realistic test data.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"vivaha/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options controls how much data the seeder creates.
type Options struct {
	Members int
	Reports int
	Clean   bool
}

// Seeder populates the store with fake members, profiles and reports.
type Seeder struct {
	db      *gorm.DB
	dataset *Dataset
	rng     *rand.Rand
}

// NewSeeder creates a Seeder over the given database.
func NewSeeder(db *gorm.DB) (*Seeder, error) {
	ds, err := LoadDataset()
	if err != nil {
		return nil, err
	}
	return &Seeder{
		db:      db,
		dataset: ds,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run seeds the database according to the options.
func (s *Seeder) Run(opts Options) error {
	if opts.Members <= 0 {
		opts.Members = 50
	}
	if opts.Reports <= 0 {
		opts.Reports = 30
	}

	if opts.Clean {
		if err := s.ClearAll(); err != nil {
			return fmt.Errorf("clear data: %w", err)
		}
	}

	users, err := s.createMembers(opts.Members)
	if err != nil {
		return fmt.Errorf("create members: %w", err)
	}
	log.Printf("created %d members with profiles", len(users))

	admin, err := s.createAdmin()
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	log.Printf("created admin %q", admin.Username)

	reports, err := s.createReports(users, opts.Reports)
	if err != nil {
		return fmt.Errorf("create reports: %w", err)
	}
	log.Printf("created %d reports", reports)

	banned, err := s.banSomeMembers(users, admin)
	if err != nil {
		return fmt.Errorf("ban members: %w", err)
	}
	log.Printf("banned %d members for moderation testing", banned)

	return nil
}

// ClearAll deletes seeded data in dependency order.
func (s *Seeder) ClearAll() error {
	tables := []string{"admin_actions", "reports", "profiles", "users"}
	for _, table := range tables {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// All seeded accounts share this password for local testing.
const seedPassword = "password123"

func (s *Seeder) createMembers(n int) ([]models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, n)
	for i := 0; i < n; i++ {
		person := gofakeit.Person()
		username := strings.ToLower(person.FirstName) + fmt.Sprintf("_%d", i)

		user := models.User{
			Username: username,
			Email:    fmt.Sprintf("%s@example.com", username),
			Password: string(hash),
			Phone:    gofakeit.Phone(),
			Status:   models.StatusActive,
		}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, err
		}

		profile := s.buildProfile(user.ID, person)
		if err := s.db.Create(profile).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (s *Seeder) buildProfile(userID uint, person *gofakeit.PersonInfo) *models.Profile {
	religion := s.dataset.Religions[s.rng.Intn(len(s.dataset.Religions))]
	community := religion.Communities[s.rng.Intn(len(religion.Communities))]

	gender := "female"
	if s.rng.Intn(2) == 0 {
		gender = "male"
	}

	age := 21 + s.rng.Intn(20)
	birth := time.Now().AddDate(-age, -s.rng.Intn(12), -s.rng.Intn(28))

	return &models.Profile{
		UserID:        userID,
		FullName:      person.FirstName + " " + person.LastName,
		Gender:        gender,
		BirthDate:     &birth,
		Religion:      religion.Name,
		Community:     community,
		MotherTongue:  s.dataset.MotherTongues[s.rng.Intn(len(s.dataset.MotherTongues))],
		City:          s.dataset.Cities[s.rng.Intn(len(s.dataset.Cities))],
		Country:       "India",
		Education:     gofakeit.JobTitle(),
		Occupation:    gofakeit.JobDescriptor(),
		MaritalStatus: "never_married",
		About:         gofakeit.Sentence(12),
		Visible:       true,
	}
}

func (s *Seeder) createAdmin() (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	admin := models.User{
		Username: "moderator",
		Email:    "moderator@example.com",
		Password: string(hash),
		IsAdmin:  true,
		Status:   models.StatusActive,
	}
	if err := s.db.Create(&admin).Error; err != nil {
		return nil, err
	}
	return &admin, nil
}

func (s *Seeder) createReports(users []models.User, n int) (int, error) {
	if len(users) < 2 {
		return 0, nil
	}

	severities := []string{models.SeverityLow, models.SeverityMedium, models.SeverityHigh}
	created := 0
	for i := 0; i < n; i++ {
		reporter := users[s.rng.Intn(len(users))]
		reported := users[s.rng.Intn(len(users))]
		if reporter.ID == reported.ID {
			continue
		}

		report := models.Report{
			ReporterID:     reporter.ID,
			ReportedUserID: reported.ID,
			Reason:         s.dataset.ReportReasons[s.rng.Intn(len(s.dataset.ReportReasons))],
			Description:    gofakeit.Sentence(15),
			Severity:       severities[s.rng.Intn(len(severities))],
			Status:         models.ReportStatusPending,
			ReviewStatus:   models.ReviewNotAssigned,
		}
		if err := s.db.Create(&report).Error; err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// banSomeMembers bans a handful of seeded members, half permanent and half
// with a short expiry so the sweep has something to clear.
func (s *Seeder) banSomeMembers(users []models.User, admin *models.User) (int, error) {
	if len(users) < 10 {
		return 0, nil
	}

	count := 3 + s.rng.Intn(3)
	banned := 0
	for i := 0; i < count; i++ {
		target := users[s.rng.Intn(len(users))]
		now := time.Now().UTC()

		banType := models.BanTypePermanent
		var expires *time.Time
		if i%2 == 0 {
			banType = models.BanTypeTemporary
			exp := now.Add(time.Duration(1+s.rng.Intn(72)) * time.Hour)
			expires = &exp
		}

		res := s.db.Model(&models.User{}).
			Where("id = ? AND status <> ?", target.ID, models.StatusBanned).
			Updates(map[string]interface{}{
				"status":             models.StatusBanned,
				"is_ban_active":      true,
				"ban_type":           banType,
				"ban_expires_at":     expires,
				"block_reason":       "seeded moderation action",
				"blocked_by_user_id": admin.ID,
				"blocked_at":         now,
			})
		if res.Error != nil {
			return banned, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}

		action := models.AdminAction{
			TargetUserID: target.ID,
			AdminUserID:  admin.ID,
			ActionType:   models.ActionUserBanned,
			Title:        "Account banned",
			Reason:       "seeded moderation action",
		}
		if err := s.db.Create(&action).Error; err != nil {
			return banned, err
		}
		banned++
	}
	return banned, nil
}
