// Package bootstrap establishes shared runtime dependencies for the binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vivaha/internal/config"
	"vivaha/internal/database"
	"vivaha/internal/middleware"
	"vivaha/internal/models"
	"vivaha/internal/observability"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Runtime bundles the initialized process-wide dependencies.
type Runtime struct {
	Config          *config.Config
	DB              *gorm.DB
	TracingShutdown func(context.Context) error
}

// InitRuntime loads config, wires middleware globals, connects the database
// and initializes tracing. Redis is intentionally not established here; the
// server tolerates its absence and the offline commands never need it.
func InitRuntime() (*Runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	middleware.InitMiddleware(cfg)

	shutdown, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "vivaha-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.SamplerRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	rt := &Runtime{Config: cfg, DB: db, TracingShutdown: shutdown}

	if cfg.DevBootstrapRoot {
		if err := EnsureDevRootAdmin(db, cfg); err != nil {
			return nil, fmt.Errorf("bootstrap root admin: %w", err)
		}
	}

	return rt, nil
}

// EnsureDevRootAdmin creates the development root admin account if it does
// not exist yet. Config validation already refuses this flag in production.
func EnsureDevRootAdmin(db *gorm.DB, cfg *config.Config) error {
	username := cfg.DevRootUsername
	if username == "" {
		username = "root"
	}
	email := cfg.DevRootEmail
	if email == "" {
		email = "root@localhost"
	}
	password := cfg.DevRootPassword
	if password == "" {
		password = "rootpassword"
	}

	var existing models.User
	err := db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		if !existing.IsAdmin {
			return db.Model(&existing).Update("is_admin", true).Error
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	root := models.User{
		Username: username,
		Email:    email,
		Password: string(hash),
		IsAdmin:  true,
		Status:   models.StatusActive,
	}
	if err := db.Create(&root).Error; err != nil {
		return err
	}

	middleware.Logger.Info("development root admin created",
		slog.String("username", username),
		slog.String("email", email),
	)
	return nil
}
