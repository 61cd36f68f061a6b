package server

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"vivaha/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SignupRequest is the registration payload.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the signed token and the account it belongs to.
type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Signup registers a new member account.
func (s *Server) Signup(c *fiber.Ctx) error {
	var req SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Username == "" || req.Email == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("username and email are required"))
	}
	if len(req.Password) < 8 {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("password must be at least 8 characters"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewStoreError(err))
	}

	user := models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hash),
		Phone:    req.Phone,
		Status:   models.StatusActive,
	}
	if err := s.db.WithContext(c.UserContext()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.RespondWithError(c, fiber.StatusConflict, models.NewConflictError("username or email already in use"))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewStoreError(err))
	}

	token, err := s.signToken(user.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewStoreError(err))
	}

	slog.InfoContext(c.UserContext(), "member signed up", slog.Uint64("user_id", uint64(user.ID)))
	return c.Status(fiber.StatusCreated).JSON(AuthResponse{Token: token, User: user})
}

// Login authenticates a member. Banned accounts are refused with the ban
// reason so the client can explain the lockout.
func (s *Server) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}

	var user models.User
	err := s.db.WithContext(c.UserContext()).
		Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).
		First(&user).Error
	if err != nil {
		// Same answer for unknown email and bad password.
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("invalid credentials"))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("invalid credentials"))
	}

	if user.Banned() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":          "account is banned",
			"block_reason":   user.BlockReason,
			"ban_type":       user.BanType,
			"ban_expires_at": user.BanExpiresAt,
		})
	}

	token, err := s.signToken(user.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewStoreError(err))
	}

	return c.JSON(AuthResponse{Token: token, User: user})
}

// Refresh reissues a token for an authenticated member. A ban that landed
// after the current token was issued cuts the session here.
func (s *Server) Refresh(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("authentication required"))
	}

	var user models.User
	if err := s.db.WithContext(c.UserContext()).First(&user, userID).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("account not found"))
	}
	if user.Banned() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":        "account is banned",
			"block_reason": user.BlockReason,
		})
	}

	token, err := s.signToken(user.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewStoreError(err))
	}
	return c.JSON(AuthResponse{Token: token, User: user})
}

// signToken issues a 24h HMAC token with the user ID in the subject claim.
func (s *Server) signToken(userID uint) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"iat": now.Unix(),
		"exp": now.Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}
