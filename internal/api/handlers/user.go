package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stocksage/stocksage-go/internal/database"
	"github.com/stocksage/stocksage-go/internal/middleware"
	"github.com/stocksage/stocksage-go/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// UserStore persists dashboard users.
type UserStore interface {
	Create(ctx context.Context, username, email, passwordHash string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, id, username, email string) (*models.User, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	GenerateToken(userID, email, username string, duration time.Duration) (string, error)
}

// UserHandler serves registration, login and the signed-in user's profile.
type UserHandler struct {
	users       UserStore
	tokens      TokenIssuer
	tokenExpiry time.Duration
	bcryptCost  int
	logger      *logrus.Logger
}

// NewUserHandler creates a user handler. A zero bcryptCost uses bcrypt.DefaultCost.
func NewUserHandler(users UserStore, tokens TokenIssuer, tokenExpiry time.Duration, bcryptCost int, logger *logrus.Logger) *UserHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserHandler{
		users:       users,
		tokens:      tokens,
		tokenExpiry: tokenExpiry,
		bcryptCost:  bcryptCost,
		logger:      logger,
	}
}

// RegisterUser handles POST /api/register
func (h *UserHandler) RegisterUser(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.bcryptCost)
	if err != nil {
		h.logger.WithError(err).Error("Failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to hash password"})
		return
	}

	user, err := h.users.Create(c.Request.Context(), strings.TrimSpace(req.Username), req.Email, string(hashedPassword))
	if err != nil {
		if errors.Is(err, database.ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": "User already exists"})
			return
		}
		h.logger.WithError(err).Error("Failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "user": user.ToResponse()})
}

// LoginUser handles POST /api/login
func (h *UserHandler) LoginUser(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid credentials"})
			return
		}
		h.logger.WithError(err).Error("Failed to look up user")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to look up user"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid credentials"})
		return
	}

	token, err := h.tokens.GenerateToken(user.ID, user.Email, user.Username, h.tokenExpiry)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		Success: true,
		User:    user.ToResponse(),
		Token:   token,
	})
}

// GetUserProfile handles GET /api/user/profile; RequireAuth runs first.
func (h *UserHandler) GetUserProfile(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "User ID required"})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "User not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to load profile")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to load profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": user.ToResponse()})
}

// UpdateUserProfile handles PUT /api/user/profile.
func (h *UserHandler) UpdateUserProfile(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "User ID required"})
		return
	}

	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}

	ctx := c.Request.Context()
	current, err := h.users.GetByID(ctx, userID)
	if err != nil {
		h.writeProfileError(c, err)
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = strings.TrimSpace(req.FullName)
	}
	if username == "" {
		username = current.Username
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = current.Email
	}

	updated, err := h.users.Update(ctx, userID, username, email)
	if err != nil {
		h.writeProfileError(c, err)
		return
	}

	h.logger.WithField("user_id", userID).Info("Profile updated")
	c.JSON(http.StatusOK, gin.H{"success": true, "user": updated.ToResponse()})
}

func (h *UserHandler) writeProfileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "User not found"})
	case errors.Is(err, database.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "Email already registered"})
	default:
		h.logger.WithError(err).Error("Failed to update profile")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to update profile"})
	}
}
