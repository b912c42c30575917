// Package http is the thin request layer in front of the session authority.
// It parses requests, forwards credential material to the core and maps the
// core's error taxonomy onto status codes.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/galasfoundry/mooch-auth/internal/logger"
	"github.com/galasfoundry/mooch-auth/internal/model"
)

// AuthService is the session authority surface the handlers call.
type AuthService interface {
	Login(ctx context.Context, identifier, secret string) (model.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error)
	Revoke(ctx context.Context, token string) error
	Authorize(ctx context.Context, accessToken string, requiredScope ...string) (model.Claims, error)
	Register(ctx context.Context, identifier, secret string) (model.User, error)
	ChangePassword(ctx context.Context, identifier, oldSecret, newSecret string) error
	GetUser(ctx context.Context, id uuid.UUID) (model.User, error)
}

// Handler serves the authentication endpoints.
type Handler struct {
	auth   AuthService
	logger *logger.Logger
}

// NewHandler creates a Handler over the given service.
func NewHandler(auth AuthService, logger *logger.Logger) *Handler {
	return &Handler{auth: auth, logger: logger}
}

type credentialsRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type revokeRequest struct {
	Token string `json:"token" binding:"required"`
}

type changePasswordRequest struct {
	Identifier  string `json:"identifier" binding:"required"`
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func pairResponse(pair model.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"identifier": user.Identifier,
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, pairResponse(pair))
}

func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, pairResponse(pair))
}

func (h *Handler) Logout(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.auth.Revoke(c.Request.Context(), req.Token); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), req.Identifier, req.OldPassword, req.NewPassword); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Session describes the authenticated caller: the token claims plus the user
// record the subject resolves to. It sits behind the Authenticate middleware.
func (h *Handler) Session(c *gin.Context) {
	claims, ok := ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	user, err := h.auth.GetUser(c.Request.Context(), claims.Subject)
	if err != nil {
		// A valid token whose subject no longer exists is a dead session.
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subject":    claims.Subject,
		"identifier": user.Identifier,
		"scope":      claims.Scope,
		"issued_at":  claims.IssuedAt,
		"expires_at": claims.ExpiresAt,
	})
}
