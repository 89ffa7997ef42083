package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/chungtau/ledger-bank/internal/domain"
)

// AuthHandler handles authentication-related endpoints (dev mode only)
type AuthHandler struct {
	jwtSecret string
	devMode   bool
}

func NewAuthHandler(jwtSecret string, devMode bool) *AuthHandler {
	return &AuthHandler{
		jwtSecret: jwtSecret,
		devMode:   devMode,
	}
}

type DevTokenRequest struct {
	UserID    int64  `json:"user_id" binding:"required,gt=0"`
	Role      string `json:"role"`
	ExpiresIn int    `json:"expires_in"` // seconds, default 3600
}

type DevTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"`
}

// SignToken issues an HS256 token carrying the identity the auth
// middleware expects.
func SignToken(secret string, identity domain.Identity, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(identity.UserID, 10),
		"role": string(identity.Role),
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
		"nbf":  now.Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// GenerateDevToken handles POST /auth/dev/token (only available in DEV_MODE)
func (h *AuthHandler) GenerateDevToken(c *gin.Context) {
	if !h.devMode {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "Endpoint not available",
		})
		return
	}

	var req DevTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	role := domain.RoleCustomer
	if req.Role != "" {
		r, ok := domain.ParseRole(req.Role)
		if !ok {
			badRequest(c, "role must be CUSTOMER or ADMIN")
			return
		}
		role = r
	}

	expiresIn := req.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	identity := domain.Identity{UserID: req.UserID, Role: role}
	token, expiresAt, err := SignToken(h.jwtSecret, identity, time.Duration(expiresIn)*time.Second)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "Failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, DevTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		UserID:    identity.UserID,
		Role:      string(identity.Role),
	})
}
