package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/chungtau/ledger-bank/internal/domain"
)

const (
	IdentityKey = "identity"
	ClaimsKey   = "claims"
)

// Auth validates HS256 bearer tokens and attaches the caller's identity.
// Tokens must carry a numeric "sub" and a known "role".
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			unauthorized(c, "Invalid authorization format. Use: Bearer <token>")
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(jwtSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			unauthorized(c, "Invalid or expired token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			unauthorized(c, "Invalid token claims")
			return
		}

		identity, ok := identityFromClaims(claims)
		if !ok {
			unauthorized(c, "Token missing subject or role claim")
			return
		}

		c.Set(IdentityKey, identity)
		c.Set(ClaimsKey, claims)

		c.Next()
	}
}

// identityFromClaims accepts "sub" as a JSON number or a numeric string.
func identityFromClaims(claims jwt.MapClaims) (domain.Identity, bool) {
	var userID int64
	switch sub := claims["sub"].(type) {
	case string:
		id, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			return domain.Identity{}, false
		}
		userID = id
	case float64:
		if sub != float64(int64(sub)) {
			return domain.Identity{}, false
		}
		userID = int64(sub)
	default:
		return domain.Identity{}, false
	}
	if userID <= 0 {
		return domain.Identity{}, false
	}

	roleClaim, _ := claims["role"].(string)
	role, ok := domain.ParseRole(roleClaim)
	if !ok {
		return domain.Identity{}, false
	}
	return domain.Identity{UserID: userID, Role: role}, true
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    "UNAUTHORIZED",
		"message": message,
	})
}

// GetIdentity retrieves the authenticated caller from the gin context
func GetIdentity(c *gin.Context) (domain.Identity, bool) {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return domain.Identity{}, false
	}
	identity, ok := v.(domain.Identity)
	return identity, ok
}

// GetClaims retrieves the JWT claims from the gin context
func GetClaims(c *gin.Context) jwt.MapClaims {
	if claims, exists := c.Get(ClaimsKey); exists {
		return claims.(jwt.MapClaims)
	}
	return nil
}
