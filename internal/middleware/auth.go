package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tourly-backend/internal/domain"
	"tourly-backend/pkg/jwt"
	"tourly-backend/pkg/response"
)

const (
	participantIDKey = "participant_id"
	roleKey          = "role"
	usernameKey      = "username"
)

// TokenValidator parses and validates access tokens
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwt.Claims, error)
}

// AuthMiddleware validates the bearer token and stores the caller's
// participant id and role in the Gin context. Browsers cannot set headers on
// websocket upgrades, so an access_token query parameter is accepted there.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		role, err := domain.ParseRole(claims.Role)
		if err != nil || claims.ParticipantID == uuid.Nil {
			response.Unauthorized(c, "Invalid token claims")
			c.Abort()
			return
		}

		c.Set(participantIDKey, claims.ParticipantID)
		c.Set(roleKey, role)
		c.Set(usernameKey, claims.Username)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if websocketUpgrade(c) {
			return c.Query("access_token")
		}
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

func websocketUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

// Participant returns the authenticated caller set by AuthMiddleware
func Participant(c *gin.Context) (uuid.UUID, domain.Role, bool) {
	idVal, exists := c.Get(participantIDKey)
	if !exists {
		return uuid.Nil, nil, false
	}
	id, ok := idVal.(uuid.UUID)
	if !ok {
		return uuid.Nil, nil, false
	}

	roleVal, exists := c.Get(roleKey)
	if !exists {
		return uuid.Nil, nil, false
	}
	role, ok := roleVal.(domain.Role)
	if !ok {
		return uuid.Nil, nil, false
	}

	return id, role, true
}

// SetParticipant stores a caller in the context; used by handler tests
func SetParticipant(c *gin.Context, id uuid.UUID, role domain.Role) {
	c.Set(participantIDKey, id)
	c.Set(roleKey, role)
}
