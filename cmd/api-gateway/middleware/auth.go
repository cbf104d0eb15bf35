package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lgulliver/stockpile/pkg/types"
)

const subjectKey = "subject"

// AuthMiddleware requires a bearer token or API key when auth is enabled.
// A presented bearer token is authoritative: if it fails, the API key is not tried.
func AuthMiddleware(authService AuthServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authService.Enabled() {
			c.Next()
			return
		}

		if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimPrefix(authHeader, "Bearer ")
			subject, err := authService.ValidateToken(c.Request.Context(), token)
			if err == nil {
				c.Set(subjectKey, subject)
				c.Next()
				return
			}
			unauthorized(c, "invalid token")
			return
		}

		if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
			subject, err := authService.ValidateAPIKey(c.Request.Context(), apiKey)
			if err == nil {
				c.Set(subjectKey, subject)
				c.Next()
				return
			}
			unauthorized(c, "invalid api key")
			return
		}

		unauthorized(c, "missing credentials")
	}
}

func unauthorized(c *gin.Context, reason string) {
	log.Debug().Str("path", c.Request.URL.Path).Str("reason", reason).Msg("request rejected")
	c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{
		Status:  "error",
		Message: "unauthorized",
	})
}

// GetSubjectFromContext returns the authenticated subject, if any
func GetSubjectFromContext(c *gin.Context) (string, bool) {
	subject, exists := c.Get(subjectKey)
	if !exists {
		return "", false
	}
	s, ok := subject.(string)
	return s, ok
}
