package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lgulliver/stockpile/cmd/api-gateway/middleware"
	"github.com/lgulliver/stockpile/pkg/types"
)

// AuthRoutes lets an API-key holder mint a short-lived bearer token
func AuthRoutes(api *gin.RouterGroup, issuer TokenIssuer, guard gin.HandlerFunc) {
	auth := api.Group("/auth")
	auth.POST("/token", guard, handleIssueToken(issuer))
}

func handleIssueToken(issuer TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, ok := middleware.GetSubjectFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, types.ErrorResponse{Status: "error", Message: "unauthorized"})
			return
		}

		token, err := issuer.IssueToken(subject)
		if err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("failed to issue token")
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Status: "error", Message: err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":   token,
			"subject": subject,
		})
	}
}
