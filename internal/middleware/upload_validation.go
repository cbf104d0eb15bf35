package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lgulliver/stockpile/pkg/types"
)

// UploadIDMiddleware rejects requests whose :uploadId is not a session id
// before they reach storage
func UploadIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("uploadId")
		if id == "" {
			c.Next()
			return
		}

		if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
			log.Debug().
				Str("upload_id", id).
				Str("path", c.Request.URL.Path).
				Msg("rejected malformed upload id")
			c.AbortWithStatusJSON(http.StatusNotFound, types.ErrorResponse{
				Status:  "error",
				Message: "Upload not found",
			})
			return
		}

		c.Next()
	}
}

// BodyLimitMiddleware caps the request body; multipart overhead is on top of limit
func BodyLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
