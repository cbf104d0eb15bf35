package routes

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lgulliver/stockpile/internal/storage"
	"github.com/lgulliver/stockpile/pkg/types"
)

// FileRoutes serves finished artifacts at the URL finalize returns
func FileRoutes(router gin.IRoutes, uploadService UploadServiceInterface) {
	router.GET("/files/:name", handleDownload(uploadService))
}

func handleDownload(uploadService UploadServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")

		content, size, err := uploadService.OpenArtifact(c.Request.Context(), name)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, types.ErrorResponse{Status: "error", Message: "File not found"})
				return
			}
			writeError(c, err)
			return
		}
		defer content.Close()

		contentType := mime.TypeByExtension(filepath.Ext(name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		c.Header("Content-Length", fmt.Sprintf("%d", size))
		c.Header("Content-Type", contentType)
		c.Status(http.StatusOK)

		if _, err := io.Copy(c.Writer, content); err != nil {
			log.Warn().Err(err).Str("name", name).Msg("download interrupted")
		}
	}
}
