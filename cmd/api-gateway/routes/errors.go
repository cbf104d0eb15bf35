package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lgulliver/stockpile/internal/upload"
	"github.com/lgulliver/stockpile/pkg/types"
)

// writeError maps upload errors onto HTTP responses
func writeError(c *gin.Context, err error) {
	var (
		validation *upload.ValidationError
		missing    *upload.MissingChunkError
		storage    *upload.StorageError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Status:  "error",
			Message: validation.Error(),
			Field:   validation.Field,
		})
	case errors.As(err, &missing):
		index := missing.Index
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Status:       "error",
			Message:      missing.Error(),
			MissingIndex: &index,
		})
	case errors.Is(err, upload.ErrUnknownUpload):
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Status:  "error",
			Message: "Upload not found",
		})
	case errors.Is(err, upload.ErrUploadBusy):
		c.JSON(http.StatusConflict, types.ErrorResponse{
			Status:  "error",
			Message: "Upload is being finalized",
		})
	case errors.As(err, &storage):
		log.Error().Err(err).Str("op", storage.Op).Str("key", storage.Key).Msg("storage failure")
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Status:  "error",
			Message: "Storage failure",
		})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("unexpected error")
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Status:  "error",
			Message: "Internal server error",
		})
	}
}

func badRequest(c *gin.Context, field, message string) {
	c.JSON(http.StatusBadRequest, types.ErrorResponse{
		Status:  "error",
		Message: message,
		Field:   field,
	})
}
