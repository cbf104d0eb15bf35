package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lgulliver/stockpile/internal/middleware"
	"github.com/lgulliver/stockpile/pkg/types"
)

// UploadRoutes registers the chunked upload protocol under /upload
func UploadRoutes(api *gin.RouterGroup, uploadService UploadServiceInterface, maxChunkSize int64, guards ...gin.HandlerFunc) {
	uploads := api.Group("/upload")
	uploads.Use(guards...)

	// Multipart framing adds a little on top of the chunk itself
	bodyLimit := maxChunkSize
	if bodyLimit > 0 {
		bodyLimit += 1 << 20
	}

	uploads.POST("/init", handleInit(uploadService))
	uploads.POST("/chunk/:uploadId", middleware.UploadIDMiddleware(), middleware.BodyLimitMiddleware(bodyLimit), handleChunk(uploadService))
	uploads.POST("/finalize/:uploadId", middleware.UploadIDMiddleware(), handleFinalize(uploadService))
	uploads.GET("/status/:uploadId", middleware.UploadIDMiddleware(), handleStatus(uploadService))
	uploads.DELETE("/:uploadId", middleware.UploadIDMiddleware(), handleAbort(uploadService))
}

// InitUpload godoc
//
//	@Summary		Open an upload session
//	@Tags			Uploads
//	@Accept			json
//	@Produce		json
//	@Param			request	body		types.InitUploadRequest	true	"File to be uploaded"
//	@Success		200		{object}	types.InitUploadResponse
//	@Failure		400		{object}	types.ErrorResponse
//	@Failure		500		{object}	types.ErrorResponse
//	@Security		BearerAuth
//	@Router			/upload/init [post]
func handleInit(uploadService UploadServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.InitUploadRequest
		if err := c.ShouldBind(&req); err != nil {
			badRequest(c, "", "filename, filesize and filetype are required")
			return
		}

		id, err := uploadService.Init(c.Request.Context(), req.Filename, req.Filesize, req.Filetype)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.InitUploadResponse{
			UploadID: id,
			Status:   "initialized",
		})
	}
}

// UploadChunk godoc
//
//	@Summary		Store one chunk, replacing any earlier bytes at that index
//	@Tags			Uploads
//	@Accept			mpfd
//	@Produce		json
//	@Param			uploadId		path		string	true	"Upload id"
//	@Param			index			formData	int		true	"Zero-based chunk index"
//	@Param			total_chunks	formData	int		true	"Declared chunk count"
//	@Param			filename		formData	string	true	"Original filename"
//	@Param			chunk			formData	file	true	"Chunk bytes"
//	@Success		200				{object}	types.ChunkUploadResponse
//	@Failure		400				{object}	types.ErrorResponse
//	@Failure		404				{object}	types.ErrorResponse
//	@Failure		409				{object}	types.ErrorResponse
//	@Security		BearerAuth
//	@Router			/upload/chunk/{uploadId} [post]
func handleChunk(uploadService UploadServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ChunkUploadRequest
		if err := c.ShouldBind(&req); err != nil {
			badRequest(c, "", "index, total_chunks and filename are required")
			return
		}

		header, err := c.FormFile("chunk")
		if err != nil {
			badRequest(c, "chunk", "chunk file is required")
			return
		}

		file, err := header.Open()
		if err != nil {
			badRequest(c, "chunk", "chunk file could not be read")
			return
		}
		defer file.Close()

		err = uploadService.PutChunk(c.Request.Context(), c.Param("uploadId"), *req.Index, req.TotalChunks, req.Filename, file)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.ChunkUploadResponse{
			Status:     "chunk_uploaded",
			ChunkIndex: *req.Index,
		})
	}
}

// FinalizeUpload godoc
//
//	@Summary		Assemble the chunks into the final file
//	@Tags			Uploads
//	@Accept			json
//	@Produce		json
//	@Param			uploadId	path		string						true	"Upload id"
//	@Param			request		body		types.FinalizeUploadRequest	true	"Assembly bounds"
//	@Success		200			{object}	types.FinalizeUploadResponse
//	@Failure		400			{object}	types.ErrorResponse	"Missing chunk or invalid request"
//	@Failure		404			{object}	types.ErrorResponse
//	@Failure		409			{object}	types.ErrorResponse
//	@Failure		500			{object}	types.ErrorResponse
//	@Security		BearerAuth
//	@Router			/upload/finalize/{uploadId} [post]
func handleFinalize(uploadService UploadServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.FinalizeUploadRequest
		if err := c.ShouldBind(&req); err != nil {
			badRequest(c, "", "filename and total_chunks are required")
			return
		}

		artifact, err := uploadService.Finalize(c.Request.Context(), c.Param("uploadId"), req.Filename, req.TotalChunks)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.FinalizeUploadResponse{
			Status:   "completed",
			Filename: artifact.Filename,
			Path:     artifact.Key,
			URL:      artifact.URL,
			Size:     artifact.Size,
			SHA256:   artifact.SHA256,
		})
	}
}

// UploadStatus godoc
//
//	@Summary		Report session progress
//	@Tags			Uploads
//	@Produce		json
//	@Param			uploadId	path		string	true	"Upload id"
//	@Success		200			{object}	types.UploadStatusResponse
//	@Failure		404			{object}	types.ErrorResponse
//	@Security		BearerAuth
//	@Router			/upload/status/{uploadId} [get]
func handleStatus(uploadService UploadServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := uploadService.Status(c.Request.Context(), c.Param("uploadId"))
		if err != nil {
			writeError(c, err)
			return
		}

		resp := types.UploadStatusResponse{
			Status:         string(status.State),
			ChunksReceived: status.ChunksReceived,
			UploadID:       status.UploadID,
		}
		if a := status.Artifact; a != nil {
			resp.Path = a.Key
			resp.Filename = a.Filename
			resp.URL = a.URL
			resp.Size = a.Size
			resp.SHA256 = a.SHA256
		}
		c.JSON(http.StatusOK, resp)
	}
}

// AbortUpload godoc
//
//	@Summary		Abort a session and discard its chunks
//	@Tags			Uploads
//	@Produce		json
//	@Param			uploadId	path		string	true	"Upload id"
//	@Success		200			{object}	object{status=string,upload_id=string}
//	@Failure		404			{object}	types.ErrorResponse
//	@Failure		409			{object}	types.ErrorResponse
//	@Security		BearerAuth
//	@Router			/upload/{uploadId} [delete]
func handleAbort(uploadService UploadServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("uploadId")
		if err := uploadService.Abort(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "aborted",
			"upload_id": id,
		})
	}
}
