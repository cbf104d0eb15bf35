package types

import (
	"time"
)

// UploadState is the lifecycle state of an upload session
type UploadState string

const (
	// UploadStateOpen accepts chunks and may be finalized
	UploadStateOpen UploadState = "open"
	// UploadStateFinalizing is held by exactly one finalize call; the chunk area is frozen
	UploadStateFinalizing UploadState = "finalizing"
	// UploadStateCompleted means the artifact exists and the chunk area is gone
	UploadStateCompleted UploadState = "completed"
)

// UploadSession is the bookkeeping record for one upload attempt
type UploadSession struct {
	ID                  string      `json:"id" gorm:"primaryKey;size:36"`
	Filename            string      `json:"filename" gorm:"not null"`
	Size                int64       `json:"size"`
	ContentType         string      `json:"content_type"`
	DeclaredTotalChunks int         `json:"declared_total_chunks"`
	State               UploadState `json:"state" gorm:"size:16;index;not null"`
	FinalKey            string      `json:"final_key,omitempty"`
	FinalFilename       string      `json:"final_filename,omitempty"`
	FinalSize           int64       `json:"final_size,omitempty"`
	SHA256              string      `json:"sha256,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at" gorm:"index"`

	// Chunks maps each recorded index to the nonce of its current key
	Chunks map[int]string `json:"chunks,omitempty" gorm:"-"`
}

// TableName pins the table name used by migrations
func (UploadSession) TableName() string {
	return "upload_sessions"
}

// Clone returns a copy safe to hand out from in-memory stores
func (s *UploadSession) Clone() *UploadSession {
	c := *s
	if s.Chunks != nil {
		c.Chunks = make(map[int]string, len(s.Chunks))
		for index, nonce := range s.Chunks {
			c.Chunks[index] = nonce
		}
	}
	return &c
}

// UploadChunk records which stored key holds a chunk index. Only recorded
// keys take part in assembly.
type UploadChunk struct {
	UploadID string `gorm:"primaryKey;size:36"`
	Index    int    `gorm:"primaryKey;column:chunk_index"`
	Nonce    string `gorm:"size:32;not null"`
}

// TableName pins the table name used by migrations
func (UploadChunk) TableName() string {
	return "upload_chunks"
}

// Artifact describes an assembled file
type Artifact struct {
	Key      string `json:"path"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	SHA256   string `json:"sha256"`
}

// UploadStatus is the coarse progress view of a session
type UploadStatus struct {
	UploadID       string      `json:"upload_id"`
	State          UploadState `json:"state"`
	ChunksReceived int         `json:"chunks_received"`
	// Artifact is set once the session completed
	Artifact       *Artifact   `json:"artifact,omitempty"`
}

// InitUploadRequest starts a session
type InitUploadRequest struct {
	Filename string `json:"filename" form:"filename" binding:"required"`
	Filesize int64  `json:"filesize" form:"filesize" binding:"required"`
	Filetype string `json:"filetype" form:"filetype" binding:"required"`
}

// InitUploadResponse is returned by init
type InitUploadResponse struct {
	UploadID string `json:"upload_id"`
	Status   string `json:"status"`
}

// ChunkUploadRequest carries the non-file fields of a chunk upload
type ChunkUploadRequest struct {
	Index       *int   `form:"index" binding:"required"`
	TotalChunks int    `form:"total_chunks" binding:"required"`
	Filename    string `form:"filename" binding:"required"`
}

// ChunkUploadResponse acknowledges a stored chunk
type ChunkUploadResponse struct {
	Status     string `json:"status"`
	ChunkIndex int    `json:"chunk_index"`
}

// FinalizeUploadRequest requests assembly
type FinalizeUploadRequest struct {
	Filename    string `json:"filename" form:"filename" binding:"required"`
	TotalChunks int    `json:"total_chunks" form:"total_chunks" binding:"required"`
}

// FinalizeUploadResponse is returned by a successful finalize
type FinalizeUploadResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	SHA256   string `json:"sha256"`
}

// UploadStatusResponse is returned by status
type UploadStatusResponse struct {
	Status         string `json:"status"`
	ChunksReceived int    `json:"chunks_received"`
	UploadID       string `json:"upload_id"`
	Path           string `json:"path,omitempty"`
	Filename       string `json:"filename,omitempty"`
	URL            string `json:"url,omitempty"`
	Size           int64  `json:"size,omitempty"`
	SHA256         string `json:"sha256,omitempty"`
}

// ErrorResponse is the common error body
type ErrorResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	Field        string `json:"field,omitempty"`
	MissingIndex *int   `json:"missing_index,omitempty"`
}
