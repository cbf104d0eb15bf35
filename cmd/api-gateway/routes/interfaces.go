package routes

import (
	"context"
	"io"

	"github.com/lgulliver/stockpile/pkg/types"
)

// UploadServiceInterface defines the contract for the upload coordinator
type UploadServiceInterface interface {
	Init(ctx context.Context, filename string, size int64, contentType string) (string, error)
	PutChunk(ctx context.Context, id string, index, totalChunks int, filename string, content io.Reader) error
	Finalize(ctx context.Context, id, filename string, totalChunks int) (*types.Artifact, error)
	Status(ctx context.Context, id string) (*types.UploadStatus, error)
	Abort(ctx context.Context, id string) error
	OpenArtifact(ctx context.Context, name string) (io.ReadCloser, int64, error)
}

// TokenIssuer exchanges an authenticated subject for a bearer token
type TokenIssuer interface {
	IssueToken(subject string) (string, error)
}
