package upload

import (
	"context"
	"time"

	"github.com/lgulliver/stockpile/pkg/types"
)

// SessionStore persists upload sessions. Implementations must make
// Transition, RecordChunk, Touch and Complete conditional on the current
// state so that concurrent callers across processes observe exactly one
// winner. The chunk map returned by Transition is the set assembly reads.
type SessionStore interface {
	// Create inserts a new session
	Create(ctx context.Context, session *types.UploadSession) error

	// Get returns a copy of the session or ErrUnknownUpload
	Get(ctx context.Context, id string) (*types.UploadSession, error)

	// Transition moves the session from one state to another, failing with
	// *StateConflictError if it is not currently in from
	Transition(ctx context.Context, id string, from, to types.UploadState) (*types.UploadSession, error)

	// RecordChunk points index at the key written with nonce and returns
	// the nonce it replaced. It fails with *StateConflictError unless the
	// session is open.
	RecordChunk(ctx context.Context, id string, index int, nonce string, totalChunks int) (string, error)

	// Touch refreshes the activity time of a session in the given state
	Touch(ctx context.Context, id string, state types.UploadState) error

	// Complete records the artifact on a finalizing session and marks it completed
	Complete(ctx context.Context, id string, artifact *types.Artifact) error

	// Delete removes the session record
	Delete(ctx context.Context, id string) error

	// ListExpired returns sessions last updated before the cutoff
	ListExpired(ctx context.Context, before time.Time) ([]*types.UploadSession, error)
}

// applyTransition is the state check shared by every store
func applyTransition(s *types.UploadSession, from, to types.UploadState, now time.Time) error {
	if s.State != from {
		return &StateConflictError{ID: s.ID, Want: from, Current: s.State}
	}
	s.State = to
	s.UpdatedAt = now
	return nil
}

func applyRecordChunk(s *types.UploadSession, index int, nonce string, totalChunks int, now time.Time) (string, error) {
	if s.State != types.UploadStateOpen {
		return "", &StateConflictError{ID: s.ID, Want: types.UploadStateOpen, Current: s.State}
	}
	if s.Chunks == nil {
		s.Chunks = make(map[int]string)
	}
	previous := s.Chunks[index]
	s.Chunks[index] = nonce
	if totalChunks > 0 {
		s.DeclaredTotalChunks = totalChunks
	}
	s.UpdatedAt = now
	return previous, nil
}

func applyTouch(s *types.UploadSession, state types.UploadState, now time.Time) error {
	if s.State != state {
		return &StateConflictError{ID: s.ID, Want: state, Current: s.State}
	}
	s.UpdatedAt = now
	return nil
}

func applyComplete(s *types.UploadSession, artifact *types.Artifact, now time.Time) error {
	if s.State != types.UploadStateFinalizing {
		return &StateConflictError{ID: s.ID, Want: types.UploadStateFinalizing, Current: s.State}
	}
	s.State = types.UploadStateCompleted
	s.FinalKey = artifact.Key
	s.FinalFilename = artifact.Filename
	s.FinalSize = artifact.Size
	s.SHA256 = artifact.SHA256
	s.UpdatedAt = now
	return nil
}
