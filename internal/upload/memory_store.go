package upload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lgulliver/stockpile/pkg/types"
)

// MemorySessionStore keeps sessions in process memory
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.UploadSession
}

// NewMemorySessionStore creates an empty store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*types.UploadSession),
	}
}

func (m *MemorySessionStore) Create(ctx context.Context, session *types.UploadSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	m.sessions[session.ID] = session.Clone()
	return nil
}

func (m *MemorySessionStore) Get(ctx context.Context, id string) (*types.UploadSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnknownUpload
	}
	return s.Clone(), nil
}

func (m *MemorySessionStore) mutate(id string, fn func(*types.UploadSession) error) (*types.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnknownUpload
	}

	next := s.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	m.sessions[id] = next
	return next.Clone(), nil
}

func (m *MemorySessionStore) Transition(ctx context.Context, id string, from, to types.UploadState) (*types.UploadSession, error) {
	return m.mutate(id, func(s *types.UploadSession) error {
		return applyTransition(s, from, to, time.Now().UTC())
	})
}

func (m *MemorySessionStore) RecordChunk(ctx context.Context, id string, index int, nonce string, totalChunks int) (string, error) {
	var previous string
	_, err := m.mutate(id, func(s *types.UploadSession) error {
		var err error
		previous, err = applyRecordChunk(s, index, nonce, totalChunks, time.Now().UTC())
		return err
	})
	return previous, err
}

func (m *MemorySessionStore) Touch(ctx context.Context, id string, state types.UploadState) error {
	_, err := m.mutate(id, func(s *types.UploadSession) error {
		return applyTouch(s, state, time.Now().UTC())
	})
	return err
}

func (m *MemorySessionStore) Complete(ctx context.Context, id string, artifact *types.Artifact) error {
	_, err := m.mutate(id, func(s *types.UploadSession) error {
		return applyComplete(s, artifact, time.Now().UTC())
	})
	return err
}

func (m *MemorySessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) ListExpired(ctx context.Context, before time.Time) ([]*types.UploadSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var expired []*types.UploadSession
	for _, s := range m.sessions {
		if s.UpdatedAt.Before(before) {
			expired = append(expired, s.Clone())
		}
	}
	return expired, nil
}
