package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lgulliver/stockpile/internal/common"
	"github.com/lgulliver/stockpile/pkg/types"
)

// GormSessionStore persists sessions in SQL. State changes are conditional
// UPDATEs so that only one process wins a transition. Chunk records live in
// their own table and are written in the same transaction as the UPDATE
// that checks the session is open, so the row lock it takes orders them
// before any transition to finalizing.
type GormSessionStore struct {
	db *common.Database
}

// NewGormSessionStore creates a store over an open database
func NewGormSessionStore(db *common.Database) *GormSessionStore {
	return &GormSessionStore{db: db}
}

func (g *GormSessionStore) Create(ctx context.Context, session *types.UploadSession) error {
	if err := g.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (g *GormSessionStore) Get(ctx context.Context, id string) (*types.UploadSession, error) {
	return g.get(g.db.WithContext(ctx), id)
}

func (g *GormSessionStore) get(tx *gorm.DB, id string) (*types.UploadSession, error) {
	var session types.UploadSession
	if err := tx.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownUpload
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var chunks []types.UploadChunk
	if err := tx.Where("upload_id = ?", id).Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	if len(chunks) > 0 {
		session.Chunks = make(map[int]string, len(chunks))
		for _, chunk := range chunks {
			session.Chunks[chunk.Index] = chunk.Nonce
		}
	}
	return &session, nil
}

// update runs a conditional UPDATE and explains a zero-row result
func (g *GormSessionStore) update(tx *gorm.DB, id string, want types.UploadState, values map[string]interface{}) error {
	result := tx.
		Model(&types.UploadSession{}).
		Where("id = ? AND state = ?", id, want).
		Updates(values)
	if result.Error != nil {
		return fmt.Errorf("failed to update session: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var current types.UploadSession
	if err := tx.Select("id", "state").First(&current, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnknownUpload
		}
		return fmt.Errorf("failed to get session: %w", err)
	}
	return &StateConflictError{ID: id, Want: want, Current: current.State}
}

func (g *GormSessionStore) Transition(ctx context.Context, id string, from, to types.UploadState) (*types.UploadSession, error) {
	err := g.update(g.db.WithContext(ctx), id, from, map[string]interface{}{
		"state":      to,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return g.Get(ctx, id)
}

func (g *GormSessionStore) RecordChunk(ctx context.Context, id string, index int, nonce string, totalChunks int) (string, error) {
	var previous string
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		values := map[string]interface{}{"updated_at": time.Now().UTC()}
		if totalChunks > 0 {
			values["declared_total_chunks"] = totalChunks
		}
		if err := g.update(tx, id, types.UploadStateOpen, values); err != nil {
			return err
		}

		var existing types.UploadChunk
		err := tx.Where("upload_id = ? AND chunk_index = ?", id, index).Take(&existing).Error
		switch {
		case err == nil:
			previous = existing.Nonce
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to get chunk: %w", err)
		}

		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "upload_id"}, {Name: "chunk_index"}},
			DoUpdates: clause.AssignmentColumns([]string{"nonce"}),
		}).Create(&types.UploadChunk{UploadID: id, Index: index, Nonce: nonce}).Error
		if err != nil {
			return fmt.Errorf("failed to record chunk: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

func (g *GormSessionStore) Touch(ctx context.Context, id string, state types.UploadState) error {
	return g.update(g.db.WithContext(ctx), id, state, map[string]interface{}{
		"updated_at": time.Now().UTC(),
	})
}

func (g *GormSessionStore) Complete(ctx context.Context, id string, artifact *types.Artifact) error {
	return g.update(g.db.WithContext(ctx), id, types.UploadStateFinalizing, map[string]interface{}{
		"state":          types.UploadStateCompleted,
		"final_key":      artifact.Key,
		"final_filename": artifact.Filename,
		"final_size":     artifact.Size,
		"sha256":         artifact.SHA256,
		"updated_at":     time.Now().UTC(),
	})
}

func (g *GormSessionStore) Delete(ctx context.Context, id string) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&types.UploadChunk{}, "upload_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&types.UploadSession{}, "id = ?", id).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (g *GormSessionStore) ListExpired(ctx context.Context, before time.Time) ([]*types.UploadSession, error) {
	var sessions []*types.UploadSession
	err := g.db.WithContext(ctx).
		Where("updated_at < ?", before).
		Order("updated_at").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	return sessions, nil
}
