package upload

import (
	"errors"
	"fmt"

	"github.com/lgulliver/stockpile/pkg/types"
)

var (
	// ErrUnknownUpload is returned for ids with no open or finalizing session
	ErrUnknownUpload = errors.New("unknown upload")
	// ErrUploadBusy is returned while another finalize holds the session
	ErrUploadBusy = errors.New("upload is being finalized")
)

// ValidationError reports a malformed request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// MissingChunkError names the lowest chunk index absent at finalize
type MissingChunkError struct {
	Index int
}

func (e *MissingChunkError) Error() string {
	return fmt.Sprintf("Missing chunk %d", e.Index)
}

// StorageError wraps a failure of the blob store or session store
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s failed: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op, key string, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Key: key, Err: err}
}

// StateConflictError is returned by a session store when a conditional
// transition finds the session in another state
type StateConflictError struct {
	ID      string
	Want    types.UploadState
	Current types.UploadState
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("session %s is %s, not %s", e.ID, e.Current, e.Want)
}

// stateError maps a store error onto the protocol taxonomy
func stateError(op, id string, err error) error {
	if errors.Is(err, ErrUnknownUpload) {
		return ErrUnknownUpload
	}

	var conflict *StateConflictError
	if errors.As(err, &conflict) {
		switch conflict.Current {
		case types.UploadStateCompleted:
			return ErrUnknownUpload
		case types.UploadStateFinalizing:
			return ErrUploadBusy
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return storageErr(op, id, err)
}
