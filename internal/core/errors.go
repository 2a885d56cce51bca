package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("record not found")
	ErrTransient  = errors.New("ledger store unavailable")
	ErrAnalysis   = errors.New("analysis failed")
)

// ValidationError is returned when a required field is missing. Nothing has
// been written when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError is returned when a mutation targets a record the holder does
// not own.
type NotFoundError struct {
	HolderID string
	RecordID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record %s not found for holder %s", e.RecordID, e.HolderID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// TransientStoreError wraps a read or write failure of the backing store.
// The operation may be retried; the ledger is unchanged.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

func (e *TransientStoreError) Is(target error) bool { return target == ErrTransient }

// AnalysisError wraps any failure of the analysis collaborator.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis: %v", e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

func (e *AnalysisError) Is(target error) bool { return target == ErrAnalysis }

// Transient wraps err as a TransientStoreError unless it already carries a
// ledger error kind.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTransient) || errors.Is(err, ErrValidation) {
		return err
	}
	return &TransientStoreError{Op: op, Err: err}
}
