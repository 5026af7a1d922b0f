package logic

import "errors"

var (
	// ErrNilDocument is returned when Create is called without a document.
	ErrNilDocument = errors.New("document must not be nil")
	// ErrNilUpdate is returned when an update operation is called without an
	// update description.
	ErrNilUpdate = errors.New("update must not be nil")
)
