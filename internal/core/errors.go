// Package core defines the fundamental types and errors for ProfileCRM.
package core

import "errors"

// Core errors that can occur across the system
var (
	// Storage errors
	ErrStoreInit          = errors.New("store initialization failed")
	ErrMigrationFailed    = errors.New("migration failed")
	ErrUnsupportedVersion = errors.New("unsupported export version")

	// Record errors
	ErrContactNotFound     = errors.New("contact not found")
	ErrListNotFound        = errors.New("list not found")
	ErrTagNotFound         = errors.New("tag not found")
	ErrInteractionNotFound = errors.New("interaction not found")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
)
