// Package apperr holds the sentinel errors shared across quill packages.
package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrAlreadyExists   = errors.New("already exists")
	ErrLocked          = errors.New("note is locked")
	ErrVaultLocked     = errors.New("vault is locked")
	ErrInvalidPassword = errors.New("invalid vault password")
	ErrNoSession       = errors.New("no live editor session")
)
