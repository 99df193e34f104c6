package model

import "errors"

// ErrValidation marks malformed input to create/open. The cycle
// continues; the bad candidate is dropped.
var ErrValidation = errors.New("validation failed")

// ErrConflict marks a duplicate position id on create.
var ErrConflict = errors.New("position already exists")

// ErrNotFound marks an operation referencing an unknown position id.
var ErrNotFound = errors.New("position not found")
