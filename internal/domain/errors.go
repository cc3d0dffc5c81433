// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates the request payload failed domain validation.
var ErrValidation = errors.New("validation failed")

// ErrGone indicates the entity existed but has been destroyed or archived away.
var ErrGone = errors.New("gone")

// ErrConflict indicates the entity already exists with different content.
var ErrConflict = errors.New("conflict")
