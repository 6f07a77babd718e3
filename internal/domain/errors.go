package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrLockHeld            = errors.New("lock already held")
	ErrUnknownMarket       = errors.New("unknown market")
	ErrSnapshotUnavailable = errors.New("snapshot unavailable")
	ErrSnapshotMalformed   = errors.New("snapshot malformed")
	ErrWriteConflict       = errors.New("write conflict")
	ErrExternalTimeout     = errors.New("external timeout")
)
