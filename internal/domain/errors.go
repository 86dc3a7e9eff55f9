package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidTransition    = errors.New("invalid run status transition")
	ErrRunNotTerminal       = errors.New("forecast run has not finished")
	ErrRecommendationLocked = errors.New("recommendation is locked")
	ErrInvalidAdjustment    = errors.New("invalid adjustment")
	ErrInvalidInput         = errors.New("invalid input")
	ErrStorageDisabled      = errors.New("object storage is not configured")
	ErrStaleStat            = errors.New("demand stat was invalidated while it was being computed")
)
