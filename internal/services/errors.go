// Package services holds the relay's core: the verification state machine,
// the fixed-window rate limiter, the chat↔thread router, the settings cache,
// the staff controls, and the idempotent dispatcher that ties them together.
//
// This file centralizes the service-level error values. Domain errors are
// answered locally (a message to the originating chat or thread) and never
// reach the HTTP layer.
package services

import "errors"

var (
	// ErrChallengeMissing means no challenge is stored for the chat.
	ErrChallengeMissing = errors.New("no outstanding challenge")

	// ErrChallengeExpired means the stored challenge passed its expiry.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrNotAdmin is returned when the caller is not an administrator or
	// owner of the staff group.
	ErrNotAdmin = errors.New("caller is not a staff group admin")

	// ErrUnknownAction is returned for callback data no handler recognises.
	ErrUnknownAction = errors.New("unknown control action")

	// ErrBadTarget is returned when a command's target chat id is missing or
	// not a number.
	ErrBadTarget = errors.New("invalid target chat id")
)
