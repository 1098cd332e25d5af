package model

import "errors"

// Common errors used across the application
var (
	// Inbound event errors
	ErrValidation      = errors.New("invalid event payload")
	ErrNotParticipant  = errors.New("player is not part of this session")
	ErrStaleParameters = errors.New("round parameters do not match session")

	// Lookup errors
	ErrSessionNotFound = errors.New("session not found")
	ErrPlayerNotFound  = errors.New("player not found")
	ErrRoundNotFound   = errors.New("round not found")
	ErrUnknownCountry  = errors.New("unknown country")

	// Session state errors
	ErrInvalidState          = errors.New("event not valid in current session state")
	ErrSessionEnded          = errors.New("session has ended")
	ErrSessionNotDestroyable = errors.New("session is not ended or still has players")

	// Round generation errors
	ErrGenerationExhausted = errors.New("round generation exceeded attempt limit")

	// Persistence errors
	ErrPersistenceFailure = errors.New("failed to record round result")
)
