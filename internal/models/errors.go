package models

import "errors"

// Application-wide standard errors
var (
	// Sessions
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrSessionConflict      = errors.New("session was modified concurrently")

	// Gameplay
	ErrGlobalDisabled = errors.New("global game is disabled")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
)
