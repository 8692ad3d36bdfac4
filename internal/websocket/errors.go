package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSlowConsumer     = errors.New("write buffer full, closing slow consumer")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Protocol errors reported to the client
var (
	ErrUnknownMessage = errors.New("unknown message type")
	ErrMissingRoom    = errors.New("session_id or course is required")
)
