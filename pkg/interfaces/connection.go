package interfaces

// Connection is one push subscriber. Implementations must be safe for
// concurrent WriteJSON calls.
type Connection interface {
	// WriteJSON queues a JSON message for the client.
	WriteJSON(v interface{}) error

	Close() error

	// GetUserID returns the authenticated participant, "" before auth.
	GetUserID() string

	GetRole() string

	IsAuthenticated() bool
}
