package interfaces

import (
	"context"

	"classboard/pkg/types"
)

// Publisher delivers an event to every subscriber of a room. Delivery is
// best effort; a failure never rolls back the state change that caused it.
type Publisher interface {
	Publish(ctx context.Context, room string, event *types.Event) error
}

// UpdateRecorder appends ledger entries for the recipients of a change.
type UpdateRecorder interface {
	RecordUpdate(ctx context.Context, sessionID, questionID, updateType string, recipients []string) error
}
