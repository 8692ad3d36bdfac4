// Package tracker keeps the per-participant ledger of changes in a session
// and the watermark of what each participant has already seen.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"classboard/internal/id"
	"classboard/internal/logger"
	"classboard/internal/permission"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

var ErrUnknownUpdateType = errors.New("unknown update type")

// SessionLookup resolves a session id into a session or a not-found
// *types.Error.
type SessionLookup interface {
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
}

type Tracker struct {
	store    interfaces.UpdateStore
	sessions SessionLookup
	now      func() time.Time
}

func NewTracker(store interfaces.UpdateStore, sessions SessionLookup) *Tracker {
	return &Tracker{
		store:    store,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RecordUpdate appends one entry per recipient, all sharing one entry id and
// timestamp.
func (t *Tracker) RecordUpdate(ctx context.Context, sessionID, questionID, updateType string, recipients []string) error {
	switch updateType {
	case types.UpdateTypeNewQuestion, types.UpdateTypeStatusChange, types.UpdateTypeNewReply:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownUpdateType, updateType)
	}
	if len(recipients) == 0 {
		return nil
	}

	entry := &types.UpdateEntry{
		ID:         id.New(),
		QuestionID: questionID,
		UpdateType: updateType,
		UpdatedAt:  t.now(),
	}
	if err := t.store.AppendUpdates(ctx, sessionID, recipients, entry); err != nil {
		return fmt.Errorf("failed to append %s updates: %w", updateType, err)
	}

	slog.DebugContext(ctx, "ledger updated", "update_type", updateType, "recipients", len(recipients))
	return nil
}

// MarkSeen advances the actor's watermark for the session to now and returns
// the new watermark.
func (t *Tracker) MarkSeen(ctx context.Context, sessionID string, actor *types.Participant) (time.Time, error) {
	if err := t.authorize(ctx, sessionID, actor); err != nil {
		return time.Time{}, err
	}

	at := t.now()
	if err := t.store.MarkSeen(ctx, sessionID, actor.ID, at); err != nil {
		return time.Time{}, fmt.Errorf("failed to mark seen: %w", err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{SessionID: sessionID, UserID: actor.ID})
	slog.DebugContext(ctx, "updates marked seen")
	return at, nil
}

// GetUnseen returns the actor's ledger entries newer than the watermark,
// oldest first.
func (t *Tracker) GetUnseen(ctx context.Context, sessionID string, actor *types.Participant) (*types.UpdateRecord, error) {
	if err := t.authorize(ctx, sessionID, actor); err != nil {
		return nil, err
	}

	record, err := t.store.GetUnseenUpdates(ctx, sessionID, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get unseen updates: %w", err)
	}
	return record, nil
}

func (t *Tracker) authorize(ctx context.Context, sessionID string, actor *types.Participant) error {
	session, err := t.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	return permission.Check(permission.ActionViewSession, actor, session)
}
