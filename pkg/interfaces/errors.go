package interfaces

import "errors"

// Store-level errors. The domain packages translate these into *types.Error.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrQuestionNotFound   = errors.New("question not found")
	ErrReplyNotFound      = errors.New("reply not found")
	ErrLiveSessionExists  = errors.New("live session already exists for course")
	ErrDuplicateQuestion  = errors.New("duplicate question in session")
	ErrSessionNotLive     = errors.New("session is not live")
	ErrParticipantUnknown = errors.New("participant not found")
)
