package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields are added to every log line written with the context.
type LogFields struct {
	SessionID  string
	UserID     string
	QuestionID string
	Component  string // e.g. "classboard.board"
}

// WithLogFields merges fields into the context; non-empty values win.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	return context.WithValue(ctx, logFieldsKey, mergeFields(GetLogFields(ctx), fields))
}

func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing
	if next.SessionID != "" {
		result.SessionID = next.SessionID
	}
	if next.UserID != "" {
		result.UserID = next.UserID
	}
	if next.QuestionID != "" {
		result.QuestionID = next.QuestionID
	}
	if next.Component != "" {
		result.Component = next.Component
	}
	return result
}

// Truncate shortens s to maxLen bytes for logging user text.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
