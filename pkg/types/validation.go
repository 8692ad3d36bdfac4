package types

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@-]+$`)

// Length limits for posted text, counted in runes.
const (
	MaxQuestionLength   = 1000
	MaxReplyLength      = 2000
	MaxCourseNameLength = 100
)

// NormalizeText trims, lowercases and collapses internal whitespace so that
// "What is TCP?" and "what is   tcp?" compare equal.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// IsBlank reports whether text is empty or whitespace only.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// DedupeKey returns the value the store keeps unique per session. With the
// author scope the same text may be asked once by each author.
func DedupeKey(scope, authorID, text string) string {
	normalized := NormalizeText(text)
	if scope == DuplicateScopeAuthor {
		return authorID + "\x00" + normalized
	}
	return normalized
}

// ValidatePostText checks posted question or reply text against a limit.
func ValidatePostText(text string, maxLen int) error {
	if IsBlank(text) {
		return Validationf(CodeEmptyText, "text must not be empty")
	}
	if maxLen > 0 && utf8.RuneCountInString(strings.TrimSpace(text)) > maxLen {
		return Validationf(CodeTextTooLong, "text exceeds %d characters", maxLen)
	}
	return nil
}

// IsValidUserID checks if a user ID meets format requirements.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 64 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidCourseName accepts any non-blank name up to MaxCourseNameLength runes.
func IsValidCourseName(courseName string) bool {
	trimmed := strings.TrimSpace(courseName)
	return trimmed != "" && trimmed == courseName && utf8.RuneCountInString(courseName) <= MaxCourseNameLength
}

// IsValidRole reports whether role is one the identity provider may issue.
func IsValidRole(role string) bool {
	return role == RoleStudent || role == RoleInstructor
}

// IsValidStatusFilter reports whether status is an accepted question filter.
func IsValidStatusFilter(status string) bool {
	switch status {
	case "", "all", QuestionStatusAnswered, QuestionStatusUnanswered:
		return true
	default:
		return false
	}
}

// IsValidDuplicateScope reports whether scope names a supported policy.
func IsValidDuplicateScope(scope string) bool {
	return scope == DuplicateScopeSession || scope == DuplicateScopeAuthor
}

// Validate checks the participant snapshot handed over by the identity provider.
func (p *Participant) Validate() error {
	if !IsValidUserID(p.ID) {
		return Validationf("invalid_actor", "participant id %q is invalid", p.ID)
	}
	if IsBlank(p.Name) {
		return Validationf("invalid_actor", "participant name must not be empty")
	}
	if !IsValidRole(p.Role) {
		return Validationf("invalid_actor", "role must be %q or %q", RoleStudent, RoleInstructor)
	}
	for _, m := range p.CourseMemberships {
		if !IsValidCourseName(m.CourseName) {
			return Validationf("invalid_actor", "course name %q is invalid", m.CourseName)
		}
	}
	return nil
}
