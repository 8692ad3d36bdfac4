package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"classboard/internal/logger"
	"classboard/internal/permission"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// liveCacheTTL bounds how long a cached live session is trusted before
// its status is re-read from the store. Another instance may have ended it.
const liveCacheTTL = 5 * time.Second

// Registry owns session identity and the live -> completed lifecycle. Live
// sessions are cached. Entries are evicted when this or another instance
// ends the session, and revalidated against the store after liveCacheTTL.
type Registry struct {
	store        interfaces.SessionStore
	publisher    interfaces.Publisher
	liveSessions map[string]*cachedSession
	mu           sync.RWMutex
	now          func() time.Time
	cacheTTL     time.Duration
}

type cachedSession struct {
	session  *types.Session
	loadedAt time.Time
}

func NewRegistry(store interfaces.SessionStore, publisher interfaces.Publisher) *Registry {
	return &Registry{
		store:        store,
		publisher:    publisher,
		liveSessions: make(map[string]*cachedSession),
		now:          func() time.Time { return time.Now().UTC() },
		cacheTTL:     liveCacheTTL,
	}
}

// LoadLiveSessions warms the cache from the store.
func (r *Registry) LoadLiveSessions(ctx context.Context) error {
	sessions, err := r.store.ListLiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load live sessions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.liveSessions = make(map[string]*cachedSession, len(sessions))
	for _, s := range sessions {
		r.liveSessions[s.ID] = &cachedSession{session: s, loadedAt: now}
	}

	slog.InfoContext(ctx, "loaded live sessions", "count", len(sessions))
	return nil
}

// CreateSession starts a live session for the course. A second live session
// for the same course is a conflict carrying the existing one.
func (r *Registry) CreateSession(ctx context.Context, courseName string, actor *types.Participant) (*types.Session, error) {
	courseName = strings.TrimSpace(courseName)
	if !types.IsValidCourseName(courseName) {
		return nil, types.Validationf("invalid_course", "course name is required")
	}
	if err := permission.CheckCreate(actor, courseName); err != nil {
		return nil, err
	}

	session := &types.Session{
		ID:         uuid.New().String(),
		CourseName: courseName,
		CreatedBy:  actor.Identity(),
		Status:     types.SessionStatusLive,
		StartAt:    r.now(),
	}

	if err := r.store.CreateSession(ctx, session); err != nil {
		if errors.Is(err, interfaces.ErrLiveSessionExists) {
			return nil, r.liveConflict(ctx, courseName)
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	r.cache(session)

	ctx = logger.WithLogFields(ctx, logger.LogFields{SessionID: session.ID, UserID: actor.ID})
	slog.InfoContext(ctx, "session created", "course", courseName)

	r.publish(ctx, types.CourseRoom(courseName), types.EventSessionCreated, session)
	return cloneSession(session), nil
}

func (r *Registry) liveConflict(ctx context.Context, courseName string) error {
	conflict := types.Conflictf(types.CodeLiveSessionExists, "course %s already has a live session", courseName)

	existing, err := r.store.GetLiveSessionByCourse(ctx, courseName)
	if err != nil {
		// The other session ended between the insert and this read.
		slog.WarnContext(ctx, "live session vanished while reporting conflict", "course", courseName, "error", err)
		return conflict
	}
	conflict.Existing = existing
	return conflict
}

// EndSession completes a live session. Only its creator may end it and
// ending twice is a conflict.
func (r *Registry) EndSession(ctx context.Context, sessionID string, actor *types.Participant) (*types.Session, error) {
	session, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := permission.Check(permission.ActionEndSession, actor, session); err != nil {
		return nil, err
	}
	if !session.IsLive() {
		return nil, types.Conflictf(types.CodeSessionCompleted, "session %s is already completed", sessionID)
	}

	endAt := r.now()
	if err := r.store.EndSession(ctx, sessionID, endAt); err != nil {
		switch {
		case errors.Is(err, interfaces.ErrSessionNotLive):
			r.evict(sessionID)
			return nil, types.Conflictf(types.CodeSessionCompleted, "session %s is already completed", sessionID)
		case errors.Is(err, interfaces.ErrSessionNotFound):
			r.evict(sessionID)
			return nil, types.NotFoundf(err, "session %s not found", sessionID)
		default:
			return nil, fmt.Errorf("failed to end session: %w", err)
		}
	}
	r.evict(sessionID)

	session.Status = types.SessionStatusCompleted
	session.EndAt = &endAt

	ctx = logger.WithLogFields(ctx, logger.LogFields{SessionID: sessionID, UserID: actor.ID})
	slog.InfoContext(ctx, "session ended", "course", session.CourseName)

	r.publish(ctx, sessionID, types.EventSessionEnded, session)
	return session, nil
}

// GetActiveSession returns the course's live session to a course member.
func (r *Registry) GetActiveSession(ctx context.Context, courseName string, actor *types.Participant) (*types.Session, error) {
	if err := permission.CheckMember(actor, courseName); err != nil {
		return nil, err
	}

	session, err := r.store.GetLiveSessionByCourse(ctx, courseName)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			return nil, types.NotFoundf(err, "no live session for course %s", courseName)
		}
		return nil, fmt.Errorf("failed to get live session: %w", err)
	}
	return session, nil
}

// GetSession looks a session up without an authorization check. Callers
// receive a copy.
func (r *Registry) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	r.mu.RLock()
	cached, ok := r.liveSessions[sessionID]
	r.mu.RUnlock()
	if ok && r.now().Sub(cached.loadedAt) < r.cacheTTL {
		return cloneSession(cached.session), nil
	}

	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			r.evict(sessionID)
			return nil, types.NotFoundf(err, "session %s not found", sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if ok {
		if session.IsLive() {
			r.cache(session)
		} else {
			r.evict(sessionID)
		}
	}
	return session, nil
}

// ObserveRemote keeps the cache in step with sessions ended on other
// instances. It is called for every event relayed from another instance.
func (r *Registry) ObserveRemote(ctx context.Context, room string, event *types.Event) {
	if event == nil || event.Type != types.EventSessionEnded {
		return
	}
	if r.IsLive(room) {
		slog.DebugContext(ctx, "evicting session ended on another instance", "session_id", room)
	}
	r.evict(room)
}

// ViewSession returns the session with its question count to a course member.
func (r *Registry) ViewSession(ctx context.Context, sessionID string, actor *types.Participant) (*types.Session, error) {
	session, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := permission.Check(permission.ActionViewSession, actor, session); err != nil {
		return nil, err
	}

	count, err := r.store.CountQuestions(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count questions: %w", err)
	}
	session.QuestionCount = count
	return session, nil
}

// ListSessions returns every session of every course the actor belongs to,
// newest first.
func (r *Registry) ListSessions(ctx context.Context, actor *types.Participant) ([]*types.Session, error) {
	var courses []string
	for _, name := range actor.CourseNames() {
		if permission.CheckMember(actor, name) == nil {
			courses = append(courses, name)
		}
	}

	sessions, err := r.store.ListSessionsByCourses(ctx, courses)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// IsLive is a cache-only check.
func (r *Registry) IsLive(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.liveSessions[sessionID]
	return ok
}

func (r *Registry) GetStats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]interface{}{
		"live_sessions": len(r.liveSessions),
	}
}

func (r *Registry) cache(session *types.Session) {
	r.mu.Lock()
	r.liveSessions[session.ID] = &cachedSession{session: cloneSession(session), loadedAt: r.now()}
	r.mu.Unlock()
}

func (r *Registry) evict(sessionID string) {
	r.mu.Lock()
	delete(r.liveSessions, sessionID)
	r.mu.Unlock()
}

// publish is best effort: the state change is already committed.
func (r *Registry) publish(ctx context.Context, room, eventType string, session *types.Session) {
	if r.publisher == nil {
		return
	}
	event := &types.Event{
		Type:      eventType,
		Room:      room,
		Payload:   cloneSession(session),
		Timestamp: r.now(),
	}
	if err := r.publisher.Publish(ctx, room, event); err != nil {
		slog.WarnContext(ctx, "failed to publish session event", "event", eventType, "room", room, "error", err)
	}
}

func cloneSession(s *types.Session) *types.Session {
	c := *s
	if s.EndAt != nil {
		t := *s.EndAt
		c.EndAt = &t
	}
	return &c
}
