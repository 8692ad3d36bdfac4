package router

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"classboard/internal/auth"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

const defaultPresenceTTL = time.Minute

// PresenceRecorder keeps the participant directory current for callers that
// only use the REST surface. A snapshot is written at most once per ttl per
// user unless it changed.
type PresenceRecorder struct {
	mu        sync.Mutex
	directory interfaces.ParticipantDirectory
	ttl       time.Duration
	seen      map[string]presenceEntry
	now       func() time.Time
}

type presenceEntry struct {
	at          time.Time
	fingerprint string
}

func NewPresenceRecorder(directory interfaces.ParticipantDirectory, ttl time.Duration) *PresenceRecorder {
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	return &PresenceRecorder{
		directory: directory,
		ttl:       ttl,
		seen:      make(map[string]presenceEntry),
		now:       time.Now,
	}
}

// Record upserts the actor's snapshot unless an identical one was written
// within ttl. Failures are logged and retried on the next request.
func (p *PresenceRecorder) Record(ctx context.Context, actor *types.Participant) {
	if actor == nil || actor.ID == "" {
		return
	}
	fp := fingerprint(actor)
	now := p.now()

	p.mu.Lock()
	prev, ok := p.seen[actor.ID]
	if ok && prev.fingerprint == fp && now.Sub(prev.at) < p.ttl {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if err := p.directory.UpsertParticipant(ctx, actor); err != nil {
		slog.WarnContext(ctx, "failed to record participant", "user_id", actor.ID, "error", err)
		return
	}

	p.mu.Lock()
	p.seen[actor.ID] = presenceEntry{at: now, fingerprint: fp}
	p.mu.Unlock()
}

// Cleanup forgets users not seen for ttl. Call it periodically.
func (p *PresenceRecorder) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for id, e := range p.seen {
		if now.Sub(e.at) >= p.ttl {
			delete(p.seen, id)
		}
	}
}

func (p *PresenceRecorder) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func fingerprint(actor *types.Participant) string {
	var b strings.Builder
	b.WriteString(actor.Name)
	b.WriteByte('|')
	b.WriteString(actor.Role)
	for _, m := range actor.CourseMemberships {
		b.WriteByte('|')
		b.WriteString(m.CourseName)
		b.WriteByte(':')
		b.WriteString(strconv.FormatBool(m.Enrolled))
		b.WriteString(strconv.FormatBool(m.IsTA))
		b.WriteString(strconv.FormatBool(m.IsInstructor))
	}
	return b.String()
}

// Presence records the authenticated actor before the handler runs, so a
// REST-only participant is a ledger recipient from their first call.
func Presence(p *PresenceRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			if actor, ok := auth.ActorFrom(c); ok {
				p.Record(c.Request.Context(), actor)
			}
		}
		c.Next()
	}
}
