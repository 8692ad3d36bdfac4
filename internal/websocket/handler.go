package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"classboard/internal/auth"
	"classboard/internal/broadcast"
	"classboard/internal/config"
	"classboard/internal/logger"
	"classboard/internal/permission"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// Client message types
const (
	MessageJoin  = "join"
	MessageLeave = "leave"
	MessagePing  = "ping"
)

// ClientMessage is what a client sends. Exactly one of SessionID or Course
// names the room.
type ClientMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Course    string `json:"course,omitempty"`
}

// ServerMessage acknowledges client messages. Room events are sent as
// types.Event.
type ServerMessage struct {
	Type      string    `json:"type"`
	Room      string    `json:"room,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionLookup resolves a session id into a session or a not-found
// *types.Error.
type SessionLookup interface {
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
}

type Handler struct {
	broadcaster *broadcast.Broadcaster
	sessions    SessionLookup
	directory   interfaces.ParticipantDirectory
	options     ConnectionOptions
	readTimeout time.Duration
	upgrader    websocket.Upgrader
}

func NewHandler(
	broadcaster *broadcast.Broadcaster,
	sessions SessionLookup,
	directory interfaces.ParticipantDirectory,
	wsCfg *config.WebSocketConfig,
	allowedOrigins []string,
) *Handler {
	return &Handler{
		broadcaster: broadcaster,
		sessions:    sessions,
		directory:   directory,
		options: ConnectionOptions{
			BufferSize:   wsCfg.BufferSize,
			WriteTimeout: wsCfg.WriteTimeout,
			PingInterval: wsCfg.PingInterval,
		},
		readTimeout: wsCfg.ReadTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin:      originChecker(allowedOrigins),
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// originChecker allows requests without an Origin header (non-browser
// clients), any origin when the list holds "*", or a listed origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// HandleWebSocket upgrades an authenticated request. It must run behind
// auth.Middleware.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrMissingToken.Error()})
		return
	}
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{UserID: actor.ID, Component: "websocket"})

	// Connecting counts as presence for ledger fan-out.
	if h.directory != nil {
		if err := h.directory.UpsertParticipant(ctx, actor); err != nil {
			slog.WarnContext(ctx, "failed to record participant presence", "error", err)
		}
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(ctx, "websocket upgrade failed", "error", err)
		return
	}

	conn := NewConnection(ws, h.options)
	conn.SetActor(actor)

	_ = conn.WriteJSON(&ServerMessage{Type: "connected", Timestamp: time.Now().UTC()})
	slog.InfoContext(ctx, "websocket connected")

	go h.readLoop(context.WithoutCancel(ctx), ws, conn)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, conn *Connection) {
	defer func() {
		h.broadcaster.LeaveAll(conn)
		_ = conn.Close()
		slog.InfoContext(ctx, "websocket disconnected")
	}()

	extend := func() error {
		if h.readTimeout <= 0 {
			return nil
		}
		return ws.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
	if err := extend(); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error { return extend() })

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.DebugContext(ctx, "websocket read error", "error", err)
			}
			return
		}
		if err := extend(); err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(conn, "error", "", ErrInvalidJSON)
			continue
		}
		h.handleMessage(ctx, conn, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *Connection, msg *ClientMessage) {
	switch msg.Type {
	case MessagePing:
		h.reply(conn, "pong", "", nil)

	case MessageJoin:
		room, err := h.authorizeRoom(ctx, conn.Actor(), msg)
		if err != nil {
			h.reply(conn, "error", room, err)
			return
		}
		h.broadcaster.Join(room, conn)
		slog.DebugContext(ctx, "joined room", "room", room)
		h.reply(conn, "joined", room, nil)

	case MessageLeave:
		room := roomOf(msg)
		if room == "" {
			h.reply(conn, "error", "", ErrMissingRoom)
			return
		}
		h.broadcaster.Leave(room, conn)
		h.reply(conn, "left", room, nil)

	default:
		h.reply(conn, "error", "", ErrUnknownMessage)
	}
}

// authorizeRoom checks that actor may listen to the requested room.
func (h *Handler) authorizeRoom(ctx context.Context, actor *types.Participant, msg *ClientMessage) (string, error) {
	switch {
	case msg.SessionID != "":
		session, err := h.sessions.GetSession(ctx, msg.SessionID)
		if err != nil {
			return msg.SessionID, err
		}
		if err := permission.Check(permission.ActionViewSession, actor, session); err != nil {
			return msg.SessionID, err
		}
		return session.ID, nil

	case msg.Course != "":
		room := types.CourseRoom(msg.Course)
		if err := permission.CheckMember(actor, msg.Course); err != nil {
			return room, err
		}
		return room, nil

	default:
		return "", ErrMissingRoom
	}
}

func roomOf(msg *ClientMessage) string {
	switch {
	case msg.SessionID != "":
		return msg.SessionID
	case msg.Course != "":
		return types.CourseRoom(msg.Course)
	default:
		return ""
	}
}

func (h *Handler) reply(conn *Connection, kind, room string, err error) {
	msg := &ServerMessage{Type: kind, Room: room, Timestamp: time.Now().UTC()}
	if err != nil {
		if e, ok := types.AsError(err); ok {
			msg.Error = e.Message
		} else {
			msg.Error = err.Error()
		}
	}
	_ = conn.WriteJSON(msg)
}
