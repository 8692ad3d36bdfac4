package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"classboard/internal/api"
	"classboard/internal/auth"
	"classboard/internal/websocket"
)

type Options struct {
	// ServiceName enables otelgin spans when set.
	ServiceName    string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type Deps struct {
	API       *api.Handler
	WebSocket *websocket.Handler
	Auth      *auth.Authenticator
	Limiter   *RateLimiter
	Presence  *PresenceRecorder
}

// New builds the gin engine with middleware and every route registered.
func New(opts Options, deps Deps) *gin.Engine {
	engine := gin.New()

	// otel first so recovery and logging see the span
	if opts.ServiceName != "" {
		engine.Use(otelgin.Middleware(opts.ServiceName))
	}
	engine.Use(Recovery())
	engine.Use(Logger())
	engine.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	SetupRoutes(engine, deps, opts.RequestTimeout)
	return engine
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func SetupRoutes(engine *gin.Engine, deps Deps, requestTimeout time.Duration) {
	engine.GET("/health", deps.API.Health)

	authenticated := auth.Middleware(deps.Auth)

	if deps.WebSocket != nil {
		engine.GET("/ws", authenticated, deps.WebSocket.HandleWebSocket)
	}

	limit := RateLimit(deps.Limiter)
	v1 := engine.Group("/api", authenticated, Presence(deps.Presence), Timeout(requestTimeout))
	{
		SessionRouter(v1, deps.API, limit)
		QuestionRouter(v1.Group("/sessions/:id/questions"), deps.API, limit)
	}
}

func SessionRouter(rg *gin.RouterGroup, h *api.Handler, limit gin.HandlerFunc) {
	rg.GET("/sessions", h.ListSessions)
	rg.POST("/sessions", limit, h.CreateSession)
	rg.GET("/courses/:course/active-session", h.GetActiveSession)
	rg.GET("/sessions/:id", h.GetSession)
	rg.POST("/sessions/:id/end", limit, h.EndSession)
	rg.POST("/sessions/:id/join", h.JoinSession)
	rg.POST("/sessions/:id/seen", h.MarkSeen)
	rg.GET("/sessions/:id/updates", h.GetUpdates)
}

func QuestionRouter(rg *gin.RouterGroup, h *api.Handler, limit gin.HandlerFunc) {
	rg.GET("", h.ListQuestions)
	rg.POST("", limit, h.PostQuestion)
	rg.GET("/:qid", h.GetQuestion)
	rg.DELETE("/:qid", limit, h.DeleteQuestion)
	rg.POST("/:qid/answer", limit, h.MarkAnswered)
	rg.PUT("/:qid/important", limit, h.SetImportant)
	rg.POST("/:qid/replies", limit, h.PostReply)
}
