package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"classboard/internal/logger"
	"classboard/pkg/types"
)

const actorKey = "actor"

// Middleware authenticates every request from the Authorization header, or
// from the token query parameter for WebSocket upgrades where browsers
// cannot set headers.
func Middleware(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		actor, err := a.Verify(token)
		if err != nil {
			slog.DebugContext(c.Request.Context(), "rejected token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidToken.Error()})
			return
		}

		ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{UserID: actor.ID})
		c.Request = c.Request.WithContext(ctx)
		c.Set(actorKey, actor)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", ErrMissingToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrInvalidToken
	}
	return parts[1], nil
}

// ActorFrom returns the participant stored by Middleware.
func ActorFrom(c *gin.Context) (*types.Participant, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil, false
	}
	actor, ok := v.(*types.Participant)
	return actor, ok
}

// SetActor stores actor on the request; used by tests that bypass tokens.
func SetActor(c *gin.Context, actor *types.Participant) {
	c.Set(actorKey, actor)
}
