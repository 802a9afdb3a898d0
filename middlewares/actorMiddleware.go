package middlewares

import (
	"net/http"
	"strings"

	"github.com/evnsoft/clubshift_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ActorMiddleware trusts the bot gateway in front of this service: the
// gateway authenticates the Telegram user and forwards identity plus the
// granted capability set in headers. Requests without an actor are rejected;
// the engine performs no authentication of its own.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorId := strings.TrimSpace(c.GetHeader("x-actor-id"))
		if actorId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "x-actor-id header is required"})
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		ctx = utils.SetActorIdInContext(ctx, actorId)
		if name := strings.TrimSpace(c.GetHeader("x-actor-name")); name != "" {
			ctx = utils.SetActorNameInContext(ctx, name)
		}
		if raw := strings.TrimSpace(c.GetHeader("x-actor-capabilities")); raw != "" {
			ctx = utils.SetCapabilitiesInContext(ctx, splitAndTrim(raw))
		}
		if strings.EqualFold(c.GetHeader("x-actor-controller"), "true") {
			ctx = utils.SetIsControllerInContext(ctx, true)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CorrelationMiddleware propagates the gateway's correlation id, minting one
// when absent, so a shift close and its later sync dispatch share a trace.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header("x-correlation-id", cid)
		c.Next()
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
