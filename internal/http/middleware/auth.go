// README: Actor middleware; attributes admin changes to the staff member named in X-Actor.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderActor     = "X-Actor"
	contextActorKey = "actor"
	maxActorLength  = 80
)

// Actor records who is making the change. There are no sessions; the admin UI
// sends the staff name and fallback is used when it does not.
func Actor(fallback string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(HeaderActor))
		if actor == "" {
			actor = fallback
		}
		if len(actor) > maxActorLength {
			actor = actor[:maxActorLength]
		}
		c.Set(contextActorKey, actor)
		c.Next()
	}
}

// CallerActor returns the actor set by Actor, or "".
func CallerActor(c *gin.Context) string {
	return c.GetString(contextActorKey)
}
