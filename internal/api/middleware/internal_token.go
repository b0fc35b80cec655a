package middleware

import (
	"crypto/subtle"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"

	"lootbox-hub/internal/api/response"
)

const internalTokenHeader = "X-Internal-Token"

// InternalOnly guards the /internal surface. Loopback callers pass; anyone
// else presents the shared token in X-Internal-Token or as a bearer token.
// An empty token closes the surface to non-loopback callers.
func InternalOnly(token string) gin.HandlerFunc {
	want := []byte(strings.TrimSpace(token))

	return func(c *gin.Context) {
		if fromLoopback(c.ClientIP()) {
			c.Next()
			return
		}

		got := strings.TrimSpace(c.GetHeader(internalTokenHeader))
		if got == "" {
			got = bearerToken(c.GetHeader("Authorization"))
		}
		if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}

func fromLoopback(clientIP string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(clientIP))
	return err == nil && addr.Unmap().IsLoopback()
}
