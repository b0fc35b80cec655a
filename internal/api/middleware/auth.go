package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"

	"lootbox-hub/internal/api/response"
	"lootbox-hub/internal/service"
	jwtutil "lootbox-hub/pkg/jwt"
)

const (
	claimsContextKey = "claims"
	actorContextKey  = "actor"
)

type Claims = jwtutil.Claims

// JWTAuth verifies the access token and stores both the raw claims and the
// service Actor built from them. Services never see the token.
func JWTAuth(verifier *jwtutil.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetActor(c); ok {
			c.Next()
			return
		}

		tokenString := tokenFromRequest(c)
		if tokenString == "" || verifier == nil {
			response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
			c.Abort()
			return
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.Fail(c, http.StatusUnauthorized, response.ErrTokenExpired, "token expired")
			} else {
				response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
			}
			c.Abort()
			return
		}

		actor, err := service.NewActor(claims.UserID, claims.Role)
		if err != nil {
			response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
			c.Abort()
			return
		}

		c.Set(claimsContextKey, claims)
		c.Set(actorContextKey, actor)
		c.Next()
	}
}

// RequireOperator rejects callers without the admin or moderator capability
// before the handler runs. Services check again.
func RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
			c.Abort()
			return
		}
		if !actor.Elevated() {
			response.Fail(c, http.StatusForbidden, response.ErrForbidden, "forbidden")
			c.Abort()
			return
		}
		c.Next()
	}
}

func GetClaims(c *gin.Context) (*Claims, bool) {
	val, ok := c.Get(claimsContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := val.(*Claims)
	if !ok || claims == nil {
		return nil, false
	}
	return claims, true
}

func GetActor(c *gin.Context) (service.Actor, bool) {
	val, ok := c.Get(actorContextKey)
	if !ok {
		return service.Actor{}, false
	}
	actor, ok := val.(service.Actor)
	return actor, ok
}

// SetActor is used by tests to bypass token parsing.
func SetActor(c *gin.Context, actor service.Actor, role string) {
	c.Set(actorContextKey, actor)
	c.Set(claimsContextKey, &Claims{UserID: actor.UserID.String(), Role: role})
}

func tokenFromRequest(c *gin.Context) string {
	if cookieToken, err := c.Cookie("access_token"); err == nil && cookieToken != "" {
		return cookieToken
	}
	return bearerToken(c.GetHeader("Authorization"))
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
