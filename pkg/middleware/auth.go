package middleware

import (
	"context"
	"net/http"
	"strings"

	"cloudsync/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey      = "userID"
	accessTokenKey = "accessToken"
)

// TokenValidator resolves an access token to the id of its user.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (int64, error)
}

// Auth rejects requests without a valid bearer token and stores the caller's user id and
// token in the gin context.
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Fail(c, http.StatusUnauthorized, "authorization token not provided")
			return
		}
		uid, err := validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Set(userIDKey, uid)
		c.Set(accessTokenKey, token)
		c.Next()
	}
}

// OptionalAuth authenticates the caller when a bearer token is present and lets anonymous
// requests through. A token that is present but invalid is still rejected.
func OptionalAuth(validator TokenValidator) gin.HandlerFunc {
	required := Auth(validator)
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		required(c)
	}
}

// QueryTokenOrAuth passes requests that carry their own credential in the query parameter
// param straight to the handler, which checks it; a bearer header on such a request is
// ignored. Other requests go through OptionalAuth.
func QueryTokenOrAuth(validator TokenValidator, param string) gin.HandlerFunc {
	optional := OptionalAuth(validator)
	return func(c *gin.Context) {
		if c.Query(param) != "" {
			c.Next()
			return
		}
		optional(c)
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// UserID returns the authenticated caller, if any.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	uid, ok := v.(int64)
	return uid, ok
}

func AccessToken(c *gin.Context) string {
	return c.GetString(accessTokenKey)
}
