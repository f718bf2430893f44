// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file centralizes caller identity extraction. The idempotency replay
// lookup and the handlers that persist idempotency records must derive the
// same user id from a request, or a replayed POST never matches its stored
// tuple; both go through CallerID.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID is the demo identity header honored until real authentication
// lands. Device hubs and the ops console send it with every request.
const HeaderUserID = "X-User-ID"

// ctxKeyUserID is the context key upstream auth middleware sets.
const ctxKeyUserID = "userID"

// CallerID returns the operator identity for a request: the userID context
// value set by auth middleware, then the X-User-ID header, then a
// development-friendly "console-user" fallback. It never touches c.Request
// when it is nil.
func CallerID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
			return h
		}
	}
	return "console-user"
}
