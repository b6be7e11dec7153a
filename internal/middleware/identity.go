package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
	"github.com/noah-isme/enrollment-api/pkg/response"
)

// ContextCallerKey is the gin context key holding the caller's CWID.
const ContextCallerKey = "caller_cwid"

// DefaultIdentityHeader carries the campus-wide id set by the upstream gateway.
const DefaultIdentityHeader = "X-CWID"

// Identity copies the caller id from header into the context and rejects
// requests without one. The header is trusted as-is.
func Identity(header string) gin.HandlerFunc {
	if header == "" {
		header = DefaultIdentityHeader
	}
	return func(c *gin.Context) {
		cwid := strings.TrimSpace(c.GetHeader(header))
		if cwid == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing "+header+" header"))
			c.Abort()
			return
		}
		c.Set(ContextCallerKey, cwid)
		c.Next()
	}
}

// Caller returns the caller id stored by Identity.
func Caller(c *gin.Context) string {
	return c.GetString(ContextCallerKey)
}
