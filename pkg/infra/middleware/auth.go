package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/videoqa/pkg/infra/middleware/common"
	authopts "github.com/kart-io/videoqa/pkg/options/auth"
	"github.com/kart-io/videoqa/pkg/utils/errors"
	"github.com/kart-io/videoqa/pkg/utils/response"
)

const authScheme = "Bearer"

// BearerAuth returns a middleware that requires "Authorization: Bearer <key>"
// to match opts.APIKey. A disabled option set yields a pass-through.
func BearerAuth(opts *authopts.Options) gin.HandlerFunc {
	if !opts.Enabled() {
		logger.Warn("API key not configured, chat routes are unauthenticated")
		return func(c *gin.Context) { c.Next() }
	}

	expected := []byte(opts.APIKey)
	skip := make(map[string]bool, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		header := c.GetHeader(common.HeaderAuthorization)
		if strings.TrimSpace(header) == "" {
			handleAuthError(c, errors.ErrMissingAuthHeader)
			return
		}
		token, ok := extractToken(header)
		if !ok || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			handleAuthError(c, errors.ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// extractToken parses "Bearer <token>". The scheme is case-insensitive.
func extractToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, authScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func handleAuthError(c *gin.Context, e *errors.Errno) {
	resp := response.Err(e).WithRequestID(GetRequestID(c))
	c.Header("WWW-Authenticate", authScheme)
	c.AbortWithStatusJSON(resp.HTTPStatus(), resp)
}
