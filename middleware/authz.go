// middleware/authz.go
package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/fortress-iam/gateway/authz"
	gw_errors "github.com/fortress-iam/gateway/errors"
	"github.com/fortress-iam/gateway/model"
	"github.com/fortress-iam/gateway/util"
)

// protectedEndpoint maps a route shape to the policy question asked for
// it. Routes not listed here are not gated by the policy engine (they may
// still require authentication and an enabled user).
type protectedEndpoint struct {
	pattern      *regexp.Regexp
	methods      map[string]bool
	action       string
	resourceType string
}

var uuidPattern = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

var protectedEndpoints = []protectedEndpoint{
	{pattern: regexp.MustCompile(`^/v1/users/?$`), methods: methodSet("GET", "POST"), action: "User:list", resourceType: "User"},
	{pattern: regexp.MustCompile(`^/v1/users/[^/]+/?$`), methods: methodSet("GET", "PUT", "DELETE"), action: "User:read", resourceType: "User"},
	{pattern: regexp.MustCompile(`^/v1/users/[^/]+/disable/?$`), methods: methodSet("POST"), action: "User:disable", resourceType: "User"},
	{pattern: regexp.MustCompile(`^/v1/users/[^/]+/enable/?$`), methods: methodSet("POST"), action: "User:enable", resourceType: "User"},
}

func methodSet(methods ...string) map[string]bool {
	m := make(map[string]bool, len(methods))
	for _, method := range methods {
		m[method] = true
	}
	return m
}

// Authorize enforces the policy engine's answer for protected routes. The
// resource id is the UUID embedded in the path, or "self" when the path
// carries none.
func Authorize(authzSvc *authz.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		action, resourceType, required := requiresAuthorization(c.Request.URL.Path, c.Request.Method)
		if !required {
			c.Next()
			return
		}

		raw, ok := util.GetPrincipalFromContext(c)
		if !ok {
			util.RespondWithError(c, http.StatusUnauthorized, "TOKEN_MISSING", "Authentication is required", gw_errors.ErrUnauthorized)
			c.Abort()
			return
		}
		principal, ok := raw.(model.Principal)
		if !ok {
			util.RespondWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Invalid principal in request context", gw_errors.ErrInternalServer)
			c.Abort()
			return
		}

		decision := authzSvc.Check(c.Request.Context(), model.CheckRequest{
			Principal: principal,
			Action:    action,
			Resource: model.Resource{
				Type: resourceType,
				ID:   extractResourceID(c.Request.URL.Path),
			},
		})
		if !decision.Allowed() {
			util.RespondWithError(c, http.StatusForbidden, "AUTHORIZATION_DENIED", "Not authorized to perform this action", gw_errors.ErrAuthorizationDenied)
			c.Abort()
			return
		}

		c.Next()
	}
}

func requiresAuthorization(path, method string) (action, resourceType string, required bool) {
	for _, ep := range protectedEndpoints {
		if ep.methods[method] && ep.pattern.MatchString(path) {
			return ep.action, ep.resourceType, true
		}
	}
	return "", "", false
}

func extractResourceID(path string) string {
	if id := uuidPattern.FindString(path); id != "" {
		return id
	}
	return "self"
}
