package api

import (
	"strings"

	echo "github.com/labstack/echo/v5"
)

// dmGroup is the proxy group that grants dungeon master rights.
const dmGroup = "dm"

// extractUser extracts the authenticated user from proxy headers.
// Priority: X-Forwarded-User (oauth2-proxy) > X-Forwarded-Email (oauth2-proxy) >
// X-Remote-User (kube-rbac-proxy) > "".
func extractUser(c *echo.Context) string {
	if user := c.Request().Header.Get("X-Forwarded-User"); user != "" {
		return user
	}
	if email := c.Request().Header.Get("X-Forwarded-Email"); email != "" {
		return email
	}
	if user := c.Request().Header.Get("X-Remote-User"); user != "" {
		return user
	}
	return ""
}

// isDM reports whether the proxy marked the caller as a dungeon
// master via the X-Forwarded-Groups header (comma-separated).
func isDM(c *echo.Context) bool {
	groups := c.Request().Header.Get("X-Forwarded-Groups")
	if groups == "" {
		return false
	}
	for _, g := range strings.Split(groups, ",") {
		if strings.TrimSpace(g) == dmGroup {
			return true
		}
	}
	return false
}
