// Package licensegin adapts the feature gate and entitlement cache to Gin
// hosts: a middleware that blocks requests behind a feature flag and a
// handler that reports license status for the UI.
package licensegin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/licensekit/gate"
)

const decisionKey = "licensekit.decision"

// RequireFeature rejects requests with 403 when the named feature is not
// allowed by the current entitlement snapshot. The decision (including the
// grace-period warning, when applicable) is stored on the context for
// handlers that want to surface it.
func RequireFeature(g *gate.Gate, feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := g.CanUse(feature)
		c.Set(decisionKey, d)
		if !d.Allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "feature_not_available",
				"feature": feature,
				"status":  d.Status,
				"reason":  d.Reason,
			})
			return
		}
		c.Next()
	}
}

// Decision returns the gate decision recorded by RequireFeature, if any.
func Decision(c *gin.Context) (gate.Decision, bool) {
	v, ok := c.Get(decisionKey)
	if !ok {
		return gate.Decision{}, false
	}
	d, ok := v.(gate.Decision)
	return d, ok
}

// StatusHandler serves the current snapshot so the host UI can render
// license state without touching storage or crypto itself.
func StatusHandler(source gate.SnapshotSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, source.Snapshot())
	}
}
