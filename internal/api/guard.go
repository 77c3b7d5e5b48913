package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"coffee-fleet-console/internal/authz"
	"coffee-fleet-console/internal/mw"
)

// Guard protects console routes. While the persisted session is still being
// restored it answers 503; without a session it redirects to the login view.
func (h *Handler) Guard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.session.Loading() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"loading": true})
			return
		}
		sess, ok := h.session.Current()
		if !ok {
			c.Redirect(http.StatusSeeOther, "/login")
			c.Abort()
			return
		}
		c.Set(sessionKey, sess)
		c.Set(mw.ScopeKey, fmt.Sprintf("%d:%s:%d", sess.UserID, sess.Role, sess.FacilityID))
		c.Next()
	}
}

// Require rejects sessions whose role lacks permission p.
func Require(p authz.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authz.Can(currentSession(c).Role, p) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have access to this page"})
			return
		}
		c.Next()
	}
}

// LoginView handles GET /login. Signed-in users are sent to the dashboard.
func (h *Handler) LoginView(c *gin.Context) {
	if h.session.Loading() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"loading": true})
		return
	}
	if h.session.Authenticated() {
		c.Redirect(http.StatusSeeOther, "/dashboard")
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": false})
}

// NoRoute sends unknown paths to the dashboard, which in turn sends
// anonymous users to the login view.
func (h *Handler) NoRoute(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, "/dashboard")
}
