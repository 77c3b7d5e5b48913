package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"coffee-fleet-console/internal/authz"
	"coffee-fleet-console/internal/session"
)

type sessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	Loading       bool             `json:"loading"`
	Session       *session.Session `json:"session,omitempty"`
	IsAdmin       bool             `json:"isAdmin"`
	IsFacility    bool             `json:"isFacility"`
	Navigation    []authz.NavItem  `json:"navigation"`
}

func (h *Handler) sessionState() sessionResponse {
	resp := sessionResponse{
		Loading:    h.session.Loading(),
		IsAdmin:    h.session.IsAdmin(),
		IsFacility: h.session.IsFacility(),
		Navigation: []authz.NavItem{},
	}
	if sess, ok := h.session.Current(); ok {
		resp.Authenticated = true
		resp.Session = &sess
		resp.Navigation = authz.Navigation(sess.Role)
	}
	return resp
}

// GetSession handles GET /session.
func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessionState())
}

// Login handles POST /login.
func (h *Handler) Login(c *gin.Context) {
	var creds session.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	if _, err := h.session.Login(c.Request.Context(), creds); err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}
		backendError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.sessionState())
}

// Signup handles POST /signup. It registers the account without signing in.
func (h *Handler) Signup(c *gin.Context) {
	var req session.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.session.Signup(c.Request.Context(), req); err != nil {
		var verr *session.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "fields": verr.Fields})
			return
		}
		backendError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Account created. Please sign in.", "redirect": "/login"})
}

// Logout handles POST /logout. It always succeeds.
func (h *Handler) Logout(c *gin.Context) {
	h.session.Logout(c.Request.Context())
	c.JSON(http.StatusOK, h.sessionState())
}
