package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"coffee-fleet-console/internal/backend"
	"coffee-fleet-console/internal/session"
)

// GetUsers handles GET /users with an optional role filter.
func (h *Handler) GetUsers(c *gin.Context) {
	var (
		users []backend.User
		err   error
	)
	if raw := c.Query("role"); raw != "" {
		role, ok := session.ParseRole(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
			return
		}
		users, err = h.backend.Users.ListByRole(c.Request.Context(), string(role))
	} else {
		users, err = h.backend.Users.List(c.Request.Context())
	}
	if err != nil {
		backendError(c, err)
		return
	}
	if users == nil {
		users = []backend.User{}
	}
	c.JSON(http.StatusOK, users)
}

// CreateUser handles POST /users. The form is validated like signup.
func (h *Handler) CreateUser(c *gin.Context) {
	var req session.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := req.Validate(); err != nil {
		var verr *session.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "fields": verr.Fields})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.backend.Users.Create(c.Request.Context(), req.BackendRequest())
	if err != nil {
		backendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// DeleteUser handles DELETE /users/:id. The backend deactivates the account.
func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if sess := currentSession(c); sess.UserID == id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot delete your own account"})
		return
	}
	if err := h.backend.Users.Delete(c.Request.Context(), id); err != nil {
		backendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReactivateUser handles POST /users/:id/reactivate.
func (h *Handler) ReactivateUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.backend.Users.Reactivate(c.Request.Context(), id); err != nil {
		backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "isActive": true})
}

// GetUser handles GET /users/:id.
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	user, err := h.backend.Users.Get(c.Request.Context(), id)
	if err != nil {
		backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateUser handles PUT /users/:id.
func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var user backend.User
	if err := c.ShouldBindJSON(&user); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if user.Role != "" {
		role, ok := session.ParseRole(user.Role)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
			return
		}
		user.Role = role.Authority()
	}
	user.ID = id

	updated, err := h.backend.Users.Update(c.Request.Context(), id, user)
	if err != nil {
		backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
