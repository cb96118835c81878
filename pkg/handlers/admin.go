package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thehanda/countcam-app/pkg/auth"
	"github.com/thehanda/countcam-app/pkg/database"
)

type userForm struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
	IsAdmin  bool   `form:"isAdmin" json:"isAdmin"`
}

func (h *Handler) bindUser(c *gin.Context, needPassword bool) (userForm, bool) {
	var f userForm
	if err := c.ShouldBind(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return f, false
	}
	if f.Username == "" || (needPassword && f.Password == "") {
		msg := "Username cannot be empty."
		if needPassword {
			msg = "Username and password cannot be empty."
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return f, false
	}
	return f, true
}

func (h *Handler) HandleListUsers(c *gin.Context) {
	users, err := h.users.GetAllUsers()
	if err != nil {
		h.log.Error("failed to list users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users})
}

func (h *Handler) HandleCreateUser(c *gin.Context) {
	f, ok := h.bindUser(c, true)
	if !ok {
		return
	}
	if err := h.users.CreateUser(f.Username, f.Password, f.IsAdmin); err != nil {
		if errors.Is(err, database.ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("failed to create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Successfully created user: " + f.Username})
}

func (h *Handler) HandleDeleteUser(c *gin.Context) {
	f, ok := h.bindUser(c, false)
	if !ok {
		return
	}
	if current, ok := auth.CurrentUser(c); ok && current.Username == f.Username {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot delete your own account."})
		return
	}
	if err := h.users.DeleteUser(f.Username); err != nil {
		h.userError(c, "delete", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Successfully deleted user: " + f.Username})
}

func (h *Handler) HandleChangePassword(c *gin.Context) {
	f, ok := h.bindUser(c, true)
	if !ok {
		return
	}
	if err := h.users.UpdateUserPassword(f.Username, f.Password); err != nil {
		h.userError(c, "update password for", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Successfully changed password for user: " + f.Username})
}

func (h *Handler) userError(c *gin.Context, action string, err error) {
	if errors.Is(err, database.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.log.Error("failed to "+action+" user", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + action + " user"})
}
