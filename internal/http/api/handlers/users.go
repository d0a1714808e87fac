package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/red-ai/redterm/internal/admin"
	"github.com/red-ai/redterm/internal/models"
)

// UserHandler manages the administrator's account endpoints.
type UserHandler struct {
	manager *admin.Manager
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(manager *admin.Manager) *UserHandler {
	return &UserHandler{manager: manager}
}

// userSummary augments a roster entry with the derived fields the listing
// shows: whether a device is linked and how many days the account has existed.
type userSummary struct {
	models.AuthUser
	DeviceLinked bool `json:"deviceLinked"`
	DaysActive   int  `json:"daysActive"`
}

// List returns roster accounts with optional filters and sorting.
func (h *UserHandler) List(c *gin.Context) {
	opts := admin.ListOptions{
		Query:  strings.TrimSpace(c.Query("search")),
		Status: strings.TrimSpace(c.Query("status")),
		Plan:   strings.TrimSpace(c.Query("plan")),
		Sort:   strings.TrimSpace(c.Query("sort")),
	}
	users, errList := h.manager.ListUsers(c.Request.Context(), opts)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}

	now := time.Now()
	summaries := make([]userSummary, len(users))
	for i, u := range users {
		summaries[i] = userSummary{
			AuthUser:     u,
			DeviceLinked: u.DeviceLinked(),
			DaysActive:   int(now.Sub(time.UnixMilli(u.CreatedAt)).Hours() / 24),
		}
	}
	c.JSON(http.StatusOK, gin.H{"users": summaries})
}

// userRequest defines the request body for creating or updating an account.
type userRequest struct {
	Username     string `json:"username"`
	IsUnlimited  bool   `json:"isUnlimited"`
	DurationDays *int   `json:"durationDays"`
}

// Create adds a new roster account.
func (h *UserHandler) Create(c *gin.Context) {
	var body userRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Username) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}

	entry, errAdd := h.manager.AddUser(c.Request.Context(), body.Username, body.IsUnlimited, body.DurationDays)
	if errAdd != nil {
		c.JSON(adminStatus(errAdd), gin.H{"error": errAdd.Error()})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// Get returns one account with its consumed-message count.
func (h *UserHandler) Get(c *gin.Context) {
	detail, errGet := h.manager.GetUser(c.Request.Context(), c.Param("username"))
	if errGet != nil {
		c.JSON(adminStatus(errGet), gin.H{"error": errGet.Error()})
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Update changes an account's plan.
func (h *UserHandler) Update(c *gin.Context) {
	var body userRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	entry, errUpdate := h.manager.UpdateUser(c.Request.Context(), c.Param("username"), body.IsUnlimited, body.DurationDays)
	if errUpdate != nil {
		c.JSON(adminStatus(errUpdate), gin.H{"error": errUpdate.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ToggleActive flips an account between active and deactivated.
func (h *UserHandler) ToggleActive(c *gin.Context) {
	active, errToggle := h.manager.ToggleActive(c.Request.Context(), c.Param("username"))
	if errToggle != nil {
		c.JSON(adminStatus(errToggle), gin.H{"error": errToggle.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"isActive": active})
}

// UnlinkDevice releases an account's device binding.
func (h *UserHandler) UnlinkDevice(c *gin.Context) {
	if errUnlink := h.manager.UnlinkDevice(c.Request.Context(), c.Param("username")); errUnlink != nil {
		c.JSON(adminStatus(errUnlink), gin.H{"error": errUnlink.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RequestDelete starts a two-phase deletion and returns the confirmation
// token.
func (h *UserHandler) RequestDelete(c *gin.Context) {
	token, errRequest := h.manager.RequestDelete(c.Request.Context(), c.Param("username"))
	if errRequest != nil {
		c.JSON(adminStatus(errRequest), gin.H{"error": errRequest.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"confirmationToken": token})
}

// confirmDeleteRequest defines the request body for completing a deletion.
type confirmDeleteRequest struct {
	ConfirmationToken string `json:"confirmationToken"`
}

// ConfirmDelete completes a pending deletion.
func (h *UserHandler) ConfirmDelete(c *gin.Context) {
	var body confirmDeleteRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if errDelete := h.manager.ConfirmDelete(c.Request.Context(), c.Param("username"), body.ConfirmationToken); errDelete != nil {
		c.JSON(adminStatus(errDelete), gin.H{"error": errDelete.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
