package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/red-ai/redterm/internal/authz"
	"github.com/red-ai/redterm/internal/chat"
	"github.com/red-ai/redterm/internal/quota"
	"github.com/red-ai/redterm/internal/roster"
)

// ChatHandler manages the conversation endpoints.
type ChatHandler struct {
	chat    *chat.Service
	roster  *roster.Store
	quota   *quota.Tracker
	authCfg authz.Config
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(chatService *chat.Service, rosterStore *roster.Store, tracker *quota.Tracker, authCfg authz.Config) *ChatHandler {
	return &ChatHandler{chat: chatService, roster: rosterStore, quota: tracker, authCfg: authCfg}
}

// Transcript returns the identity's current conversation.
func (h *ChatHandler) Transcript(c *gin.Context) {
	username, _ := sessionIdentity(c)
	transcript, errTranscript := h.chat.Transcript(username)
	if errTranscript != nil {
		c.JSON(chatStatus(errTranscript), gin.H{"error": errTranscript.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": transcript})
}

// sendRequest defines the request body for sending a message.
type sendRequest struct {
	Content string `json:"content"`
}

// Send submits a user message and streams the model reply back as
// server-sent events: one data event per fragment, then a final event with
// the settled transcript.
func (h *ChatHandler) Send(c *gin.Context) {
	var body sendRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	content := strings.TrimSpace(body.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing content"})
		return
	}

	username, _ := sessionIdentity(c)
	subject, errSubject := sessionSubject(c.Request.Context(), h.roster, h.authCfg, username)
	if errSubject != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load profile failed"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	flusher, _ := c.Writer.(http.Flusher)
	wroteStream := false

	transcript, errSend := h.chat.Send(c.Request.Context(), subject, content, func(fragment string) {
		wroteStream = true
		writeEvent(c.Writer, gin.H{"delta": fragment})
		if flusher != nil {
			flusher.Flush()
		}
	})
	if errSend != nil {
		if wroteStream {
			writeEvent(c.Writer, gin.H{"error": errSend.Error()})
			return
		}
		c.JSON(chatStatus(errSend), gin.H{"error": errSend.Error()})
		return
	}

	writeEvent(c.Writer, gin.H{"done": true, "messages": transcript})
	if flusher != nil {
		flusher.Flush()
	}
}

// Clear resets the conversation to a fresh welcome transcript.
func (h *ChatHandler) Clear(c *gin.Context) {
	username, _ := sessionIdentity(c)
	transcript, errClear := h.chat.Clear(username)
	if errClear != nil {
		c.JSON(chatStatus(errClear), gin.H{"error": errClear.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": transcript})
}

// Quota returns the identity's allowance state.
func (h *ChatHandler) Quota(c *gin.Context) {
	username, _ := sessionIdentity(c)
	subject, errSubject := sessionSubject(c.Request.Context(), h.roster, h.authCfg, username)
	if errSubject != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load profile failed"})
		return
	}
	used, errUsed := h.quota.Used(c.Request.Context(), username)
	if errUsed != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load quota failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"used":      used,
		"limit":     h.quota.Limit(),
		"unlimited": h.quota.Exempt(subject),
	})
}

// writeEvent writes one SSE data event.
func writeEvent(w http.ResponseWriter, payload gin.H) {
	data, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}
