package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"docquery/internal/docs"
	"docquery/internal/store"
)

// chatMessage is the wire shape pushed to websocket clients and returned by
// the chat endpoint.
type chatMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type chatRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Message    chatMessage `json:"message"`
	SessionID  string      `json:"session_id"`
	IsComplete bool        `json:"is_complete"`
}

func newChatMessage(role, content string) chatMessage {
	return chatMessage{
		ID:        "msg_" + uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// handleChatSend accepts a user query, acknowledges it immediately and
// resolves it in the background; progress and the final answer travel over
// the websocket.
func (s *Server) handleChatSend(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("invalid request: %v", err)})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.engine.NewSessionID()
	}

	userMsg := newChatMessage("user", req.Message)
	s.hub.broadcast(gin.H{
		"type":       "chat_message",
		"session_id": sessionID,
		"message":    userMsg,
	})

	go s.processQuery(sessionID, req.Message)

	c.JSON(http.StatusOK, chatResponse{
		Message:   userMsg,
		SessionID: sessionID,
	})
}

// processQuery runs one resolution in the background and broadcasts its
// lifecycle. Each session runs in its own goroutine; the loop inside the
// engine is strictly sequential per session.
func (s *Server) processQuery(sessionID, userQuery string) {
	s.hub.broadcast(gin.H{
		"type":       "chat_status",
		"session_id": sessionID,
		"status":     "thinking",
	})

	trace, err := s.engine.ResolveQuery(context.Background(), sessionID, userQuery)
	if err != nil && trace == nil {
		s.logger.Error("session %s: resolution failed: %v", sessionID, err)
		s.hub.broadcast(gin.H{
			"type":       "chat_error",
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return
	}

	s.hub.broadcast(gin.H{
		"type":       "chat_message",
		"session_id": sessionID,
		"message":    newChatMessage("assistant", trace.FinalAnswer),
	})
	s.hub.broadcast(gin.H{
		"type":           "chat_complete",
		"session_id":     sessionID,
		"iterations":     trace.TotalIterations,
		"files_accessed": trace.FilesAccessed,
	})
}

func (s *Server) handleListSessions(c *gin.Context) {
	summaries, err := s.engine.Sessions().List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if summaries == nil {
		summaries = []store.Summary{}
	}
	c.JSON(http.StatusOK, summaries)
}

func (s *Server) handleGetSession(c *gin.Context) {
	trace, err := s.engine.Sessions().Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, trace)
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	id := c.Param("id")
	if !s.engine.Sessions().Exists(id) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found"})
		return
	}
	if err := s.engine.Sessions().Delete(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session deleted successfully"})
}

func (s *Server) handleListFiles(c *gin.Context) {
	files, err := s.engine.Docs().List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if files == nil {
		files = []docs.FileInfo{}
	}
	c.JSON(http.StatusOK, files)
}

func (s *Server) handleUploadFile(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "missing file"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	defer func() { _ = f.Close() }()

	size, err := s.engine.Docs().Save(filepath.Base(header.Filename), f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "File uploaded successfully",
		"filename": filepath.Base(header.Filename),
		"size":     size,
	})
}

func (s *Server) handleDownloadFile(c *gin.Context) {
	path, err := s.engine.Docs().Path(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	c.FileAttachment(path, c.Param("name"))
}

func (s *Server) handleDeleteFile(c *gin.Context) {
	if err := s.engine.Docs().Delete(c.Param("name")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted successfully"})
}

func (s *Server) handleGetSystemPrompt(c *gin.Context) {
	prompt, err := s.engine.SystemPrompt()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompt": prompt})
}

func (s *Server) handleUpdateSystemPrompt(c *gin.Context) {
	var req struct {
		Prompt string `json:"prompt" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if err := s.engine.SetSystemPrompt(req.Prompt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "System prompt updated successfully"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
	})
}
