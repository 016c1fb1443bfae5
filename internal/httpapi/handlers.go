package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"alert-dialer/internal/attempts"
	"alert-dialer/internal/auth"
	"alert-dialer/internal/contacts"
	"alert-dialer/internal/messages"
	"alert-dialer/internal/orchestrator"
	"alert-dialer/internal/runs"

	"github.com/gin-gonic/gin"
)

// Orchestrator is the engine surface the API depends on.
type Orchestrator interface {
	StartRun(ctx context.Context, in orchestrator.StartRunInput) (runs.Run, error)
	GetRunStatus(ctx context.Context, runID string) (runs.Run, error)
	ListRunAttempts(ctx context.Context, runID string) ([]attempts.Attempt, error)
	CancelRun(ctx context.Context, runID string) (runs.Run, error)
	DialSingle(ctx context.Context, contactID string, src messages.Source, gatherDigit bool) (bool, error)
	TextSingle(ctx context.Context, contactID string, src messages.Source) (bool, error)
	SendCustom(ctx context.Context, in orchestrator.CustomAttemptInput) (attempts.Attempt, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth   *auth.Manager
	Engine Orchestrator
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Runs ---

type startRunRequest struct {
	ContactIDs  []string          `json:"contact_ids,omitempty"`
	GroupID     string            `json:"group_id,omitempty"`
	MessageID   string            `json:"message_id,omitempty"`
	Body        string            `json:"body,omitempty"`
	Channel     string            `json:"channel,omitempty"`
	GatherDigit bool              `json:"gather_digit"`
	CustomData  map[string]string `json:"custom_data,omitempty"`
}

func (h Handlers) StartRun(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	run, err := h.Engine.StartRun(c.Request.Context(), orchestrator.StartRunInput{
		Target:      contacts.TargetSpec{ContactIDs: req.ContactIDs, GroupID: req.GroupID},
		Source:      messages.Source{MessageID: req.MessageID, Inline: req.Body},
		Channel:     messages.Channel(req.Channel),
		GatherDigit: req.GatherDigit,
		CustomData:  req.CustomData,
	})
	if err != nil {
		abortWithMapped(c, err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}

func (h Handlers) GetRun(c *gin.Context) {
	run, err := h.Engine.GetRunStatus(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		abortWithMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h Handlers) ListRunAttempts(c *gin.Context) {
	rows, err := h.Engine.ListRunAttempts(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		abortWithMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": rows})
}

func (h Handlers) CancelRun(c *gin.Context) {
	run, err := h.Engine.CancelRun(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		abortWithMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// --- Single-contact operations ---

type dialRequest struct {
	ContactID   string `json:"contact_id"`
	MessageID   string `json:"message_id,omitempty"`
	Body        string `json:"body,omitempty"`
	GatherDigit bool   `json:"gather_digit"`
}

// DialSingle blocks until the contact answers or every endpoint is
// exhausted, so the operator gets the outcome in the response.
func (h Handlers) DialSingle(c *gin.Context) {
	var req dialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	answered, err := h.Engine.DialSingle(c.Request.Context(),
		req.ContactID, messages.Source{MessageID: req.MessageID, Inline: req.Body}, req.GatherDigit)
	if err != nil {
		abortWithMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answered": answered})
}

type textRequest struct {
	ContactID string `json:"contact_id"`
	MessageID string `json:"message_id,omitempty"`
	Body      string `json:"body,omitempty"`
}

func (h Handlers) TextSingle(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	delivered, err := h.Engine.TextSingle(c.Request.Context(),
		req.ContactID, messages.Source{MessageID: req.MessageID, Inline: req.Body})
	if err != nil {
		abortWithMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}

type customAttemptRequest struct {
	ContactID  string            `json:"contact_id"`
	RunID      string            `json:"run_id,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	Confirmed  bool              `json:"confirmed"`
	CustomData map[string]string `json:"custom_data,omitempty"`
}

// SendCustom records a contact attempt made outside the engine.
func (h Handlers) SendCustom(c *gin.Context) {
	var req customAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	a, err := h.Engine.SendCustom(c.Request.Context(), orchestrator.CustomAttemptInput{
		ContactID:  req.ContactID,
		RunID:      req.RunID,
		Detail:     req.Detail,
		Confirmed:  req.Confirmed,
		CustomData: req.CustomData,
	})
	if err != nil {
		abortWithMapped(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// abortWithMapped translates engine errors into HTTP statuses.
func abortWithMapped(c *gin.Context, err error) {
	switch {
	case errors.Is(err, runs.ErrNotFound),
		errors.Is(err, messages.ErrNotFound),
		errors.Is(err, orchestrator.ErrContactNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrRunClosed):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, contacts.ErrNoTarget),
		errors.Is(err, messages.ErrEmptySource),
		errors.Is(err, messages.ErrEmptyBody),
		errors.Is(err, messages.ErrInvalidSource):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
