package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"alert-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// WebhookHandlers converts Twilio callbacks to internal types and
// delegates to the engine via StatusSink / SnapshotSource.
//
// No business logic here.
//
// NOTE: These endpoints should be protected by Twilio signature
// validation in production.

// StatusSink applies a provider-initiated status update to the matching
// attempt record.
type StatusSink interface {
	ApplyProviderStatus(ctx context.Context, u StatusUpdate) error
}

// SnapshotSource resolves the message body read to an answered callee.
type SnapshotSource interface {
	SnapshotBody(ctx context.Context, snapshotID string) (string, error)
}

type WebhookHandlers struct {
	Sink      StatusSink
	Snapshots SnapshotSource

	Now func() time.Time
}

func (h WebhookHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// HandleVoiceAnswer is fetched by the provider when the callee picks
// up; it returns the TwiML prompt for the attempt's message snapshot.
func (h WebhookHandlers) HandleVoiceAnswer(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Snapshots == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "snapshot source not configured"})
		return
	}

	snapshotID := c.Query("snapshot_id")
	body, err := h.Snapshots.SnapshotBody(c.Request.Context(), snapshotID)
	if err != nil {
		log.Warn("voice answer snapshot lookup failed", "snapshot_id", snapshotID, "err", err)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown snapshot"})
		return
	}

	prompt := VoicePrompt{Text: body}
	if c.Query("gather") == "1" {
		prompt.GatherDigit = true
		prompt.GatherAction = "/webhooks/twilio/voice/gather"
	}

	twiml, err := RenderVoicePrompt(prompt)
	if err != nil {
		log.Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}

// HandleVoiceStatus ingests call status callbacks.
func (h WebhookHandlers) HandleVoiceStatus(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseVoiceStatus(c.Request)
	if err != nil {
		log.Warn("voice status parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if form.CallSid == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "CallSid required"})
		return
	}

	if err := h.apply(c, form.ToStatusUpdate(h.now())); err != nil {
		log.Error("voice status apply failed", "call_sid", form.CallSid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "apply failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleGather ingests a pressed DTMF digit and confirms to the callee.
func (h WebhookHandlers) HandleGather(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseGather(c.Request)
	if err != nil {
		log.Warn("gather parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if form.CallSid == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "CallSid required"})
		return
	}

	if form.Digits != "" {
		if err := h.apply(c, form.ToStatusUpdate(h.now())); err != nil {
			log.Error("gather apply failed", "call_sid", form.CallSid, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "apply failed"})
			return
		}
	}

	twiml, err := RenderConfirmation()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}

// HandleSMSStatus ingests message delivery receipts.
func (h WebhookHandlers) HandleSMSStatus(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseSMSStatus(c.Request)
	if err != nil {
		log.Warn("sms status parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if form.MessageSid == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "MessageSid required"})
		return
	}

	if err := h.apply(c, form.ToStatusUpdate(h.now())); err != nil {
		log.Error("sms status apply failed", "message_sid", form.MessageSid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "apply failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h WebhookHandlers) apply(c *gin.Context, u StatusUpdate) error {
	if h.Sink == nil {
		return errors.New("gateway: status sink not configured")
	}
	return h.Sink.ApplyProviderStatus(c.Request.Context(), u)
}
