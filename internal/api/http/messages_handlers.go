package http

import (
	"net/http"
	"time"

	"github.com/GriffinCanCode/livepreview/backend/internal/domain/bridge"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/preview"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/project"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxMessagesPerRequest bounds one batch of relayed preview messages
const MaxMessagesPerRequest = 100

// MessagesRequest relays messages a browser frame posted to its host. The
// project and options identify the document the frame rendered.
type MessagesRequest struct {
	Project  project.Project `json:"project"`
	Options  preview.Options `json:"options"`
	Messages []string        `json:"messages"`
}

// ReceiveMessages decodes messages from a preview running in a real
// browser. Browsers report inline script lines relative to the whole
// document, so lines are correlated against the re-assembled document.
func (h *Handlers) ReceiveMessages(c *gin.Context) {
	var req MessagesRequest
	if !h.bind(c, &req, &req.Project) {
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No messages provided"})
		return
	}
	if len(req.Messages) > MaxMessagesPerRequest {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Too many messages"})
		return
	}

	text := h.assembler.GeneratePreview(req.Project, req.Options).String()
	decoded := make([]bridge.Received, 0, len(req.Messages))
	accepted := 0
	for _, raw := range req.Messages {
		msg := bridge.Decode(raw, text)
		h.metrics.TrackMessage(msg)
		h.logMessage(req.Project.Key, msg)
		if msg.Envelope != nil {
			accepted++
		}
		decoded = append(decoded, msg)
	}

	c.JSON(http.StatusOK, gin.H{
		"received":  len(req.Messages),
		"accepted":  accepted,
		"messages":  decoded,
		"timestamp": time.Now().Unix(),
	})
}

func (h *Handlers) logMessage(projectKey string, msg bridge.Received) {
	if msg.Envelope == nil {
		h.logger.Warn("rejected preview message",
			zap.String("project", projectKey),
			zap.String("reason", msg.Invalid))
		return
	}

	fields := []zap.Field{
		zap.String("project", projectKey),
		zap.String("type", msg.Envelope.Type),
	}
	if e := msg.Envelope.Error; e != nil {
		fields = append(fields,
			zap.String("error", e.String()),
			zap.Int("line", e.Line),
			zap.Int("column", e.Column))
		if msg.UserLine > 0 {
			fields = append(fields, zap.Int("user_line", msg.UserLine))
		}
	}
	h.logger.Info("preview message", fields...)
}
