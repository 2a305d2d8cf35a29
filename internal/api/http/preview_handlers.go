package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/GriffinCanCode/livepreview/backend/internal/domain/bridge"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/preview"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/project"
	"github.com/GriffinCanCode/livepreview/backend/internal/sandbox"
	"github.com/GriffinCanCode/livepreview/backend/internal/shared/id"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PreviewRequest carries a project and the policies to apply
type PreviewRequest struct {
	Project project.Project `json:"project"`
	Options preview.Options `json:"options"`
}

// RunRequest asks for a headless run of the assembled preview
type RunRequest struct {
	Project   project.Project `json:"project"`
	Options   preview.Options `json:"options"`
	TimeoutMs int             `json:"timeout_ms"`
}

// RunResponse reports what the page did
type RunResponse struct {
	RunID      string                `json:"runId"`
	Status     string                `json:"status"`
	Messages   []bridge.Received     `json:"messages"`
	Console    []sandbox.LogEntry    `json:"console"`
	Dialogs    []sandbox.Dialog      `json:"dialogs"`
	Errors     []sandbox.ScriptError `json:"errors"`
	DOMChanges []sandbox.DOMChange   `json:"domChanges"`
	Dropped    int                   `json:"dropped,omitempty"`
	DurationMs float64               `json:"durationMs"`
}

// Preview assembles the sandboxed document
func (h *Handlers) Preview(c *gin.Context) {
	var req PreviewRequest
	if !h.bind(c, &req, &req.Project) {
		return
	}

	body := h.assembler.GeneratePreview(req.Project, req.Options).Bytes()
	etag := preview.ETag(body)
	c.Header("ETag", etag)
	c.Header("Cache-Control", "no-cache")
	if etagMatch(c.GetHeader("If-None-Match"), etag) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", body)
}

// PreviewText returns the visible text of the project's markup
func (h *Handlers) PreviewText(c *gin.Context) {
	var req PreviewRequest
	if !h.bind(c, &req, &req.Project) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": h.assembler.GenerateTextPreview(req.Project)})
}

// PreviewSnapshot returns sanitized, script-free body markup
func (h *Handlers) PreviewSnapshot(c *gin.Context) {
	var req PreviewRequest
	if !h.bind(c, &req, &req.Project) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"html": h.assembler.GenerateSnapshot(req.Project)})
}

// Run assembles the preview and executes it in a pooled sandbox
func (h *Handlers) Run(c *gin.Context) {
	var req RunRequest
	if !h.bind(c, &req, &req.Project) {
		return
	}
	if h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sandbox disabled"})
		return
	}

	ctx := c.Request.Context()
	if timeout := h.runTimeout(req.TimeoutMs); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	runID := id.NewRunID()
	doc := h.assembler.GeneratePreview(req.Project, req.Options)
	result, err := h.runner.Execute(ctx, doc, nil)
	switch {
	case err == nil, errors.Is(err, sandbox.ErrInterrupted):
		// interrupted runs still report their partial result
	case errors.Is(err, sandbox.ErrTimeout),
		errors.Is(err, sandbox.ErrPoolClosed),
		errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("sandbox unavailable", zap.Stringer("run_id", runID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	default:
		h.logger.Error("sandbox run failed", zap.Stringer("run_id", runID), zap.Error(err))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sandbox run failed"})
		return
	}

	userText, _ := doc.UserScript()
	resp := h.runResponse(result, userText)
	resp.RunID = runID.String()
	h.logger.Debug("sandbox run finished",
		zap.Stringer("run_id", runID),
		zap.String("status", resp.Status),
		zap.Int("messages", len(resp.Messages)))
	c.JSON(http.StatusOK, resp)
}

// runResponse decodes posted messages against the user script text, since
// the sandbox reports lines relative to the script that raised them
func (h *Handlers) runResponse(result *sandbox.Result, userText string) RunResponse {
	resp := RunResponse{
		Status:     result.Status(),
		Messages:   make([]bridge.Received, 0, len(result.Messages)),
		Console:    nonNil(result.Console),
		Dialogs:    nonNil(result.Dialogs),
		Errors:     nonNil(result.Errors),
		DOMChanges: nonNil(result.DOMChanges),
		Dropped:    result.Dropped,
		DurationMs: float64(result.Duration) / float64(time.Millisecond),
	}
	for _, raw := range result.Messages {
		msg := bridge.Decode(raw, userText)
		h.metrics.TrackMessage(msg)
		resp.Messages = append(resp.Messages, msg)
	}
	return resp
}

func (h *Handlers) runTimeout(ms int) time.Duration {
	if ms <= 0 {
		return h.limits.RunTimeout
	}
	d := time.Duration(ms) * time.Millisecond
	if h.limits.RunTimeout > 0 && d > h.limits.RunTimeout {
		return h.limits.RunTimeout
	}
	return d
}

// bind decodes the JSON body and enforces the source size limit
func (h *Handlers) bind(c *gin.Context, req any, p *project.Project) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return false
	}
	if h.limits.MaxSourceBytes > 0 && p.Size() > h.limits.MaxSourceBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("project sources exceed %d bytes", h.limits.MaxSourceBytes),
		})
		return false
	}
	return true
}

// etagMatch implements the weak comparison If-None-Match uses
func etagMatch(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
