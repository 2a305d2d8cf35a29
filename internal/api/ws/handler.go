package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/GriffinCanCode/livepreview/backend/internal/domain/bridge"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/preview"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/project"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/livepreview/backend/internal/sandbox"
	"github.com/GriffinCanCode/livepreview/backend/internal/shared/id"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second
	// maxFrameBytes bounds one client frame; it must hold a whole project
	maxFrameBytes = 4 << 20
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // editors are served from other origins
	},
}

// Runner executes assembled documents headlessly
type Runner interface {
	Execute(ctx context.Context, doc *preview.Document, b sandbox.Bridge) (*sandbox.Result, error)
}

// ClientMessage is a frame sent by the client
type ClientMessage struct {
	Type      string          `json:"type"`
	Project   project.Project `json:"project"`
	Options   preview.Options `json:"options"`
	TimeoutMs int             `json:"timeout_ms,omitempty"`
}

// ServerMessage is a frame sent to the client
type ServerMessage struct {
	Type       string                `json:"type"`
	RunID      string                `json:"run_id,omitempty"`
	Message    string                `json:"message,omitempty"`
	ETag       string                `json:"etag,omitempty"`
	Envelope   *bridge.Received      `json:"envelope,omitempty"`
	Status     string                `json:"status,omitempty"`
	Errors     []sandbox.ScriptError `json:"errors,omitempty"`
	Dropped    int                   `json:"dropped,omitempty"`
	DurationMs float64               `json:"duration_ms,omitempty"`
	Timestamp  int64                 `json:"timestamp"`
}

// Handler manages WebSocket connections
type Handler struct {
	assembler      *preview.Assembler
	runner         Runner
	metrics        *monitoring.Metrics
	logger         *zap.Logger
	bufferSize     int
	maxSourceBytes int
}

// Option configures a Handler
type Option func(*Handler)

// WithMaxSourceBytes rejects run requests whose combined sources exceed n
// bytes. Zero disables the check.
func WithMaxSourceBytes(n int) Option {
	return func(h *Handler) {
		h.maxSourceBytes = n
	}
}

// NewHandler creates a new WebSocket handler. metrics may be nil.
func NewHandler(assembler *preview.Assembler, runner Runner, metrics *monitoring.Metrics, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		assembler:  assembler,
		runner:     runner,
		metrics:    metrics,
		logger:     logger.Named("ws"),
		bufferSize: 256,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	reqCtx := c.Request.Context()
	connID := id.NewConnID()
	logger := h.logger.With(zap.Stringer("conn_id", connID))
	logger.Debug("websocket connected")
	defer logger.Debug("websocket closed")

	h.send(conn, ServerMessage{Type: "system", Message: "Connected to Live Preview Service (Go)"})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.record("in", "malformed")
			h.sendError(conn, "malformed message")
			continue
		}
		switch msg.Type {
		case "run":
			h.record("in", msg.Type)
			h.handleRun(reqCtx, conn, msg, logger)
		case "ping":
			h.record("in", msg.Type)
			h.send(conn, ServerMessage{Type: "pong"})
		default:
			h.record("in", "unknown")
			h.sendError(conn, "unknown message type")
		}
	}
}

// handleRun streams bridge messages while the sandbox executes, then
// reports the outcome
func (h *Handler) handleRun(ctx context.Context, conn *websocket.Conn, msg ClientMessage, logger *zap.Logger) {
	if h.runner == nil {
		h.sendError(conn, "sandbox disabled")
		return
	}
	if h.maxSourceBytes > 0 && msg.Project.Size() > h.maxSourceBytes {
		h.sendError(conn, fmt.Sprintf("project sources exceed %d bytes", h.maxSourceBytes))
		return
	}
	if msg.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(msg.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	runID := id.NewRunID().String()
	doc := h.assembler.GeneratePreview(msg.Project, msg.Options)
	h.send(conn, ServerMessage{Type: "assembled", RunID: runID, ETag: preview.ETag(doc.Bytes())})

	type outcome struct {
		result *sandbox.Result
		err    error
	}
	b := sandbox.NewChannelBridge(h.bufferSize)
	done := make(chan outcome, 1)
	go func() {
		result, err := h.runner.Execute(ctx, doc, b)
		b.Close()
		done <- outcome{result: result, err: err}
	}()

	userText, _ := doc.UserScript()
	for raw := range b.Messages() {
		received := bridge.Decode(raw, userText)
		if h.metrics != nil {
			h.metrics.RecordSandboxMessage(received.Type())
		}
		h.send(conn, ServerMessage{Type: "message", RunID: runID, Envelope: &received})
	}

	out := <-done
	if out.err != nil && !errors.Is(out.err, sandbox.ErrInterrupted) {
		logger.Info("sandbox run failed", zap.String("run_id", runID), zap.Error(out.err))
		h.sendError(conn, out.err.Error())
		return
	}
	h.send(conn, ServerMessage{
		Type:       "complete",
		RunID:      runID,
		Status:     out.result.Status(),
		Errors:     out.result.Errors,
		Dropped:    out.result.Dropped,
		DurationMs: float64(out.result.Duration) / float64(time.Millisecond),
	})
}

func (h *Handler) send(conn *websocket.Conn, msg ServerMessage) error {
	msg.Timestamp = time.Now().Unix()
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	h.record("out", msg.Type)
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Handler) sendError(conn *websocket.Conn, message string) error {
	return h.send(conn, ServerMessage{Type: "error", Message: message})
}

func (h *Handler) record(direction, msgType string) {
	if h.metrics != nil {
		h.metrics.RecordWSMessage(direction, msgType)
	}
}
