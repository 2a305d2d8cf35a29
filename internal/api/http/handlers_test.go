package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/livepreview/backend/internal/domain/bridge"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/library"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/preview"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/project"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/livepreview/backend/internal/sandbox"
	"github.com/GriffinCanCode/livepreview/backend/internal/shared/id"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Execute(ctx context.Context, doc *preview.Document, b sandbox.Bridge) (*sandbox.Result, error) {
	args := m.Called(ctx, doc, b)
	result, _ := args.Get(0).(*sandbox.Result)
	return result, args.Error(1)
}

func (m *mockRunner) Stats() sandbox.PoolStats {
	return m.Called().Get(0).(sandbox.PoolStats)
}

type fixedBreaker resilience.State

func (b fixedBreaker) BreakerState() resilience.State { return resilience.State(b) }

type fixture struct {
	router  *gin.Engine
	metrics *monitoring.Metrics
}

func newFixture(t *testing.T, runner Runner, limits Limits) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := monitoring.NewRegistryMetrics()
	assembler := preview.NewAssembler(library.DefaultRegistries(), preview.WithMetrics(metrics))

	h := NewHandlers(assembler, runner, limits, metrics, nil)

	router := gin.New()
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/libraries", h.ListLibraries)
	router.POST("/preview", h.Preview)
	router.POST("/preview/text", h.PreviewText)
	router.POST("/preview/snapshot", h.PreviewSnapshot)
	router.POST("/preview/run", h.Run)
	router.POST("/preview/messages", h.ReceiveMessages)

	return &fixture{router: router, metrics: metrics}
}

func (f *fixture) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func sources(htmlSrc, css, js string) project.Project {
	return project.Project{Sources: project.Sources{HTML: htmlSrc, CSS: css, JavaScript: js}}
}

func TestRoot(t *testing.T) {
	f := newFixture(t, nil, Limits{})
	w := f.do(t, "GET", "/", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "online", body["status"])
}

func TestHealth(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Stats").Return(sandbox.PoolStats{Size: 2, Available: 2})
	f := newFixture(t, runner, Limits{})

	w := f.do(t, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status    string         `json:"status"`
		Libraries map[string]int `json:"libraries"`
		Sandbox   struct {
			Enabled bool              `json:"enabled"`
			Pool    sandbox.PoolStats `json:"pool"`
		} `json:"sandbox"`
	}
	decode(t, w, &body)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, map[string]int{"user": 0, "frame": 1}, body.Libraries)
	assert.True(t, body.Sandbox.Enabled)
	assert.Equal(t, 2, body.Sandbox.Pool.Size)
	runner.AssertExpectations(t)
}

func TestHealthDegradedWhenPoolClosed(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Stats").Return(sandbox.PoolStats{Size: 2, Closed: true})
	f := newFixture(t, runner, Limits{})

	var body map[string]any
	decode(t, f.do(t, "GET", "/health", nil), &body)
	assert.Equal(t, "degraded", body["status"])
}

func TestListLibraries(t *testing.T) {
	f := newFixture(t, nil, Limits{})
	w := f.do(t, "GET", "/libraries", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string][]library.Summary
	decode(t, w, &body)
	assert.Empty(t, body["user"])
	require.Len(t, body["frame"], 1)
	assert.Equal(t, library.SwalKey, body["frame"][0].Key)
	require.NotEmpty(t, body["frame"][0].JavaScript)
	assert.NotEmpty(t, body["frame"][0].JavaScript[0].Digest)
}

func TestPreview(t *testing.T) {
	f := newFixture(t, nil, Limits{})
	req := PreviewRequest{Project: sources("<p>hi</p>", "p{color:red}", "var x = 1;")}

	w := f.do(t, "POST", "/preview", req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<p>hi</p>")
	assert.Contains(t, w.Body.String(), bridge.Delimiter)

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	again := f.do(t, "POST", "/preview", req)
	assert.Equal(t, etag, again.Header().Get("ETag"), "assembly is deterministic")

	notModified := f.do(t, "POST", "/preview", req, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, notModified.Code)
	assert.Empty(t, notModified.Body.String())

	weak := f.do(t, "POST", "/preview", req, "If-None-Match", `"other", W/`+etag)
	assert.Equal(t, http.StatusNotModified, weak.Code)

	req.Options = preview.Options{TargetBaseTop: true}
	changed := f.do(t, "POST", "/preview", req, "If-None-Match", etag)
	assert.Equal(t, http.StatusOK, changed.Code)
	assert.NotEqual(t, etag, changed.Header().Get("ETag"))

	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.Assemblies.WithLabelValues("document")))
}

func TestPreviewRejectsBadRequests(t *testing.T) {
	f := newFixture(t, nil, Limits{MaxSourceBytes: 10})

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{name: "malformed json", path: "/preview", body: "{not json", want: http.StatusBadRequest},
		{name: "wrong field type", path: "/preview", body: `{"project":{"sources":{"html":5}}}`, want: http.StatusBadRequest},
		{name: "too large", path: "/preview", body: PreviewRequest{Project: sources(strings.Repeat("x", 11), "", "")}, want: http.StatusRequestEntityTooLarge},
		{name: "too large text", path: "/preview/text", body: PreviewRequest{Project: sources("", "", strings.Repeat("x", 11))}, want: http.StatusRequestEntityTooLarge},
		{name: "at limit", path: "/preview/text", body: PreviewRequest{Project: sources("0123456789", "", "")}, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, "POST", tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestPreviewText(t *testing.T) {
	f := newFixture(t, nil, Limits{})
	w := f.do(t, "POST", "/preview/text", PreviewRequest{Project: sources("<h1>Hello</h1><script>x()</script><p>world</p>", "", "")})
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "Hello world", body["text"])
}

func TestPreviewSnapshot(t *testing.T) {
	f := newFixture(t, nil, Limits{})
	w := f.do(t, "POST", "/preview/snapshot", PreviewRequest{Project: sources(`<p onclick="x()">ok</p><script>evil()</script>`, "", "")})
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	decode(t, w, &body)
	assert.Contains(t, body["html"], "<p>ok</p>")
	assert.NotContains(t, body["html"], "script")
	assert.NotContains(t, body["html"], "onclick")
}

func hasUserScript(doc *preview.Document) bool {
	_, ok := doc.UserScript()
	return ok
}

func TestRunDecodesMessages(t *testing.T) {
	runner := new(mockRunner)
	result := &sandbox.Result{
		Messages: []string{
			`{"type":"org.popcode.error","error":{"name":"TypeError","message":"boom","line":4,"column":1}}`,
			`not json`,
		},
		Console:  []sandbox.LogEntry{{Level: "log", Message: "hello"}},
		Errors:   []sandbox.ScriptError{{Script: sandbox.UserScriptName, Name: "TypeError", Message: "boom", Line: 4, UserLine: 2}},
		Duration: 1500 * time.Microsecond,
	}
	runner.On("Execute", mock.Anything, mock.MatchedBy(hasUserScript), mock.Anything).Return(result, nil)
	f := newFixture(t, runner, Limits{RunTimeout: time.Second})

	w := f.do(t, "POST", "/preview/run", RunRequest{
		Project: sources("<p>x</p>", "", "var a = 1;\nnull.x;"),
		Options: preview.Options{PropagateErrorsToParent: true},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp RunResponse
	decode(t, w, &resp)
	assert.Equal(t, "error", resp.Status)
	assert.True(t, id.IsValidPrefixed(resp.RunID, id.RunPrefix), resp.RunID)
	require.Len(t, resp.Messages, 2)
	require.NotNil(t, resp.Messages[0].Envelope)
	assert.Equal(t, "TypeError", resp.Messages[0].Envelope.Error.Name)
	assert.Equal(t, 2, resp.Messages[0].UserLine)
	assert.Nil(t, resp.Messages[1].Envelope)
	assert.NotEmpty(t, resp.Messages[1].Invalid)
	assert.Equal(t, "hello", resp.Console[0].Message)
	assert.Empty(t, resp.Dialogs)
	assert.NotNil(t, resp.DOMChanges)
	assert.InDelta(t, 1.5, resp.DurationMs, 0.001)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SandboxMessages.WithLabelValues(bridge.MessageTypeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SandboxMessages.WithLabelValues("invalid")))
	runner.AssertExpectations(t)
}

func TestRunErrors(t *testing.T) {
	interrupted := &sandbox.Result{Interrupted: true}
	tests := []struct {
		name       string
		result     *sandbox.Result
		err        error
		wantStatus int
		wantBody   string
	}{
		{name: "pool exhausted", err: sandbox.ErrTimeout, wantStatus: http.StatusServiceUnavailable},
		{name: "pool closed", err: sandbox.ErrPoolClosed, wantStatus: http.StatusServiceUnavailable},
		{name: "deadline while waiting for a sandbox", err: context.DeadlineExceeded, wantStatus: http.StatusServiceUnavailable},
		{name: "internal", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
		{
			name:       "interrupted returns partial result",
			result:     interrupted,
			err:        fmt.Errorf("%w: %w", sandbox.ErrInterrupted, context.DeadlineExceeded),
			wantStatus: http.StatusOK,
			wantBody:   `"status":"interrupted"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := new(mockRunner)
			runner.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(tt.result, tt.err)
			f := newFixture(t, runner, Limits{})

			w := f.do(t, "POST", "/preview/run", RunRequest{Project: sources("", "", "1;")})
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRunDeadlineWaitingForPool(t *testing.T) {
	pool, err := sandbox.NewPool(sandbox.DefaultConfig(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	busy, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Release(busy) })

	f := newFixture(t, pool, Limits{RunTimeout: time.Second})
	w := f.do(t, "POST", "/preview/run", RunRequest{Project: sources("", "", "1;"), TimeoutMs: 50})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
}

func TestRunWithoutSandbox(t *testing.T) {
	f := newFixture(t, nil, Limits{})
	w := f.do(t, "POST", "/preview/run", RunRequest{Project: sources("", "", "1;")})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRunTimeout(t *testing.T) {
	h := &Handlers{limits: Limits{RunTimeout: 2 * time.Second}}
	assert.Equal(t, 2*time.Second, h.runTimeout(0))
	assert.Equal(t, 500*time.Millisecond, h.runTimeout(500))
	assert.Equal(t, 2*time.Second, h.runTimeout(10_000))

	h = &Handlers{}
	assert.Zero(t, h.runTimeout(0))
	assert.Equal(t, 10*time.Second, h.runTimeout(10_000))
}

func TestRunAppliesRequestTimeout(t *testing.T) {
	runner := new(mockRunner)
	hasDeadline := mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= 250*time.Millisecond
	})
	runner.On("Execute", hasDeadline, mock.Anything, mock.Anything).Return(&sandbox.Result{}, nil)
	f := newFixture(t, runner, Limits{RunTimeout: time.Second})

	w := f.do(t, "POST", "/preview/run", RunRequest{Project: sources("", "", "1;"), TimeoutMs: 250})
	assert.Equal(t, http.StatusOK, w.Code)
	runner.AssertExpectations(t)
}

func TestRunEndToEnd(t *testing.T) {
	pool, err := sandbox.NewPool(sandbox.DefaultConfig(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	f := newFixture(t, pool, Limits{RunTimeout: 5 * time.Second})

	w := f.do(t, "POST", "/preview/run", RunRequest{
		Project: sources(`<div id="out"></div>`, "", "console.log('start');\nnull.x;"),
		Options: preview.Options{PropagateErrorsToParent: true, BreakLoops: true},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp RunResponse
	decode(t, w, &resp)
	assert.Equal(t, "error", resp.Status)
	require.Len(t, resp.Messages, 1)
	require.NotNil(t, resp.Messages[0].Envelope)
	assert.Equal(t, "TypeError", resp.Messages[0].Envelope.Error.Name)
	assert.Equal(t, 2, resp.Messages[0].UserLine)
	require.Len(t, resp.Console, 1)
	assert.Equal(t, "start", resp.Console[0].Message)
}

// documentLine returns the 1-based line of needle in text
func documentLine(t *testing.T, text, needle string) int {
	t.Helper()
	idx := strings.Index(text, needle)
	require.GreaterOrEqual(t, idx, 0)
	return strings.Count(text[:idx], "\n") + 1
}

func TestReceiveMessages(t *testing.T) {
	f := newFixture(t, nil, Limits{})
	p := sources("<p>x</p>", "", "var a = 1;\nnull.x;")
	opts := preview.Options{PropagateErrorsToParent: true}

	doc := preview.NewAssembler(library.DefaultRegistries()).GeneratePreview(p, opts).String()
	line := documentLine(t, doc, bridge.Delimiter) + 2

	w := f.do(t, "POST", "/preview/messages", MessagesRequest{
		Project: p,
		Options: opts,
		Messages: []string{
			fmt.Sprintf(`{"type":"org.popcode.error","error":{"name":"TypeError","message":"x","line":%d,"column":1}}`, line),
			`{"type":"org.example.other"}`,
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Received int               `json:"received"`
		Accepted int               `json:"accepted"`
		Messages []bridge.Received `json:"messages"`
	}
	decode(t, w, &body)
	assert.Equal(t, 2, body.Received)
	assert.Equal(t, 1, body.Accepted)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, 2, body.Messages[0].UserLine)
	assert.Contains(t, body.Messages[1].Invalid, bridge.ErrUnknownMessageType.Error())

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SandboxMessages.WithLabelValues("invalid")))
}

func TestReceiveMessagesValidation(t *testing.T) {
	f := newFixture(t, nil, Limits{})

	w := f.do(t, "POST", "/preview/messages", MessagesRequest{Project: sources("", "", "")})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/preview/messages", MessagesRequest{Messages: make([]string, MaxMessagesPerRequest+1)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestMetricsAggregator(t *testing.T) {
	metrics := monitoring.NewRegistryMetrics()
	metrics.RecordHTTPRequest("POST", "/preview", "200", 10*time.Millisecond, 0, 0)
	metrics.RecordHTTPRequest("POST", "/preview", "500", 10*time.Millisecond, 0, 0)
	metrics.RecordAssembly("document", time.Millisecond)
	metrics.RecordAssembly("document", time.Millisecond)
	metrics.RecordTransformFailure()

	runner := new(mockRunner)
	runner.On("Stats").Return(sandbox.PoolStats{Size: 4, Available: 3, InUse: 1})

	ma := NewMetricsAggregator(metrics, runner, library.DefaultRegistries(), fixedBreaker(resilience.StateOpen))
	snap := ma.Snapshot()

	assert.Equal(t, int64(2), snap.Summary.TotalRequests)
	assert.InDelta(t, 0.5, snap.Summary.ErrorRate, 1e-9)
	assert.InDelta(t, 0.5, snap.Summary.TransformFailRate, 1e-9)
	assert.InDelta(t, 0.25, snap.Summary.SandboxUtilization, 1e-9)
	assert.Equal(t, "open", snap.RemoteAssets)
	assert.Equal(t, map[string]int{"user": 0, "frame": 1}, snap.Libraries)
	require.NotNil(t, snap.Sandbox)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/metrics/json", ma.GetAggregatedMetrics)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics/json", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"remote_assets":"open"`)
}

func TestMetricsAggregatorOptionalParts(t *testing.T) {
	ma := NewMetricsAggregator(monitoring.NewRegistryMetrics(), nil, library.Registries{}, nil)
	snap := ma.Snapshot()

	assert.Nil(t, snap.Sandbox)
	assert.Empty(t, snap.RemoteAssets)
	assert.Equal(t, map[string]int{"user": 0, "frame": 0}, snap.Libraries)
}

func TestETagMatch(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{header: "", want: false},
		{header: `"a"`, want: true},
		{header: `W/"a"`, want: true},
		{header: `"b", "a"`, want: true},
		{header: "*", want: true},
		{header: `"b"`, want: false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, etagMatch(tt.header, `"a"`), tt.header)
	}
}
