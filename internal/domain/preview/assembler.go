package preview

import (
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/bridge"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/library"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/loopguard"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/project"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// Assembler turns projects into preview documents. It holds only immutable
// state and is safe for concurrent use.
type Assembler struct {
	registries library.Registries
	transform  loopguard.Transform
	logger     *zap.Logger
	metrics    *monitoring.Metrics
}

// Option configures an Assembler
type Option func(*Assembler)

// WithTransform replaces the loop-bounding transform
func WithTransform(t loopguard.Transform) Option {
	return func(a *Assembler) {
		if t != nil {
			a.transform = t
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l.Named("preview")
		}
	}
}

// WithMetrics records assembly metrics
func WithMetrics(m *monitoring.Metrics) Option {
	return func(a *Assembler) {
		a.metrics = m
	}
}

// NewAssembler creates an assembler over the given registries. Nil
// registries resolve nothing.
func NewAssembler(registries library.Registries, opts ...Option) *Assembler {
	a := &Assembler{
		registries: registries,
		transform:  loopguard.New(loopguard.DefaultBudget),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registries returns the registries the assembler resolves against
func (a *Assembler) Registries() library.Registries {
	return a.registries
}

// GeneratePreview builds the document for p and applies the policies in
// load order: base pin, user CSS, libraries, error bridge, alert bridge and
// finally the user script.
func (a *Assembler) GeneratePreview(p project.Project, opts Options) *Document {
	timer := monitoring.NewTimer()
	doc := Build(p.Sources.HTML)

	if opts.TargetBaseTop {
		a.pinBase(doc)
	}
	a.addCSS(doc, p.Sources.CSS)
	a.attachLibraries(doc, p.Libraries(), opts.NonBlockingAlerts)
	if opts.PropagateErrorsToParent {
		a.addInlineScript(doc, bridge.ErrorBridgeScript)
	}
	if opts.NonBlockingAlerts {
		a.addInlineScript(doc, bridge.AlertBridgeScript)
	}
	a.addUserScript(doc, p.Sources.JavaScript, opts.BreakLoops)

	if a.metrics != nil {
		a.metrics.RecordAssembly("document", timer.Elapsed())
	}
	return doc
}

// GenerateTextPreview returns the visible text of the project's body before
// any policy is applied
func (a *Assembler) GenerateTextPreview(p project.Project) string {
	timer := monitoring.NewTimer()
	text := TextContent(Build(p.Sources.HTML).Body)
	if a.metrics != nil {
		a.metrics.RecordAssembly("text", timer.Elapsed())
	}
	return text
}

// GenerateSnapshot returns sanitized, script-free body markup for embedding
// a static preview in a host page
func (a *Assembler) GenerateSnapshot(p project.Project) string {
	timer := monitoring.NewTimer()
	out := Sanitize(Build(p.Sources.HTML).Body)
	if a.metrics != nil {
		a.metrics.RecordAssembly("snapshot", timer.Elapsed())
	}
	return out
}
