package preview

import (
	"fmt"

	"github.com/GriffinCanCode/livepreview/backend/internal/domain/bridge"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/library"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/loopguard"
	"github.com/GriffinCanCode/livepreview/backend/internal/shared/datauri"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Options selects the sandbox policies applied during assembly
type Options struct {
	NonBlockingAlerts       bool `json:"nonBlockingAlerts"`
	TargetBaseTop           bool `json:"targetBaseTop"`
	PropagateErrorsToParent bool `json:"propagateErrorsToParent"`
	BreakLoops              bool `json:"breakLoops"`
}

// AllOptions enables every policy
func AllOptions() Options {
	return Options{
		NonBlockingAlerts:       true,
		TargetBaseTop:           true,
		PropagateErrorsToParent: true,
		BreakLoops:              true,
	}
}

// pinBase makes links open in the top-level browsing context
func (a *Assembler) pinBase(doc *Document) {
	base := element(atom.Base, html.Attribute{Key: "target", Val: "_top"})
	doc.Head.InsertBefore(base, doc.Head.FirstChild)
}

func (a *Assembler) addCSS(doc *Document, css string) {
	doc.Head.AppendChild(elementWithText(atom.Style, css))
}

// attachLibraries attaches the user's libraries in the order given, then
// the preview-frame libraries in declared order when withFrame is set
func (a *Assembler) attachLibraries(doc *Document, keys []string, withFrame bool) {
	for _, key := range keys {
		lib, ok := a.registries.User.Lookup(key)
		if !ok {
			a.logger.Debug("skipping unknown library", zap.String("key", key))
			continue
		}
		a.attach(doc, lib, a.registries.User.Name())
	}

	if !withFrame {
		return
	}
	for _, lib := range a.registries.Frame.Libraries() {
		a.attach(doc, lib, a.registries.Frame.Name())
	}
}

func (a *Assembler) attach(doc *Document, lib library.Library, registry string) {
	for _, css := range lib.CSS {
		doc.Head.AppendChild(element(atom.Link,
			html.Attribute{Key: "rel", Val: "stylesheet"},
			html.Attribute{Key: "href", Val: datauri.Encode(datauri.CSS, css.Content)},
		))
	}
	for _, js := range lib.JavaScript {
		doc.Body.AppendChild(element(atom.Script,
			html.Attribute{Key: "src", Val: datauri.Encode(datauri.JavaScript, js.Content)},
		))
	}
	if a.metrics != nil {
		a.metrics.RecordLibraryAttached(registry)
	}
}

func (a *Assembler) addInlineScript(doc *Document, source string) {
	doc.Body.AppendChild(elementWithText(atom.Script, source))
}

// addUserScript appends the user script last. When loop bounding fails the
// script is left out and the failure is recorded on the document.
func (a *Assembler) addUserScript(doc *Document, source string, breakLoops bool) {
	if breakLoops {
		rewritten, err := a.rewrite(source)
		if err != nil {
			doc.TransformErr = err
			a.logger.Warn("loop transform failed, omitting user script", zap.Error(err))
			if a.metrics != nil {
				a.metrics.RecordTransformFailure()
			}
			return
		}
		source = rewritten
	}
	a.addInlineScript(doc, bridge.UserScript(source))
}

func (a *Assembler) rewrite(source string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &loopguard.RewriteError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return a.transform.Rewrite(source)
}
