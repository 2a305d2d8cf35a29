// Command assemble builds a preview document from source files on disk.
//
// Usage:
//
//	assemble -html index.html -css style.css -js app.js [-libraries dir] [-lib jquery,lodash]
//	         [-all | -non-blocking-alerts -target-top -propagate-errors -break-loops]
//	         [-text | -snapshot | -run] [-o out.html]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/GriffinCanCode/livepreview/backend/internal/domain/bridge"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/library"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/loopguard"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/preview"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/project"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/livepreview/backend/internal/sandbox"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "assemble:", err)
		}
		os.Exit(1)
	}
}

type cliOptions struct {
	htmlPath, cssPath, jsPath string
	libraryDir                string
	libs                      string
	all                       bool
	opts                      preview.Options
	loopBudget                time.Duration
	text, snapshot, execute   bool
	timeout                   time.Duration
	output                    string
	verbose                   bool
}

func parse(args []string, stderr io.Writer) (*cliOptions, error) {
	var o cliOptions
	fs := flag.NewFlagSet("assemble", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.htmlPath, "html", "", "HTML source file")
	fs.StringVar(&o.cssPath, "css", "", "CSS source file")
	fs.StringVar(&o.jsPath, "js", "", "JavaScript source file")
	fs.StringVar(&o.libraryDir, "libraries", "", "Directory scanned for library manifests")
	fs.StringVar(&o.libs, "lib", "", "Comma separated library keys to enable")
	fs.BoolVar(&o.all, "all", false, "Enable every sandbox policy")
	fs.BoolVar(&o.opts.NonBlockingAlerts, "non-blocking-alerts", false, "Route alert() to the non-blocking dialog")
	fs.BoolVar(&o.opts.TargetBaseTop, "target-top", false, "Open links in the top-level window")
	fs.BoolVar(&o.opts.PropagateErrorsToParent, "propagate-errors", false, "Post uncaught errors to the parent frame")
	fs.BoolVar(&o.opts.BreakLoops, "break-loops", false, "Bound every loop by a time budget")
	fs.DurationVar(&o.loopBudget, "loop-budget", loopguard.DefaultBudget, "Time a single loop may run")
	fs.BoolVar(&o.text, "text", false, "Print the text preview instead of the document")
	fs.BoolVar(&o.snapshot, "snapshot", false, "Print the sanitized snapshot instead of the document")
	fs.BoolVar(&o.execute, "run", false, "Run the document headlessly and print the result as JSON")
	fs.DurationVar(&o.timeout, "timeout", 5*time.Second, "Headless run timeout")
	fs.StringVar(&o.output, "o", "-", "Output file")
	fs.BoolVar(&o.verbose, "v", false, "Log to stderr")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.all {
		o.opts = preview.AllOptions()
	}
	modes := 0
	for _, m := range []bool{o.text, o.snapshot, o.execute} {
		if m {
			modes++
		}
	}
	if modes > 1 {
		return nil, errors.New("-text, -snapshot and -run are exclusive")
	}
	return &o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parse(args, stderr)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if o.verbose {
		cfg := logging.DevelopmentConfig()
		l, err := logging.New(cfg)
		if err != nil {
			return err
		}
		defer l.Close()
		logger = l.Logger
	}

	p, err := readProject(o)
	if err != nil {
		return err
	}

	registries, err := library.NewLoader(httpclient.New(httpclient.DefaultConfig()), logger).Load(ctx, o.libraryDir)
	if err != nil {
		return err
	}
	assembler := preview.NewAssembler(registries,
		preview.WithTransform(loopguard.New(o.loopBudget)),
		preview.WithLogger(logger),
	)

	var out []byte
	switch {
	case o.text:
		out = []byte(assembler.GenerateTextPreview(p) + "\n")
	case o.snapshot:
		out = []byte(assembler.GenerateSnapshot(p) + "\n")
	case o.execute:
		out, err = execute(ctx, assembler, p, o, logger)
		if err != nil {
			return err
		}
	default:
		doc := assembler.GeneratePreview(p, o.opts)
		if doc.TransformErr != nil {
			fmt.Fprintln(stderr, "warning: user script omitted:", doc.TransformErr)
		}
		out = doc.Bytes()
	}

	if o.output == "-" {
		_, err = stdout.Write(out)
		return err
	}
	return os.WriteFile(o.output, out, 0o644)
}

type runOutput struct {
	Status   string                `json:"status"`
	Messages []bridge.Received     `json:"messages"`
	Console  []sandbox.LogEntry    `json:"console"`
	Dialogs  []sandbox.Dialog      `json:"dialogs"`
	Errors   []sandbox.ScriptError `json:"errors"`
	Document string                `json:"document"`
}

func execute(ctx context.Context, assembler *preview.Assembler, p project.Project, o *cliOptions, logger *zap.Logger) ([]byte, error) {
	cfg := sandbox.DefaultConfig()
	cfg.Timeout = o.timeout
	rt, err := sandbox.New(cfg, sandbox.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	doc := assembler.GeneratePreview(p, o.opts)
	result, err := rt.Execute(ctx, doc, nil)
	if err != nil && !errors.Is(err, sandbox.ErrInterrupted) {
		return nil, err
	}

	userText, _ := doc.UserScript()
	res := runOutput{
		Status:   result.Status(),
		Messages: make([]bridge.Received, 0, len(result.Messages)),
		Console:  result.Console,
		Dialogs:  result.Dialogs,
		Errors:   result.Errors,
		Document: result.Document,
	}
	for _, raw := range result.Messages {
		res.Messages = append(res.Messages, bridge.Decode(raw, userText))
	}
	data, err := sonic.ConfigStd.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func readProject(o *cliOptions) (project.Project, error) {
	p := project.Project{}
	for _, src := range []struct {
		path     string
		language string
	}{
		{o.htmlPath, "html"},
		{o.cssPath, "css"},
		{o.jsPath, "javascript"},
	} {
		if src.path == "" {
			continue
		}
		data, err := os.ReadFile(src.path)
		if err != nil {
			return p, fmt.Errorf("read %s source: %w", src.language, err)
		}
		p = p.WithSource(src.language, string(data))
	}
	if o.libs != "" {
		p.EnabledLibraries = project.Dedupe(strings.Split(o.libs, ","))
	}
	return p, nil
}
