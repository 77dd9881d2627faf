package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raysh454/scanhub/internal/model"
)

// Analyzer is a Scanner driven by argv templates and a Runner. The static
// and dynamic variants differ only in how a mode picks the template.
type Analyzer struct {
	name          string
	reportTypes   []string
	templates     map[model.ScanMode][]string
	defaultMode   model.ScanMode
	defaultTarget string
	vars          map[string]string
	runner        Runner
	maxOutput     int
}

var _ Scanner = (*Analyzer)(nil)

// Options are the settings shared by both analyzer variants.
type Options struct {
	Runner Runner

	// MaxOutputBytes caps each of stdout and stderr.
	MaxOutputBytes int

	// Vars are extra template substitutions, typically {output} and {reports_dir}.
	Vars map[string]string
}

// NewStaticAnalyzer builds the SAST scanner. Static analysis has a single
// command; the scan mode is ignored.
func NewStaticAnalyzer(cfg StaticConfig, reportTypes []string, opts Options) (*Analyzer, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("static analyzer: command is required")
	}
	return newAnalyzer("static-analyzer", reportTypes, map[model.ScanMode][]string{
		"": cfg.Command,
	}, "", cfg.DefaultTarget, opts)
}

// NewDynamicAnalyzer builds the DAST scanner with one command per mode.
func NewDynamicAnalyzer(cfg DynamicConfig, reportTypes []string, opts Options) (*Analyzer, error) {
	if len(cfg.Simple) == 0 {
		return nil, fmt.Errorf("dynamic analyzer: simple command is required")
	}
	templates := map[model.ScanMode][]string{model.ScanModeSimple: cfg.Simple}
	if len(cfg.Full) > 0 {
		templates[model.ScanModeFull] = cfg.Full
	}
	return newAnalyzer("dynamic-analyzer", reportTypes, templates, model.ScanModeSimple, "", opts)
}

func newAnalyzer(name string, reportTypes []string, templates map[model.ScanMode][]string, defaultMode model.ScanMode, defaultTarget string, opts Options) (*Analyzer, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("%s: runner is required", name)
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = 10 << 20
	}
	return &Analyzer{
		name:          name,
		reportTypes:   reportTypes,
		templates:     templates,
		defaultMode:   defaultMode,
		defaultTarget: defaultTarget,
		vars:          opts.Vars,
		runner:        opts.Runner,
		maxOutput:     opts.MaxOutputBytes,
	}, nil
}

func (a *Analyzer) Name() string { return a.name }

func (a *Analyzer) ReportTypes() []string { return a.reportTypes }

// Argv expands the command template for req.
func (a *Analyzer) Argv(req Request) ([]string, error) {
	mode := req.Mode
	if a.defaultMode == "" {
		mode = ""
	} else if mode == "" {
		mode = a.defaultMode
	}
	tmpl, ok := a.templates[mode]
	if !ok {
		return nil, fmt.Errorf("%s: no command for mode %q", a.name, mode)
	}

	target := req.Target
	if target == "" {
		target = a.defaultTarget
	}
	subst := map[string]string{
		"{target}": target,
		"{mode}":   string(mode),
		"{job_id}": req.JobID,
	}
	for k, v := range a.vars {
		subst["{"+k+"}"] = v
	}

	argv := make([]string, len(tmpl))
	for i, arg := range tmpl {
		for k, v := range subst {
			arg = strings.ReplaceAll(arg, k, v)
		}
		argv[i] = arg
	}
	return argv, nil
}

// Execute runs the tool until it exits or ctx ends and captures bounded
// output. The wall-clock ceiling is the caller's ctx deadline.
func (a *Analyzer) Execute(ctx context.Context, req Request) (*ExecutionResult, error) {
	argv, err := a.Argv(req)
	if err != nil {
		return nil, err
	}

	stdout := NewCappedBuffer(a.maxOutput)
	stderr := NewCappedBuffer(a.maxOutput)
	start := time.Now()
	code, runErr := a.runner.Run(ctx, argv, stdout, stderr)

	res := &ExecutionResult{
		Success:   runErr == nil && code == 0,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  code,
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Duration:  time.Since(start),
	}
	return res, runErr
}
