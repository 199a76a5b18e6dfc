// Package build runs the manifest pipeline: collect routes and islands,
// render the manifest and write it when it changed.
package build

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/buttonstudio/internal/errors"
	"github.com/conneroisu/buttonstudio/internal/logging"
	"github.com/conneroisu/buttonstudio/internal/manifest"
	"github.com/conneroisu/buttonstudio/internal/monitoring"
)

// Options configures a Pipeline.
type Options struct {
	Root         string
	ManifestPath string
	Ignore       []string
	// DryRun renders the manifest without touching the file.
	DryRun  bool
	Logger  logging.Logger
	Metrics *monitoring.Metrics
}

// Result describes one pipeline run.
type Result struct {
	Manifest *manifest.Manifest
	Output   []byte
	Changed  bool
	Error    error
	Duration time.Duration
}

// BuildCallback is called when a run completes
type BuildCallback func(result Result)

// Pipeline serializes manifest generations and remembers the last result.
type Pipeline struct {
	opts      Options
	logger    logging.Logger
	errors    *errors.ErrorHandler
	mutex     sync.Mutex
	last      Result
	hasLast   bool
	callbacks []BuildCallback
	cbMutex   sync.RWMutex
}

// NewPipeline creates a pipeline for opts.
func NewPipeline(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("build")
	return &Pipeline{
		opts:   opts,
		logger: logger,
		errors: errors.NewErrorHandler(logger),
	}
}

// AddCallback adds a callback to be called when runs complete
func (p *Pipeline) AddCallback(callback BuildCallback) {
	p.cbMutex.Lock()
	defer p.cbMutex.Unlock()
	p.callbacks = append(p.callbacks, callback)
}

// Run collects and renders the manifest. Concurrent calls run one at a
// time so two writers never race on the manifest file.
func (p *Pipeline) Run(ctx context.Context) Result {
	p.mutex.Lock()
	op := logging.StartOperation(p.logger, "generate")
	result := p.run(ctx)
	if result.Error == nil {
		op.End(ctx, "changed", result.Changed)
	}
	p.last = result
	p.hasLast = true
	p.mutex.Unlock()

	p.observe(ctx, result)

	p.cbMutex.RLock()
	callbacks := p.callbacks
	p.cbMutex.RUnlock()
	for _, callback := range callbacks {
		callback(result)
	}

	return result
}

func (p *Pipeline) run(ctx context.Context) Result {
	start := time.Now()

	m, err := manifest.Collect(ctx, p.opts.Root, manifest.Options{Ignore: p.opts.Ignore})
	if err != nil {
		return Result{Error: err, Duration: time.Since(start)}
	}

	out, err := manifest.Generate(m)
	if err != nil {
		return Result{Manifest: m, Error: err, Duration: time.Since(start)}
	}

	result := Result{Manifest: m, Output: out}
	if p.opts.DryRun {
		result.Changed, err = manifest.IsStale(p.opts.ManifestPath, out)
	} else {
		result.Changed, err = manifest.Write(p.opts.ManifestPath, out)
	}
	result.Error = err
	result.Duration = time.Since(start)
	return result
}

func (p *Pipeline) observe(ctx context.Context, result Result) {
	outcome := monitoring.ResultUnchanged
	switch {
	case result.Error != nil:
		outcome = monitoring.ResultFailed
	case result.Changed && !p.opts.DryRun:
		outcome = monitoring.ResultWritten
	}

	if p.opts.Metrics != nil {
		routes, islands := 0, 0
		if result.Manifest != nil {
			routes, islands = len(result.Manifest.Routes), len(result.Manifest.Islands)
		}
		if errors.HasCode(result.Error, errors.ErrCodeRouteConflict) {
			p.opts.Metrics.RouteConflicts.Inc()
		}
		p.opts.Metrics.ObserveGeneration(outcome, routes, islands, result.Duration)
	}

	if result.Error != nil {
		p.errors.Handle(ctx, result.Error)
		return
	}
	p.logger.Info(ctx, "Manifest generated",
		"result", outcome,
		"routes", len(result.Manifest.Routes),
		"islands", len(result.Manifest.Islands),
		"duration_ms", result.Duration.Milliseconds())
}

// Last returns the most recent result, if any run happened.
func (p *Pipeline) Last() (Result, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.last, p.hasLast
}

// ManifestPath returns the file the pipeline writes.
func (p *Pipeline) ManifestPath() string {
	return p.opts.ManifestPath
}
