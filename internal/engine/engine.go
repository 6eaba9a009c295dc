// Package engine wires together the graph builder and detectors into the
// single analyze(transactions) -> Report pipeline: C5 ring assembly, C6
// suspicion scoring, and C7 report construction, fanning C2-C4 out in
// parallel over the shared immutable graph the way rules.Engine.EvaluateAll
// fans rule evaluation out over a semaphore-bounded worker pool.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/mulegraph/internal/detect"
	"github.com/opensource-finance/mulegraph/internal/domain"
	"github.com/opensource-finance/mulegraph/internal/graph"
	"github.com/opensource-finance/mulegraph/internal/rulesx"
)

// ProgressFunc is invoked between detector stages with a short label, for
// callers that want to surface progress without per-node callback noise.
type ProgressFunc func(stage string)

// Engine is a pure function of its configuration: it holds no mutable
// state across calls to Analyze.
type Engine struct {
	cfg      domain.EngineConfig
	rules    *rulesx.Engine
	progress ProgressFunc
}

// New constructs an Engine. rules may be nil; when non-nil its compiled
// CEL expressions contribute additional behavioral-score points (see
// rulesx for the contract).
func New(cfg domain.EngineConfig, rules *rulesx.Engine) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine configuration: %w", err)
	}
	return &Engine{cfg: cfg, rules: rules}, nil
}

// OnProgress sets an optional progress callback invoked between stages.
func (e *Engine) OnProgress(fn ProgressFunc) {
	e.progress = fn
}

type detectorResult struct {
	findings []domain.Finding
	err      error
}

// Analyze runs the full C1-C7 pipeline over transactions. The context is
// checked cooperatively between outer-loop iterations inside each
// detector; on cancellation Analyze returns domain.ErrCancelled and no
// report.
func (e *Engine) Analyze(ctx context.Context, transactions []domain.Transaction) (*domain.Report, error) {
	start := time.Now()

	e.emit("build")
	g, err := graph.Build(transactions)
	if err != nil {
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, domain.ErrCancelled
	}

	e.emit("detect")
	findings, err := e.runDetectors(ctx, g)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.ErrCancelled
		}
		return nil, err
	}

	e.emit("assemble")
	rings := assembleRings(findings, e.cfg)

	e.emit("score")
	accounts := scoreAccounts(g, rings, e.cfg, e.rules)

	e.emit("report")
	report := buildReport(g, rings, accounts, e.cfg)
	report.Summary.ProcessingTimeSeconds = roundTo3(time.Since(start).Seconds())

	return report, nil
}

// runDetectors dispatches C2/C3/C4 concurrently, bounded by
// cfg.ParallelDetectors, mirroring the rule engine's semaphore pattern.
func (e *Engine) runDetectors(ctx context.Context, g *graph.DirectedGraph) ([]domain.Finding, error) {
	type job func(context.Context, *graph.DirectedGraph, domain.EngineConfig) ([]domain.Finding, error)
	jobs := []job{detect.Cycles, detect.Fans, detect.ShellChains}

	results := make([]detectorResult, len(jobs))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.cfg.ParallelDetectors)

	for i, j := range jobs {
		wg.Add(1)
		go func(idx int, run job) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			findings, err := run(ctx, g, e.cfg)
			results[idx] = detectorResult{findings: findings, err: err}
		}(i, j)
	}
	wg.Wait()

	var all []domain.Finding
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		all = append(all, r.findings...)
	}
	return all, nil
}

func (e *Engine) emit(stage string) {
	if e.progress != nil {
		e.progress(stage)
	}
}

func roundTo3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}
