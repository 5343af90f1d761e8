// Package engine drives the brief pipeline: a conditional entry into a
// fixed, acyclic stage order, with per-stage failure classification and a
// context-store write as the final act of a successful run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ramin-sadeghi/briefer/config"
	"github.com/ramin-sadeghi/briefer/internal/brief"
	"github.com/ramin-sadeghi/briefer/internal/llm"
	"github.com/ramin-sadeghi/briefer/internal/store"
	"github.com/ramin-sadeghi/briefer/internal/telemetry"
	"github.com/ramin-sadeghi/briefer/tools/web_fetch"
	"github.com/ramin-sadeghi/briefer/tools/web_search"
)

// ErrInvalidRequest marks requests rejected before a run starts.
var ErrInvalidRequest = errors.New("invalid request")

// Request is the inbound shape for one run.
type Request struct {
	Identity    string
	Topic       string
	FollowUp    bool
	SearchDepth string
}

// Outcome is the result of a successful run. Warnings carry non-fatal
// problems, currently only a failed context-store write.
type Outcome struct {
	RunID        string
	Brief        brief.FinalBrief
	Warnings     []string
	Elapsed      time.Duration
	TokensUsed   int64
	CostEstimate float64
}

type stageFunc func(ctx context.Context, rc *runContext) error

// Engine owns the stage registry and the routing table and executes runs.
// One Engine serves concurrent Run calls; each call owns its RunState
// exclusively and the context store is the only shared mutable state.
type Engine struct {
	cfg      *config.Config
	logger   *log.Logger
	llm      llm.Provider
	searcher web_search.WebSearcher
	fetcher  web_fetch.Fetcher
	store    store.ContextStore
	tele     *telemetry.Telemetry

	stages    map[StageID]stageFunc
	semaphore chan struct{}
}

// New wires an engine. fetcher may be nil; summarization then works from
// search snippets only.
func New(cfg *config.Config, logger *log.Logger, provider llm.Provider, searcher web_search.WebSearcher, fetcher web_fetch.Fetcher, cs store.ContextStore, tele *telemetry.Telemetry) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)
	}
	maxRuns := cfg.Engine.MaxConcurrentRuns
	if maxRuns < 1 {
		maxRuns = 1
	}
	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		llm:       provider,
		searcher:  searcher,
		fetcher:   fetcher,
		store:     cs,
		tele:      tele,
		semaphore: make(chan struct{}, maxRuns),
	}
	e.stages = map[StageID]stageFunc{
		StageSummarizeContext: e.summarizeContext,
		StagePlan:             e.plan,
		StageSearch:           e.search,
		StageSummarizeSource:  e.summarizeSources,
		StageSynthesize:       e.synthesize,
	}
	return e
}

// Run executes one end-to-end pipeline invocation. It returns a classified
// error (StageFailure or SchemaViolation) on failure; a failed run never
// touches the context store.
func (e *Engine) Run(ctx context.Context, req Request) (*Outcome, error) {
	if req.Identity == "" {
		return nil, fmt.Errorf("%w: identity must not be empty", ErrInvalidRequest)
	}
	if req.Topic == "" {
		return nil, fmt.Errorf("%w: topic must not be empty", ErrInvalidRequest)
	}

	select {
	case e.semaphore <- struct{}{}:
		defer func() { <-e.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if e.cfg.General.MaxRunTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.General.MaxRunTime)
		defer cancel()
	}

	startTime := time.Now()
	rc := &runContext{
		state: &RunState{
			RunID:       uuid.NewString(),
			Identity:    req.Identity,
			Topic:       req.Topic,
			FollowUp:    req.FollowUp,
			SearchDepth: req.SearchDepth,
		},
	}
	e.logger.Printf("run %s: topic=%q follow_up=%v", rc.state.RunID, req.Topic, req.FollowUp)

	stage := e.selectEntry(ctx, rc)
	for stage != stageDone {
		// Cancellation is honored at stage boundaries; no stage is preempted
		// mid-external-call.
		if err := ctx.Err(); err != nil {
			e.tele.RecordRun("cancelled", time.Since(startTime))
			return nil, err
		}

		fn, ok := e.stages[stage]
		if !ok {
			return nil, fmt.Errorf("no stage registered for %q", stage)
		}

		stageStart := time.Now()
		err := fn(ctx, rc)
		e.tele.ObserveStage(string(stage), time.Since(stageStart))
		if err != nil {
			e.tele.RecordRun("failed", time.Since(startTime))
			return nil, e.classify(ctx, stage, err)
		}

		stage = transitions[stage]
	}

	if rc.state.Brief == nil {
		e.tele.RecordRun("failed", time.Since(startTime))
		return nil, &brief.StageFailure{Stage: string(StageSynthesize), Err: errors.New("run finished without a brief")}
	}

	outcome := &Outcome{
		RunID:        rc.state.RunID,
		Brief:        *rc.state.Brief,
		Elapsed:      time.Since(startTime),
		TokensUsed:   rc.usage.PromptTokens + rc.usage.CompletionTokens,
		CostEstimate: rc.cost,
	}

	// The context-store write is the last act of a successful run. A write
	// failure degrades to a warning; the brief was already produced.
	if err := e.putContext(ctx, rc); err != nil {
		e.logger.Printf("run %s: context store write failed: %v", rc.state.RunID, err)
		e.tele.RecordStoreFailure("put")
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("context store write failed: %v", err))
	}

	e.tele.AddTokens(rc.usage.PromptTokens, rc.usage.CompletionTokens)
	e.tele.RecordRun("succeeded", outcome.Elapsed)
	e.logger.Printf("run %s: completed in %v (%d tokens, %d references)",
		rc.state.RunID, outcome.Elapsed.Round(time.Millisecond), outcome.TokensUsed, len(outcome.Brief.References))

	return outcome, nil
}

// selectEntry resolves the conditional entry. A store read failure degrades
// to "no prior context" rather than failing the run.
func (e *Engine) selectEntry(ctx context.Context, rc *runContext) StageID {
	if !rc.state.FollowUp {
		return SelectEntry(false, false)
	}

	getCtx, cancel := e.callContext(ctx)
	defer cancel()
	rec, ok, err := e.store.Get(getCtx, rc.state.Identity)
	if err != nil {
		e.logger.Printf("run %s: context recall failed, planning fresh: %v", rc.state.RunID, err)
		e.tele.RecordStoreFailure("get")
		return SelectEntry(true, false)
	}
	if ok {
		rc.prior = rec
	}
	return SelectEntry(true, ok)
}

func (e *Engine) putContext(ctx context.Context, rc *runContext) error {
	// The parent context may already be cancelled or expired right at the
	// finish line; the write still deserves its own small budget.
	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.callTimeout())
	defer cancel()
	return e.store.Put(putCtx, rc.state.Identity, *rc.state.Brief)
}

// classify sorts a stage error into the run-level taxonomy: schema
// violations and caller cancellation pass through, anything else is a
// StageFailure naming the failing stage.
func (e *Engine) classify(ctx context.Context, stage StageID, err error) error {
	var sv *brief.SchemaViolation
	if errors.As(err, &sv) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &brief.StageFailure{Stage: string(stage), Err: err}
}

func (e *Engine) callTimeout() time.Duration {
	if e.cfg.General.DefaultTimeout > 0 {
		return e.cfg.General.DefaultTimeout
	}
	return 45 * time.Second
}

// callContext bounds a single external call.
func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.callTimeout())
}
