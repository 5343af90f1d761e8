package engine

import (
	"github.com/ramin-sadeghi/briefer/internal/brief"
	"github.com/ramin-sadeghi/briefer/internal/llm"
)

// StageID names one step of the pipeline.
type StageID string

const (
	StageSummarizeContext StageID = "summarize_context"
	StagePlan             StageID = "plan"
	StageSearch           StageID = "search"
	StageSummarizeSource  StageID = "summarize_source"
	StageSynthesize       StageID = "synthesize"

	stageDone StageID = "done"
)

// RunState is the mutable state of a single run, exclusively owned by the
// engine while it executes. Fields only move forward: stages append or set
// once, never clear what a predecessor wrote.
type RunState struct {
	RunID       string
	Identity    string
	Topic       string
	FollowUp    bool
	SearchDepth string

	// RecalledContext is set by summarize-context on follow-ups with prior
	// history; empty otherwise.
	RecalledContext string

	Plan            brief.ResearchPlan
	SearchResults   []brief.SearchResult
	SourceSummaries []brief.SourceSummary

	// Brief marks the run terminal once set.
	Brief *brief.FinalBrief
}

// runContext carries per-run bookkeeping alongside the state.
type runContext struct {
	state *RunState

	// prior is the context record recalled for follow-ups; only meaningful
	// when the run entered at summarize-context.
	prior brief.ContextRecord

	usage llm.Usage
	cost  float64
}
