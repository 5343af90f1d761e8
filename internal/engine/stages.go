package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ramin-sadeghi/briefer/internal/brief"
	"github.com/ramin-sadeghi/briefer/internal/llm"
	"github.com/ramin-sadeghi/briefer/internal/schema"
)

// spend folds one generation's token usage into the run totals.
func (e *Engine) spend(rc *runContext, model string, u llm.Usage) {
	rc.usage.PromptTokens += u.PromptTokens
	rc.usage.CompletionTokens += u.CompletionTokens
	cost := e.llm.CalculateCost(u.PromptTokens, u.CompletionTokens, model)
	rc.cost += cost
	e.tele.AddCost(model, cost)
}

// summarizeContext condenses the prior brief into a short scoping note for
// the planner. It only runs on follow-ups that actually recalled history.
func (e *Engine) summarizeContext(ctx context.Context, rc *runContext) error {
	model := llm.ModelFor(e.cfg.LLM.Routing, string(StageSummarizeContext))

	priorJSON, err := json.Marshal(rc.prior.LastBrief)
	if err != nil {
		return fmt.Errorf("encode prior brief: %w", err)
	}

	prompt := fmt.Sprintf(`You are assisting with a follow-up research request.

Previous research brief for this user (JSON):
%s

New request topic: %s

Summarize the previous brief in at most 150 words, focusing on what has
already been covered and what the new request should build on. Respond with
plain text only.`, priorJSON, rc.state.Topic)

	callCtx, cancel := e.callContext(ctx)
	defer cancel()

	out, inTok, outTok, err := e.llm.GenerateWithTokens(callCtx, prompt, model, map[string]interface{}{"temperature": 0.3})
	e.spend(rc, model, llm.Usage{PromptTokens: inTok, CompletionTokens: outTok})
	if err != nil {
		return &brief.ProviderError{Provider: "llm", Err: err}
	}

	rc.state.RecalledContext = strings.TrimSpace(out)
	return nil
}

// plan produces the research plan: 3-6 question/query pairs scoped by
// recalled context when present.
func (e *Engine) plan(ctx context.Context, rc *runContext) error {
	model := llm.ModelFor(e.cfg.LLM.Routing, string(StagePlan))
	planSchema, err := schema.Plan()
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create a research plan for the topic: %q\n\n", rc.state.Topic)
	if rc.state.RecalledContext != "" {
		fmt.Fprintf(&b, `This is a follow-up request. Context from earlier research:
%s

Plan questions that extend the earlier research instead of repeating it.

`, rc.state.RecalledContext)
	}
	fmt.Fprintf(&b, `Produce between %d and %d items. Each item pairs a specific research
question with a web search query that would answer it.

Return ONLY strict JSON matching this shape, no prose and no code fences:
{"topic": "...", "items": [{"question": "...", "search_query": "..."}]}`,
		brief.MinPlanItems, brief.MaxPlanItems)

	callCtx, cancel := e.callContext(ctx)
	defer cancel()

	var usage llm.Usage
	plan, err := llm.Structured[brief.ResearchPlan](callCtx, e.llm, model, "research_plan", b.String(), planSchema, e.retryBudget(), &usage)
	e.spend(rc, model, usage)
	if err != nil {
		return err
	}

	if plan.Topic == "" {
		plan.Topic = rc.state.Topic
	}
	rc.state.Plan = plan
	e.logger.Printf("run %s: plan has %d items", rc.state.RunID, len(plan.Items))
	return nil
}

// search runs every plan query in order and flattens the hits into one
// deduplicated result list. The first occurrence of a URL wins, so result
// order follows plan order. Any provider failure aborts the stage.
func (e *Engine) search(ctx context.Context, rc *runContext) error {
	depth := rc.state.SearchDepth
	if depth == "" {
		depth = e.cfg.Search.DefaultDepth
	}
	perQuery := e.cfg.Search.MaxResultsPerQuery
	if perQuery < 1 {
		perQuery = 2
	}

	seen := make(map[string]struct{})
	for _, item := range rc.state.Plan.Items {
		callCtx, cancel := context.WithTimeout(ctx, e.searchTimeout())
		hits, err := e.searcher.Discover(callCtx, item.SearchQuery, perQuery, depth)
		cancel()
		if err != nil {
			return &brief.ProviderError{Provider: e.cfg.Search.Provider, Err: fmt.Errorf("query %q: %w", item.SearchQuery, err)}
		}
		for _, h := range hits {
			if h.URL == "" {
				continue
			}
			if _, dup := seen[h.URL]; dup {
				continue
			}
			seen[h.URL] = struct{}{}
			rc.state.SearchResults = append(rc.state.SearchResults, brief.SearchResult{
				URL:     h.URL,
				Title:   h.Title,
				Snippet: h.Snippet,
			})
		}
	}

	e.logger.Printf("run %s: %d unique results across %d queries", rc.state.RunID, len(rc.state.SearchResults), len(rc.state.Plan.Items))
	return nil
}

// summarizeSources fans the search results out to a bounded worker pool.
// Each result owns a slot in the output slice, so summaries land in result
// order regardless of completion order. A failed item yields a degraded
// placeholder instead of failing the run.
func (e *Engine) summarizeSources(ctx context.Context, rc *runContext) error {
	results := rc.state.SearchResults
	summaries := make([]brief.SourceSummary, len(results))
	if len(results) == 0 {
		rc.state.SourceSummaries = summaries
		return nil
	}

	workers := e.cfg.Engine.SummaryWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(results) {
		workers = len(results)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	var mu sync.Mutex

	model := llm.ModelFor(e.cfg.LLM.Routing, string(StageSummarizeSource))
	summarySchema, err := schema.SourceSummary()
	if err != nil {
		return err
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				res := results[idx]
				summary, usage, err := e.summarizeOne(ctx, model, summarySchema, rc.state.Topic, res)
				mu.Lock()
				e.spend(rc, model, usage)
				mu.Unlock()
				if err != nil {
					e.logger.Printf("run %s: summarize %s failed, keeping degraded entry: %v", rc.state.RunID, res.URL, err)
					summary = degradedSummary(res)
				}
				summaries[idx] = summary
			}
		}()
	}

	for idx := range results {
		select {
		case jobs <- idx:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	rc.state.SourceSummaries = summaries
	return nil
}

// summarizeOne builds the per-source prompt, optionally enriching the
// snippet with fetched page text, and asks for a schema-valid summary.
// Fetch problems fall back to the snippet; they are not a failure.
func (e *Engine) summarizeOne(ctx context.Context, model string, s *jsonschema.Schema, topic string, res brief.SearchResult) (brief.SourceSummary, llm.Usage, error) {
	sourceText := res.Snippet
	if e.cfg.Engine.FetchPageContent && e.fetcher != nil {
		fetchCtx, cancel := e.callContext(ctx)
		page, err := e.fetcher.Fetch(fetchCtx, res.URL)
		cancel()
		if err == nil && strings.TrimSpace(page.Text) != "" {
			sourceText = page.Text
		}
	}
	budget := e.cfg.Engine.SourceCharBudget
	if budget < 1 {
		budget = 5000
	}
	sourceText = truncate(sourceText, budget)

	prompt := fmt.Sprintf(`Summarize this source for research on the topic: %q

URL: %s
Title: %s
Content:
%s

Extract the key points relevant to the topic and rate how relevant the
source is on a 0.0-1.0 scale.

Return ONLY strict JSON matching this shape, no prose and no code fences:
{"url": %q, "title": %q, "key_points": ["..."], "relevance_to_topic": "...", "relevance_score": 0.0}`,
		topic, res.URL, res.Title, sourceText, res.URL, res.Title)

	callCtx, cancel := e.callContext(ctx)
	defer cancel()

	var usage llm.Usage
	summary, err := llm.Structured[brief.SourceSummary](callCtx, e.llm, model, "source_summary", prompt, s, e.retryBudget(), &usage)
	if err != nil {
		return brief.SourceSummary{}, usage, err
	}

	// The search result, not the model, is authoritative for identity.
	summary.URL = res.URL
	if summary.Title == "" {
		summary.Title = res.Title
	}
	if summary.RelevanceScore < 0 {
		summary.RelevanceScore = 0
	} else if summary.RelevanceScore > 1 {
		summary.RelevanceScore = 1
	}
	return summary, usage, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func degradedSummary(res brief.SearchResult) brief.SourceSummary {
	return brief.SourceSummary{
		URL:              res.URL,
		Title:            res.Title,
		KeyPoints:        []string{},
		RelevanceToTopic: "summarization failed for this source",
		Degraded:         true,
	}
}

// synthesize folds the source summaries into the final brief. The engine,
// not the model, owns the reference list: it is always the source summaries
// in processing order, which keeps citations honest even when the model
// hallucinates or drops one.
func (e *Engine) synthesize(ctx context.Context, rc *runContext) error {
	model := llm.ModelFor(e.cfg.LLM.Routing, string(StageSynthesize))
	briefSchema, err := schema.FinalBrief()
	if err != nil {
		return err
	}

	summariesJSON, err := json.Marshal(rc.state.SourceSummaries)
	if err != nil {
		return fmt.Errorf("encode source summaries: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write a research brief on the topic: %q\n\n", rc.state.Topic)
	if rc.state.RecalledContext != "" {
		fmt.Fprintf(&b, "Context from the user's earlier research:\n%s\n\n", rc.state.RecalledContext)
	}
	fmt.Fprintf(&b, `Source summaries (JSON):
%s

Synthesize the sources into a coherent brief. Entries marked "degraded"
carry no usable content; acknowledge the gap rather than inventing facts.
Suggest 1 to %d follow-up questions.

Return ONLY strict JSON matching this shape, no prose and no code fences:
{"topic": "...", "introduction": "...", "synthesis": "...", "potential_follow_ups": ["..."]}`,
		summariesJSON, brief.MaxFollowUps)

	callCtx, cancel := e.callContext(ctx)
	defer cancel()

	var usage llm.Usage
	out, err := llm.Structured[brief.FinalBrief](callCtx, e.llm, model, "final_brief", b.String(), briefSchema, e.retryBudget(), &usage)
	e.spend(rc, model, usage)
	if err != nil {
		return err
	}

	out.Topic = rc.state.Topic
	out.References = rc.state.SourceSummaries
	if len(out.PotentialFollowUps) > brief.MaxFollowUps {
		out.PotentialFollowUps = out.PotentialFollowUps[:brief.MaxFollowUps]
	}
	rc.state.Brief = &out
	return nil
}

func (e *Engine) retryBudget() int {
	if e.cfg.Engine.StructuredRetries > 0 {
		return e.cfg.Engine.StructuredRetries
	}
	return 3
}

func (e *Engine) searchTimeout() time.Duration {
	if e.cfg.Search.Timeout > 0 {
		return e.cfg.Search.Timeout
	}
	return 30 * time.Second
}
