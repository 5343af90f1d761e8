package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ramin-sadeghi/briefer/config"
	"github.com/ramin-sadeghi/briefer/internal/brief"
	"github.com/ramin-sadeghi/briefer/internal/llm"
	"github.com/ramin-sadeghi/briefer/internal/store"
	"github.com/ramin-sadeghi/briefer/internal/telemetry"
	"github.com/ramin-sadeghi/briefer/tools/web_search/models"
)

// scriptedLLM answers each stage's prompt with canned output, keyed off the
// prompt preamble. It records every prompt for assertions.
type scriptedLLM struct {
	mu      sync.Mutex
	prompts []string

	planErr     error
	planBadLeft int
	badURLs     map[string]bool
}

func (s *scriptedLLM) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt, model string, options map[string]interface{}) (string, error) {
	out, _, _, err := s.GenerateWithTokens(ctx, prompt, model, options)
	return out, err
}

func (s *scriptedLLM) GenerateWithTokens(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	planBad := s.planBadLeft
	if planBad > 0 && strings.HasPrefix(prompt, "Create a research plan") {
		s.planBadLeft--
	}
	s.mu.Unlock()

	switch {
	case strings.Contains(prompt, "follow-up research request"):
		return "earlier research covered rooftop solar economics", 10, 5, nil

	case strings.HasPrefix(prompt, "Create a research plan"):
		if s.planErr != nil {
			return "", 10, 0, s.planErr
		}
		if planBad > 0 {
			return "this is not json at all", 10, 5, nil
		}
		return `{"topic":"t","items":[
			{"question":"q1","search_query":"s1"},
			{"question":"q2","search_query":"s2"},
			{"question":"q3","search_query":"s3"}]}`, 10, 5, nil

	case strings.HasPrefix(prompt, "Summarize this source"):
		url := promptField(prompt, "URL: ")
		if s.badURLs[url] {
			return "garbage {{{", 10, 5, nil
		}
		return fmt.Sprintf(`{"url":%q,"title":"T","key_points":["k1"],"relevance_to_topic":"r","relevance_score":0.8}`, url), 10, 5, nil

	case strings.HasPrefix(prompt, "Write a research brief"):
		return `{"topic":"model topic","introduction":"intro","synthesis":"synth","potential_follow_ups":["f1","f2"]}`, 10, 5, nil
	}
	return "", 0, 0, fmt.Errorf("unexpected prompt: %.60s", prompt)
}

func (s *scriptedLLM) GetAvailableModels() []string               { return nil }
func (s *scriptedLLM) GetModelInfo(string) (llm.ModelInfo, error) { return llm.ModelInfo{}, nil }

func (s *scriptedLLM) CalculateCost(in, out int64, _ string) float64 {
	return float64(in+out) * 0.0001
}

func promptField(prompt, prefix string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}

type stubSearcher struct {
	hits map[string][]models.Result
	err  error
}

func (s stubSearcher) Discover(ctx context.Context, q string, k int, depth string) ([]models.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.hits[q], nil
}

// failingStore wraps a real store and injects failures per operation.
type failingStore struct {
	inner  store.ContextStore
	getErr error
	putErr error
}

func (f *failingStore) Get(ctx context.Context, identity string) (brief.ContextRecord, bool, error) {
	if f.getErr != nil {
		return brief.ContextRecord{}, false, f.getErr
	}
	return f.inner.Get(ctx, identity)
}

func (f *failingStore) Put(ctx context.Context, identity string, b brief.FinalBrief) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.inner.Put(ctx, identity, b)
}

func (f *failingStore) Close() error { return f.inner.Close() }

func defaultHits() map[string][]models.Result {
	return map[string][]models.Result{
		"s1": {
			{URL: "https://a.example", Title: "A", Snippet: "about a"},
			{URL: "https://b.example", Title: "B", Snippet: "about b"},
		},
		"s2": {
			{URL: "https://b.example", Title: "B again", Snippet: "dup"},
			{URL: "https://c.example", Title: "C", Snippet: "about c"},
		},
		"s3": nil,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		General: config.GeneralConfig{DefaultTimeout: 2 * time.Second},
		LLM: config.LLMConfig{Routing: config.LLMRoutingConfig{
			ContextSummary: "fast", Planning: "smart", SourceSummary: "fast", Synthesis: "smart", Fallback: "fast",
		}},
		Search: config.SearchConfig{Provider: "tavily", MaxResultsPerQuery: 2, DefaultDepth: "basic", Timeout: 2 * time.Second},
		Engine: config.EngineConfig{MaxConcurrentRuns: 2, SummaryWorkers: 2, StructuredRetries: 2, SourceCharBudget: 1000},
	}
}

func testEngine(p llm.Provider, s stubSearcher, cs store.ContextStore) *Engine {
	tele := telemetry.NewTelemetry(config.TelemetryConfig{})
	return New(testConfig(), nil, p, s, nil, cs, tele)
}

func TestRunFreshTopic(t *testing.T) {
	p := &scriptedLLM{}
	cs := store.NewMemoryStore()
	eng := testEngine(p, stubSearcher{hits: defaultHits()}, cs)

	outcome, err := eng.Run(context.Background(), Request{Identity: "u1", Topic: "solar panels"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if outcome.Brief.Topic != "solar panels" {
		t.Fatalf("topic not authoritative: got %q", outcome.Brief.Topic)
	}
	if len(outcome.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", outcome.Warnings)
	}

	wantRefs := []string{"https://a.example", "https://b.example", "https://c.example"}
	if len(outcome.Brief.References) != len(wantRefs) {
		t.Fatalf("want %d references, got %d", len(wantRefs), len(outcome.Brief.References))
	}
	for i, url := range wantRefs {
		if outcome.Brief.References[i].URL != url {
			t.Fatalf("reference %d: want %s, got %s", i, url, outcome.Brief.References[i].URL)
		}
	}

	prompts := p.recorded()
	if strings.HasPrefix(prompts[0], "You are assisting with a follow-up") {
		t.Fatalf("fresh run must not summarize context")
	}

	if _, ok, _ := cs.Get(context.Background(), "u1"); !ok {
		t.Fatalf("successful run did not persist context")
	}
}

func TestRunFollowUpRecallsContext(t *testing.T) {
	p := &scriptedLLM{}
	cs := store.NewMemoryStore()
	if err := cs.Put(context.Background(), "u1", brief.FinalBrief{Topic: "old", Synthesis: "old synth"}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	eng := testEngine(p, stubSearcher{hits: defaultHits()}, cs)

	if _, err := eng.Run(context.Background(), Request{Identity: "u1", Topic: "solar follow up", FollowUp: true}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	prompts := p.recorded()
	if !strings.Contains(prompts[0], "follow-up research request") {
		t.Fatalf("expected context summarization first, got: %.60s", prompts[0])
	}
	var planPrompt string
	for _, pr := range prompts {
		if strings.HasPrefix(pr, "Create a research plan") {
			planPrompt = pr
			break
		}
	}
	if !strings.Contains(planPrompt, "rooftop solar economics") {
		t.Fatalf("plan prompt missing recalled context")
	}
}

func TestRunFollowUpWithoutHistory(t *testing.T) {
	p := &scriptedLLM{}
	eng := testEngine(p, stubSearcher{hits: defaultHits()}, store.NewMemoryStore())

	if _, err := eng.Run(context.Background(), Request{Identity: "new-user", Topic: "t", FollowUp: true}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, pr := range p.recorded() {
		if strings.Contains(pr, "follow-up research request") {
			t.Fatalf("follow-up without history must enter at planning")
		}
	}
}

func TestRunStoreReadFailureFallsBack(t *testing.T) {
	p := &scriptedLLM{}
	cs := &failingStore{inner: store.NewMemoryStore(), getErr: errors.New("store down")}
	eng := testEngine(p, stubSearcher{hits: defaultHits()}, cs)

	outcome, err := eng.Run(context.Background(), Request{Identity: "u1", Topic: "t", FollowUp: true})
	if err != nil {
		t.Fatalf("read failure must not fail the run: %v", err)
	}
	if outcome.Brief.Synthesis == "" {
		t.Fatalf("expected a complete brief")
	}
	for _, pr := range p.recorded() {
		if strings.Contains(pr, "follow-up research request") {
			t.Fatalf("unreadable history must degrade to a fresh plan")
		}
	}
}

func TestDegradedSummaryKeepsSlot(t *testing.T) {
	p := &scriptedLLM{badURLs: map[string]bool{"https://b.example": true}}
	eng := testEngine(p, stubSearcher{hits: defaultHits()}, store.NewMemoryStore())

	outcome, err := eng.Run(context.Background(), Request{Identity: "u1", Topic: "t"})
	if err != nil {
		t.Fatalf("per-source failure must not fail the run: %v", err)
	}
	refs := outcome.Brief.References
	if len(refs) != 3 {
		t.Fatalf("want 3 references, got %d", len(refs))
	}
	if !refs[1].Degraded || refs[1].URL != "https://b.example" {
		t.Fatalf("expected degraded entry in slot 1, got %+v", refs[1])
	}
	if len(refs[1].KeyPoints) != 0 {
		t.Fatalf("degraded entry must carry no key points")
	}
	if refs[0].Degraded || refs[2].Degraded {
		t.Fatalf("healthy sources wrongly marked degraded")
	}
}

func TestPlanSchemaViolation(t *testing.T) {
	p := &scriptedLLM{planBadLeft: 99}
	eng := testEngine(p, stubSearcher{hits: defaultHits()}, store.NewMemoryStore())

	_, err := eng.Run(context.Background(), Request{Identity: "u1", Topic: "t"})
	var sv *brief.SchemaViolation
	if !errors.As(err, &sv) {
		t.Fatalf("want SchemaViolation, got %v", err)
	}
	if sv.Artifact != "research_plan" {
		t.Fatalf("want artifact research_plan, got %s", sv.Artifact)
	}
	if sv.Attempts != 2 {
		t.Fatalf("retry budget is 2, reported %d attempts", sv.Attempts)
	}
}

func TestPlanProviderFailure(t *testing.T) {
	p := &scriptedLLM{planErr: errors.New("upstream 500")}
	eng := testEngine(p, stubSearcher{hits: defaultHits()}, store.NewMemoryStore())

	_, err := eng.Run(context.Background(), Request{Identity: "u1", Topic: "t"})
	var sf *brief.StageFailure
	if !errors.As(err, &sf) {
		t.Fatalf("want StageFailure, got %v", err)
	}
	if sf.Stage != string(StagePlan) {
		t.Fatalf("want failing stage %s, got %s", StagePlan, sf.Stage)
	}
	var pe *brief.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("StageFailure should wrap the provider error")
	}

	// A single failed generation must not be retried.
	planCalls := 0
	for _, pr := range p.recorded() {
		if strings.HasPrefix(pr, "Create a research plan") {
			planCalls++
		}
	}
	if planCalls != 1 {
		t.Fatalf("provider errors must not be retried, saw %d plan calls", planCalls)
	}
}

func TestSearchFailureIsStageFailure(t *testing.T) {
	p := &scriptedLLM{}
	eng := testEngine(p, stubSearcher{err: errors.New("search api down")}, store.NewMemoryStore())

	_, err := eng.Run(context.Background(), Request{Identity: "u1", Topic: "t"})
	var sf *brief.StageFailure
	if !errors.As(err, &sf) {
		t.Fatalf("want StageFailure, got %v", err)
	}
	if sf.Stage != string(StageSearch) {
		t.Fatalf("want failing stage %s, got %s", StageSearch, sf.Stage)
	}
}

func TestPutFailureBecomesWarning(t *testing.T) {
	p := &scriptedLLM{}
	cs := &failingStore{inner: store.NewMemoryStore(), putErr: errors.New("disk full")}
	eng := testEngine(p, stubSearcher{hits: defaultHits()}, cs)

	outcome, err := eng.Run(context.Background(), Request{Identity: "u1", Topic: "t"})
	if err != nil {
		t.Fatalf("write failure must not fail the run: %v", err)
	}
	if len(outcome.Warnings) != 1 || !strings.Contains(outcome.Warnings[0], "context store write failed") {
		t.Fatalf("expected a store-write warning, got %v", outcome.Warnings)
	}
}

func TestCancelledRun(t *testing.T) {
	p := &scriptedLLM{}
	eng := testEngine(p, stubSearcher{hits: defaultHits()}, store.NewMemoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.Run(ctx, Request{Identity: "u1", Topic: "t"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestInvalidRequests(t *testing.T) {
	eng := testEngine(&scriptedLLM{}, stubSearcher{}, store.NewMemoryStore())

	if _, err := eng.Run(context.Background(), Request{Topic: "t"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("empty identity: want ErrInvalidRequest, got %v", err)
	}
	if _, err := eng.Run(context.Background(), Request{Identity: "u"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("empty topic: want ErrInvalidRequest, got %v", err)
	}
}
