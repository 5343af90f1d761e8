package brief

import "time"

// MaxFollowUps bounds the follow-up suggestions carried by a FinalBrief.
const MaxFollowUps = 5

// Plan size bounds enforced on the planner output.
const (
	MinPlanItems = 3
	MaxPlanItems = 6
)

// PlanItem pairs a research question with the search query that answers it.
type PlanItem struct {
	Question    string `json:"question"`
	SearchQuery string `json:"search_query"`
}

// ResearchPlan is the structured plan the planning stage produces.
type ResearchPlan struct {
	Topic string     `json:"topic"`
	Items []PlanItem `json:"items"`
}

// SearchResult is one hit returned by the web search collaborator.
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// SourceSummary holds the summary and key details of a single source.
// Degraded marks summaries emitted in place of a failed summarization so a
// flaky source never silently disappears from the reference list.
type SourceSummary struct {
	URL              string   `json:"url"`
	Title            string   `json:"title"`
	KeyPoints        []string `json:"key_points"`
	RelevanceToTopic string   `json:"relevance_to_topic"`
	RelevanceScore   float64  `json:"relevance_score,omitempty"`
	Degraded         bool     `json:"degraded,omitempty"`
}

// FinalBrief is the user-facing research brief.
type FinalBrief struct {
	Topic              string          `json:"topic"`
	Introduction       string          `json:"introduction"`
	Synthesis          string          `json:"synthesis"`
	References         []SourceSummary `json:"references"`
	PotentialFollowUps []string        `json:"potential_follow_ups"`
}

// ContextRecord is the single live memory entry per identity: the most
// recent brief, last-write-wins.
type ContextRecord struct {
	Identity  string     `json:"identity"`
	LastBrief FinalBrief `json:"last_brief"`
	UpdatedAt time.Time  `json:"updated_at"`
}
