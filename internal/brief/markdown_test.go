package brief

import (
	"strings"
	"testing"
)

func TestMarkdownFullBrief(t *testing.T) {
	b := FinalBrief{
		Topic:        "geothermal energy",
		Introduction: "why it matters",
		Synthesis:    "what the sources say",
		References: []SourceSummary{
			{URL: "https://a.example", Title: "A"},
			{URL: "https://b.example", Title: "B"},
		},
		PotentialFollowUps: []string{"costs?", "policy?"},
	}

	out := Markdown(b)
	for _, want := range []string{
		"## Research Brief: geothermal energy",
		"### Introduction",
		"### Synthesis",
		"1. costs?",
		"2. policy?",
		"1. [A](https://a.example)",
		"2. [B](https://b.example)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestMarkdownOmitsEmptySections(t *testing.T) {
	out := Markdown(FinalBrief{Topic: "t", Introduction: "i", Synthesis: "s"})
	if strings.Contains(out, "References") {
		t.Fatalf("empty reference list must be omitted")
	}
	if strings.Contains(out, "Follow-up") {
		t.Fatalf("empty follow-up list must be omitted")
	}
}
