package brief

import (
	"fmt"
	"strings"
)

// Markdown renders a brief as a terminal-friendly Markdown report.
func Markdown(b FinalBrief) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "## Research Brief: %s\n\n", b.Topic)
	sb.WriteString("### Introduction\n\n")
	sb.WriteString(b.Introduction)
	sb.WriteString("\n\n### Synthesis\n\n")
	sb.WriteString(b.Synthesis)

	if len(b.PotentialFollowUps) > 0 {
		sb.WriteString("\n\n### Potential Follow-up Questions\n\n")
		for i, q := range b.PotentialFollowUps {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, q)
		}
	}

	if len(b.References) > 0 {
		sb.WriteString("\n### References\n\n")
		for i, ref := range b.References {
			fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, ref.Title, ref.URL)
		}
	}

	return sb.String()
}
