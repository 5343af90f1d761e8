package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ramin-sadeghi/briefer/internal/brief"
	schemapkg "github.com/ramin-sadeghi/briefer/internal/schema"
)

// Usage accumulates token counts across structured-generation attempts.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

func (u *Usage) add(in, out int64) {
	u.PromptTokens += in
	u.CompletionTokens += out
}

// Structured asks the provider for JSON conforming to the given schema and
// retries with a fresh generation on every schema mismatch. Only malformed
// structure is retried; a provider failure propagates immediately so the
// caller can classify it. After the retry budget is spent the last
// validation error surfaces as a SchemaViolation.
func Structured[T any](ctx context.Context, p Provider, model, artifact, prompt string, s *jsonschema.Schema, attempts int, usage *Usage) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		out, inTok, outTok, err := p.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{"temperature": 0.2})
		if usage != nil {
			usage.add(inTok, outTok)
		}
		if err != nil {
			return zero, &brief.ProviderError{Provider: "llm", Err: err}
		}

		raw := []byte(extractFirstJSON(out))
		if err := schemapkg.Validate(s, raw); err != nil {
			lastErr = err
			continue
		}

		var value T
		if err := json.Unmarshal(raw, &value); err != nil {
			lastErr = fmt.Errorf("decode %s: %w", artifact, err)
			continue
		}
		return value, nil
	}

	return zero, &brief.SchemaViolation{Artifact: artifact, Attempts: attempts, Err: lastErr}
}

// extractFirstJSON attempts to find the first top-level JSON object in a
// string; models occasionally wrap the payload in prose or code fences.
func extractFirstJSON(s string) string {
	start := -1
	depth := 0
	for i, ch := range s {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return s
}
