// Package explain turns an orchestrator context bundle into the reply text a
// student or librarian reads. The deterministic composer is the source of
// truth; an optional model-backed Explainer may rephrase it but never adds
// facts, and every failure falls back to the composed text.
package explain

import (
	"context"
	"fmt"
	"strings"
)

// Bundle is the closed set of facts a reply may state. Everything in it came
// from tool results or the recommender; nothing else may appear in the reply.
type Bundle struct {
	Intent        string
	StudentID     string
	Clarification string
	Facts         []string
	Warnings      []string
	Errors        []string
}

// Explainer rewrites a composed reply in a friendlier register. Implementations
// must treat the bundle as exhaustive: restating and reordering is fine,
// inventing is not.
type Explainer interface {
	Explain(ctx context.Context, b Bundle, composed string) (string, error)
}

// Compose renders the deterministic reply: clarification verbatim, then
// facts in order, then warnings, then errors. The output is what ships when
// no Explainer is configured or the Explainer fails.
func Compose(b Bundle) string {
	if b.Clarification != "" {
		return b.Clarification
	}

	var sb strings.Builder
	for _, f := range b.Facts {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(f)
	}
	for _, w := range b.Warnings {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Note: " + w)
	}
	for _, e := range b.Errors {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Sorry: " + e)
	}
	if sb.Len() == 0 {
		return "I could not find anything for that request."
	}
	return sb.String()
}

// SystemPrompt constrains a model-backed Explainer to the bundle contents.
// Shared by the provider adapters.
const SystemPrompt = `You are a friendly school library concierge. Rewrite the
draft reply below in a warm, concise voice suitable for students and
librarians. You must only state facts present in the draft. Do not invent
titles, availability, ratings or policies. Keep book titles and identifiers
exactly as written. Answer with the rewritten reply only.`

// UserPrompt renders the adapter request body for a bundle and its composed
// draft.
func UserPrompt(b Bundle, composed string) string {
	return fmt.Sprintf("Intent: %s\nStudent: %s\n\nDraft reply:\n%s", b.Intent, b.StudentID, composed)
}
