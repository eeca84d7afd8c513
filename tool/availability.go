package tool

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/internal/textutil"
)

// Availability searches the catalog with a bias toward what a student can
// actually walk out with. Matches are token-scored against title, author,
// series, keywords and subject tags; available copies rank above checked-out
// and held ones.
type Availability struct{}

// AvailabilityMatch is one scored catalog hit.
type AvailabilityMatch struct {
	Book  core.Book `json:"book"`
	Score float64   `json:"score"`
}

func (a *Availability) Name() string { return NameAvailability }

func (a *Availability) Description() string {
	return "Search the catalog by query, genre, reading level and availability status."
}

func (a *Availability) Mutating() bool { return false }

func (a *Availability) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Free-text search over title, author, series and tags.",
			},
			"genre": map[string]any{
				"type":        "string",
				"description": "Restrict results to one genre.",
			},
			"availability": map[string]any{
				"type":        "string",
				"description": "Restrict to one availability status.",
				"enum":        []string{"available", "checked_out", "on_hold"},
			},
			"reading_level": map[string]any{
				"type":        "string",
				"description": "Reading level range such as '3-4' or a single level '3'.",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results. Defaults to 10.",
			},
		},
	}
}

func (a *Availability) Invoke(_ context.Context, inv *Invocation) (*Result, error) {
	query := argString(inv.Args, "query")
	genre := textutil.Normalize(argString(inv.Args, "genre"))
	status := parseAvailability(argString(inv.Args, "availability"))
	limit := argInt(inv.Args, "limit", 10)
	if limit <= 0 {
		limit = 10
	}

	minLevel, maxLevel, err := parseLevelRange(argString(inv.Args, "reading_level"))
	if err != nil {
		return nil, err
	}

	tokens := textutil.Tokenize(query)
	var matches []AvailabilityMatch
	var warnings []string
	for _, id := range sortedBookIDs(inv.Snapshot) {
		b := inv.Snapshot.Books[id]
		if genre != "" && textutil.Normalize(b.Genre) != genre {
			continue
		}
		if status != "" && b.Availability != status {
			continue
		}
		if minLevel > 0 && (b.ReadingLevel < minLevel || b.ReadingLevel > maxLevel) {
			continue
		}
		score := scoreBook(b, tokens)
		if len(tokens) > 0 && score == 0 {
			continue
		}
		// Holdable-now copies rank ahead of everything else.
		if b.Availability == core.Available {
			score += 0.5
		}
		matches = append(matches, AvailabilityMatch{Book: b, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Book.ID < matches[j].Book.ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	if len(matches) == 0 {
		warnings = append(warnings, "no catalog entries matched the search")
	}
	return &Result{Data: matches, Warnings: warnings}, nil
}

// scoreBook counts query-token hits across the searchable fields. Title hits
// weigh double.
func scoreBook(b core.Book, tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	title := textutil.Tokenize(b.Title)
	var rest []string
	rest = append(rest, textutil.Tokenize(b.Author)...)
	rest = append(rest, textutil.Tokenize(b.Series)...)
	for _, kw := range b.Keywords {
		rest = append(rest, textutil.Tokenize(kw)...)
	}
	for _, tag := range b.SubjectTags {
		rest = append(rest, textutil.Tokenize(tag)...)
	}

	var score float64
	for _, tok := range tokens {
		if textutil.TokenMatch(title, tok) {
			score += 2
		} else if textutil.TokenMatch(rest, tok) {
			score++
		}
	}
	return score
}

// parseAvailability maps the wire-level status argument to the snapshot
// enum. Unknown values mean no status filter; the schema enum rejects them
// before Invoke anyway.
func parseAvailability(s string) core.Availability {
	switch s {
	case "available":
		return core.Available
	case "checked_out":
		return core.CheckedOut
	case "on_hold":
		return core.OnHold
	default:
		return ""
	}
}

// parseLevelRange parses "3-4" into [3,4] and "3" into [3,3]. A zero min
// means no level filter.
func parseLevelRange(s string) (min, max float64, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}
	parts := strings.SplitN(s, "-", 2)
	min, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, core.NewValidationError("reading_level", s, "must look like '3' or '3-4'")
	}
	max = min
	if len(parts) == 2 {
		max, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return 0, 0, core.NewValidationError("reading_level", s, "must look like '3' or '3-4'")
		}
	}
	if max < min {
		min, max = max, min
	}
	return min, max, nil
}

func sortedBookIDs(snap *core.Snapshot) []string {
	ids := make([]string, 0, len(snap.Books))
	for id := range snap.Books {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
