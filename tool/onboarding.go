package tool

import (
	"context"
	"fmt"
	"sort"

	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/internal/textutil"
)

// OnboardFromHistory drafts an onboarding profile from what a student has
// actually borrowed: top genres, modal reading level and recurring interest
// keywords. The draft is a suggestion only; nothing is persisted until the
// orchestrator confirms it through the profile write path.
type OnboardFromHistory struct{}

// OnboardingDraft is the suggested profile plus the evidence it was derived
// from.
type OnboardingDraft struct {
	Profile     core.OnboardingProfile `json:"profile"`
	GenreCounts map[string]int         `json:"genre_counts"`
	LoanCount   int                    `json:"loan_count"`
	Summary     string                 `json:"summary"`
}

func (t *OnboardFromHistory) Name() string { return NameOnboardFromHistory }

func (t *OnboardFromHistory) Description() string {
	return "Draft an onboarding profile from a student's borrowing history."
}

func (t *OnboardFromHistory) Mutating() bool { return false }

func (t *OnboardFromHistory) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"student_id": map[string]any{
				"type":        "string",
				"description": "Student identifier, e.g. S0042.",
			},
		},
		"required": []string{"student_id"},
	}
}

func (t *OnboardFromHistory) Invoke(_ context.Context, inv *Invocation) (*Result, error) {
	studentID := argString(inv.Args, "student_id")
	student, ok := inv.Snapshot.Students[studentID]
	if !ok {
		return nil, wrapError(NameOnboardFromHistory,
			core.NewValidationError("student_id", studentID, "unknown student"))
	}

	items := historyFor(inv.Snapshot, studentID)
	if len(items) == 0 {
		draft := OnboardingDraft{
			Profile: core.OnboardingProfile{
				StudentID:    studentID,
				ReadingLevel: student.ReadingLevel,
				Source:       "derived",
				CreatedAt:    inv.Now,
				UpdatedAt:    inv.Now,
			},
			GenreCounts: map[string]int{},
			Summary:     fmt.Sprintf("No loan history for %s; defaulting to roster reading level.", studentID),
		}
		return &Result{
			Data:     draft,
			Warnings: []string{"draft is based on roster data only"},
		}, nil
	}

	genreCounts := map[string]int{}
	levelCounts := map[float64]int{}
	keywordCounts := map[string]int{}
	for _, item := range items {
		genreCounts[item.Book.Genre]++
		levelCounts[item.Book.ReadingLevel]++
		for _, kw := range item.Book.Keywords {
			if n := textutil.Normalize(kw); n != "" {
				keywordCounts[n]++
			}
		}
		for _, tag := range item.Book.SubjectTags {
			if n := textutil.Normalize(tag); n != "" {
				keywordCounts[n]++
			}
		}
	}

	profile := core.OnboardingProfile{
		StudentID:       studentID,
		PreferredGenres: topCounted(genreCounts, 2),
		ReadingLevel:    modalLevel(levelCounts, student.ReadingLevel),
		Interests:       topCounted(keywordCounts, 4),
		Source:          "derived",
		CreatedAt:       inv.Now,
		UpdatedAt:       inv.Now,
	}

	draft := OnboardingDraft{
		Profile:     profile,
		GenreCounts: genreCounts,
		LoanCount:   len(items),
		Summary: fmt.Sprintf("Drafted from %d distinct titles: leans %v at level %.1f.",
			len(items), profile.PreferredGenres, profile.ReadingLevel),
	}
	return &Result{Data: draft}, nil
}

// topCounted returns the k highest-count keys, count desc then key asc.
func topCounted(counts map[string]int, k int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > k {
		keys = keys[:k]
	}
	return keys
}

// modalLevel picks the most frequent reading level, lowest level on ties,
// falling back to the roster level when no loans carry one.
func modalLevel(counts map[float64]int, fallback float64) float64 {
	best, bestCount := fallback, 0
	levels := make([]float64, 0, len(counts))
	for lvl := range counts {
		levels = append(levels, lvl)
	}
	sort.Float64s(levels)
	for _, lvl := range levels {
		if counts[lvl] > bestCount {
			best, bestCount = lvl, counts[lvl]
		}
	}
	return best
}
