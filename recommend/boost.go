package recommend

import (
	"sort"

	"github.com/shelfwise/shelfwise/core"
)

// DefaultFeedbackWeight is the default blend weight between the
// co-occurrence score and the per-book average rating. Deliberately a
// tunable, not a constant baked into the formula.
const DefaultFeedbackWeight = 1.0

// Boosted is a recommendation re-scored with feedback: the blended score is
// base + weight*(avg-3)/2, so a 3-star average is neutral, 5 stars adds the
// full weight and 1 star subtracts it.
type Boosted struct {
	Recommendation
	BaseScore     float64  `json:"base_score"`
	FeedbackBonus float64  `json:"feedback_bonus"`
	AvgRating     *float64 `json:"avg_rating,omitempty"`
	FeedbackCount int      `json:"feedback_count"`
}

// Boost re-scores the base recommendations with per-book average ratings and
// re-sorts by blended score, keeping the base order as the deterministic
// tie-break. Books with no feedback get a zero bonus.
func Boost(base []Recommendation, feedback []core.FeedbackEntry, weight float64) []Boosted {
	sums := map[string]int{}
	counts := map[string]int{}
	for _, e := range feedback {
		sums[e.BookID] += e.Rating
		counts[e.BookID]++
	}

	out := make([]Boosted, 0, len(base))
	for _, rec := range base {
		b := Boosted{Recommendation: rec, BaseScore: rec.Score}
		if n := counts[rec.Book.ID]; n > 0 {
			avg := float64(sums[rec.Book.ID]) / float64(n)
			b.AvgRating = &avg
			b.FeedbackCount = n
			b.FeedbackBonus = weight * (avg - 3) / 2
		}
		b.Score = b.BaseScore + b.FeedbackBonus
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
