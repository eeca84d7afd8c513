package recommend

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/internal/testutil"
)

func TestRecommendCoOccurrence(t *testing.T) {
	r := New(testutil.Snapshot())

	// S0001 borrowed B0001 and B0003; the cohort is S0002 and S0003.
	recs := r.Recommend("S0001", 3, Filters{})
	require.Len(t, recs, 3)

	assert.Equal(t, "B0004", recs[0].Book.ID)
	assert.InDelta(t, 1/math.Sqrt2, recs[0].Score, 1e-9)
	require.NotNil(t, recs[0].SimilarTo)
	assert.Equal(t, "B0001", recs[0].SimilarTo.ID)
	assert.Contains(t, recs[0].Reason, "The Hollow Crown")

	assert.Equal(t, "B0002", recs[1].Book.ID)
	assert.InDelta(t, 0.5, recs[1].Score, 1e-9)

	// Nothing else scores, so popularity tops up the third slot.
	assert.Equal(t, "B0006", recs[2].Book.ID)
	assert.Equal(t, FallbackReason, recs[2].Reason)
}

func TestRecommendNeverReturnsBorrowed(t *testing.T) {
	r := New(testutil.Snapshot())
	recs := r.Recommend("S0001", 6, Filters{ExcludeBorrowed: true})
	for _, rec := range recs {
		assert.NotContains(t, []string{"B0001", "B0003"}, rec.Book.ID)
	}
}

func TestRecommendNoHistoryFallsBackToPopularity(t *testing.T) {
	r := New(testutil.Snapshot())

	recs := r.Recommend("S0005", 3, Filters{})
	require.Len(t, recs, 3)

	// Loan counts: B0001 four, B0002 and B0003 two each (id tie-break).
	assert.Equal(t, "B0001", recs[0].Book.ID)
	assert.InDelta(t, 0.4, recs[0].Score, 1e-9)
	assert.Equal(t, "B0002", recs[1].Book.ID)
	assert.Equal(t, "B0003", recs[2].Book.ID)
	for _, rec := range recs {
		assert.Equal(t, FallbackReason, rec.Reason)
		assert.Nil(t, rec.SimilarTo)
	}
}

func TestRecommendAvailabilityFilter(t *testing.T) {
	r := New(testutil.Snapshot())

	recs := r.Recommend("S0005", 5, Filters{Availability: core.Available})
	require.Len(t, recs, 3)
	for _, rec := range recs {
		assert.Equal(t, core.Available, rec.Book.Availability)
	}
	assert.Equal(t, "B0001", recs[0].Book.ID)
}

func TestRecommendGenreFilter(t *testing.T) {
	r := New(testutil.Snapshot())

	// The only mystery shares no cohort with S0001, so it arrives via the
	// popularity top-up rather than a co-occurrence score.
	recs := r.Recommend("S0001", 3, Filters{Genre: "Mystery"})
	require.Len(t, recs, 1)
	assert.Equal(t, "B0006", recs[0].Book.ID)
	assert.Equal(t, FallbackReason, recs[0].Reason)
}

func TestRecommendZeroK(t *testing.T) {
	r := New(testutil.Snapshot())
	assert.Empty(t, r.Recommend("S0001", 0, Filters{}))
}

func TestRecommendUnknownStudent(t *testing.T) {
	r := New(testutil.Snapshot())

	// No history means the popularity fallback, never an error.
	recs := r.Recommend("S9999", 2, Filters{})
	require.Len(t, recs, 2)
	assert.Equal(t, "B0001", recs[0].Book.ID)
}

// Identical inputs must produce identical output, byte for byte, regardless
// of map iteration order inside the snapshot.
func TestRecommendDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		studentID := rapid.SampledFrom([]string{"S0001", "S0002", "S0003", "S0004", "S0005"}).Draw(t, "student")
		k := rapid.IntRange(1, 6).Draw(t, "k")
		f := Filters{ExcludeBorrowed: rapid.Bool().Draw(t, "excludeBorrowed")}
		if rapid.Bool().Draw(t, "genreFilter") {
			f.Genre = rapid.SampledFrom([]string{"Fantasy", "Mystery"}).Draw(t, "genre")
		}

		first := New(testutil.Snapshot()).Recommend(studentID, k, f)
		second := New(testutil.Snapshot()).Recommend(studentID, k, f)
		require.Equal(t, first, second)

		assert.LessOrEqual(t, len(first), k)
		seen := map[string]bool{}
		for _, rec := range first {
			assert.False(t, seen[rec.Book.ID], "duplicate recommendation %s", rec.Book.ID)
			seen[rec.Book.ID] = true
		}
	})
}
