// Package insights derives librarian-facing rollups from the catalog
// snapshot and the durable feedback and hold logs: what students rate
// highly, how genres are received and where the collection is under
// pressure. Everything here is a pure function of its inputs.
package insights

import (
	"fmt"
	"sort"

	"github.com/shelfwise/shelfwise/core"
)

// RatedBook is one book's aggregated feedback.
type RatedBook struct {
	BookID    string  `json:"book_id"`
	Title     string  `json:"title"`
	AvgRating float64 `json:"avg_rating"`
	Count     int     `json:"count"`
}

// GenreSentiment is the aggregated rating across a genre.
type GenreSentiment struct {
	Genre     string  `json:"genre"`
	AvgRating float64 `json:"avg_rating"`
	Count     int     `json:"count"`
}

// FeedbackInsights is the rollup served to librarians.
type FeedbackInsights struct {
	TotalEntries   int              `json:"total_entries"`
	AvgRating      float64          `json:"avg_rating"`
	TopRated       []RatedBook      `json:"top_rated"`
	GenreSentiment []GenreSentiment `json:"genre_sentiment"`
	RecentFeedback []core.FeedbackEntry `json:"recent_feedback"`
}

// Summarize aggregates the feedback log against the snapshot. TopRated lists
// up to limit books by average rating (ties by count desc, then id), and
// RecentFeedback holds the newest entries first.
func Summarize(snap *core.Snapshot, feedback []core.FeedbackEntry, limit int) FeedbackInsights {
	if limit <= 0 {
		limit = 5
	}
	out := FeedbackInsights{TotalEntries: len(feedback)}
	if len(feedback) == 0 {
		return out
	}

	bookSums := map[string]int{}
	bookCounts := map[string]int{}
	genreSums := map[string]int{}
	genreCounts := map[string]int{}
	var total int
	for _, e := range feedback {
		total += e.Rating
		bookSums[e.BookID] += e.Rating
		bookCounts[e.BookID]++
		if b, ok := snap.Books[e.BookID]; ok {
			genreSums[b.Genre] += e.Rating
			genreCounts[b.Genre]++
		}
	}
	out.AvgRating = float64(total) / float64(len(feedback))

	for id, count := range bookCounts {
		title := id
		if b, ok := snap.Books[id]; ok {
			title = b.Title
		}
		out.TopRated = append(out.TopRated, RatedBook{
			BookID:    id,
			Title:     title,
			AvgRating: float64(bookSums[id]) / float64(count),
			Count:     count,
		})
	}
	sort.Slice(out.TopRated, func(i, j int) bool {
		a, b := out.TopRated[i], out.TopRated[j]
		if a.AvgRating != b.AvgRating {
			return a.AvgRating > b.AvgRating
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.BookID < b.BookID
	})
	if len(out.TopRated) > limit {
		out.TopRated = out.TopRated[:limit]
	}

	for genre, count := range genreCounts {
		out.GenreSentiment = append(out.GenreSentiment, GenreSentiment{
			Genre:     genre,
			AvgRating: float64(genreSums[genre]) / float64(count),
			Count:     count,
		})
	}
	sort.Slice(out.GenreSentiment, func(i, j int) bool {
		a, b := out.GenreSentiment[i], out.GenreSentiment[j]
		if a.AvgRating != b.AvgRating {
			return a.AvgRating > b.AvgRating
		}
		return a.Genre < b.Genre
	})

	recent := make([]core.FeedbackEntry, len(feedback))
	copy(recent, feedback)
	sort.SliceStable(recent, func(i, j int) bool {
		if !recent[i].CreatedAt.Equal(recent[j].CreatedAt) {
			return recent[i].CreatedAt.After(recent[j].CreatedAt)
		}
		return recent[i].ID > recent[j].ID
	})
	if len(recent) > limit {
		recent = recent[:limit]
	}
	out.RecentFeedback = recent
	return out
}

// GenrePressure compares borrowing demand against holdings for one genre.
type GenrePressure struct {
	Genre    string  `json:"genre"`
	Holdings int     `json:"holdings"`
	Loans    int     `json:"loans"`
	Pressure float64 `json:"pressure"` // loans per held copy
}

// LevelPressure compares the students reading at a level against the titles
// held at that level.
type LevelPressure struct {
	ReadingLevel float64 `json:"reading_level"`
	Students     int     `json:"students"`
	Holdings     int     `json:"holdings"`
	Ratio        float64 `json:"ratio"` // students per held title
}

// AvailabilityHotspot is a genre with a high share of unavailable copies.
type AvailabilityHotspot struct {
	Genre           string  `json:"genre"`
	Unavailable     int     `json:"unavailable"`
	Holdings        int     `json:"holdings"`
	UnavailableRate float64 `json:"unavailable_rate"`
}

// HotBook is a high-demand title students cannot currently get.
type HotBook struct {
	Book        core.Book `json:"book"`
	Loans       int       `json:"loans"`
	ActiveHolds int       `json:"active_holds"`
}

// CollectionGaps is the purchasing-pressure report.
type CollectionGaps struct {
	GenrePressure         []GenrePressure       `json:"genre_pressure"`
	ReadingLevelPressure  []LevelPressure       `json:"reading_level_pressure"`
	AvailabilityHotspots  []AvailabilityHotspot `json:"availability_hotspots"`
	HighDemandUnavailable []HotBook             `json:"high_demand_unavailable"`
	Suggestions           []string              `json:"suggestions"`
}

// Gaps analyzes where demand outruns the collection: genres with the most
// loans per held copy and checked-out or held titles with the heaviest
// circulation.
func Gaps(snap *core.Snapshot, holds []core.Hold) CollectionGaps {
	holdings := map[string]int{}
	for _, b := range snap.Books {
		holdings[b.Genre]++
	}
	loansByGenre := map[string]int{}
	loansByBook := map[string]int{}
	for _, l := range snap.Loans {
		loansByBook[l.BookID]++
		if b, ok := snap.Books[l.BookID]; ok {
			loansByGenre[b.Genre]++
		}
	}
	activeHolds := map[string]int{}
	for _, h := range holds {
		if h.Status.Active() {
			activeHolds[h.BookID]++
		}
	}

	var gaps CollectionGaps
	for _, genre := range snap.Genres() {
		held := holdings[genre]
		if held == 0 {
			continue
		}
		gaps.GenrePressure = append(gaps.GenrePressure, GenrePressure{
			Genre:    genre,
			Holdings: held,
			Loans:    loansByGenre[genre],
			Pressure: float64(loansByGenre[genre]) / float64(held),
		})
	}
	sort.Slice(gaps.GenrePressure, func(i, j int) bool {
		a, b := gaps.GenrePressure[i], gaps.GenrePressure[j]
		if a.Pressure != b.Pressure {
			return a.Pressure > b.Pressure
		}
		return a.Genre < b.Genre
	})

	levelHoldings := map[float64]int{}
	for _, b := range snap.Books {
		levelHoldings[b.ReadingLevel]++
	}
	levelStudents := map[float64]int{}
	for _, s := range snap.Students {
		levelStudents[s.ReadingLevel]++
	}
	for level, students := range levelStudents {
		held := levelHoldings[level]
		ratio := float64(students)
		if held > 0 {
			ratio = float64(students) / float64(held)
		}
		gaps.ReadingLevelPressure = append(gaps.ReadingLevelPressure, LevelPressure{
			ReadingLevel: level,
			Students:     students,
			Holdings:     held,
			Ratio:        ratio,
		})
	}
	sort.Slice(gaps.ReadingLevelPressure, func(i, j int) bool {
		a, b := gaps.ReadingLevelPressure[i], gaps.ReadingLevelPressure[j]
		if a.Ratio != b.Ratio {
			return a.Ratio > b.Ratio
		}
		return a.ReadingLevel < b.ReadingLevel
	})

	unavailableByGenre := map[string]int{}
	for _, b := range snap.Books {
		if b.Availability != core.Available {
			unavailableByGenre[b.Genre]++
		}
	}
	for _, genre := range snap.Genres() {
		held := holdings[genre]
		if held == 0 {
			continue
		}
		gaps.AvailabilityHotspots = append(gaps.AvailabilityHotspots, AvailabilityHotspot{
			Genre:           genre,
			Unavailable:     unavailableByGenre[genre],
			Holdings:        held,
			UnavailableRate: float64(unavailableByGenre[genre]) / float64(held),
		})
	}
	sort.Slice(gaps.AvailabilityHotspots, func(i, j int) bool {
		a, b := gaps.AvailabilityHotspots[i], gaps.AvailabilityHotspots[j]
		if a.UnavailableRate != b.UnavailableRate {
			return a.UnavailableRate > b.UnavailableRate
		}
		return a.Genre < b.Genre
	})

	for _, id := range sortedIDs(snap) {
		b := snap.Books[id]
		if b.Availability == core.Available {
			continue
		}
		demand := loansByBook[id] + activeHolds[id]
		if demand < 2 {
			continue
		}
		gaps.HighDemandUnavailable = append(gaps.HighDemandUnavailable, HotBook{
			Book:        b,
			Loans:       loansByBook[id],
			ActiveHolds: activeHolds[id],
		})
	}
	sort.Slice(gaps.HighDemandUnavailable, func(i, j int) bool {
		a, b := gaps.HighDemandUnavailable[i], gaps.HighDemandUnavailable[j]
		da, db := a.Loans+a.ActiveHolds, b.Loans+b.ActiveHolds
		if da != db {
			return da > db
		}
		return a.Book.ID < b.Book.ID
	})

	for i, gp := range gaps.GenrePressure {
		if i >= 2 || gp.Pressure < 1 {
			break
		}
		gaps.Suggestions = append(gaps.Suggestions,
			fmt.Sprintf("%s sees %.1f loans per held copy; consider expanding the section.", gp.Genre, gp.Pressure))
	}
	if len(gaps.ReadingLevelPressure) > 0 {
		top := gaps.ReadingLevelPressure[0]
		if top.Ratio >= 1 {
			gaps.Suggestions = append(gaps.Suggestions,
				fmt.Sprintf("Level %.1f has %d readers but %d titles; expand that level's inventory.",
					top.ReadingLevel, top.Students, top.Holdings))
		}
	}
	if len(gaps.AvailabilityHotspots) > 0 {
		top := gaps.AvailabilityHotspots[0]
		if top.UnavailableRate > 0 {
			gaps.Suggestions = append(gaps.Suggestions,
				fmt.Sprintf("Reduce waitlists in %s (%.0f%% of copies unavailable).",
					top.Genre, top.UnavailableRate*100))
		}
	}
	for i, hb := range gaps.HighDemandUnavailable {
		if i >= 3 {
			break
		}
		gaps.Suggestions = append(gaps.Suggestions,
			fmt.Sprintf("%q is unavailable with %d loans and %d active holds; an extra copy would help.",
				hb.Book.Title, hb.Loans, hb.ActiveHolds))
	}
	return gaps
}

func sortedIDs(snap *core.Snapshot) []string {
	ids := make([]string, 0, len(snap.Books))
	for id := range snap.Books {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
