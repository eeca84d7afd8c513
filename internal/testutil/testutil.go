// Package testutil provides shared fixtures for package tests: a small
// deterministic library snapshot and helpers for building loans.
package testutil

import (
	"time"

	"github.com/shelfwise/shelfwise/core"
)

// FixedNow is the reference clock used across fixtures.
var FixedNow = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

// Checkout returns a checkout date n days before FixedNow.
func Checkout(daysAgo int) time.Time {
	return FixedNow.AddDate(0, 0, -daysAgo)
}

// Returned wraps a return date for loan literals.
func Returned(daysAgo int) *time.Time {
	t := Checkout(daysAgo)
	return &t
}

// Snapshot builds a small catalog with enough overlap between borrowers to
// exercise co-occurrence scoring, series rotation and availability filters.
//
// Shape: S0001-S0004 share fantasy titles B0001-B0003; S0005 has no history.
// B0004/B0005 continue the "Embermark" series begun by B0003. B0006 is the
// lone mystery and the only OnHold copy.
func Snapshot() *core.Snapshot {
	return &core.Snapshot{
		TakenAt: FixedNow,
		Books: map[string]core.Book{
			"B0001": {
				ID: "B0001", Title: "The Hollow Crown", Author: "Mara Quill",
				Genre: "Fantasy", ReadingLevel: 4, Audience: "middle grade",
				Format: "paperback", Keywords: []string{"dragons", "castles"},
				SubjectTags: []string{"adventure"}, PublicationYear: 2018,
				Availability: core.Available,
			},
			"B0002": {
				ID: "B0002", Title: "Starlight Thief", Author: "Mara Quill",
				Genre: "Fantasy", ReadingLevel: 4, Audience: "middle grade",
				Format: "paperback", Keywords: []string{"heists", "magic"},
				SubjectTags: []string{"adventure"}, PublicationYear: 2020,
				Availability: core.CheckedOut,
			},
			"B0003": {
				ID: "B0003", Title: "Embermark", Author: "Talia Voss",
				Genre: "Fantasy", ReadingLevel: 5, Audience: "middle grade",
				Format: "hardcover", Series: "Embermark",
				Keywords: []string{"fire", "prophecy"}, PublicationYear: 2019,
				Availability: core.Available,
			},
			"B0004": {
				ID: "B0004", Title: "Embermark: Ashfall", Author: "Talia Voss",
				Genre: "Fantasy", ReadingLevel: 5, Audience: "middle grade",
				Format: "hardcover", Series: "Embermark",
				Keywords: []string{"fire", "war"}, PublicationYear: 2021,
				Availability: core.Available,
			},
			"B0005": {
				ID: "B0005", Title: "Embermark: Cinderwake", Author: "Talia Voss",
				Genre: "Fantasy", ReadingLevel: 5.5, Audience: "middle grade",
				Format: "hardcover", Series: "Embermark",
				Keywords: []string{"fire", "rebellion"}, PublicationYear: 2023,
				Availability: core.CheckedOut,
			},
			"B0006": {
				ID: "B0006", Title: "The Locked Atlas", Author: "Ren Okafor",
				Genre: "Mystery", ReadingLevel: 4.5, Audience: "middle grade",
				Format: "paperback", Keywords: []string{"maps", "puzzles"},
				SubjectTags: []string{"detective"}, PublicationYear: 2022,
				Availability: core.OnHold,
			},
		},
		Students: map[string]core.Student{
			"S0001": {ID: "S0001", Grade: 5, ReadingLevel: 4, Interests: []string{"dragons"}, PreferredGenres: []string{"Fantasy"}, AccountStatus: "active"},
			"S0002": {ID: "S0002", Grade: 5, ReadingLevel: 4.5, AccountStatus: "active"},
			"S0003": {ID: "S0003", Grade: 6, ReadingLevel: 5, AccountStatus: "active"},
			"S0004": {ID: "S0004", Grade: 6, ReadingLevel: 5, AccountStatus: "active"},
			"S0005": {ID: "S0005", Grade: 4, ReadingLevel: 3.5, AccountStatus: "active"},
		},
		Loans: []core.Loan{
			{ID: "L0001", StudentID: "S0001", BookID: "B0001", CheckoutDate: Checkout(60), ReturnDate: Returned(45), Grade: 5},
			{ID: "L0002", StudentID: "S0001", BookID: "B0003", CheckoutDate: Checkout(30), ReturnDate: Returned(16), Grade: 5},
			{ID: "L0003", StudentID: "S0002", BookID: "B0001", CheckoutDate: Checkout(55), ReturnDate: Returned(40), Grade: 5},
			{ID: "L0004", StudentID: "S0002", BookID: "B0002", CheckoutDate: Checkout(25), ReturnDate: Returned(10), Grade: 5},
			{ID: "L0005", StudentID: "S0003", BookID: "B0001", CheckoutDate: Checkout(50), ReturnDate: Returned(35), Grade: 6},
			{ID: "L0006", StudentID: "S0003", BookID: "B0003", CheckoutDate: Checkout(20), ReturnDate: Returned(6), Grade: 6},
			{ID: "L0007", StudentID: "S0003", BookID: "B0004", CheckoutDate: Checkout(5), Grade: 6},
			{ID: "L0008", StudentID: "S0004", BookID: "B0002", CheckoutDate: Checkout(40), ReturnDate: Returned(28), Grade: 6},
			{ID: "L0009", StudentID: "S0004", BookID: "B0006", CheckoutDate: Checkout(3), Grade: 6},
			// Re-read: S0001 borrowed B0001 twice; history must dedupe to the
			// latest checkout.
			{ID: "L0010", StudentID: "S0001", BookID: "B0001", CheckoutDate: Checkout(12), ReturnDate: Returned(2), Grade: 5},
		},
	}
}
