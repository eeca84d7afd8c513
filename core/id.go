package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NewID generates a unique identifier for sessions and correlation.
func NewID() string { return uuid.NewString() }

// NewEventID generates an observability event id of the form EVT-<10 hex>.
func NewEventID() string {
	return "EVT-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// NextSequentialID returns the next display id for a prefix given the ids
// already allocated, e.g. NextSequentialID("H", ["H0001","H0002"]) == "H0003".
// Non-matching or non-numeric ids are skipped.
func NextSequentialID(prefix string, existing []string) string {
	max := 0
	for _, id := range existing {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		n, err := strconv.Atoi(id[len(prefix):])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%04d", prefix, max+1)
}
