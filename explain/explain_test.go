package explain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeClarificationWinsOutright(t *testing.T) {
	b := Bundle{
		Clarification: "Which student do you mean?",
		Facts:         []string{"should never appear"},
	}
	assert.Equal(t, "Which student do you mean?", Compose(b))
}

func TestComposeOrdersFactsWarningsErrors(t *testing.T) {
	b := Bundle{
		Facts:    []string{"Placed hold H0001 on Embermark.", "It expires in 7 days."},
		Warnings: []string{"the book is checked out right now"},
		Errors:   []string{"could not record feedback"},
	}
	got := Compose(b)
	assert.Equal(t,
		"Placed hold H0001 on Embermark.\nIt expires in 7 days.\nNote: the book is checked out right now\nSorry: could not record feedback",
		got)
}

func TestComposeEmptyBundle(t *testing.T) {
	assert.Equal(t, "I could not find anything for that request.", Compose(Bundle{}))
}

func TestUserPromptContainsDraft(t *testing.T) {
	b := Bundle{Intent: "recommend", StudentID: "S0001"}
	got := UserPrompt(b, "draft text")
	assert.Contains(t, got, "Intent: recommend")
	assert.Contains(t, got, "draft text")
}
