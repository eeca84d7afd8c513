package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "the hollow crown", Normalize("The Hollow Crown!"))
	assert.Equal(t, "embermark ashfall", Normalize("  Embermark: Ashfall  "))
	assert.Equal(t, "4-5", Normalize("4-5"))
	assert.Equal(t, "", Normalize("?!"))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"starlight", "thief"}, Tokenize("Starlight Thief?"))
	assert.Empty(t, Tokenize("  ,  "))
}

func TestTokenMatch(t *testing.T) {
	tokens := []string{"the", "hollow", "crown", "dragons", "maps", "p", "at"}

	assert.True(t, TokenMatch(tokens, "hollow"))
	assert.True(t, TokenMatch(tokens, "dragon"))
	assert.True(t, TokenMatch(tokens, "map"))

	assert.False(t, TokenMatch(tokens, "dread"))
	assert.False(t, TokenMatch(tokens, "please"))
	assert.False(t, TokenMatch(tokens, "atlas"))
	assert.False(t, TokenMatch(nil, "maps"))
	assert.False(t, TokenMatch(tokens, ""))
}

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"fire", "prophecy"}, SplitTags("fire; prophecy"))
	assert.Equal(t, []string{"a", "b", "c"}, SplitTags("a,b|c"))
	assert.Nil(t, SplitTags(""))
	assert.Nil(t, SplitTags(" ; "))
}

func TestContainsNormalized(t *testing.T) {
	assert.True(t, ContainsNormalized("The Hollow Crown", "hollow crown"))
	assert.True(t, ContainsNormalized("Embermark: Ashfall", "embermark ashfall"))
	assert.False(t, ContainsNormalized("The Hollow Crown", "atlas"))
	assert.False(t, ContainsNormalized("anything", ""))
}