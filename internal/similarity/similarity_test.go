package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashContent_IgnoresWhitespaceAndCase(t *testing.T) {
	a := HashContent("Use   Context   For  Cancellation")
	b := HashContent("use context for cancellation")
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestHashContent_DiffersForDifferentContent(t *testing.T) {
	assert.NotEqual(t, HashContent("foo bar"), HashContent("baz qux"))
}

func TestJaccard_Properties(t *testing.T) {
	s := "always close database connections explicitly"
	assert.Equal(t, 1.0, Jaccard(s, s))
	assert.Equal(t, 0.0, Jaccard(s, ""))
	assert.Equal(t, Jaccard(s, "close connections always"), Jaccard("close connections always", s))
}

func TestJaccard_PartialOverlap(t *testing.T) {
	score := Jaccard("always close database connections", "always close network sockets")
	assert.Greater(t, score, 0.0)
	assert.Less(t, score, 1.0)
}

func TestJaccard_IgnoresStopWordsAndShortTokens(t *testing.T) {
	// "the", "and", "is" are stop words / too short; only "database"+"fast" matter.
	score := Jaccard("the database is fast", "database and fast")
	assert.Equal(t, 1.0, score)
}

func TestCosine_ZeroWhenEmptyOrMismatched(t *testing.T) {
	assert.Equal(t, 0.0, Cosine(nil, []float32{1, 2}))
	assert.Equal(t, 0.0, Cosine([]float32{1, 2, 3}, []float32{1, 2}))
}

func TestCosine_IdenticalVectorsAreOne(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, Cosine(v, v), 1e-9)
}

func TestCosine_OrthogonalVectorsAreZero(t *testing.T) {
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestFindSimilarBullet_PicksHighestAboveThreshold(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", Content: "always use context for cancellation", Order: 0},
		{ID: "b", Content: "always use context for cancellation signals", Order: 1},
		{ID: "c", Content: "totally unrelated content about pizza", Order: 2},
	}

	match, found := FindSimilarBullet(candidates, "always use context cancellation", 0.5)
	assert.True(t, found)
	assert.Contains(t, []string{"a", "b"}, match.ID)
}

func TestFindSimilarBullet_NoneAboveThreshold(t *testing.T) {
	candidates := []Candidate{{ID: "a", Content: "pizza", Order: 0}}
	_, found := FindSimilarBullet(candidates, "completely different topic here", 0.5)
	assert.False(t, found)
}

func TestFindSimilarBullet_TiesBreakByInsertionOrder(t *testing.T) {
	candidates := []Candidate{
		{ID: "second", Content: "alpha beta gamma delta", Order: 1},
		{ID: "first", Content: "alpha beta gamma delta", Order: 0},
	}
	match, found := FindSimilarBullet(candidates, "alpha beta gamma delta", 0.5)
	assert.True(t, found)
	assert.Equal(t, "first", match.ID)
}
