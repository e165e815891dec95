package rebalance

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jazzypop/content-engine/internal/content"
)

func question(id, text, correct string) PoolItem {
	return PoolItem{
		SourcePackID: "src",
		Item: content.Item{
			ID:       id,
			Question: text,
			Answers:  []content.Answer{{Text: correct, Correct: true}, {Text: "decoy " + id}},
		},
	}
}

func TestCriteria_Apply(t *testing.T) {
	noCorrect := question("q4", "How many legs has a spider?", "8")
	noCorrect.Item.Answers[0].Correct = false

	pool := []PoolItem{
		question("q1", "What is the chemical symbol for gold?", "Au"),
		question("q2", "In your opinion, which planet is prettiest?", "Saturn"),
		question("q3", "  what is the chemical symbol for GOLD? ", "Gold"),
		noCorrect,
		question("q5", "Which element has atomic number 79?", " au "),
		question("q6", "What is the boiling point of water at sea level in Celsius?", "100"),
	}

	kept, dropped := DefaultCriteria().Apply(pool)

	var keptIDs, droppedIDs []string
	for _, pi := range kept {
		keptIDs = append(keptIDs, pi.Item.ID)
	}
	for _, pi := range dropped {
		droppedIDs = append(droppedIDs, pi.Item.ID)
	}
	assert.Equal(t, []string{"q1", "q6"}, keptIDs)
	assert.Equal(t, []string{"q2", "q3", "q4", "q5"}, droppedIDs)
}

func TestCriteria_NonQuestionItemsOnlyDeduplicated(t *testing.T) {
	pool := []PoolItem{
		{SourcePackID: "s", Item: content.Item{ID: "p1", Text: "I used to be a banker, but I lost interest."}},
		{SourcePackID: "s", Item: content.Item{ID: "p2", Text: "i used to be a banker, but i lost interest."}},
		{SourcePackID: "s", Item: content.Item{ID: "p3", Text: "Do you think this pun works?"}},
	}
	kept, dropped := DefaultCriteria().Apply(pool)
	require.Len(t, kept, 2)
	assert.Equal(t, "p1", kept[0].Item.ID)
	assert.Equal(t, "p3", kept[1].Item.ID)
	require.Len(t, dropped, 1)
	assert.Equal(t, "p2", dropped[0].Item.ID)
}

func TestCriteria_LengthLimits(t *testing.T) {
	long := question("long", "Why "+strings.Repeat("really ", 80)+"?", "because")
	explained := question("exp", "What colour is the sky?", "blue")
	explained.Item.Explanation = strings.Repeat("Rayleigh scattering ", 30)

	c := DefaultCriteria()
	kept, dropped := c.Apply([]PoolItem{long, explained})

	require.Len(t, dropped, 1)
	assert.Equal(t, "long", dropped[0].Item.ID)
	require.Len(t, kept, 1)
	exp := kept[0].Item.Explanation
	assert.True(t, strings.HasSuffix(exp, "..."))
	assert.LessOrEqual(t, len([]rune(exp)), c.MaxExplanationLen+3)
	assert.False(t, strings.HasSuffix(strings.TrimSuffix(exp, "..."), " "))
	// source pool item untouched
	assert.Len(t, explained.Item.Explanation, 20*30)
}

func TestTruncateWords(t *testing.T) {
	assert.Equal(t, "short", truncateWords("short", 10))
	assert.Equal(t, "hello...", truncateWords("hello world", 8))
	assert.Equal(t, "abcdefgh...", truncateWords("abcdefghijkl", 8))
}

func TestCriteriaPlanner_FiltersBeforePacking(t *testing.T) {
	a := makePack("a", scienceStandard, 8)
	b := makePack("b", scienceStandard, 5)
	// duplicate of a-i0 and an opinion question
	b.Items[0].Question = a.Items[0].Question
	b.Items[1].Question = "What is your favorite element?"

	planner := NewPoolPlanner(DefaultCriteria(), testOptions())
	plan := planner.Plan(scienceStandard, []content.Pack{a, b}, 10)

	assert.Equal(t, StrategyCriteria, plan.Strategy)
	assert.Len(t, plan.Dropped, 2)
	require.Len(t, plan.Created, 1)
	assert.Equal(t, 2, plan.Created[0].Metadata[content.MetaItemsDropped])
	assert.Len(t, plan.Orphans, 1)

	// dropped items are neither packed nor archived
	all := append(itemIDsOf(plan.Created), orphanIDs(plan.Orphans)...)
	assert.NotContains(t, all, "b-i0")
	assert.NotContains(t, all, "b-i1")
}
