package rebalance

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jazzypop/content-engine/internal/content"
)

var defaultOpinionPhrases = []string{
	"in your opinion",
	"do you think",
	"do you believe",
	"do you prefer",
	"would you rather",
	"your favorite",
	"your favourite",
	"which is the best",
	"what is the best",
	"who is the best",
	"the most beautiful",
	"the greatest of all time",
	"should you",
}

// Criteria is the quality filter applied by the criteria rebalancer.
// Question checks only apply to items that carry a question.
type Criteria struct {
	OpinionPhrases    []string
	RequireCorrect    bool
	DedupQuestions    bool
	DedupAnswers      bool
	MaxQuestionLen    int
	MaxExplanationLen int
}

var _ Filter = Criteria{}

// DefaultCriteria enables every check with the platform's length limits.
func DefaultCriteria() Criteria {
	return Criteria{
		OpinionPhrases:    defaultOpinionPhrases,
		RequireCorrect:    true,
		DedupQuestions:    true,
		DedupAnswers:      true,
		MaxQuestionLen:    300,
		MaxExplanationLen: 280,
	}
}

// Apply keeps the first occurrence of each acceptable item in pool order.
func (c Criteria) Apply(pool []PoolItem) (kept, dropped []PoolItem) {
	questions := make(map[string]bool)
	answers := make(map[string]bool)
	for _, pi := range pool {
		if reason := c.reject(pi.Item, questions, answers); reason != "" {
			dropped = append(dropped, pi)
			continue
		}
		if c.MaxExplanationLen > 0 {
			pi.Item.Explanation = truncateWords(pi.Item.Explanation, c.MaxExplanationLen)
		}
		kept = append(kept, pi)
	}
	return kept, dropped
}

func (c Criteria) reject(it content.Item, questions, answers map[string]bool) string {
	prompt := content.NormalizeText(it.Prompt())
	isQuestion := it.Question != ""

	if isQuestion && c.isOpinion(prompt) {
		return "opinion"
	}
	if isQuestion && c.RequireCorrect && !it.HasCorrectAnswer() {
		return "no_correct_answer"
	}
	if isQuestion && c.MaxQuestionLen > 0 && utf8.RuneCountInString(it.Question) > c.MaxQuestionLen {
		return "question_too_long"
	}
	if c.DedupQuestions && prompt != "" {
		if questions[prompt] {
			return "duplicate_question"
		}
	}
	answerKey := correctAnswerKey(it)
	if c.DedupAnswers && answerKey != "" {
		if answers[answerKey] {
			return "duplicate_answer"
		}
	}
	if prompt != "" {
		questions[prompt] = true
	}
	if answerKey != "" {
		answers[answerKey] = true
	}
	return ""
}

func (c Criteria) isOpinion(prompt string) bool {
	for _, phrase := range c.OpinionPhrases {
		if strings.Contains(prompt, phrase) {
			return true
		}
	}
	return false
}

func correctAnswerKey(it content.Item) string {
	correct := it.CorrectAnswers()
	if len(correct) == 0 {
		return ""
	}
	for i := range correct {
		correct[i] = content.NormalizeText(correct[i])
	}
	sort.Strings(correct)
	return strings.Join(correct, "\x00")
}

// truncateWords cuts s to at most limit runes, backing up to the last space when one exists.
func truncateWords(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + "..."
}
