package content

import (
	"encoding/json"
	"strings"
)

// Answer is one option of a question item.
type Answer struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Item is one question, quote, pun or joke inside a pack.
// Keys the platform does not model are carried in Extra and written back unchanged.
type Item struct {
	ID          string   `json:"id"`
	Position    int      `json:"position"`
	Question    string   `json:"question,omitempty"`
	Text        string   `json:"text,omitempty"`
	Answers     []Answer `json:"answers,omitempty"`
	Explanation string   `json:"explanation,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type itemFields Item

var itemKeys = []string{"id", "position", "question", "text", "answers", "explanation"}

// UnmarshalJSON decodes the modelled fields and keeps everything else in Extra.
func (it *Item) UnmarshalJSON(data []byte) error {
	var fields itemFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range itemKeys {
		delete(raw, k)
	}
	if len(raw) == 0 {
		raw = nil
	}
	*it = Item(fields)
	it.Extra = raw
	return nil
}

// MarshalJSON writes modelled fields over Extra.
func (it Item) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(itemFields(it))
	if err != nil {
		return nil, err
	}
	if len(it.Extra) == 0 {
		return base, nil
	}
	merged := make(map[string]json.RawMessage, len(it.Extra)+len(itemKeys))
	for k, v := range it.Extra {
		merged[k] = v
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(base, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Prompt returns the text a user sees first: the question, or the body for quotes and puns.
func (it Item) Prompt() string {
	if it.Question != "" {
		return it.Question
	}
	return it.Text
}

// CorrectAnswers lists the text of every answer marked correct.
func (it Item) CorrectAnswers() []string {
	var out []string
	for _, a := range it.Answers {
		if a.Correct {
			out = append(out, a.Text)
		}
	}
	return out
}

// HasCorrectAnswer reports whether at least one answer is marked correct.
func (it Item) HasCorrectAnswer() bool {
	for _, a := range it.Answers {
		if a.Correct {
			return true
		}
	}
	return false
}

// NormalizeText lowercases and trims s for exact duplicate matching.
func NormalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
