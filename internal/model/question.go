package model

import "encoding/json"

// QuestionType classifies how a question is answered.
type QuestionType string

const (
	QuestionTypeSingle   QuestionType = "SINGLE"
	QuestionTypeMultiple QuestionType = "MULTIPLE"
	QuestionTypeInteger  QuestionType = "INTEGER"
)

// RawQuestion is one exam item as delivered by an upstream producer.
// Upstreams disagree on almost every field: options arrive as an array, a
// keyed object, or a JSON-encoded (sometimes doubly-encoded) string, and
// "no image" is variously null, "", the string "null", or a bare filename.
// The normalizer is the only consumer of this type.
type RawQuestion struct {
	ID            string          `json:"id"`
	Subject       string          `json:"subject"`
	Type          string          `json:"type"`
	Marks         float64         `json:"marks"`
	NegativeMarks float64         `json:"negative_marks"`
	MultiCorrect  bool            `json:"multi_correct"`
	Question      string          `json:"question"`
	QuestionMath  string          `json:"question_math"`
	QuestionImage string          `json:"question_image"`
	Options       json.RawMessage `json:"options"`
	OptionImages  []string        `json:"option_images"`
}

// OptionContent is the canonical {text, image} pair for one option.
type OptionContent struct {
	Key   string `json:"key"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// NormalizedQuestion is one exam item after normalization. Options keep
// their exam-defined order; palette indices rely on it.
type NormalizedQuestion struct {
	ID            string          `json:"id"`
	Subject       string          `json:"subject"`
	Type          QuestionType    `json:"type"`
	Marks         float64         `json:"marks"`
	NegativeMarks float64         `json:"negative_marks"`
	Prompt        string          `json:"prompt"`
	PromptImage   string          `json:"prompt_image,omitempty"`
	Options       []OptionContent `json:"options"`
}

// OptionKeys returns the option keys in order.
func (q *NormalizedQuestion) OptionKeys() []string {
	keys := make([]string, len(q.Options))
	for i := range q.Options {
		keys[i] = q.Options[i].Key
	}
	return keys
}

// HasOptionKey reports whether key is a valid option key for this question.
func (q *NormalizedQuestion) HasOptionKey(key string) bool {
	for i := range q.Options {
		if q.Options[i].Key == key {
			return true
		}
	}
	return false
}
