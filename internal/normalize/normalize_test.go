package normalize

import (
	"encoding/json"
	"testing"

	"github.com/prepnest/attempt-backend/internal/model"
)

func TestNormalizeArrayOptions(t *testing.T) {
	n := &Normalizer{}
	q := n.Normalize(model.RawQuestion{
		ID:       "q1",
		Type:     "MCQ",
		Question: "What is 2+2?",
		Options:  json.RawMessage(`["3","4","5","6"]`),
	})

	if q.Type != model.QuestionTypeSingle {
		t.Fatalf("type = %s, want SINGLE", q.Type)
	}
	if len(q.Options) != 4 {
		t.Fatalf("got %d options, want 4", len(q.Options))
	}
	wantKeys := []string{"a", "b", "c", "d"}
	for i, opt := range q.Options {
		if opt.Key != wantKeys[i] {
			t.Errorf("option %d key = %q, want %q", i, opt.Key, wantKeys[i])
		}
	}
	if q.Options[1].Text != "4" {
		t.Errorf("option b text = %q, want %q", q.Options[1].Text, "4")
	}
}

func TestNormalizeKeyedObjectOptions(t *testing.T) {
	n := &Normalizer{}
	q := n.Normalize(model.RawQuestion{
		ID:      "q1",
		Options: json.RawMessage(`{"b":"beta","a":"alpha","c":"gamma"}`),
	})

	// Keys must come out sorted regardless of map order.
	wantKeys := []string{"a", "b", "c"}
	wantText := []string{"alpha", "beta", "gamma"}
	if len(q.Options) != 3 {
		t.Fatalf("got %d options, want 3", len(q.Options))
	}
	for i, opt := range q.Options {
		if opt.Key != wantKeys[i] || opt.Text != wantText[i] {
			t.Errorf("option %d = {%q %q}, want {%q %q}", i, opt.Key, opt.Text, wantKeys[i], wantText[i])
		}
	}
}

func TestNormalizeStringEncodedOptions(t *testing.T) {
	n := &Normalizer{}

	// The whole collection JSON-encoded into a string.
	q := n.Normalize(model.RawQuestion{
		Options: json.RawMessage(`"[\"x\",\"y\"]"`),
	})
	if len(q.Options) != 2 || q.Options[0].Text != "x" || q.Options[1].Text != "y" {
		t.Fatalf("string-encoded array not resolved: %+v", q.Options)
	}

	// Per-option object with math preferred over text.
	q = n.Normalize(model.RawQuestion{
		Options: json.RawMessage(`[{"math":"\\frac{1}{2}","text":"one half"},{"text":"two"}]`),
	})
	if q.Options[0].Text != `\frac{1}{2}` {
		t.Errorf("math field should win, got %q", q.Options[0].Text)
	}
	if q.Options[1].Text != "two" {
		t.Errorf("text fallback broken, got %q", q.Options[1].Text)
	}

	// Double-encoded per-option object.
	q = n.Normalize(model.RawQuestion{
		Options: json.RawMessage(`["{\"content\":\"inner\"}"]`),
	})
	if q.Options[0].Text != "inner" {
		t.Errorf("double-encoded option not decoded, got %q", q.Options[0].Text)
	}
}

func TestNormalizeGarbageOptionsDegrade(t *testing.T) {
	n := &Normalizer{}
	for _, raw := range []string{``, `null`, `12.5`, `"not json at all"`} {
		q := n.Normalize(model.RawQuestion{ID: "q1", Options: json.RawMessage(raw)})
		if len(q.Options) != 0 {
			t.Errorf("options %q: expected empty set, got %+v", raw, q.Options)
		}
		// No options means the question degrades to integer entry.
		if q.Type != model.QuestionTypeInteger {
			t.Errorf("options %q: type = %s, want INTEGER", raw, q.Type)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		typeTag string
		multi   bool
		count   int
		want    model.QuestionType
	}{
		{"explicit integer", "INTEGER", false, 4, model.QuestionTypeInteger},
		{"numerical marker wins over options", "numerical_value", true, 4, model.QuestionTypeInteger},
		{"no options implies integer", "MCQ", false, 0, model.QuestionTypeInteger},
		{"multi flag", "", true, 4, model.QuestionTypeMultiple},
		{"multiple tag", "MULTIPLE_CORRECT", false, 4, model.QuestionTypeMultiple},
		{"default single", "MCQ", false, 4, model.QuestionTypeSingle},
		{"unknown tag single", "whatever", false, 2, model.QuestionTypeSingle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.typeTag, tt.multi, tt.count); got != tt.want {
				t.Errorf("classify(%q, %v, %d) = %s, want %s", tt.typeTag, tt.multi, tt.count, got, tt.want)
			}
		})
	}
}

func TestIntegerQuestionDropsOptions(t *testing.T) {
	n := &Normalizer{}
	q := n.Normalize(model.RawQuestion{
		Type:    "INTEGER",
		Options: json.RawMessage(`["1","2","3"]`),
	})
	if q.Options != nil {
		t.Fatalf("integer question kept options: %+v", q.Options)
	}
}

func TestPromptPrefersMath(t *testing.T) {
	n := &Normalizer{}
	q := n.Normalize(model.RawQuestion{
		Question:     "plain",
		QuestionMath: `$x^2$`,
		Options:      json.RawMessage(`["a"]`),
	})
	if q.Prompt != `$x^2$` {
		t.Errorf("prompt = %q, want math variant", q.Prompt)
	}

	q = n.Normalize(model.RawQuestion{Question: "plain", Options: json.RawMessage(`["a"]`)})
	if q.Prompt != "plain" {
		t.Errorf("prompt = %q, want plain fallback", q.Prompt)
	}
}

func TestValidImageRef(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"", false},
		{"null", false},
		{"x.png", false}, // too short to be a real reference
		{"ab.js", false},
		{"https://cdn.example.com/q1.png", true},
		{"diagram-1.png", true},
	}
	for _, tt := range tests {
		if got := ValidImageRef(tt.ref); got != tt.want {
			t.Errorf("ValidImageRef(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}

func TestResolveImage(t *testing.T) {
	n := &Normalizer{AssetBaseURL: "https://cdn.example.com/exams/"}

	q := n.Normalize(model.RawQuestion{
		QuestionImage: "figure.png",
		Options:       json.RawMessage(`["a","b"]`),
	})
	if q.PromptImage != "https://cdn.example.com/exams/figure.png" {
		t.Errorf("prompt image = %q, want base-anchored URL", q.PromptImage)
	}

	// Absolute references pass through untouched.
	q = n.Normalize(model.RawQuestion{
		QuestionImage: "https://other.example.com/fig.png",
	})
	if q.PromptImage != "https://other.example.com/fig.png" {
		t.Errorf("absolute prompt image rewritten: %q", q.PromptImage)
	}

	// Positional lookup for option images.
	q = n.Normalize(model.RawQuestion{
		Options:      json.RawMessage(`[{"text":"a","image":"opt-a.png"},{"text":"b"}]`),
		OptionImages: []string{"https://cdn.example.com/real-a.png", ""},
	})
	if q.Options[0].Image != "https://cdn.example.com/real-a.png" {
		t.Errorf("option image = %q, want positional resolution", q.Options[0].Image)
	}
	if q.Options[1].Image != "" {
		t.Errorf("option without image resolved to %q", q.Options[1].Image)
	}

	// No base URL and no positional match: degrade to no image, never leak
	// the raw filename.
	bare := &Normalizer{}
	q = bare.Normalize(model.RawQuestion{QuestionImage: "figure.png"})
	if q.PromptImage != "" {
		t.Errorf("unresolvable filename leaked: %q", q.PromptImage)
	}
}

func TestNormalizeAllPreservesOrder(t *testing.T) {
	n := &Normalizer{}
	raws := []model.RawQuestion{
		{ID: "q3", Options: json.RawMessage(`["a"]`)},
		{ID: "q1", Options: json.RawMessage(`["a"]`)},
		{ID: "q2", Options: json.RawMessage(`["a"]`)},
	}
	out := n.NormalizeAll(raws)
	if len(out) != 3 || out[0].ID != "q3" || out[1].ID != "q1" || out[2].ID != "q2" {
		t.Fatalf("paper order not preserved: %+v", out)
	}
}
