// Package normalize converts heterogeneous upstream question payloads into
// the canonical shape the attempt engine works with. Exams are authored by
// three producers (manual entry, AI generation, external search) that encode
// options and images differently; everything downstream sees only the
// canonical form produced here.
package normalize

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/prepnest/attempt-backend/internal/model"
)

// optionKeyAlphabet generates option keys for positional (array) options.
const optionKeyAlphabet = "abcdefghijklmnopqrstuvwxyz"

// Normalizer resolves raw questions into model.NormalizedQuestion values.
// AssetBaseURL is prepended to bare image filenames that cannot be resolved
// positionally; when empty, unresolvable filenames degrade to no image.
type Normalizer struct {
	AssetBaseURL string
}

// Normalize converts a raw question into its canonical form. It is pure and
// never fails: unrecognized shapes degrade to the safest empty value so one
// malformed item cannot block the rest of the paper.
func (n *Normalizer) Normalize(raw model.RawQuestion) model.NormalizedQuestion {
	entries := resolveOptionSet(raw.Options)

	options := make([]model.OptionContent, 0, len(entries))
	for i, entry := range entries {
		text, image := decodeOptionContent(entry.value)
		image = n.resolveImage(image, raw.OptionImages, i)
		options = append(options, model.OptionContent{Key: entry.key, Text: text, Image: image})
	}

	qType := classify(raw.Type, raw.MultiCorrect, len(options))
	if qType == model.QuestionTypeInteger {
		// An integer question never carries options, whatever upstream sent.
		options = nil
	}

	prompt := raw.QuestionMath
	if prompt == "" {
		prompt = raw.Question
	}

	return model.NormalizedQuestion{
		ID:            raw.ID,
		Subject:       raw.Subject,
		Type:          qType,
		Marks:         raw.Marks,
		NegativeMarks: raw.NegativeMarks,
		Prompt:        prompt,
		PromptImage:   n.resolveImage(raw.QuestionImage, nil, -1),
		Options:       options,
	}
}

// NormalizeAll maps Normalize over a whole paper, preserving order.
func (n *Normalizer) NormalizeAll(raws []model.RawQuestion) []model.NormalizedQuestion {
	out := make([]model.NormalizedQuestion, len(raws))
	for i, raw := range raws {
		out[i] = n.Normalize(raw)
	}
	return out
}

// optionEntry pairs an option key with its still-raw value.
type optionEntry struct {
	key   string
	value json.RawMessage
}

// resolveOptionSet turns whatever shape the options field arrived in — an
// ordered array, a keyed object, a JSON-encoded string, or garbage — into an
// ordered list of (key, raw value) pairs. Unparseable input yields an empty
// set rather than an error.
func resolveOptionSet(raw json.RawMessage) []optionEntry {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	var asList []json.RawMessage
	if err := json.Unmarshal(raw, &asList); err == nil {
		entries := make([]optionEntry, 0, len(asList))
		for i, v := range asList {
			if i >= len(optionKeyAlphabet) {
				break
			}
			entries = append(entries, optionEntry{key: string(optionKeyAlphabet[i]), value: v})
		}
		return entries
	}

	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err == nil {
		keys := make([]string, 0, len(asMap))
		for k := range asMap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]optionEntry, 0, len(keys))
		for _, k := range keys {
			entries = append(entries, optionEntry{key: k, value: asMap[k]})
		}
		return entries
	}

	// Some producers JSON-encode the whole collection into a string.
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if strings.HasPrefix(asString, "{") || strings.HasPrefix(asString, "[") {
			return resolveOptionSet(json.RawMessage(asString))
		}
	}

	return nil
}

// optionFields is the superset of per-option fields seen across producers.
type optionFields struct {
	Math    string `json:"math"`
	Text    string `json:"text"`
	Content string `json:"content"`
	Image   string `json:"image"`
}

// decodeOptionContent extracts the text and image of a single option value.
// The value may be a plain string, a JSON-encoded string one level deeper
// (double-encoded upstream), or an object carrying math/text/image fields.
// The math field wins over plain text when both are present.
func decodeOptionContent(raw json.RawMessage) (text, image string) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		inner := strings.TrimSpace(asString)
		if strings.HasPrefix(inner, "{") || strings.HasPrefix(inner, "[") {
			var fields optionFields
			if err := json.Unmarshal([]byte(inner), &fields); err == nil {
				return pickText(fields), fields.Image
			}
		}
		return asString, ""
	}

	var fields optionFields
	if err := json.Unmarshal(raw, &fields); err == nil {
		return pickText(fields), fields.Image
	}

	return "", ""
}

func pickText(f optionFields) string {
	if f.Math != "" {
		return f.Math
	}
	if f.Text != "" {
		return f.Text
	}
	return f.Content
}

// ValidImageRef reports whether s plausibly references an image. Upstreams
// represent "no image" as null, "", the literal string "null", or a couple
// of junk characters; anything shorter than 6 runes is rejected wholesale.
func ValidImageRef(s string) bool {
	return s != "" && s != "null" && len(s) > 5
}

// resolveImage applies the validity rule and resolves bare filenames.
// Filenames are first looked up positionally in the parallel image-reference
// list (index < 0 skips the lookup), then anchored under the asset base URL.
// A filename that cannot be resolved either way degrades to no image — the
// engine must never hand the client a raw filename.
func (n *Normalizer) resolveImage(ref string, positional []string, index int) string {
	if !ValidImageRef(ref) {
		return ""
	}
	if isAbsoluteRef(ref) {
		return ref
	}
	if index >= 0 && index < len(positional) && ValidImageRef(positional[index]) && isAbsoluteRef(positional[index]) {
		return positional[index]
	}
	if n.AssetBaseURL != "" {
		return strings.TrimRight(n.AssetBaseURL, "/") + "/" + ref
	}
	return ""
}

func isAbsoluteRef(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "/")
}

// classify decides the question type. Explicit INTEGER/NUMERICAL markers
// win; an empty option set implies an integer answer; an explicit multi
// marker yields MULTIPLE; everything else is SINGLE. This rule is relied on
// silently by the rest of the pipeline, so it lives here and nowhere else.
func classify(typeTag string, multiCorrect bool, optionCount int) model.QuestionType {
	tag := strings.ToUpper(strings.TrimSpace(typeTag))
	switch {
	case strings.Contains(tag, "INTEGER") || strings.Contains(tag, "NUMERICAL"):
		return model.QuestionTypeInteger
	case optionCount == 0:
		return model.QuestionTypeInteger
	case multiCorrect || strings.Contains(tag, "MULTIPLE") || strings.Contains(tag, "MULTI"):
		return model.QuestionTypeMultiple
	default:
		return model.QuestionTypeSingle
	}
}
