package profile

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("```(?:json)?")

// BuildExtractionPrompt asks the model to extract only the named fields from
// the transcript and answer with a bare JSON object.
func BuildExtractionPrompt(fieldNames []string, transcript string) string {
	var b strings.Builder
	b.WriteString("You extract customer information from a support conversation.\n\n")
	b.WriteString("Conversation:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nReturn a JSON object with exactly these keys:\n")
	example := make(map[string]string, len(fieldNames))
	for _, name := range fieldNames {
		fmt.Fprintf(&b, "- %s: the customer's %s if stated\n", name, strings.ToLower(name))
		example[name] = "<" + name + ">"
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Use only the keys listed above.\n")
	b.WriteString("- Use null when the conversation does not contain the value.\n")
	b.WriteString("- Reply with JSON only, no markdown.\n\n")
	raw, _ := json.MarshalIndent(example, "", "  ")
	b.WriteString("Example:\n")
	b.Write(raw)
	b.WriteString("\n")
	return b.String()
}

// ParseExtraction decodes a model answer, tolerating code fences, and keeps
// only the configured fields.
func ParseExtraction(raw string, fieldNames []string) (map[string]any, error) {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(raw, ""))
	if start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, fmt.Errorf("parse extraction: %w", err)
	}
	allowed := make(map[string]struct{}, len(fieldNames))
	for _, name := range fieldNames {
		allowed[name] = struct{}{}
	}
	out := make(map[string]any, len(decoded))
	for k, v := range decoded {
		if _, ok := allowed[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}
