// Package llmjson decodes JSON produced by language models. Model output
// frequently arrives wrapped in markdown fences or with minor syntax
// damage; this package strips the wrapping and repairs the payload
// before giving up.
package llmjson

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// StripFences removes a surrounding markdown code fence, if present, and
// trims whitespace. Handles both ```json and bare ``` fences.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// Unmarshal decodes model output into v. The payload is fence-stripped
// first; if strict decoding fails, the text is run through jsonrepair
// and decoded again.
func Unmarshal(s string, v any) error {
	payload := StripFences(s)
	if err := json.Unmarshal([]byte(payload), v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(payload)
	if err != nil {
		return fmt.Errorf("repair json: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("decode repaired json: %w", err)
	}
	return nil
}
