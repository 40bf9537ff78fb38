package ai

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidJSON means the model reply could not be decoded into the wanted shape.
var ErrInvalidJSON = errors.New("model response is not valid JSON")

var codeFence = regexp.MustCompile("```(?:json)?\\n?|```")

// StripCodeFences removes markdown code fences that models wrap JSON in.
func StripCodeFences(text string) string {
	return strings.TrimSpace(codeFence.ReplaceAllString(text, ""))
}

// DecodeJSON parses a model reply into out. It strips code fences first and,
// if the reply still has prose around the payload, retries on the outermost
// array or object span.
func DecodeJSON(text string, out any) error {
	cleaned := StripCodeFences(text)
	if cleaned == "" {
		return ErrInvalidJSON
	}
	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}
	for _, pair := range [][2]string{{"[", "]"}, {"{", "}"}} {
		start := strings.Index(cleaned, pair[0])
		end := strings.LastIndex(cleaned, pair[1])
		if start < 0 || end <= start {
			continue
		}
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), out); err == nil {
			return nil
		}
	}
	return ErrInvalidJSON
}
