package ai

import (
	"errors"
	"testing"
)

func TestStripCodeFences(t *testing.T) {
	tests := map[string]string{
		"```json\n[1,2]\n```": "[1,2]",
		"```\n{\"a\":1}```":   `{"a":1}`,
		"  plain text  ":      "plain text",
	}
	for in, want := range tests {
		if got := StripCodeFences(in); got != want {
			t.Errorf("StripCodeFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	type card struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{name: "fenced array", in: "```json\n[{\"question\":\"q\",\"answer\":\"a\"}]\n```", want: 1},
		{name: "prose around array", in: "Here you go:\n[{\"question\":\"q\",\"answer\":\"a\"},{\"question\":\"q2\",\"answer\":\"a2\"}]\nEnjoy!", want: 2},
		{name: "not json", in: "I cannot help with that.", wantErr: true},
		{name: "empty", in: "```json\n```", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cards []card
			err := DecodeJSON(tc.in, &cards)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidJSON) {
					t.Fatalf("err = %v, want ErrInvalidJSON", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(cards) != tc.want {
				t.Fatalf("len = %d, want %d", len(cards), tc.want)
			}
		})
	}
}
