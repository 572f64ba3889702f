package search

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		name       string
		raw        string
		freeText   string
		labelCodes []string
		hashtags   []string
	}{
		{
			name:       "plain text",
			raw:        "panic attack notes",
			freeText:   "panic attack notes",
			labelCodes: []string{},
			hashtags:   []string{},
		},
		{
			name:       "mixed query",
			raw:        "anxiety #panic label:vip",
			freeText:   "anxiety",
			labelCodes: []string{"vip"},
			hashtags:   []string{"panic"},
		},
		{
			name:       "case folding and dedupe",
			raw:        "label:VIP label:vip #Panic #panic follow up",
			freeText:   "follow up",
			labelCodes: []string{"vip"},
			hashtags:   []string{"panic"},
		},
		{
			name:       "pure filter search",
			raw:        "label:chronic #insomnia",
			freeText:   "",
			labelCodes: []string{"chronic"},
			hashtags:   []string{"insomnia"},
		},
		{
			name:       "hashtag stops at separators",
			raw:        "#panic,#sleep review",
			freeText:   "review",
			labelCodes: []string{},
			hashtags:   []string{"panic", "sleep"},
		},
		{
			name:       "empty input",
			raw:        "   ",
			freeText:   "",
			labelCodes: []string{},
			hashtags:   []string{},
		},
		{
			name:       "label prefix inside a word is text",
			raw:        "mislabel:ed case",
			freeText:   "mislabel:ed case",
			labelCodes: []string{},
			hashtags:   []string{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			freeText, labelCodes, hashtags := Tokenize(tc.raw)
			if freeText != tc.freeText {
				t.Errorf("freeText = %q, want %q", freeText, tc.freeText)
			}
			if !reflect.DeepEqual(labelCodes, tc.labelCodes) {
				t.Errorf("labelCodes = %v, want %v", labelCodes, tc.labelCodes)
			}
			if !reflect.DeepEqual(hashtags, tc.hashtags) {
				t.Errorf("hashtags = %v, want %v", hashtags, tc.hashtags)
			}
		})
	}
}

// Re-tokenizing the free-text remainder must be a no-op: all filter tokens
// were extracted on the first pass.
func TestTokenizeIdempotent(t *testing.T) {
	inputs := []string{
		"anxiety #panic label:vip",
		"label:a label:b #x #y some words",
		"  spaced   out  #tag  ",
	}
	for _, raw := range inputs {
		freeText, _, _ := Tokenize(raw)
		again, labelCodes, hashtags := Tokenize(freeText)
		if again != freeText {
			t.Errorf("Tokenize(%q) freeText changed on second pass: %q -> %q", raw, freeText, again)
		}
		if len(labelCodes) != 0 || len(hashtags) != 0 {
			t.Errorf("Tokenize(%q) second pass extracted tokens: labels=%v hashtags=%v", raw, labelCodes, hashtags)
		}
	}
}
