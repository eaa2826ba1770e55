package live

import (
	"strings"
	"testing"
)

func TestBuildInstructions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		topic    Topic
		lang     string
		contains []string
		absent   []string
	}{
		{
			name:     "full topic",
			topic:    Topic{ID: "cafe", Title: "Ordering coffee", Instruction: "  You are a barista.  "},
			lang:     "German",
			contains: []string{"Topic: Ordering coffee.", "Scenario: You are a barista.\n", "explain briefly in German"},
		},
		{
			name:     "default language",
			topic:    Topic{ID: "x", Title: "Small talk"},
			contains: []string{"explain briefly in English"},
			absent:   []string{"Scenario:"},
		},
		{
			name:     "instruction only",
			topic:    Topic{ID: "y", Instruction: "Ask about the weather."},
			contains: []string{"Scenario: Ask about the weather."},
			absent:   []string{"Topic:"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := BuildInstructions(tt.topic, tt.lang)
			for _, s := range tt.contains {
				if !strings.Contains(got, s) {
					t.Errorf("missing %q in %q", s, got)
				}
			}
			for _, s := range tt.absent {
				if strings.Contains(got, s) {
					t.Errorf("unexpected %q in %q", s, got)
				}
			}
		})
	}
}
