package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/livetutor/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Topics: []config.TopicConfig{{ID: "cafe", Title: "Ordering coffee"}},
	}
	d := config.Diff(cfg, cfg)
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.Empty() {
		t.Error("Empty() = true, want false")
	}
}

func TestDiff_Topics(t *testing.T) {
	t.Parallel()
	old := &config.Config{Topics: []config.TopicConfig{
		{ID: "cafe", Title: "Ordering coffee"},
		{ID: "hotel", Title: "Checking in"},
		{ID: "market", Title: "At the market"},
	}}
	new := &config.Config{Topics: []config.TopicConfig{
		{ID: "cafe", Title: "Ordering coffee"},
		{ID: "market", Title: "At the market", Instruction: "Haggle over fruit prices."},
		{ID: "doctor", Title: "At the doctor"},
	}}

	d := config.Diff(old, new)
	tests := []struct {
		name string
		got  []string
		want []string
	}{
		{"added", d.Added, []string{"doctor"}},
		{"removed", d.Removed, []string{"hotel"}},
		{"changed", d.Changed, []string{"market"}},
	}
	for _, tc := range tests {
		if !slices.Equal(tc.got, tc.want) {
			t.Errorf("%s = %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}
