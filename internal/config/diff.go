package config

// TopicDiff describes how the topic catalogue changed between two configs.
// Topics are the only part of the configuration applied without a restart.
type TopicDiff struct {
	Added   []string // IDs present only in the new config
	Removed []string // IDs present only in the old config
	Changed []string // IDs whose title or instruction changed

	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// Empty reports whether nothing hot-reloadable changed.
func (d TopicDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0 && !d.LogLevelChanged
}

// Diff compares old and new configs and returns what changed. IDs are
// reported in the order they appear in their config.
func Diff(old, new *Config) TopicDiff {
	d := TopicDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldTopics := make(map[string]TopicConfig, len(old.Topics))
	for _, t := range old.Topics {
		oldTopics[t.ID] = t
	}
	newTopics := make(map[string]TopicConfig, len(new.Topics))
	for _, t := range new.Topics {
		newTopics[t.ID] = t
	}

	for _, t := range old.Topics {
		if _, ok := newTopics[t.ID]; !ok {
			d.Removed = append(d.Removed, t.ID)
		}
	}
	for _, t := range new.Topics {
		prev, ok := oldTopics[t.ID]
		switch {
		case !ok:
			d.Added = append(d.Added, t.ID)
		case prev != t:
			d.Changed = append(d.Changed, t.ID)
		}
	}

	return d
}
