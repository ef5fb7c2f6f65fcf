package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged means detector tuning changed; it takes effect on the next
	// listen cycle.
	VADChanged bool

	// ChunkerChanged means chunk sizing changed; it takes effect on the next
	// Speak call.
	ChunkerChanged bool

	// VoicesChanged is true if any voice was added, removed, or modified.
	VoicesChanged bool
	VoiceChanges  []VoiceDiff
}

// VoiceDiff describes what changed for a single voice between two configs.
type VoiceDiff struct {
	ID       string
	Modified bool
	Added    bool
	Removed  bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.VAD != new.VAD {
		d.VADChanged = true
	}
	if old.Chunker != new.Chunker {
		d.ChunkerChanged = true
	}

	// Build voice lookup maps keyed by ID.
	oldVoices := make(map[string]*VoiceConfig, len(old.Voices))
	for i := range old.Voices {
		oldVoices[old.Voices[i].ID] = &old.Voices[i]
	}
	newVoices := make(map[string]*VoiceConfig, len(new.Voices))
	for i := range new.Voices {
		newVoices[new.Voices[i].ID] = &new.Voices[i]
	}

	// Detect modified and removed voices.
	for id, oldVoice := range oldVoices {
		newVoice, exists := newVoices[id]
		if !exists {
			d.VoiceChanges = append(d.VoiceChanges, VoiceDiff{
				ID:      id,
				Removed: true,
			})
			d.VoicesChanged = true
			continue
		}
		if *oldVoice != *newVoice {
			d.VoiceChanges = append(d.VoiceChanges, VoiceDiff{
				ID:       id,
				Modified: true,
			})
			d.VoicesChanged = true
		}
	}

	// Detect added voices.
	for id := range newVoices {
		if _, exists := oldVoices[id]; !exists {
			d.VoiceChanges = append(d.VoiceChanges, VoiceDiff{
				ID:    id,
				Added: true,
			})
			d.VoicesChanged = true
		}
	}

	return d
}
