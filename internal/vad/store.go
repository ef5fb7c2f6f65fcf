package vad

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/MrWong99/susurrus/pkg/audio"
)

// SegmentStore persists finalized speech segments as mono 16-bit WAV files
// at the capture sample rate. Ownership of a saved file transfers to the
// consumer of the OnSpeechEnd hook, which deletes it after use.
//
// Safe for concurrent use; each Save writes an independent file.
type SegmentStore struct {
	dir string
}

// NewSegmentStore creates the target directory if needed and returns a
// store writing into it.
func NewSegmentStore(dir string) (*SegmentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("vad: create segment dir %q: %w", dir, err)
	}
	return &SegmentStore{dir: dir}, nil
}

// Dir returns the directory segments are written to.
func (s *SegmentStore) Dir() string {
	return s.dir
}

// Save writes samples as a new uniquely-named WAV file and returns its path.
// A partially written file is removed on error.
func (s *SegmentStore) Save(samples []float32, sampleRate int) (string, error) {
	path := filepath.Join(s.dir, "segment-"+uuid.NewString()+".wav")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("vad: create segment file: %w", err)
	}

	if err := audio.EncodeWAV(f, samples, sampleRate); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("vad: close segment file: %w", err)
	}
	return path, nil
}
