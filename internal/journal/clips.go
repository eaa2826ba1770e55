package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MrWong99/livetutor/pkg/audio"
)

// ClipWriter stores the model audio of a finalized entry as a WAV file named
// after the entry ID.
type ClipWriter struct {
	Dir string
}

// NewClipWriter creates dir if needed.
func NewClipWriter(dir string) (*ClipWriter, error) {
	if dir == "" {
		return nil, errors.New("journal: clip directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create clip directory: %w", err)
	}
	return &ClipWriter{Dir: dir}, nil
}

// Record writes pcm (16-bit little-endian mono) to <Dir>/<entryID>.wav.
func (w *ClipWriter) Record(entryID string, pcm []byte, sampleRate int) error {
	if entryID == "" || filepath.Base(entryID) != entryID {
		return fmt.Errorf("journal: invalid clip name %q", entryID)
	}
	path := filepath.Join(w.Dir, entryID+".wav")
	if err := os.WriteFile(path, audio.EncodeWAV(pcm, sampleRate), 0o644); err != nil {
		return fmt.Errorf("journal: write clip: %w", err)
	}
	return nil
}

// Path returns where the clip for entryID is stored.
func (w *ClipWriter) Path(entryID string) string {
	return filepath.Join(w.Dir, entryID+".wav")
}
