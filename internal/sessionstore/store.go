// Package sessionstore persists the authentication state bundle between
// runs. Absence of a stored state is never an error: it only means the next
// run must authenticate interactively.
package sessionstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/hliang2/chatspider/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store reads and writes the serialized SessionState at a fixed path.
// The filesystem is abstracted behind afero so tests run on a memfs.
type Store struct {
	fs     afero.Fs
	path   string
	logger *zap.Logger
}

// New creates a store rooted at path on the given filesystem.
func New(fs afero.Fs, path string, logger *zap.Logger) *Store {
	return &Store{
		fs:     fs,
		path:   path,
		logger: logger.Named("sessionstore"),
	}
}

// Load returns the previously saved state, or nil when no usable state
// exists. Missing files and undecodable content are both reported as nil;
// startup must never abort because of this store.
func (s *Store) Load() *schemas.SessionState {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Could not read session state file.", zap.String("path", s.path), zap.Error(err))
		}
		return nil
	}

	var state schemas.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("Stored session state is not decodable; treating as absent.",
			zap.String("path", s.path), zap.Error(err))
		return nil
	}

	s.logger.Debug("Loaded persisted session state.",
		zap.Int("cookies", len(state.Cookies)),
		zap.Int("origins", len(state.Origins)),
		zap.Time("saved_at", state.SavedAt))
	return &state
}

// Save atomically overwrites the stored state: the bundle is written to a
// temporary file in the same directory and renamed into place, so a reader
// never observes a partial write. Failures are reported but the caller is
// expected to log and continue; a session that cannot be persisted is still
// a valid session.
func (s *Store) Save(state *schemas.SessionState) error {
	if state == nil {
		return fmt.Errorf("sessionstore: nil state")
	}
	state.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("sessionstore: marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("sessionstore: create state directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("sessionstore: write temp state: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		// Best effort cleanup; the stale temp file is harmless.
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("sessionstore: commit state: %w", err)
	}

	s.logger.Info("Session state persisted.",
		zap.String("path", s.path),
		zap.Int("cookies", len(state.Cookies)),
		zap.Int("origins", len(state.Origins)))
	return nil
}
