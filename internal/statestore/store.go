package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"arb-route-alerts/internal/signal"
)

// ErrNotConfigured indicates the backing store was not initialised.
var ErrNotConfigured = errors.New("statestore: not configured")

// Store persists the gating state blob. Missing or corrupt state loads as
// an empty-but-valid default, never an error the tick would die on.
type Store interface {
	Load(ctx context.Context) (*signal.State, error)
	Save(ctx context.Context, state *signal.State) error
}

// FileStore keeps the state blob in a JSON file. The layout stays
// compatible with the predecessor bot's state.json (pairs map + meta).
type FileStore struct {
	path   string
	logger zerolog.Logger
}

// NewFileStore builds a file-backed store.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.With().Str("component", "state_file").Logger(),
	}
}

// Load reads the blob, falling back to empty state when the file is absent
// or unreadable.
func (s *FileStore) Load(_ context.Context) (*signal.State, error) {
	if s.path == "" {
		return nil, ErrNotConfigured
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("state file unreadable, starting fresh")
		}
		return signal.NewState(), nil
	}

	state := signal.NewState()
	if err := json.Unmarshal(raw, state); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("state file corrupt, starting fresh")
		return signal.NewState(), nil
	}

	state.Normalize()
	return state, nil
}

// Save writes the blob atomically via a temp file rename.
func (s *FileStore) Save(_ context.Context, state *signal.State) error {
	if s.path == "" {
		return ErrNotConfigured
	}

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
