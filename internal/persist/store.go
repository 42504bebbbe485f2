package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"pkt.systems/pmdesk/schema"
	"pkt.systems/pslog"
)

// CurrentStateVersion is written into every workspace state file.
const CurrentStateVersion = 1

// WorkspaceState captures a user's workspace for persistence.
type WorkspaceState struct {
	Version     int                    `json:"version"`
	Tabs        []schema.TabSnapshot   `json:"tabs"`
	ActiveIndex int                    `json:"active_index"`
	GridMode    bool                   `json:"grid_mode"`
	Breakpoint  schema.BreakpointName  `json:"breakpoint,omitempty"`
	Grid        schema.ArrangementBlob `json:"grid"`
}

// Store persists workspace state to disk, one JSON file per user.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load reads a user's workspace state.
func (s *Store) Load(userID schema.UserID) (WorkspaceState, bool, error) {
	path := s.pathForUser(userID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.debug("state load miss", "user", userID)
			return WorkspaceState{}, false, nil
		}
		s.warn("state load failed", "user", userID, "err", err)
		return WorkspaceState{}, false, err
	}
	var state WorkspaceState
	if err := json.Unmarshal(data, &state); err != nil {
		s.warn("state load failed", "user", userID, "err", err)
		return WorkspaceState{}, false, err
	}
	if state.Version > CurrentStateVersion {
		err := fmt.Errorf("state version %d is newer than supported version %d", state.Version, CurrentStateVersion)
		s.warn("state load failed", "user", userID, "err", err)
		return WorkspaceState{}, false, err
	}
	s.debug("state load ok", "user", userID, "tabs", len(state.Tabs), "cells", len(state.Grid.Sheets))
	return state, true, nil
}

// Save atomically writes a user's workspace state.
func (s *Store) Save(userID schema.UserID, state WorkspaceState) error {
	if state.Version == 0 {
		state.Version = CurrentStateVersion
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		s.warn("state save failed", "user", userID, "err", err)
		return err
	}
	if err := writeFileAtomic(s.pathForUser(userID), data); err != nil {
		s.warn("state save failed", "user", userID, "err", err)
		return err
	}
	if s.log != nil {
		s.log.Trace("state save ok", "user", userID, "tabs", len(state.Tabs), "cells", len(state.Grid.Sheets))
	}
	return nil
}

// Delete removes a user's workspace state. Missing files are not an error.
func (s *Store) Delete(userID schema.UserID) error {
	if err := os.Remove(s.pathForUser(userID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.warn("state delete failed", "user", userID, "err", err)
		return err
	}
	return nil
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "state-*.json")
	if err != nil {
		return err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		cleanup()
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Store) debug(msg string, kv ...any) {
	if s.log != nil {
		s.log.Debug(msg, kv...)
	}
}

func (s *Store) warn(msg string, kv ...any) {
	if s.log != nil {
		s.log.Warn(msg, kv...)
	}
}

func (s *Store) pathForUser(userID schema.UserID) string {
	name := sanitize(string(userID))
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".json")
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
