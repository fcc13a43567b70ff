package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lotirium/blockchain-supply-chain-fintech/internal/domain"
	"go.uber.org/zap"
)

// Store persists the auth session as a JSON file. If the backing file
// cannot be written the store degrades to in-memory mode: calls keep
// working for the life of the process, a warning is logged once.
type Store struct {
	mu        sync.Mutex
	path      string
	memOnly   bool
	cached    domain.Session
	hasCached bool
	logger    *zap.Logger
}

func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// DefaultPath resolves to $HOME/.shipment/credentials.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".shipment", "credentials.json"), nil
}

// Save writes all session fields atomically: the file is written to a
// temp sibling and renamed, so a concurrent Load sees either the old or
// the new session, never a partial one.
func (s *Store) Save(session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached = session
	s.hasCached = true

	if s.memOnly {
		return nil
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		s.degrade(err)
		return nil
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		s.degrade(err)
		return nil
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		s.degrade(err)
		return nil
	}
	return nil
}

// Load returns the last saved session, or the empty session if nothing
// has been persisted.
func (s *Store) Load() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasCached {
		return s.cached
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to read credentials file",
				zap.String("path", s.path),
				zap.Error(err))
		}
		return domain.Session{}
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		s.logger.Warn("Corrupt credentials file, treating as empty",
			zap.String("path", s.path),
			zap.Error(err))
		return domain.Session{}
	}

	s.cached = session
	s.hasCached = true
	return session
}

// Clear removes all persisted fields. Subsequent Load returns the
// empty session.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached = domain.Session{}
	s.hasCached = true

	if s.memOnly {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.degrade(err)
	}
	return nil
}

// Token returns the stored auth token, empty when unauthenticated.
func (s *Store) Token() string {
	return s.Load().Token
}

func (s *Store) degrade(err error) {
	s.memOnly = true
	s.logger.Warn("Credentials storage unavailable, continuing in-memory only",
		zap.String("path", s.path),
		zap.Error(err))
}
