// Package state persists darknet configuration so a darknet can be started
// again after the process exits.
package state

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/chiquitav2/wg-dark/internal/darknet/wireguard"
	"github.com/chiquitav2/wg-dark/internal/shared/errors"
	"github.com/chiquitav2/wg-dark/internal/shared/logger"
)

const (
	confExt   = ".conf"
	recordExt = ".yaml"
)

// Record is the session metadata stored next to the WireGuard config.
type Record struct {
	Name            string    `yaml:"name"`
	SessionID       string    `yaml:"session_id"`
	Address         string    `yaml:"address"`
	PublicKey       string    `yaml:"public_key"`
	ServerPublicKey string    `yaml:"server_public_key"`
	Endpoint        string    `yaml:"endpoint"`
	JoinedAt        time.Time `yaml:"joined_at"`
}

// Darknet is a persisted darknet: its record plus its parsed config.
type Darknet struct {
	Record *Record
	Config *wireguard.Config
}

// Store keeps <name>.conf and <name>.yaml under one directory. It implements
// wireguard.ConfigSink.
type Store struct {
	dir    string
	logger *logger.Logger
	mu     sync.Mutex
}

// NewStore creates a store rooted at dir. The directory is created lazily.
func NewStore(dir string, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Store{dir: dir, logger: log.WithComponent("state")}
}

// Dir returns the state directory.
func (s *Store) Dir() string { return s.dir }

// ConfPath returns the WireGuard config path for name.
func (s *Store) ConfPath(name string) string {
	return filepath.Join(s.dir, name+confExt)
}

// RecordPath returns the session record path for name.
func (s *Store) RecordPath(name string) string {
	return filepath.Join(s.dir, name+recordExt)
}

// WriteInterface starts a fresh config file holding only the [Interface]
// stanza.
func (s *Store) WriteInterface(name, stanza string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := writeFileAtomic(s.ConfPath(name), []byte(stanza)); err != nil {
		return errors.NewSystemError(errors.ErrCodeFileOperation, "failed to write config", false, err).
			WithMetadata("path", s.ConfPath(name))
	}
	s.logger.Debug("wrote interface stanza", slog.String("path", s.ConfPath(name)))
	return nil
}

// AppendPeers appends the peer stanzas whose PublicKey is not saved yet,
// separated from what is already there by a blank line. Status responses
// repeat the whole peer list, so most calls write nothing.
func (s *Store) AppendPeers(name, stanzas string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureDir(); err != nil {
		return err
	}

	path := s.ConfPath(name)
	incoming, err := wireguard.ParseConfig(stanzas)
	if err != nil {
		return errors.NewSystemError(errors.ErrCodeConfiguration, "peer stanzas are not a valid config", false, err).
			WithMetadata("path", path)
	}

	saved, err := s.savedPeerKeys(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	added := 0
	for _, peer := range incoming.PeerList {
		if peer.PublicKey == "" || saved[peer.PublicKey] {
			continue
		}
		saved[peer.PublicKey] = true
		buf.WriteString("\n")
		buf.WriteString(peer.Raw)
		added++
	}
	if added == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.NewSystemError(errors.ErrCodeFileOperation, "failed to open config", false, err).
			WithMetadata("path", path)
	}
	_, werr := f.Write(buf.Bytes())
	if err := multierr.Append(werr, f.Close()); err != nil {
		return errors.NewSystemError(errors.ErrCodeFileOperation, "failed to append peers", false, err).
			WithMetadata("path", path)
	}
	s.logger.Debug("saved new peers", slog.String("path", path), slog.Int("count", added))
	return nil
}

// savedPeerKeys returns the PublicKeys already in the config at path.
func (s *Store) savedPeerKeys(path string) (map[string]bool, error) {
	keys := make(map[string]bool)
	data, err := os.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return keys, nil
	}
	if err != nil {
		return nil, errors.NewSystemError(errors.ErrCodeFileOperation, "failed to read config", false, err).
			WithMetadata("path", path)
	}
	cfg, err := wireguard.ParseConfig(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for _, peer := range cfg.PeerList {
		keys[peer.PublicKey] = true
	}
	return keys, nil
}

// SaveRecord writes the session record.
func (s *Store) SaveRecord(r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureDir(); err != nil {
		return err
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	if err := writeFileAtomic(s.RecordPath(r.Name), data); err != nil {
		return errors.NewSystemError(errors.ErrCodeFileOperation, "failed to write session record", false, err).
			WithMetadata("path", s.RecordPath(r.Name))
	}
	s.logger.Debug("saved session record", slog.String("path", s.RecordPath(r.Name)))
	return nil
}

// LoadRecord reads the session record for name.
func (s *Store) LoadRecord(name string) (*Record, error) {
	path := s.RecordPath(name)
	data, err := os.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.NewMissingConfig(name, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session record: %w", err)
	}

	var r Record
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse session record %s: %w", path, err)
	}
	if r.Name == "" {
		r.Name = name
	}
	return &r, nil
}

// Load reads both files for name. Either file missing is MissingConfig.
func (s *Store) Load(name string) (*Darknet, error) {
	path := s.ConfPath(name)
	data, err := os.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.NewMissingConfig(name, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := wireguard.ParseConfig(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("config %s has no private key", path)
	}

	record, err := s.LoadRecord(name)
	if err != nil {
		return nil, err
	}

	return &Darknet{Record: record, Config: cfg}, nil
}

// List returns every darknet with a session record, sorted by name.
func (s *Store) List() ([]*Record, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+recordExt))
	if err != nil {
		return nil, fmt.Errorf("failed to list state dir: %w", err)
	}

	records := make([]*Record, 0, len(matches))
	for _, match := range matches {
		name := strings.TrimSuffix(filepath.Base(match), recordExt)
		r, err := s.LoadRecord(name)
		if err != nil {
			s.logger.Warn("skipping unreadable session record", slog.String("path", match), slog.String("error", err.Error()))
			continue
		}
		records = append(records, r)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Remove deletes both files for name. Missing files are not an error.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for _, path := range []string{s.ConfPath(name), s.RecordPath(name)} {
		if rmErr := os.Remove(path); rmErr != nil && !stderrors.Is(rmErr, fs.ErrNotExist) {
			err = multierr.Append(err, rmErr)
		}
	}
	return err
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return errors.NewSystemError(errors.ErrCodeFileOperation, "failed to create state dir", false, err).
			WithMetadata("path", s.dir)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the same directory with 0600
// permissions and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".wg-dark-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("failed to set permissions on temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move temp file into place: %w", err)
	}
	return nil
}
