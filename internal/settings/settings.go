// Package settings persists the active source and the fingerprint of the last
// successfully indexed content.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/fsmcheck/internal/models"
)

// Store is the settings boundary consumed by ingestion.
type Store interface {
	// Load returns the current settings. A missing file yields the defaults.
	Load() (*models.Settings, error)
	// SaveFingerprint records the fingerprint of a successful rebuild of src.
	// Nothing is written if the stored source is no longer src.
	SaveFingerprint(src models.SourceConfig, fp models.Fingerprint) error
	// SetSource switches the active source and clears the stored fingerprint.
	SetSource(src models.SourceConfig) error
}

// FileStore keeps settings in a YAML file.
type FileStore struct {
	path     string
	defaults models.SourceConfig
	logger   *zap.Logger
	mu       sync.Mutex
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *FileStore) { s.logger = l }
}

// NewFileStore creates a store at path. defaults is the source used until one is set.
func NewFileStore(path string, defaults models.SourceConfig, opts ...Option) *FileStore {
	s := &FileStore{path: path, defaults: defaults, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the settings file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store.
func (s *FileStore) Load() (*models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() (*models.Settings, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &models.Settings{Source: s.defaults}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	var st models.Settings
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := st.Source.Validate(); err != nil {
		s.logger.Warn("stored source is invalid, using default",
			zap.String("path", s.path), zap.Error(err))
		st.Source = s.defaults
		st.Fingerprint = models.Fingerprint{}
	}
	return &st, nil
}

// SaveFingerprint implements Store.
func (s *FileStore) SaveFingerprint(src models.SourceConfig, fp models.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	if st.Source != src {
		s.logger.Info("source changed during refresh, fingerprint not saved",
			zap.String("kind", string(st.Source.Kind)), zap.String("location", st.Source.Location))
		return nil
	}
	st.Fingerprint = fp
	return s.save(st)
}

// SetSource implements Store.
func (s *FileStore) SetSource(src models.SourceConfig) error {
	if err := src.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	if st.Source != src {
		st.Fingerprint = models.Fingerprint{}
	}
	st.Source = src
	if err := s.save(st); err != nil {
		return err
	}
	s.logger.Info("source changed", zap.String("kind", string(src.Kind)), zap.String("location", src.Location))
	return nil
}

// save writes to a temp file and renames it over the settings file.
func (s *FileStore) save(st *models.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
