package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/thereceipt/printcounter/internal/logger"
)

// Store loads and saves the configuration record at a fixed path
type Store struct {
	filePath string
	log      *logger.Logger
	mu       sync.Mutex
}

// NewStore creates a store for the record at filePath
func NewStore(filePath string, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		filePath: filePath,
		log:      log,
	}
}

// Path returns the location of the persisted record
func (s *Store) Path() string {
	return s.filePath
}

// Load reads the persisted record. It never fails: a missing, unreadable or
// invalid record yields the built-in defaults.
func (s *Store) Load() Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnw("config unreadable, using defaults", "path", s.filePath, "err", err)
		}
		return Defaults()
	}

	// Unmarshal over the defaults so missing keys keep their default value
	cfg := Defaults()
	if err := json.Unmarshal(data, &cfg); err != nil {
		s.log.Warnw("config corrupt, using defaults", "path", s.filePath, "err", err)
		return Defaults()
	}

	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		s.log.Warnw("config out of range, using defaults", "path", s.filePath, "err", err)
		return Defaults()
	}

	return cfg
}

// Save validates cfg and atomically replaces the persisted record.
// On validation failure the previous record is left untouched.
func (s *Store) Save(cfg Config) error {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	s.log.Infow("config saved", "path", s.filePath, "vendor_id", cfg.VendorID, "product_id", cfg.ProductID)
	return nil
}

// writeFileAtomic writes to a temp file in the same directory, syncs it and
// renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Remove the temp file on any failure; after a successful rename this is a no-op
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
