package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docutag/crawler/slug"
)

// Store persists catalog artifacts
type Store interface {
	SaveCatalog(data []byte, name string) (string, error)
	ReadCatalog(relPath string) ([]byte, error)
	DeleteCatalog(relPath string) error
	GetFullPath(relPath string) string
}

var (
	_ Store = (*Storage)(nil)
	_ Store = (*S3Storage)(nil)
)

// Config contains storage configuration
type Config struct {
	BasePath string // Base directory for all stored files
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		BasePath: "./storage",
	}
}

// Storage handles filesystem storage operations
type Storage struct {
	config Config
}

// New creates a new Storage instance
func New(config Config) (*Storage, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}

	return &Storage{
		config: config,
	}, nil
}

// catalogKey returns catalogs/YYYY/MM/<name>.json
func catalogKey(now time.Time, name string) string {
	year := fmt.Sprintf("%04d", now.Year())
	month := fmt.Sprintf("%02d", int(now.Month()))
	return filepath.ToSlash(filepath.Join("catalogs", year, month, name+".json"))
}

// SaveCatalog saves a catalog JSON document to the filesystem
// Returns the relative file path from the base storage directory
func (s *Storage) SaveCatalog(data []byte, name string) (string, error) {
	now := time.Now()
	key := catalogKey(now, name)
	filePath := filepath.Join(s.config.BasePath, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create catalog directory: %w", err)
	}

	// Check if file already exists and make unique if necessary
	counter := 1
	for fileExists(filePath) {
		key = catalogKey(now, slug.MakeUnique(name, counter))
		filePath = filepath.Join(s.config.BasePath, filepath.FromSlash(key))
		counter++
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write catalog file: %w", err)
	}

	return key, nil
}

// ReadCatalog reads a catalog from the filesystem
func (s *Storage) ReadCatalog(relPath string) ([]byte, error) {
	data, err := os.ReadFile(s.GetFullPath(relPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	return data, nil
}

// DeleteCatalog deletes a catalog from the filesystem
func (s *Storage) DeleteCatalog(relPath string) error {
	if err := os.Remove(s.GetFullPath(relPath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete catalog file: %w", err)
	}

	return nil
}

// GetFullPath returns the full filesystem path for a relative path
func (s *Storage) GetFullPath(relPath string) string {
	return filepath.Join(s.config.BasePath, filepath.FromSlash(relPath))
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
