package artifact

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrMiss is returned by Cache.Load when no artifact is stored for a key
var ErrMiss = errors.New("artifact not cached")

// HashFile returns the hex SHA-1 of a file's contents
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Cache stores one artifact per content hash and parameter set
type Cache struct {
	Dir string
}

// NewCache returns a cache rooted at dir. The directory is created on first Store.
func NewCache(dir string) *Cache {
	return &Cache{Dir: dir}
}

// Path returns the artifact location. An empty fingerprint means the
// default parameters and maps to <hash>.txt.
func (c *Cache) Path(hash, fingerprint string) string {
	name := hash + ".txt"
	if fingerprint != "" {
		name = hash + "." + fingerprint + ".txt"
	}
	return filepath.Join(c.Dir, name)
}

// Load reads a stored artifact. It returns ErrMiss when none exists and an
// error wrapping ErrMalformed when the file is damaged.
func (c *Cache) Load(hash, fingerprint string) (*Info, error) {
	f, err := os.Open(c.Path(hash, fingerprint))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open cached artifact: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Store writes info to a temporary file in the cache directory and renames
// it into place, so readers never see a partial artifact.
func (c *Cache) Store(hash, fingerprint string, info *Info) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(c.Dir, hash+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // No-op once renamed

	if err := Write(tmp, info); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close artifact: %w", err)
	}

	if err := os.Rename(tmpName, c.Path(hash, fingerprint)); err != nil {
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}
