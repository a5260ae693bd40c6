// Package manifest reads and writes the mapping from public ids to the paths
// clients should request, and computes the content hashes used to version
// them.
package manifest

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/conneroisu/mixpaths/internal/cache"
	mixerrors "github.com/conneroisu/mixpaths/internal/errors"
)

// HashLength is the number of hex characters kept from the content digest.
const HashLength = 20

// Manifest maps a public id to its current public id, either itself or a
// versioned form with a content hash query.
type Manifest map[string]string

// Get returns the current id for publicID.
func (m Manifest) Get(publicID string) (string, bool) {
	value, ok := m[publicID]
	return value, ok
}

// Set records the current id for publicID.
func (m Manifest) Set(publicID, current string) {
	m[publicID] = current
}

// Hash returns the first HashLength hex characters of the MD5 digest of
// content.
func Hash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])[:HashLength]
}

// Versioned returns publicID with its content hash as an id query.
func Versioned(publicID, hash string) string {
	return publicID + "?id=" + hash
}

// Store persists a manifest as a pretty-printed JSON object.
type Store struct {
	Path string
}

// NewStore creates a store for the manifest file at path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads the manifest file. A missing file reads as an empty manifest.
func (s *Store) Load() (Manifest, error) {
	content, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Manifest{}, nil
	}
	if err != nil {
		return nil, mixerrors.NewIOError(mixerrors.ErrCodeReadFailed, "read manifest "+s.Path, err)
	}

	m := Manifest{}
	if err := json.Unmarshal(content, &m); err != nil {
		return nil, mixerrors.NewIOError(mixerrors.ErrCodeReadFailed, "parse manifest "+s.Path, err).
			WithLocation(s.Path, 0, 0)
	}

	return m, nil
}

// Save writes the manifest with two-space indentation. The file is written
// to a temporary sibling and renamed into place.
func (s *Store) Save(m Manifest) error {
	if m == nil {
		m = Manifest{}
	}

	content, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return mixerrors.NewIOError(mixerrors.ErrCodeWriteFailed, "encode manifest", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return mixerrors.NewIOError(mixerrors.ErrCodeWriteFailed, "create manifest dir "+dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return mixerrors.NewIOError(mixerrors.ErrCodeWriteFailed, "create temp manifest", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return mixerrors.NewIOError(mixerrors.ErrCodeWriteFailed, "write manifest "+s.Path, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return mixerrors.NewIOError(mixerrors.ErrCodeWriteFailed, "close manifest "+s.Path, err)
	}

	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return mixerrors.NewIOError(mixerrors.ErrCodeWriteFailed, "chmod manifest "+s.Path, err)
	}

	if err := os.Rename(tmpPath, s.Path); err != nil {
		os.Remove(tmpPath)
		return mixerrors.NewIOError(mixerrors.ErrCodeWriteFailed, "replace manifest "+s.Path, err)
	}

	return nil
}

// Cache holds the manifest loaded for the current pass. The cached value is
// shared: updates made through it are seen by later Loads until the cache is
// invalidated.
type Cache struct {
	store *Store
	memo  *cache.Memo[string, Manifest]
}

// NewCache creates a pass cache over store.
func NewCache(store *Store) *Cache {
	return &Cache{store: store, memo: cache.New[string, Manifest]()}
}

// Load returns the cached manifest, reading it from the store on first use.
func (c *Cache) Load() (Manifest, error) {
	return c.memo.GetOrCompute(c.store.Path, c.store.Load)
}

// Save persists m through the store.
func (c *Cache) Save(m Manifest) error {
	return c.store.Save(m)
}

// InvalidateAll forgets the cached manifest.
func (c *Cache) InvalidateAll() {
	c.memo.InvalidateAll()
}

// Stats returns the hit/miss counters of the cache.
func (c *Cache) Stats() cache.Stats {
	return c.memo.Stats()
}

// Store returns the underlying store.
func (c *Cache) Store() *Store {
	return c.store
}
