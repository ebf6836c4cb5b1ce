// internal/replay/cache.go
// Package replay persists successful action traces and replays them against a
// live page with drift verification, so unchanged tests never pay for a model
// call twice.
package replay

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/api/schemas"
	"github.com/xkilldash9x/specter-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is a content-addressed trace cache: one file per test fingerprint,
// under <dir>/<project>/v<format>/. It is durable across process runs and
// assumes single-process sequential access, so no file locking.
type Store struct {
	root    string // expanded cache dir, shared by all projects
	dir     string // current project + format version namespace
	project string
	logger  *zap.Logger
}

// NewStore opens (and if needed creates) the cache namespace for the
// configured project. Entries written by older format versions are purged
// wholesale; partial migration is not worth the risk of replaying a trace
// the current code misreads.
func NewStore(cfg config.CacheConfig, logger *zap.Logger) (*Store, error) {
	root, err := homedir.Expand(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("expand cache dir %q: %w", cfg.Dir, err)
	}

	s := &Store{
		root:    root,
		dir:     filepath.Join(root, cfg.Project, fmt.Sprintf("v%d", schemas.TraceFormatVersion)),
		project: cfg.Project,
		logger:  logger.Named("cache"),
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %q: %w", s.dir, err)
	}
	s.purgeLegacyVersions()
	return s, nil
}

// purgeLegacyVersions removes version namespaces other than the current one.
func (s *Store) purgeLegacyVersions() {
	projectDir := filepath.Join(s.root, s.project)
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return
	}
	current := fmt.Sprintf("v%d", schemas.TraceFormatVersion)
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == current {
			continue
		}
		stale := filepath.Join(projectDir, entry.Name())
		if err := os.RemoveAll(stale); err != nil {
			s.logger.Warn("Could not purge legacy cache version.", zap.String("path", stale), zap.Error(err))
			continue
		}
		s.logger.Info("Purged legacy cache format version.", zap.String("version", entry.Name()))
	}
}

func (s *Store) path(fingerprint string) string {
	return filepath.Join(s.dir, fingerprint+".json")
}

// Get loads the trace stored for a fingerprint. Any read or decode problem is
// a cache miss: the entry is deleted and the caller falls back to a fresh run.
func (s *Store) Get(fingerprint string) (*schemas.Trace, bool) {
	data, err := os.ReadFile(s.path(fingerprint))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Unreadable cache entry, treating as miss.",
				zap.String("fingerprint", fingerprint), zap.Error(err))
			s.Delete(fingerprint)
		}
		return nil, false
	}

	var trace schemas.Trace
	if err := json.Unmarshal(data, &trace); err != nil {
		s.logger.Warn("Corrupt cache entry, deleting.",
			zap.String("fingerprint", fingerprint), zap.Error(err))
		s.Delete(fingerprint)
		return nil, false
	}

	if trace.Version != schemas.TraceFormatVersion || trace.Fingerprint != fingerprint {
		s.logger.Warn("Cache entry does not match its key, deleting.",
			zap.String("fingerprint", fingerprint),
			zap.Int("version", trace.Version))
		s.Delete(fingerprint)
		return nil, false
	}

	return &trace, true
}

// Set durably stores a trace under its fingerprint. The write is atomic
// (temp file + rename) so a crash never leaves a partially written entry.
func (s *Store) Set(fingerprint string, trace *schemas.Trace) error {
	data, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return fmt.Errorf("encode trace %q: %w", fingerprint, err)
	}

	tmp, err := os.CreateTemp(s.dir, fingerprint+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write trace %q: %w", fingerprint, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp cache file: %w", err)
	}

	if err := os.Rename(tmpName, s.path(fingerprint)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store trace %q: %w", fingerprint, err)
	}

	s.logger.Debug("Stored trace.",
		zap.String("fingerprint", fingerprint),
		zap.Int("steps", len(trace.Steps)))
	return nil
}

// Delete removes the entry for a fingerprint. Removing a missing entry is
// not an error.
func (s *Store) Delete(fingerprint string) {
	if err := os.Remove(s.path(fingerprint)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Could not delete cache entry.",
			zap.String("fingerprint", fingerprint), zap.Error(err))
	}
}

// Clear removes every entry for the current project.
func (s *Store) Clear() error {
	if err := os.RemoveAll(filepath.Join(s.root, s.project)); err != nil {
		return fmt.Errorf("clear cache for project %q: %w", s.project, err)
	}
	s.logger.Info("Cleared project cache.", zap.String("project", s.project))
	return nil
}

// Purge removes the whole cache root across all projects.
func (s *Store) Purge() error {
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("purge cache root %q: %w", s.root, err)
	}
	s.logger.Info("Purged entire cache.", zap.String("root", s.root))
	return nil
}
