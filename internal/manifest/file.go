package manifest

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/livinlefevreloca/p2g/internal/checkpoint"
	"github.com/livinlefevreloca/p2g/internal/errors"
	"github.com/livinlefevreloca/p2g/internal/model"
)

// FileStore keeps the manifest as a single JSON document. Every save rewrites
// the whole document through a temp file and a rename.
type FileStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileStore returns a store backed by the JSON file at path
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger,
	}
}

// Path returns the document location
func (s *FileStore) Path() string {
	return s.path
}

// Read loads the document. A missing or empty file yields an empty document.
// A malformed file is logged and also treated as empty.
func (s *FileStore) Read() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) read() *Document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("manifest unreadable, starting from empty state",
				"path", s.path,
				"error", errors.StateCorrupt(err))
		}
		return NewDocument()
	}
	if len(data) == 0 {
		return NewDocument()
	}

	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		s.logger.Warn("manifest malformed, starting from empty state",
			"path", s.path,
			"error", errors.StateCorrupt(errors.Wrap(err, "decode manifest")))
		return NewDocument()
	}

	if discarded := doc.normalize(); discarded > 0 {
		s.logger.Warn("discarded inverted watermarks",
			"path", s.path,
			"count", discarded)
	}
	return doc
}

func (s *FileStore) write(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp manifest")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp manifest")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp manifest")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp manifest")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrapf(err, "replace manifest %s", s.path)
	}
	return nil
}

// LoadEntities implements Store
func (s *FileStore) LoadEntities(ctx context.Context) ([]model.Entity, error) {
	return s.Read().Entities(), nil
}

// LoadProbes implements Store
func (s *FileStore) LoadProbes(ctx context.Context) ([]model.Probe, error) {
	return s.Read().ProbeList(), nil
}

// LoadCheckpoints implements Store
func (s *FileStore) LoadCheckpoints(ctx context.Context) (checkpoint.Map, error) {
	return s.Read().Checkpoints(), nil
}

// SaveCheckpoints implements Store
func (s *FileStore) SaveCheckpoints(ctx context.Context, cps checkpoint.Map) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.read()
	doc.SetCheckpoints(cps)
	return s.write(doc)
}

// SaveCatalog implements Store
func (s *FileStore) SaveCatalog(ctx context.Context, entities []model.Entity, probes []model.Probe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.read()
	doc.SetCatalog(entities, probes)
	return s.write(doc)
}

// Close implements Store
func (s *FileStore) Close() error {
	return nil
}
