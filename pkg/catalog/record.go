package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// BookRecord is one canonical book in the global catalog.
type BookRecord struct {
	// Title is the normalized title.
	Title string `json:"title"`

	// Embedding is the unit vector of Title. Catalogs written before
	// embeddings were persisted omit it; Open fills it in.
	Embedding []float32 `json:"embedding,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// RecordStore persists the ordered list of catalog records.
type RecordStore interface {
	// Load returns every record in position order. A missing catalog is empty.
	Load(ctx context.Context) ([]BookRecord, error)

	// Save atomically replaces the stored records.
	Save(ctx context.Context, records []BookRecord) error
}

// FileStore keeps records in a single JSON document.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type catalogFile struct {
	Version int          `json:"version"`
	Books   []BookRecord `json:"books"`
}

const fileVersion = 1

// Load reads the catalog file. Both the current document form and a bare
// JSON array of records are accepted.
func (s *FileStore) Load(context.Context) ([]BookRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var doc catalogFile
	if err := json.Unmarshal(data, &doc); err == nil {
		return doc.Books, nil
	}

	var bare []BookRecord
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptCatalog, err)
	}
	return bare, nil
}

// Save writes the catalog to a temporary file, syncs it and renames it over
// the catalog path.
func (s *FileStore) Save(_ context.Context, records []BookRecord) error {
	data, err := json.Marshal(catalogFile{Version: fileVersion, Books: records})
	if err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating catalog directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp catalog: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing catalog: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing catalog: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing catalog: %w", err)
	}
	return nil
}

// MemoryStore keeps records in memory. It is used for tests and ephemeral
// catalogs.
type MemoryStore struct {
	records []BookRecord

	// FailSave causes Save to fail.
	FailSave bool
}

// ErrSaveFailed is returned by a MemoryStore configured to fail.
var ErrSaveFailed = errors.New("catalog save failed")

func (s *MemoryStore) Load(context.Context) ([]BookRecord, error) {
	return append([]BookRecord(nil), s.records...), nil
}

func (s *MemoryStore) Save(_ context.Context, records []BookRecord) error {
	if s.FailSave {
		return ErrSaveFailed
	}
	s.records = append([]BookRecord(nil), records...)
	return nil
}
