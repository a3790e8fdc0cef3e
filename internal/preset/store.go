package preset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const fileExt = ".json"

// Store keeps one JSON document per preset in a directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore returns a store rooted at dir. The directory is created on the
// first Save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory presets are stored in.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

// Save validates p and writes it atomically. An empty id is replaced with a
// fresh uuid. The stored preset is returned.
func (s *Store) Save(p Preset) (Preset, error) {
	p = p.Clone()
	if strings.TrimSpace(p.ID) == "" {
		p.ID = uuid.NewString()
	}
	p.Version = CurrentVersion
	if err := p.Validate(); err != nil {
		return Preset{}, err
	}
	data, err := Encode(p)
	if err != nil {
		return Preset{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Preset{}, fmt.Errorf("preset: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".preset-*.tmp")
	if err != nil {
		return Preset{}, fmt.Errorf("preset: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return Preset{}, fmt.Errorf("preset: write %s: %w", p.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return Preset{}, fmt.Errorf("preset: sync %s: %w", p.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return Preset{}, fmt.Errorf("preset: close %s: %w", p.ID, err)
	}
	if err := os.Rename(tmpPath, s.path(p.ID)); err != nil {
		os.Remove(tmpPath)
		return Preset{}, fmt.Errorf("preset: rename %s: %w", p.ID, err)
	}
	return p, nil
}

// Load reads and migrates the preset with the given id.
func (s *Store) Load(id string) (Preset, error) {
	if !idPattern.MatchString(id) {
		return Preset{}, fmt.Errorf("preset: %w: %s", ErrNotFound, id)
	}
	s.mu.Lock()
	data, err := os.ReadFile(s.path(id))
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Preset{}, fmt.Errorf("preset: %w: %s", ErrNotFound, id)
		}
		return Preset{}, fmt.Errorf("preset: read %s: %w", id, err)
	}
	p, err := Decode(data)
	if err != nil {
		return Preset{}, fmt.Errorf("preset %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	if err := p.Validate(); err != nil {
		return Preset{}, err
	}
	return p, nil
}

// List returns every readable preset ordered by name then id. Documents
// that fail to load are skipped and reported in the joined error.
func (s *Store) List() ([]Preset, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("preset: list: %w", err)
	}
	var (
		out  []Preset
		errs []error
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != fileExt {
			continue
		}
		p, err := s.Load(strings.TrimSuffix(name, fileExt))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, errors.Join(errs...)
}

// Delete removes the preset with the given id.
func (s *Store) Delete(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("preset: %w: %s", ErrNotFound, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("preset: %w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("preset: delete %s: %w", id, err)
	}
	return nil
}
