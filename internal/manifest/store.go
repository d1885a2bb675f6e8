package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// ErrNotFound indicates no manifest exists for the requested group.
var ErrNotFound = errors.New("manifest not found")

var groupPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Store persists one manifest file per group under a directory on the
// curator node. Writes are atomic (tmp file then rename) and serialized, so
// concurrent seed callbacks cannot interleave appends.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore creates a store rooted at dir, creating it when absent.
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("manifest store: resolve dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("manifest store: create dir: %w", err)
	}
	return &Store{dir: abs}, nil
}

func (s *Store) path(group string) (string, error) {
	if !groupPattern.MatchString(group) {
		return "", fmt.Errorf("manifest store: invalid group name %q", group)
	}
	return filepath.Join(s.dir, group+".json"), nil
}

// Get loads the manifest for group.
func (s *Store) Get(group string) (*Manifest, error) {
	path, err := s.path(group)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, group)
		}
		return nil, fmt.Errorf("manifest store: read %s: %w", group, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest store: decode %s: %w", group, err)
	}
	return &m, nil
}

// Put replaces the manifest for group in full.
func (s *Store) Put(group string, m *Manifest) error {
	if m == nil {
		return fmt.Errorf("manifest store: nil manifest")
	}
	m.Group = group
	if err := m.Validate(); err != nil {
		return fmt.Errorf("manifest store: validate: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(group, m)
}

// Append adds one item to the group manifest, creating the manifest when it
// does not exist yet. Used by the seed-ready callback to publish freshly
// seeded content.
func (s *Store) Append(group string, item Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("manifest store: validate item: %w", err)
	}
	path, err := s.path(group)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := &Manifest{Group: group}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, m); err != nil {
			return fmt.Errorf("manifest store: decode %s: %w", group, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("manifest store: read %s: %w", group, err)
	}

	// Re-seeding the same content must not duplicate the entry.
	for i, existing := range m.Items {
		if existing.Path == item.Path {
			m.Items[i] = item
			return s.write(group, m)
		}
	}
	m.Items = append(m.Items, item)
	return s.write(group, m)
}

// Groups lists all groups with a stored manifest.
func (s *Store) Groups() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("manifest store: list: %w", err)
	}
	var groups []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		groups = append(groups, name[:len(name)-len(".json")])
	}
	return groups, nil
}

// write must be called with the mutex held.
func (s *Store) write(group string, m *Manifest) error {
	path, err := s.path(group)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest store: encode %s: %w", group, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".manifest-tmp-*")
	if err != nil {
		return fmt.Errorf("manifest store: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("manifest store: write %s: %w", group, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("manifest store: sync %s: %w", group, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("manifest store: close %s: %w", group, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("manifest store: replace %s: %w", group, err)
	}
	return nil
}
