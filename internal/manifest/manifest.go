package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// Item declares one piece of content a consumer node should hold locally.
// Items are read-only to consumers; a changed item is a new entry or a hash
// change, never an in-place mutation.
type Item struct {
	Title string `json:"title"`
	// Magnet is the opaque transfer address resolvable by the transfer
	// executable.
	Magnet string `json:"torrent"`
	// Path is the destination relative to the storage root.
	Path string `json:"path"`
	// SHA256 is the optional expected content hash, hex, case-insensitive.
	// Absent means existence-only check.
	SHA256 string `json:"sha256,omitempty"`
}

// Validate checks structural requirements of one manifest entry.
func (i Item) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Title, validation.Required),
		validation.Field(&i.Magnet, validation.Required),
		validation.Field(&i.Path, validation.Required, validation.By(relativePath)),
		validation.Field(&i.SHA256, validation.Length(64, 64), validation.Match(hexPattern)),
	)
}

// Manifest is the ordered collection of items for one group. Fetched fresh
// each cycle; never cached across cycles.
type Manifest struct {
	Group string `json:"group"`
	Items []Item `json:"items"`
}

// Validate checks the manifest and every item in it.
func (m Manifest) Validate() error {
	if err := validation.ValidateStruct(&m,
		validation.Field(&m.Group, validation.Required),
	); err != nil {
		return err
	}
	for idx, item := range m.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("items[%d]: %w", idx, err)
		}
	}
	return nil
}

func relativePath(value any) error {
	s, _ := value.(string)
	if filepath.IsAbs(s) {
		return fmt.Errorf("must be relative")
	}
	cleaned := filepath.Clean(s)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("must not traverse outside the storage root")
	}
	return nil
}

// SafeJoin resolves rel against root and rejects any result that escapes it.
func SafeJoin(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("manifest: empty destination path")
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("manifest: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("manifest: resolve path: %w", err)
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("manifest: resolve root: %w", err)
	}
	if abs != rootAbs && !strings.HasPrefix(abs, rootAbs+string(os.PathSeparator)) {
		return "", fmt.Errorf("manifest: path escapes storage root: %s", rel)
	}
	return abs, nil
}
