// Package catalog owns the fixed book datasets backing recommendations: the
// small catalog (title, short summary, theme tags) used to build the vector
// index, and the optional extended catalog (title, long summary) served
// through the summaries tool. Both are loaded once at startup and read-only
// afterwards, so a single Store can be shared by concurrent turns without
// locking.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Book is one entry of the small catalog. Title is the catalog key.
type Book struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Themes  []string `json:"themes"`
}

// ExtendedBook is one entry of the extended catalog. Summary may be a single
// string or a list of paragraphs in the source file; the loader flattens lists.
type ExtendedBook struct {
	Title   string
	Summary string
}

// Store is an immutable snapshot of both catalogs plus the derived title index.
type Store struct {
	books    []Book
	index    *TitleIndex
	extCount int
}

// NewStore builds a Store from already-loaded catalogs.
func NewStore(books []Book, extended []ExtendedBook) *Store {
	return &Store{
		books:    books,
		index:    NewTitleIndex(extended),
		extCount: len(extended),
	}
}

// Load reads both catalog files and returns a ready Store. The small catalog
// is required; the extended one degrades to empty when the file is absent.
func Load(booksPath, extendedPath string) (*Store, error) {
	books, err := LoadBooks(booksPath)
	if err != nil {
		return nil, err
	}
	extended, err := LoadExtended(extendedPath)
	if err != nil {
		return nil, err
	}
	return NewStore(books, extended), nil
}

// Books returns the small catalog in load order.
func (s *Store) Books() []Book {
	return s.books
}

// ExtendedCount reports how many extended entries were loaded.
func (s *Store) ExtendedCount() int {
	return s.extCount
}

// Resolve looks a title up in the extended catalog. See TitleIndex.Resolve.
func (s *Store) Resolve(title string) string {
	return s.index.Resolve(title)
}

// Themes returns the sorted-by-first-occurrence set of unique theme tags
// across the small catalog.
func (s *Store) Themes() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, b := range s.books {
		for _, t := range b.Themes {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// LoadBooks reads the small catalog. Every entry must carry title, summary
// and themes; a missing file or malformed entry fails startup.
func LoadBooks(path string) ([]Book, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read books catalog %s: %w", path, err)
	}

	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("books catalog %s: expected a JSON list of objects: %w", path, err)
	}

	books := make([]Book, 0, len(entries))
	for i, e := range entries {
		for _, key := range []string{"title", "summary", "themes"} {
			if _, ok := e[key]; !ok {
				return nil, fmt.Errorf("books catalog %s: entry #%d is missing required key %q", path, i, key)
			}
		}
		var b Book
		entryRaw, _ := json.Marshal(e)
		if err := json.Unmarshal(entryRaw, &b); err != nil {
			return nil, fmt.Errorf("books catalog %s: entry #%d: %w", path, i, err)
		}
		books = append(books, b)
	}
	return books, nil
}

// rawExtended matches the on-disk shape, where summary may be a string or a
// list of strings.
type rawExtended struct {
	Title   string          `json:"title"`
	Summary json.RawMessage `json:"summary"`
}

// LoadExtended reads the extended catalog. A missing file is not an error and
// yields an empty list; a present-but-malformed entry fails validation.
func LoadExtended(path string) ([]ExtendedBook, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read extended catalog %s: %w", path, err)
	}

	var entries []rawExtended
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("extended catalog %s: expected a JSON list of objects: %w", path, err)
	}

	out := make([]ExtendedBook, 0, len(entries))
	for i, e := range entries {
		if e.Title == "" {
			return nil, fmt.Errorf("extended catalog %s: entry #%d is missing required key %q", path, i, "title")
		}
		if len(e.Summary) == 0 {
			return nil, fmt.Errorf("extended catalog %s: entry #%d is missing required key %q", path, i, "summary")
		}
		summary, err := flattenSummary(e.Summary)
		if err != nil {
			return nil, fmt.Errorf("extended catalog %s: entry #%d: %w", path, i, err)
		}
		out = append(out, ExtendedBook{Title: e.Title, Summary: summary})
	}
	return out, nil
}

func flattenSummary(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var parts []string
	if err := json.Unmarshal(raw, &parts); err == nil {
		return strings.Join(parts, "\n\n"), nil
	}
	return "", fmt.Errorf("summary must be a string or a list of strings")
}
