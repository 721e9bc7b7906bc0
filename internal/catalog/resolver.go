package catalog

import (
	"github.com/smart-librarian/server/pkg/textnorm"
)

// NotFound is the sentinel returned for any title absent from the extended
// catalog. It is also the literal value the answer model sees in tool results,
// so it must stay stable.
const NotFound = "NOT_FOUND"

// TitleIndex maps extended-catalog titles to their long summaries, keyed both
// by the raw title and by its normalized form so lookups survive case and
// diacritic differences. Built once, read-only afterwards.
type TitleIndex struct {
	raw        map[string]string
	normalized map[string]string
}

// NewTitleIndex builds the two-way index from extended entries. Later entries
// with a colliding title win, matching load order.
func NewTitleIndex(entries []ExtendedBook) *TitleIndex {
	idx := &TitleIndex{
		raw:        make(map[string]string, len(entries)),
		normalized: make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		idx.raw[e.Title] = e.Summary
		idx.normalized[textnorm.Normalize(e.Title)] = e.Summary
	}
	return idx
}

// Resolve returns the extended summary for a title: exact match first, then
// normalized, else NotFound. It never errors; empty titles resolve to NotFound.
func (idx *TitleIndex) Resolve(title string) string {
	if title == "" {
		return NotFound
	}
	if s, ok := idx.raw[title]; ok {
		return s
	}
	if key := textnorm.Normalize(title); key != "" {
		if s, ok := idx.normalized[key]; ok {
			return s
		}
	}
	return NotFound
}
