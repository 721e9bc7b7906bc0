package gates

import (
	"strings"

	"github.com/smart-librarian/server/internal/catalog"
	"github.com/smart-librarian/server/internal/librarian/model"
	"github.com/smart-librarian/server/pkg/textnorm"
)

// ComputeHint decides how strictly the safety gate should weigh the moderation
// classifier. Messages that already mention a catalog title or theme tag read
// as benign catalog queries, so they get the informational hint; everything
// else stays strict.
func ComputeHint(store *catalog.Store, text string) model.Hint {
	norm := textnorm.Normalize(text)
	if norm == "" {
		return model.HintStrict
	}
	padded := " " + norm + " "

	for _, b := range store.Books() {
		if t := textnorm.Normalize(b.Title); t != "" && strings.Contains(padded, " "+t+" ") {
			return model.HintInformational
		}
	}
	for _, theme := range store.Themes() {
		if t := textnorm.Normalize(theme); t != "" && strings.Contains(padded, " "+t+" ") {
			return model.HintInformational
		}
	}
	return model.HintStrict
}
