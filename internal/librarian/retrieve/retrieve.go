package retrieve

import (
	"context"
	"regexp"
	"strings"

	"github.com/smart-librarian/server/internal/index"
	"github.com/smart-librarian/server/internal/librarian/model"
	logx "github.com/smart-librarian/server/pkg/logger"
)

// DefaultTopK is the candidate pool size per turn.
const DefaultTopK = 7

// summaryLabel finds the short-summary label inside an indexed document,
// tolerating case and a newline right after the colon.
var summaryLabel = regexp.MustCompile(`(?is)\bsummary\s*:\s*`)

// Retriever runs k-NN retrieval over the vector index and shapes hits into
// candidates for the answer stage.
type Retriever struct {
	searcher index.Searcher
	topK     int
}

// NewRetriever builds a retriever over the searcher.
func NewRetriever(searcher index.Searcher, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{searcher: searcher, topK: topK}
}

// EffectiveQuery joins the raw message with its expansion terms. With no terms
// the raw message stands alone.
func EffectiveQuery(raw string, terms []string) string {
	if len(terms) == 0 {
		return raw
	}
	return raw + "\nKeywords: " + strings.Join(terms, ", ")
}

// Retrieve searches with the effective query and returns candidates in
// ascending distance order. An empty result is a valid terminal outcome, not
// an error.
func (r *Retriever) Retrieve(ctx context.Context, raw string, terms []string) ([]model.Candidate, error) {
	query := EffectiveQuery(raw, terms)
	hits, err := r.searcher.Query(ctx, query, r.topK)
	if err != nil {
		return nil, err
	}

	candidates := make([]model.Candidate, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, model.Candidate{
			Title:   h.Title,
			Summary: ExtractSummary(h.Document),
			Score:   float64(h.Distance),
		})
	}
	logx.Debug().Int("candidates", len(candidates)).Int("terms", len(terms)).Msg("retrieval done")
	return candidates, nil
}

// ExtractSummary pulls the text after the Summary label back out of an indexed
// document. Documents without the label are returned whole.
func ExtractSummary(doc string) string {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return ""
	}
	if loc := summaryLabel.FindStringIndex(doc); loc != nil {
		return strings.TrimSpace(doc[loc[1]:])
	}
	return doc
}
