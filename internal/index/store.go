// Package index maintains the persistent similarity index over catalog
// documents and answers k-nearest-neighbour queries for the retriever.
package index

import (
	"context"
	"fmt"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/smart-librarian/server/internal/catalog"
	logx "github.com/smart-librarian/server/pkg/logger"
)

// StoreConfig holds vector store configuration.
type StoreConfig struct {
	PersistPath string `envconfig:"INDEX_PERSIST_PATH" default:"chroma_db"`
	Collection  string `envconfig:"INDEX_COLLECTION" default:"books"`
}

// Hit is one ranked query result. Distance is 1 - cosine similarity, so lower
// means closer; hits are returned in ascending distance order.
type Hit struct {
	Title    string
	Document string
	Distance float32
}

// Searcher is the query-side interface the retriever depends on.
type Searcher interface {
	Query(ctx context.Context, text string, k int) ([]Hit, error)
}

// VectorIndex is a chromem-go backed Searcher, rebuilt from the catalog at
// startup and read-only afterwards.
type VectorIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     StoreConfig
}

// NewVectorIndex opens (or creates) the persistent store and its collection.
func NewVectorIndex(config StoreConfig, embedder Embedder) (*VectorIndex, error) {
	if config.Collection == "" {
		config.Collection = "books"
	}

	var db *chromem.DB
	var err error
	if config.PersistPath != "" {
		// chromem treats the path as a directory, one subdirectory per collection.
		db, err = chromem.NewPersistentDB(config.PersistPath, false)
		if err != nil {
			return nil, fmt.Errorf("create persistent DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	// Recreate the collection on every start so catalog edits take effect.
	_ = db.DeleteCollection(config.Collection)

	collection, err := db.GetOrCreateCollection(config.Collection, nil, EmbeddingFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &VectorIndex{db: db, collection: collection, config: config}, nil
}

// BuildDocument renders one catalog entry into the indexed document text. The
// Summary label is load-bearing: the retriever extracts the short summary back
// out of the stored document by that label.
func BuildDocument(b catalog.Book, synonyms []string) string {
	themes := strings.Join(b.Themes, ", ")
	syns := strings.Join(synonyms, ", ")
	return fmt.Sprintf(
		"Title: %s\nThemes: %s\nThemeSynonyms: %s\nThemesBoost: %s %s\nSummary: %s",
		b.Title, themes, syns, themes, syns, b.Summary,
	)
}

// Populate indexes every catalog book. The synonym map (theme tag -> related
// terms) enriches the documents; pass nil to index tags as-is.
func (v *VectorIndex) Populate(ctx context.Context, books []catalog.Book, synonyms map[string][]string) error {
	for i, b := range books {
		var syns []string
		for _, t := range b.Themes {
			syns = append(syns, synonyms[t]...)
		}
		doc := chromem.Document{
			ID:       fmt.Sprintf("book-%d", i),
			Content:  BuildDocument(b, syns),
			Metadata: map[string]string{"title": b.Title},
		}
		if err := v.collection.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("index book %q: %w", b.Title, err)
		}
	}
	logx.Info().Int("books", len(books)).Str("collection", v.config.Collection).Msg("vector index populated")
	return nil
}

// Count returns the number of indexed documents.
func (v *VectorIndex) Count() int {
	return v.collection.Count()
}

// Query runs a k-NN search. k is clamped to the collection size; an empty
// collection yields an empty result, not an error.
func (v *VectorIndex) Query(ctx context.Context, text string, k int) ([]Hit, error) {
	if total := v.collection.Count(); k > total {
		k = total
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := v.collection.Query(ctx, text, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			Title:    r.Metadata["title"],
			Document: r.Content,
			Distance: 1 - r.Similarity,
		})
	}
	return hits, nil
}
