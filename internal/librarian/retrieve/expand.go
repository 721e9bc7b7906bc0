// Package retrieve turns a user message into ranked catalog candidates: query
// expansion through the chat model, then k-NN search over the vector index.
package retrieve

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/smart-librarian/server/internal/librarian/model"
	"github.com/smart-librarian/server/internal/librarian/prompt"
	"github.com/smart-librarian/server/pkg/jsonx"
	logx "github.com/smart-librarian/server/pkg/logger"
)

const (
	// DefaultMaxTerms caps the expansion term list.
	DefaultMaxTerms = 10
	// maxTermLen drops hallucinated run-on "terms".
	maxTermLen = 40
)

// Expander rewrites user queries into short English retrieval terms. Expansion
// is best-effort: every failure path returns no terms and retrieval proceeds
// on the raw query.
type Expander struct {
	chatModel model.ChatModel
	maxTerms  int
}

// NewExpander builds an expander over the chat model.
func NewExpander(chatModel model.ChatModel, maxTerms int) *Expander {
	if maxTerms <= 0 {
		maxTerms = DefaultMaxTerms
	}
	return &Expander{chatModel: chatModel, maxTerms: maxTerms}
}

// Expand returns up to maxTerms cleaned keywords for the query, or nil when
// expansion is unavailable.
func (e *Expander) Expand(ctx context.Context, query string) []string {
	system, err := prompt.RenderExpandSystem(ctx, e.maxTerms)
	if err != nil {
		logx.Warn().Err(err).Str("component", "query_expander").Msg("render failed, skipping expansion")
		return nil
	}
	user, err := prompt.BuildExpandUser(query)
	if err != nil {
		logx.Warn().Err(err).Str("component", "query_expander").Msg("input marshal failed, skipping expansion")
		return nil
	}

	out, err := e.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	})
	if err != nil {
		logx.Warn().Err(err).Str("component", "query_expander").Msg("expansion unavailable, using raw query")
		return nil
	}

	data, _ := jsonx.ParseLoose(out.Content)
	return CleanTerms(jsonx.StringList(data, "english_keywords"), e.maxTerms)
}

// CleanTerms trims, drops empty or overlong entries, and caps the list.
func CleanTerms(terms []string, max int) []string {
	var out []string
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" || len(t) > maxTermLen {
			continue
		}
		out = append(out, t)
		if len(out) == max {
			break
		}
	}
	return out
}

// ExpandThemeVocab asks the chat model for up to perThemeMax near-synonyms per
// theme tag, for enriching indexed documents. Every input theme gets an entry;
// failures leave the lists empty.
func ExpandThemeVocab(ctx context.Context, chatModel model.ChatModel, themes []string, perThemeMax int) map[string][]string {
	out := make(map[string][]string, len(themes))
	for _, t := range themes {
		out[t] = nil
	}
	if len(themes) == 0 {
		return out
	}

	system, err := prompt.RenderThemeVocabSystem(ctx, perThemeMax)
	if err != nil {
		logx.Warn().Err(err).Str("component", "theme_vocab").Msg("render failed, indexing tags as-is")
		return out
	}
	user, err := prompt.BuildThemeVocabUser(themes)
	if err != nil {
		logx.Warn().Err(err).Str("component", "theme_vocab").Msg("input marshal failed, indexing tags as-is")
		return out
	}

	resp, err := chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	})
	if err != nil {
		logx.Warn().Err(err).Str("component", "theme_vocab").Msg("expansion unavailable, indexing tags as-is")
		return out
	}

	data, _ := jsonx.ParseLoose(resp.Content)
	for _, t := range themes {
		out[t] = CleanTerms(jsonx.StringList(data, t), perThemeMax)
	}
	return out
}
