// Package prompt owns the embedded prompt templates and renders them through
// the Eino prompt component so prompt callbacks fire.
package prompt

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/smart-librarian/server/internal/librarian/model"
)

//go:embed template/safety_gate.txt
var safetyGateSystem string

//go:embed template/intent_gate.txt
var intentGateSystem string

//go:embed template/query_expand.txt
var queryExpandSystem string

//go:embed template/theme_vocab.txt
var themeVocabSystem string

//go:embed template/answer_system.txt
var answerSystem string

//go:embed template/answer_user.txt
var answerUser string

// render pushes a finished system string through the Eino prompt component
// using a messages placeholder, so the templates' literal JSON braces never
// meet the FString formatter.
func render(ctx context.Context, content string) (string, error) {
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("prompt callbacks: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("prompt callbacks: empty result")
	}
	return msgs[0].Content, nil
}

// RenderSafetySystem returns the profanity-detector system prompt.
func RenderSafetySystem(ctx context.Context) (string, error) {
	return render(ctx, safetyGateSystem)
}

// BuildSafetyUser lays out the raw message next to its normalized form and
// token list, so obfuscated insults survive at least one view.
func BuildSafetyUser(raw, normalized string, tokens []string) string {
	return fmt.Sprintf("RAW:\n%s\n\nNORMALIZED:\n%s\n\nTOKENS:\n%s\n",
		raw, normalized, strings.Join(tokens, " "))
}

// RenderIntentSystem returns the intent-gate system prompt.
func RenderIntentSystem(ctx context.Context) (string, error) {
	return render(ctx, intentGateSystem)
}

// RenderExpandSystem returns the query-expansion system prompt for the given
// term cap.
func RenderExpandSystem(ctx context.Context, maxTerms int) (string, error) {
	content := strings.NewReplacer("{max_terms}", strconv.Itoa(maxTerms)).Replace(queryExpandSystem)
	return render(ctx, content)
}

// BuildExpandUser wraps the query as the JSON object the expander expects.
func BuildExpandUser(query string) (string, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("marshal expand input: %w", err)
	}
	return string(body), nil
}

// RenderThemeVocabSystem returns the theme-synonym system prompt for the given
// per-theme cap.
func RenderThemeVocabSystem(ctx context.Context, perThemeMax int) (string, error) {
	content := strings.NewReplacer("{per_theme_max}", strconv.Itoa(perThemeMax)).Replace(themeVocabSystem)
	return render(ctx, content)
}

// BuildThemeVocabUser wraps the theme tags as the JSON object the expander
// expects.
func BuildThemeVocabUser(themes []string) (string, error) {
	body, err := json.Marshal(map[string][]string{"themes": themes})
	if err != nil {
		return "", fmt.Errorf("marshal theme input: %w", err)
	}
	return string(body), nil
}

// RenderAnswerSystem returns the recommendation system prompt.
func RenderAnswerSystem(ctx context.Context) (string, error) {
	return render(ctx, answerSystem)
}

// candidateView is the slice the answer prompt shows the model: titles and
// short summaries only, no scores.
type candidateView struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// BuildAnswerUser renders the per-turn task prompt with the candidate block
// and the user message inlined.
func BuildAnswerUser(query string, candidates []model.Candidate) (string, error) {
	views := make([]candidateView, 0, len(candidates))
	for _, c := range candidates {
		views = append(views, candidateView{Title: c.Title, Summary: c.Summary})
	}
	body, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidates: %w", err)
	}
	content := strings.NewReplacer(
		"{candidates}", string(body),
		"{query}", query,
	).Replace(answerUser)
	return content, nil
}
