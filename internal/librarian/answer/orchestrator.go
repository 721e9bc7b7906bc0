// Package answer runs the two-round tool protocol that produces the final
// recommendation: one generation round that must call the summaries tool, a
// deterministic dispatch step, and a closing round with no tools offered.
package answer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	errx "github.com/smart-librarian/server/internal/core/error"
	"github.com/smart-librarian/server/internal/librarian/model"
	"github.com/smart-librarian/server/internal/librarian/prompt"
	"github.com/smart-librarian/server/internal/librarian/tools"
	"github.com/smart-librarian/server/pkg/jsonx"
	logx "github.com/smart-librarian/server/pkg/logger"
)

// notImplemented is the fixed tool result for tool names we never offered.
// Feeding it back into the transcript keeps the protocol total instead of
// crashing on a surprising call.
const notImplemented = "NOT_IMPLEMENTED"

// Models pairs a primary chat model with an optional secondary tried once
// when the primary fails. This is the only fallback in the pipeline.
type Models struct {
	Primary   model.ChatModel
	Secondary model.ChatModel
}

// Orchestrator owns the answer protocol. The bound pair has the summaries
// tool attached; the plain pair must not, so round 2 cannot call tools again.
type Orchestrator struct {
	bound     Models
	plain     Models
	summaries tool.InvokableTool
}

// New builds an orchestrator.
func New(bound, plain Models, summaries tool.InvokableTool) *Orchestrator {
	return &Orchestrator{bound: bound, plain: plain, summaries: summaries}
}

// Answer runs both rounds for one turn. A round-1 failure surfaces as a
// transient upstream error; a round-2 failure after a completed tool round
// degrades to a fixed message so the user's turn is not lost.
func (o *Orchestrator) Answer(ctx context.Context, query string, candidates []model.Candidate) (string, error) {
	system, err := prompt.RenderAnswerSystem(ctx)
	if err != nil {
		return "", errx.WrapModel(err)
	}
	user, err := prompt.BuildAnswerUser(query, candidates)
	if err != nil {
		return "", errx.WrapModel(err)
	}

	transcript := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}

	first, err := o.generate(ctx, o.bound, transcript)
	if err != nil {
		return "", errx.WrapModel(err)
	}

	if len(first.ToolCalls) == 0 {
		// The prompt demands a tool call, but a direct answer is still better
		// than dropping the turn.
		logx.Warn().Str("component", "answer").Msg("model answered without tool call")
		return Sanitize(first.Content), nil
	}

	transcript = append(transcript, first)
	transcript = append(transcript, o.dispatch(ctx, first.ToolCalls)...)

	final, err := o.generate(ctx, o.plain, transcript)
	if err != nil {
		logx.Error().Err(err).Str("component", "answer").Msg("round 2 failed after tool round, degrading")
		return model.ReplyComposeFail, nil
	}
	return Sanitize(final.Content), nil
}

// generate tries the primary model, then the secondary exactly once.
func (o *Orchestrator) generate(ctx context.Context, m Models, msgs []*schema.Message) (*schema.Message, error) {
	out, err := m.Primary.Generate(ctx, msgs)
	if err == nil {
		return out, nil
	}
	if m.Secondary == nil {
		return nil, err
	}
	logx.Warn().Err(err).Str("component", "answer").Msg("primary model failed, trying secondary")
	return m.Secondary.Generate(ctx, msgs)
}

// dispatch resolves every requested tool invocation into exactly one tool
// message, in request order. The prompt demands a single summaries call, but
// that is a convention, not a guarantee: duplicate summaries calls are merged
// into one lookup over the union of their titles, and each such call id gets
// the merged result. Unknown tool names get the NOT_IMPLEMENTED result.
func (o *Orchestrator) dispatch(ctx context.Context, calls []schema.ToolCall) []*schema.Message {
	out := make([]*schema.Message, 0, len(calls))
	summaries := ""
	resolved := false
	for i, tc := range calls {
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("call-%d", i)
			calls[i].ID = id
		}

		if tc.Function.Name != tools.SummariesToolName {
			logx.Warn().Str("tool", tc.Function.Name).Msg("unknown tool requested")
			out = append(out, schema.ToolMessage(notImplemented, id, schema.WithToolName(tc.Function.Name)))
			continue
		}

		if !resolved {
			summaries = o.resolveSummaries(ctx, calls)
			resolved = true
		}
		out = append(out, schema.ToolMessage(summaries, id, schema.WithToolName(tools.SummariesToolName)))
	}
	return out
}

// resolveSummaries runs the summaries tool once over the deduplicated union of
// titles across every summaries call in the round.
func (o *Orchestrator) resolveSummaries(ctx context.Context, calls []schema.ToolCall) string {
	var titles []string
	seen := make(map[string]struct{})
	for _, tc := range calls {
		if tc.Function.Name != tools.SummariesToolName {
			continue
		}
		for _, t := range parseTitles(tc.Function.Arguments) {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			titles = append(titles, t)
		}
	}

	args, err := json.Marshal(tools.SummariesInput{Titles: titles})
	if err != nil {
		args = []byte(`{"titles": []}`)
	}
	content, err := o.summaries.InvokableRun(ctx, string(args))
	if err != nil {
		logx.Warn().Err(err).Msg("summaries tool failed")
		return notImplemented
	}
	return content
}

// parseTitles repairs model-emitted tool arguments: prose around the JSON is
// tolerated, a bare string under titles becomes a one-element list, and
// anything unrecoverable collapses to an empty title list.
func parseTitles(raw string) []string {
	data, _ := jsonx.ParseLoose(raw)
	titles := jsonx.StringList(data, "titles")
	if len(titles) == 0 {
		if s := jsonx.StringField(data, "titles"); s != "" {
			titles = []string{s}
		}
	}
	return titles
}
