package answer

import (
	"context"
	"errors"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-librarian/server/internal/catalog"
	errx "github.com/smart-librarian/server/internal/core/error"
	"github.com/smart-librarian/server/internal/librarian/model"
	"github.com/smart-librarian/server/internal/librarian/tools"
)

// recordingModel returns a fixed message (or error) and captures the last
// transcript it was asked to complete.
type recordingModel struct {
	output *schema.Message
	err    error
	calls  int
	last   []*schema.Message
}

func (m *recordingModel) Generate(_ context.Context, msgs []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.calls++
	m.last = msgs
	if m.err != nil {
		return nil, m.err
	}
	return m.output, nil
}

func toolCallMessage(id, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

func summariesTool() *catalog.Store {
	return catalog.NewStore(nil, []catalog.ExtendedBook{
		{Title: "The Hobbit", Summary: "Bilbo's long journey, told at length."},
		{Title: "Dune", Summary: "Paul's rise on Arrakis, told at length."},
	})
}

func TestAnswerHappyPath(t *testing.T) {
	bound := &recordingModel{output: toolCallMessage("tc1", tools.SummariesToolName, `{"titles": ["The Hobbit"]}`)}
	plain := &recordingModel{output: schema.AssistantMessage("**The Hobbit**\nWhy this book?\n- adventure\nSummary:\nBilbo's long journey, told at length.", nil)}

	o := New(Models{Primary: bound}, Models{Primary: plain}, tools.NewSummariesTool(summariesTool()))
	reply, err := o.Answer(context.Background(), "one adventure book", []model.Candidate{{Title: "The Hobbit", Summary: "short"}})
	require.NoError(t, err)

	assert.Contains(t, reply, "**The Hobbit**")
	assert.NotContains(t, reply, "Summary:", "labels are stripped")
	assert.Contains(t, reply, "Bilbo's long journey")

	// Round 2 sees system, user, the tool-call record and exactly one tool result.
	require.Len(t, plain.last, 4)
	toolMsg := plain.last[3]
	assert.Equal(t, schema.Tool, toolMsg.Role)
	assert.Equal(t, "tc1", toolMsg.ToolCallID)
	assert.Contains(t, toolMsg.Content, "Bilbo's long journey, told at length.")
}

func TestAnswerUnknownToolGetsNotImplemented(t *testing.T) {
	bound := &recordingModel{output: toolCallMessage("tc9", "get_reviews", `{}`)}
	plain := &recordingModel{output: schema.AssistantMessage("done", nil)}

	o := New(Models{Primary: bound}, Models{Primary: plain}, tools.NewSummariesTool(summariesTool()))
	_, err := o.Answer(context.Background(), "q", nil)
	require.NoError(t, err)

	require.Len(t, plain.last, 4)
	assert.Equal(t, "NOT_IMPLEMENTED", plain.last[3].Content)
	assert.Equal(t, "tc9", plain.last[3].ToolCallID)
}

func TestAnswerMalformedArgsDegradeToEmptyTitles(t *testing.T) {
	bound := &recordingModel{output: toolCallMessage("tc2", tools.SummariesToolName, `{"titles": [broken`)}
	plain := &recordingModel{output: schema.AssistantMessage("done", nil)}

	o := New(Models{Primary: bound}, Models{Primary: plain}, tools.NewSummariesTool(summariesTool()))
	_, err := o.Answer(context.Background(), "q", nil)
	require.NoError(t, err)

	require.Len(t, plain.last, 4)
	assert.Equal(t, "{}", plain.last[3].Content, "empty title list yields an empty map, not an error")
}

func TestAnswerStringTitlesArgument(t *testing.T) {
	bound := &recordingModel{output: toolCallMessage("tc3", tools.SummariesToolName, `{"titles": "The Hobbit"}`)}
	plain := &recordingModel{output: schema.AssistantMessage("done", nil)}

	o := New(Models{Primary: bound}, Models{Primary: plain}, tools.NewSummariesTool(summariesTool()))
	_, err := o.Answer(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Contains(t, plain.last[3].Content, "Bilbo's long journey")
}

func TestAnswerDuplicateSummariesCallsAreMerged(t *testing.T) {
	first := schema.AssistantMessage("", []schema.ToolCall{
		{ID: "tc1", Type: "function", Function: schema.FunctionCall{Name: tools.SummariesToolName, Arguments: `{"titles": ["The Hobbit"]}`}},
		{ID: "tc2", Type: "function", Function: schema.FunctionCall{Name: tools.SummariesToolName, Arguments: `{"titles": ["Dune", "The Hobbit"]}`}},
	})
	bound := &recordingModel{output: first}
	plain := &recordingModel{output: schema.AssistantMessage("done", nil)}

	o := New(Models{Primary: bound}, Models{Primary: plain}, tools.NewSummariesTool(summariesTool()))
	_, err := o.Answer(context.Background(), "q", nil)
	require.NoError(t, err)

	// Each call id still gets its own tool message, but both carry the merged
	// lookup over the union of titles.
	require.Len(t, plain.last, 5)
	assert.Equal(t, "tc1", plain.last[3].ToolCallID)
	assert.Equal(t, "tc2", plain.last[4].ToolCallID)
	assert.Equal(t, plain.last[3].Content, plain.last[4].Content)
	assert.Contains(t, plain.last[3].Content, "Bilbo's long journey")
	assert.Contains(t, plain.last[3].Content, "Paul's rise on Arrakis")
}

func TestAnswerMissingToolCallIDIsSynthesized(t *testing.T) {
	bound := &recordingModel{output: toolCallMessage("", tools.SummariesToolName, `{"titles": []}`)}
	plain := &recordingModel{output: schema.AssistantMessage("done", nil)}

	o := New(Models{Primary: bound}, Models{Primary: plain}, tools.NewSummariesTool(summariesTool()))
	_, err := o.Answer(context.Background(), "q", nil)
	require.NoError(t, err)

	toolMsg := plain.last[3]
	assert.NotEmpty(t, toolMsg.ToolCallID)
	assert.Equal(t, plain.last[2].ToolCalls[0].ID, toolMsg.ToolCallID, "assistant record and tool result share the id")
}

func TestAnswerNoToolCallAcceptsContent(t *testing.T) {
	bound := &recordingModel{output: schema.AssistantMessage("Direct answer. Summary: leaked label", nil)}
	plain := &recordingModel{output: schema.AssistantMessage("never", nil)}

	o := New(Models{Primary: bound}, Models{Primary: plain}, tools.NewSummariesTool(summariesTool()))
	reply, err := o.Answer(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "Direct answer.  leaked label", reply)
	assert.Zero(t, plain.calls, "round 2 never runs without a tool round")
}

func TestAnswerRoundOneFallsBackToSecondaryOnce(t *testing.T) {
	primary := &recordingModel{err: errors.New("primary down")}
	secondary := &recordingModel{output: schema.AssistantMessage("from secondary", nil)}
	plain := &recordingModel{output: schema.AssistantMessage("never", nil)}

	o := New(Models{Primary: primary, Secondary: secondary}, Models{Primary: plain}, tools.NewSummariesTool(summariesTool()))
	reply, err := o.Answer(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "from secondary", reply)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestAnswerRoundOneFailureIsTransient(t *testing.T) {
	primary := &recordingModel{err: errors.New("down")}
	o := New(Models{Primary: primary}, Models{Primary: &recordingModel{}}, tools.NewSummariesTool(summariesTool()))

	_, err := o.Answer(context.Background(), "q", nil)
	require.Error(t, err)
	var appErr *errx.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errx.UpstreamModelMessage, appErr.Message)
}

func TestAnswerRoundTwoFailureDegrades(t *testing.T) {
	bound := &recordingModel{output: toolCallMessage("tc1", tools.SummariesToolName, `{"titles": ["The Hobbit"]}`)}
	plain := &recordingModel{err: errors.New("round 2 down")}

	o := New(Models{Primary: bound}, Models{Primary: plain}, tools.NewSummariesTool(summariesTool()))
	reply, err := o.Answer(context.Background(), "q", nil)
	require.NoError(t, err, "the turn is not lost")
	assert.Equal(t, model.ReplyComposeFail, reply)
}

func TestSanitize(t *testing.T) {
	in := "**T**\nSummary:\nBody text.\n\n\n\nExtended summary: more.\n"
	out := Sanitize(in)
	assert.NotContains(t, out, "Summary:")
	assert.NotContains(t, out, "Extended summary:")
	assert.NotContains(t, out, "\n\n\n")
	assert.Equal(t, out, Sanitize(out), "sanitization is idempotent")
}
