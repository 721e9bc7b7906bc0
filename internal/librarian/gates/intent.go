package gates

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/smart-librarian/server/internal/librarian/model"
	"github.com/smart-librarian/server/internal/librarian/prompt"
	"github.com/smart-librarian/server/pkg/jsonx"
	logx "github.com/smart-librarian/server/pkg/logger"
)

// IntentRouter classifies a message into greet, clarify, offtopic or proceed.
// Terminal actions end the turn with a fixed reply; only proceed continues.
type IntentRouter struct {
	chatModel model.ChatModel
}

// NewIntentRouter builds a router over the gate model.
func NewIntentRouter(chatModel model.ChatModel) *IntentRouter {
	return &IntentRouter{chatModel: chatModel}
}

// Classify asks the gate model for an action. Any failure along the way —
// render, generation, parse, out-of-enum output — defaults to proceed: the
// safe default is to try to help, never to refuse.
func (r *IntentRouter) Classify(ctx context.Context, text string) model.GateDecision {
	system, err := prompt.RenderIntentSystem(ctx)
	if err != nil {
		logx.Warn().Err(err).Str("component", "intent_router").Msg("render failed, defaulting to proceed")
		return model.GateDecision{Action: model.ActionProceed}
	}

	out, err := r.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(text),
	})
	if err != nil {
		logx.Warn().Err(err).Str("component", "intent_router").Msg("gate model unavailable, defaulting to proceed")
		return model.GateDecision{Action: model.ActionProceed}
	}

	return ParseGateDecision(out.Content)
}

// ParseGateDecision extracts the action from gate model output. Replies come
// from the fixed table, never from the model, so terminal turns stay
// deterministic. Anything outside the four-value enum collapses to proceed.
func ParseGateDecision(content string) model.GateDecision {
	data, _ := jsonx.ParseLoose(content)
	action := model.Action(strings.ToLower(strings.TrimSpace(jsonx.StringField(data, "action"))))

	switch action {
	case model.ActionGreet, model.ActionClarify, model.ActionOfftopic:
		return model.GateDecision{Action: action, Reply: model.CannedReply(action)}
	case model.ActionProceed:
		return model.GateDecision{Action: model.ActionProceed}
	default:
		return model.GateDecision{Action: model.ActionProceed}
	}
}
