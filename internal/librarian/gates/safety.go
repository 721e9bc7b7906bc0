// Package gates holds the per-turn admission checks: the safety gate that
// screens abusive input and the intent router that classifies what kind of
// turn this is.
package gates

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/smart-librarian/server/internal/librarian/model"
	"github.com/smart-librarian/server/internal/librarian/prompt"
	"github.com/smart-librarian/server/internal/moderation"
	"github.com/smart-librarian/server/pkg/jsonx"
	logx "github.com/smart-librarian/server/pkg/logger"
	"github.com/smart-librarian/server/pkg/textnorm"
)

// moderationCategories are the classifier categories that count as abusive on
// their own, even when the top-level flagged bit is false.
var moderationCategories = []string{
	"harassment",
	"harassment/threatening",
	"hate",
	"hate/threatening",
	"sexual",
	"sexual/minors",
}

// SafetyGate merges a moderation classifier with an LLM detector. Both legs
// fail open: an unreachable upstream must never lock users out of the catalog.
type SafetyGate struct {
	classifier moderation.Classifier
	chatModel  model.ChatModel
}

// NewSafetyGate builds a gate over the given classifier and detector model.
func NewSafetyGate(classifier moderation.Classifier, chatModel model.ChatModel) *SafetyGate {
	return &SafetyGate{classifier: classifier, chatModel: chatModel}
}

// Check screens one message. Under HintInformational the LLM detector decides
// alone, which avoids moderation false positives on neutral catalog queries.
// Under the strict default the message must pass BOTH checks.
func (g *SafetyGate) Check(ctx context.Context, text string, hint model.Hint) model.SafetyVerdict {
	llmAllow := g.llmAllow(ctx, text)

	if hint == model.HintInformational {
		if !llmAllow {
			return model.SafetyVerdict{Allow: false, Reason: "llm_detector"}
		}
		return model.SafetyVerdict{Allow: true}
	}

	if g.moderationFlagged(ctx, text) {
		return model.SafetyVerdict{Allow: false, Reason: "moderation"}
	}
	if !llmAllow {
		return model.SafetyVerdict{Allow: false, Reason: "llm_detector"}
	}
	return model.SafetyVerdict{Allow: true}
}

func (g *SafetyGate) moderationFlagged(ctx context.Context, text string) bool {
	res, err := g.classifier.Classify(ctx, text)
	if err != nil {
		logx.Warn().Err(err).Str("component", "safety_gate").Msg("moderation unavailable, failing open")
		return false
	}
	if res.Flagged {
		return true
	}
	for _, cat := range moderationCategories {
		if res.Categories[cat] {
			return true
		}
	}
	return false
}

// llmAllow runs the JSON detector over the raw text plus normalized views.
// Missing or malformed output means allow: the detector only blocks on an
// explicit {"block": true}.
func (g *SafetyGate) llmAllow(ctx context.Context, text string) bool {
	system, err := prompt.RenderSafetySystem(ctx)
	if err != nil {
		logx.Warn().Err(err).Str("component", "safety_gate").Msg("render failed, failing open")
		return true
	}

	normalized := textnorm.ForModeration(text)
	user := prompt.BuildSafetyUser(text, normalized, strings.Fields(normalized))

	out, err := g.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	})
	if err != nil {
		logx.Warn().Err(err).Str("component", "safety_gate").Msg("detector unavailable, failing open")
		return true
	}

	data, _ := jsonx.ParseLoose(out.Content)
	return !jsonx.BoolField(data, "block")
}
