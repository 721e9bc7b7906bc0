// Package nodes defines the graph nodes of the turn pipeline and their state
// handlers and branch conditions.
package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/smart-librarian/server/internal/catalog"
	errx "github.com/smart-librarian/server/internal/core/error"
	"github.com/smart-librarian/server/internal/librarian/answer"
	"github.com/smart-librarian/server/internal/librarian/gates"
	"github.com/smart-librarian/server/internal/librarian/model"
	"github.com/smart-librarian/server/internal/librarian/retrieve"
	logx "github.com/smart-librarian/server/pkg/logger"
)

// Node keys.
const (
	NodeSafetyGate    = "SafetyGateNode"
	NodeRefusal       = "RefusalNode"
	NodeIntentRouter  = "IntentRouterNode"
	NodeCannedReply   = "CannedReplyNode"
	NodeQueryExpander = "QueryExpanderNode"
	NodeRetriever     = "RetrieverNode"
	NodeNoCoverage    = "NoCoverageNode"
	NodeAnswerer      = "AnswererNode"
)

// terminal builds the final message for a terminal outcome and records the
// outcome in the graph state and the message Extra.
func terminal(ctx context.Context, reply string, outcome model.Outcome) (*schema.Message, error) {
	err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
		state.Outcome = outcome
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access state: %w", err)
	}

	msg := schema.AssistantMessage(reply, nil)
	msg.Extra = map[string]any{model.OutcomeExtraKey: outcome}
	return msg, nil
}

// NewSafetyGatePreHandler seeds the per-turn state before the first node runs.
func NewSafetyGatePreHandler(store *catalog.Store) func(context.Context, model.TurnInput, *model.AppState) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, s *model.AppState) (model.TurnInput, error) {
		s.TurnID = in.TurnID
		s.Query = in.Message
		s.Hint = gates.ComputeHint(store, in.Message)
		return in, nil
	}
}

// NewSafetyGateNode screens the message before any catalog content is exposed.
func NewSafetyGateNode(gate *gates.SafetyGate) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) (model.GateOutcome, error) {
		var hint model.Hint
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			hint = state.Hint
			return nil
		})
		if err != nil {
			return model.GateOutcome{}, fmt.Errorf("failed to access state: %w", err)
		}

		verdict := gate.Check(ctx, in.Message, hint)
		if !verdict.Allow {
			logx.Info().Str("reason", verdict.Reason).Msg("message blocked by safety gate")
		}
		return model.GateOutcome{Query: in.Message, Verdict: verdict}, nil
	})
}

// NewRefusalCondition routes blocked messages to the refusal node.
func NewRefusalCondition() func(context.Context, model.GateOutcome) (string, error) {
	return func(ctx context.Context, in model.GateOutcome) (string, error) {
		if !in.Verdict.Allow {
			return NodeRefusal, nil
		}
		return NodeIntentRouter, nil
	}
}

// NewRefusalNode ends a blocked turn with the fixed civility reply.
func NewRefusalNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.GateOutcome) (*schema.Message, error) {
		return terminal(ctx, model.ReplyBlocked, model.OutcomeBlocked)
	})
}

// NewIntentRouterNode classifies the turn. The router defaults to proceed on
// any model failure, so this node never errors the graph.
func NewIntentRouterNode(router *gates.IntentRouter) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.GateOutcome) (model.GateDecision, error) {
		return router.Classify(ctx, in.Query), nil
	})
}

// NewCannedReplyCondition routes terminal actions to the canned reply node.
func NewCannedReplyCondition() func(context.Context, model.GateDecision) (string, error) {
	return func(ctx context.Context, in model.GateDecision) (string, error) {
		if in.Action == model.ActionProceed {
			return NodeQueryExpander, nil
		}
		return NodeCannedReply, nil
	}
}

// NewCannedReplyNode ends a greet/clarify/offtopic turn with its fixed reply.
func NewCannedReplyNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.GateDecision) (*schema.Message, error) {
		return terminal(ctx, in.Reply, model.OutcomeForAction(in.Action))
	})
}

// NewQueryExpanderNode rewrites the query into retrieval terms. Expansion is
// best-effort; no terms is a valid plan.
func NewQueryExpanderNode(expander *retrieve.Expander) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.GateDecision) (model.RetrievalPlan, error) {
		var query string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			query = state.Query
			return nil
		})
		if err != nil {
			return model.RetrievalPlan{}, fmt.Errorf("failed to access state: %w", err)
		}

		terms := expander.Expand(ctx, query)
		return model.RetrievalPlan{Query: query, Terms: terms}, nil
	})
}

// NewRetrieverNode runs the k-NN search.
func NewRetrieverNode(retriever *retrieve.Retriever) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.RetrievalPlan) (model.CandidateSet, error) {
		candidates, err := retriever.Retrieve(ctx, in.Query, in.Terms)
		if err != nil {
			return model.CandidateSet{}, errx.WrapRetrieval(err)
		}
		return model.CandidateSet{Query: in.Query, Candidates: candidates}, nil
	})
}

// NewNoCoverageCondition routes empty candidate sets to the fallback node.
func NewNoCoverageCondition() func(context.Context, model.CandidateSet) (string, error) {
	return func(ctx context.Context, in model.CandidateSet) (string, error) {
		if len(in.Candidates) == 0 {
			return NodeNoCoverage, nil
		}
		return NodeAnswerer, nil
	}
}

// NewNoCoverageNode ends a turn the catalog has nothing for.
func NewNoCoverageNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.CandidateSet) (*schema.Message, error) {
		return terminal(ctx, model.ReplyNoCandidates, model.OutcomeNoCandidates)
	})
}

// NewAnswererNode runs the two-round tool protocol over the candidates.
func NewAnswererNode(orchestrator *answer.Orchestrator) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.CandidateSet) (*schema.Message, error) {
		reply, err := orchestrator.Answer(ctx, in.Query, in.Candidates)
		if err != nil {
			return nil, err
		}
		return terminal(ctx, reply, model.OutcomeAnswered)
	})
}
