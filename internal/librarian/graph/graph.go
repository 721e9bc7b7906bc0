// Package graph composes the turn pipeline: safety gate, intent router, query
// expansion, retrieval and the two-round answer protocol, with explicit
// terminal nodes for every early exit.
package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/smart-librarian/server/internal/catalog"
	"github.com/smart-librarian/server/internal/index"
	"github.com/smart-librarian/server/internal/librarian/answer"
	"github.com/smart-librarian/server/internal/librarian/gates"
	"github.com/smart-librarian/server/internal/librarian/graph/nodes"
	"github.com/smart-librarian/server/internal/librarian/graph/observers"
	"github.com/smart-librarian/server/internal/librarian/model"
	"github.com/smart-librarian/server/internal/librarian/retrieve"
	"github.com/smart-librarian/server/internal/librarian/tools"
	"github.com/smart-librarian/server/internal/moderation"
	logx "github.com/smart-librarian/server/pkg/logger"
)

// Result is the final, user-safe outcome of one turn.
type Result struct {
	Reply   string        `json:"reply"`
	Outcome model.Outcome `json:"outcome"`
}

// TurnLog receives a best-effort audit record after every turn.
type TurnLog interface {
	Record(ctx context.Context, rec model.TurnRecord) error
}

// Runner executes the compiled pipeline. HandleTurn is total: every internal
// failure degrades to a user-facing fallback, never an error.
type Runner interface {
	HandleTurn(ctx context.Context, in model.TurnInput) Result
}

// Config holds everything needed to compose the turn pipeline end-to-end.
type Config struct {
	APIKey  string
	BaseURL string

	GateModel   model.GateModelConfig
	AnswerModel model.AnswerModelConfig
	Retrieval   model.RetrievalConfig

	Store      *catalog.Store
	Searcher   index.Searcher
	Classifier moderation.Classifier

	// Audit is optional; nil disables the turn audit trail.
	Audit TurnLog
}

// components are the assembled collaborators the graph nodes close over.
type components struct {
	store        *catalog.Store
	gate         *gates.SafetyGate
	router       *gates.IntentRouter
	expander     *retrieve.Expander
	retriever    *retrieve.Retriever
	orchestrator *answer.Orchestrator
}

// GraphBuilder handles the construction of the turn pipeline graph.
type GraphBuilder struct {
	parts *components
	graph *compose.Graph[model.TurnInput, *schema.Message]
}

type turnRunner struct {
	runnable compose.Runnable[model.TurnInput, *schema.Message]
	audit    TurnLog
}

// BuildTurnGraph constructs chat models, collaborators and the compiled graph,
// and returns a Runner.
func BuildTurnGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("catalog store is nil")
	}
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("searcher is nil")
	}
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("moderation classifier is nil")
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Gate:    &cfg.GateModel,
		Answer:  &cfg.AnswerModel,
	})
	if err != nil {
		return nil, err
	}

	summaries := tools.NewSummariesTool(cfg.Store)
	if err := cms.BindSummariesTool([]*schema.ToolInfo{tools.SummariesToolInfo()}); err != nil {
		return nil, err
	}

	bound := answer.Models{Primary: cms.AnswerBound}
	plain := answer.Models{Primary: cms.AnswerPlain}
	if cms.FallbackBound != nil {
		bound.Secondary = cms.FallbackBound
		plain.Secondary = cms.FallbackPlain
	}

	parts := &components{
		store:        cfg.Store,
		gate:         gates.NewSafetyGate(cfg.Classifier, cms.Gate),
		router:       gates.NewIntentRouter(cms.Gate),
		expander:     retrieve.NewExpander(cms.AnswerPlain, cfg.Retrieval.MaxTerms),
		retriever:    retrieve.NewRetriever(cfg.Searcher, cfg.Retrieval.TopK),
		orchestrator: answer.New(bound, plain, summaries),
	}

	runnable, err := buildGraph(ctx, parts)
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Turn pipeline graph built successfully")
	return &turnRunner{runnable: runnable, audit: cfg.Audit}, nil
}

// NewVocabModel creates a standalone answer-model instance for startup-time
// theme vocabulary expansion.
func NewVocabModel(ctx context.Context, cfg Config) (model.ChatModel, error) {
	return nodes.NewVocabChatModel(ctx, cfg.APIKey, cfg.BaseURL, &cfg.AnswerModel)
}

func buildGraph(ctx context.Context, parts *components) (compose.Runnable[model.TurnInput, *schema.Message], error) {
	builder := &GraphBuilder{
		parts: parts,
		graph: compose.NewGraph[model.TurnInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph.
func (b *GraphBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeSafetyGate,
		nodes.NewSafetyGateNode(b.parts.gate),
		compose.WithStatePreHandler(nodes.NewSafetyGatePreHandler(b.parts.store)),
	)

	b.graph.AddLambdaNode(nodes.NodeRefusal, nodes.NewRefusalNode())
	b.graph.AddLambdaNode(nodes.NodeIntentRouter, nodes.NewIntentRouterNode(b.parts.router))
	b.graph.AddLambdaNode(nodes.NodeCannedReply, nodes.NewCannedReplyNode())
	b.graph.AddLambdaNode(nodes.NodeQueryExpander, nodes.NewQueryExpanderNode(b.parts.expander))
	b.graph.AddLambdaNode(nodes.NodeRetriever, nodes.NewRetrieverNode(b.parts.retriever))
	b.graph.AddLambdaNode(nodes.NodeNoCoverage, nodes.NewNoCoverageNode())
	b.graph.AddLambdaNode(nodes.NodeAnswerer, nodes.NewAnswererNode(b.parts.orchestrator))
}

// addEdges creates the unconditional flow connections.
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeSafetyGate},
		{nodes.NodeRefusal, compose.END},
		{nodes.NodeCannedReply, compose.END},
		{nodes.NodeQueryExpander, nodes.NodeRetriever},
		{nodes.NodeNoCoverage, compose.END},
		{nodes.NodeAnswerer, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates the three early-exit decision points.
func (b *GraphBuilder) addBranches() error {
	refusalBranch := compose.NewGraphBranch(
		nodes.NewRefusalCondition(),
		map[string]bool{
			nodes.NodeRefusal:      true,
			nodes.NodeIntentRouter: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeSafetyGate, refusalBranch); err != nil {
		return fmt.Errorf("error adding refusal branch: %w", err)
	}

	cannedBranch := compose.NewGraphBranch(
		nodes.NewCannedReplyCondition(),
		map[string]bool{
			nodes.NodeCannedReply:   true,
			nodes.NodeQueryExpander: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeIntentRouter, cannedBranch); err != nil {
		return fmt.Errorf("error adding canned reply branch: %w", err)
	}

	coverageBranch := compose.NewGraphBranch(
		nodes.NewNoCoverageCondition(),
		map[string]bool{
			nodes.NodeNoCoverage: true,
			nodes.NodeAnswerer:   true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeRetriever, coverageBranch); err != nil {
		return fmt.Errorf("error adding coverage branch: %w", err)
	}

	return nil
}

// compile finalizes the graph.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *schema.Message], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(20))
	if err != nil {
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}
	return runnable, nil
}

// HandleTurn runs one message through the pipeline. Pipeline errors degrade to
// the fixed apology; the audit record is written best-effort either way.
func (r *turnRunner) HandleTurn(ctx context.Context, in model.TurnInput) Result {
	if in.TurnID == "" {
		in.TurnID = uuid.NewString()
	}

	var res Result
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	switch {
	case err != nil:
		logx.Error().Err(err).Str("turn_id", in.TurnID).Msg("turn pipeline failed")
		res = Result{Reply: model.ReplyApology, Outcome: model.OutcomeError}
	case out == nil:
		res = Result{Reply: model.ReplyApology, Outcome: model.OutcomeError}
	default:
		res = Result{Reply: strings.TrimSpace(out.Content), Outcome: outcomeOf(out)}
	}

	if r.audit != nil {
		rec := model.TurnRecord{
			TurnID:  in.TurnID,
			Query:   in.Message,
			Outcome: res.Outcome,
			Reply:   res.Reply,
			At:      time.Now().UTC(),
		}
		if err := r.audit.Record(ctx, rec); err != nil {
			logx.Error().Err(err).Str("turn_id", in.TurnID).Msg("failed to write turn audit record")
		}
	}

	return res
}

func outcomeOf(out *schema.Message) model.Outcome {
	if o, ok := out.Extra[model.OutcomeExtraKey].(model.Outcome); ok {
		return o
	}
	return model.OutcomeAnswered
}
