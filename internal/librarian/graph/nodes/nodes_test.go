package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-librarian/server/internal/librarian/model"
)

func TestRefusalCondition(t *testing.T) {
	cond := NewRefusalCondition()

	next, err := cond(context.Background(), model.GateOutcome{Verdict: model.SafetyVerdict{Allow: false, Reason: "moderation"}})
	require.NoError(t, err)
	assert.Equal(t, NodeRefusal, next)

	next, err = cond(context.Background(), model.GateOutcome{Verdict: model.SafetyVerdict{Allow: true}})
	require.NoError(t, err)
	assert.Equal(t, NodeIntentRouter, next)
}

func TestCannedReplyCondition(t *testing.T) {
	cond := NewCannedReplyCondition()

	for _, action := range []model.Action{model.ActionGreet, model.ActionClarify, model.ActionOfftopic} {
		next, err := cond(context.Background(), model.GateDecision{Action: action})
		require.NoError(t, err)
		assert.Equal(t, NodeCannedReply, next, "action %s takes the canned exit", action)
	}

	next, err := cond(context.Background(), model.GateDecision{Action: model.ActionProceed})
	require.NoError(t, err)
	assert.Equal(t, NodeQueryExpander, next)
}

func TestNoCoverageCondition(t *testing.T) {
	cond := NewNoCoverageCondition()

	next, err := cond(context.Background(), model.CandidateSet{})
	require.NoError(t, err)
	assert.Equal(t, NodeNoCoverage, next)

	next, err = cond(context.Background(), model.CandidateSet{Candidates: []model.Candidate{{Title: "Dune"}}})
	require.NoError(t, err)
	assert.Equal(t, NodeAnswerer, next)
}
