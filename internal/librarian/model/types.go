package model

import (
	"time"
)

// TurnInput is the public input of one conversation turn. Turns are stateless;
// TurnID only correlates logs and the audit trail.
type TurnInput struct {
	TurnID  string `json:"turn_id"`
	Message string `json:"message"`
}

// Outcome tags how a turn terminated. Every terminal node of the pipeline
// stamps exactly one of these.
type Outcome string

const (
	OutcomeBlocked      Outcome = "blocked"
	OutcomeGreet        Outcome = "greet"
	OutcomeClarify      Outcome = "clarify"
	OutcomeOfftopic     Outcome = "offtopic"
	OutcomeNoCandidates Outcome = "no_candidates"
	OutcomeAnswered     Outcome = "answered"
	OutcomeError        Outcome = "error"
)

// OutcomeExtraKey is where terminal nodes record the Outcome in the final
// message's Extra map.
const OutcomeExtraKey = "turn_outcome"

// Hint tells the safety gate how much to trust the moderation classifier.
type Hint string

const (
	// HintInformational marks messages that already look like benign catalog
	// queries; the LLM classifier alone decides, which cuts false positives
	// on neutral text.
	HintInformational Hint = "informational"
	// HintStrict is the default for short or ambiguous messages: block when
	// either check flags the text.
	HintStrict Hint = "strict"
)

// SafetyVerdict is the merged allow/block decision. Reason is a diagnostic
// tag, never shown to users.
type SafetyVerdict struct {
	Allow  bool
	Reason string
}

// Action is the intent router's classification.
type Action string

const (
	ActionGreet    Action = "greet"
	ActionClarify  Action = "clarify"
	ActionOfftopic Action = "offtopic"
	ActionProceed  Action = "proceed"
)

// GateDecision pairs an action with its canned reply. Reply is empty iff the
// action is proceed.
type GateDecision struct {
	Action Action
	Reply  string
}

// Candidate is one retrieved catalog entry, eligible for recommendation in
// the current turn. Score is the vector distance (lower = closer); slices of
// Candidate keep retrieval order.
type Candidate struct {
	Title   string  `json:"title"`
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
}

// GateOutcome flows from the safety gate node into the branch that decides
// between refusal and the intent router.
type GateOutcome struct {
	Query   string
	Verdict SafetyVerdict
}

// RetrievalPlan carries the raw query plus its expansion terms into the
// retriever node.
type RetrievalPlan struct {
	Query string
	Terms []string
}

// CandidateSet is the retriever output feeding the answer node.
type CandidateSet struct {
	Query      string
	Candidates []Candidate
}

// AppState is the per-invocation graph local state. All reads and writes
// happen inside Eino state handlers or compose.ProcessState, which serialise
// access, so no locking is needed.
type AppState struct {
	TurnID  string
	Query   string
	Hint    Hint
	Outcome Outcome
}

// TurnRecord is the audit-trail entry written after each turn.
type TurnRecord struct {
	TurnID  string    `json:"turn_id"`
	Query   string    `json:"query"`
	Outcome Outcome   `json:"outcome"`
	Reply   string    `json:"reply"`
	At      time.Time `json:"at"`
}

// Canned replies, fixed verbatim so terminal turns are deterministic.
const (
	ReplyBlocked      = "Please rephrase respectfully."
	ReplyGreet        = "Hi! What kind of books are you interested in?"
	ReplyClarify      = "Please ask about books — a theme, mood, or a specific title from our small library."
	ReplyOfftopic     = "I can only help with books from this small library. Please mention a title or themes."
	ReplyNoCandidates = "I couldn't find anything in our small library for that. Try a theme like friendship, war, or magic, or a specific title."
	ReplyComposeFail  = "I found matching books but couldn't put together an answer. Please try again."
	ReplyApology      = "Sorry, something went wrong on our side. Please try again."
)

// CannedReply returns the fixed reply for a terminal action, and "" for proceed.
func CannedReply(a Action) string {
	switch a {
	case ActionGreet:
		return ReplyGreet
	case ActionClarify:
		return ReplyClarify
	case ActionOfftopic:
		return ReplyOfftopic
	default:
		return ""
	}
}

// OutcomeForAction maps terminal router actions onto turn outcomes.
func OutcomeForAction(a Action) Outcome {
	switch a {
	case ActionGreet:
		return OutcomeGreet
	case ActionClarify:
		return OutcomeClarify
	case ActionOfftopic:
		return OutcomeOfftopic
	default:
		return OutcomeAnswered
	}
}
