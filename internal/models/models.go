// Package models defines the core data structures for aleen-agents.
//
// It includes types for user context, conversation memory turns, agent
// definitions, and tool calls, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// UserState describes the persisted onboarding situation of a phone number.
// It is derived fresh from the persistence layer on every message and is
// never cached beyond a single request.
type UserState string

const (
	// UserStateNew means no user row exists for the phone number.
	UserStateNew UserState = "new_user"
	// UserStateIncompleteOnboarding means a user row exists but the
	// onboarding flag is not set.
	UserStateIncompleteOnboarding UserState = "incomplete_onboarding"
	// UserStateComplete means the user finished onboarding.
	UserStateComplete UserState = "complete_user"
)

// UserContext is the per-request snapshot of who is talking to us.
type UserContext struct {
	State  UserState `json:"state"`
	UserID string    `json:"user_id,omitempty"`
	Name   string    `json:"name,omitempty"`
	Phone  string    `json:"phone"`
}

// TurnRole identifies who produced a conversation memory entry.
type TurnRole string

const (
	// TurnRoleUser marks an inbound user message.
	TurnRoleUser TurnRole = "user"
	// TurnRoleAssistant marks an agent reply.
	TurnRoleAssistant TurnRole = "assistant"
)

// Turn is a single conversation memory entry.
type Turn struct {
	Role      TurnRole  `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation memory limits. The context store owns eviction; these
// constants are shared so tests and callers agree on the bounds.
const (
	// MaxMemoryEntries caps the number of turns kept per phone number.
	MaxMemoryEntries = 20
	// MemoryTTL is how long a conversation memory survives after the
	// last write.
	MemoryTTL = 7 * 24 * time.Hour
	// MaxContextChars bounds the total characters of history included in
	// one model input.
	MaxContextChars = 2000
)

// AgentName identifies one conversational persona.
type AgentName string

const (
	// AgentOnboarding welcomes brand-new contacts and collects signup data.
	AgentOnboarding AgentName = "onboarding"
	// AgentOnboardingReminder nudges users who started but did not finish
	// onboarding.
	AgentOnboardingReminder AgentName = "onboarding_reminder"
	// AgentNutrition handles meal plans, recipes, and food questions.
	AgentNutrition AgentName = "nutrition"
	// AgentSales handles pricing and signup intent.
	AgentSales AgentName = "sales"
	// AgentSupport handles product usage questions.
	AgentSupport AgentName = "support"
	// AgentOutContext politely declines off-topic conversations.
	AgentOutContext AgentName = "out_context"
)

// AgentDefinition is one loaded agent: a system prompt plus the closed set
// of tools the model may call while this agent is active. Definitions are
// immutable once loaded; reloads replace the whole snapshot.
type AgentDefinition struct {
	ID           string     `json:"id"`
	Name         AgentName  `json:"name"`
	DisplayName  string     `json:"display_name"`
	Identifier   string     `json:"identifier"`
	Description  string     `json:"description,omitempty"`
	SystemPrompt string     `json:"-"`
	AllowedTools []ToolName `json:"allowed_tools"`
}

// Allows reports whether the agent may invoke the named tool.
func (a *AgentDefinition) Allows(name ToolName) bool {
	for _, t := range a.AllowedTools {
		if t == name {
			return true
		}
	}
	return false
}

// Error variables shared across modules. Tool-level errors are recovered
// locally as failed ToolResults; ErrNoAgentsLoaded is fatal for the request.
var (
	// ErrNoAgentsLoaded signals the ConfigurationUnavailable condition:
	// the agent registry is empty and no request can be served.
	ErrNoAgentsLoaded = errors.New("no agent definitions loaded")
	// ErrToolNotFound signals a tool name outside the closed enumeration.
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolNotPermitted signals a tool outside the active agent's allowed set.
	ErrToolNotPermitted = errors.New("tool not permitted")
	// ErrInvalidArguments signals malformed or incomplete tool arguments.
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrUserNotFound signals a phone number with no user row.
	ErrUserNotFound = errors.New("user not found")
	// ErrModelProvider signals a model invocation failure after retry.
	ErrModelProvider = errors.New("model provider error")
)
