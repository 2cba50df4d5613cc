// Package flow implements the conversation loop: it derives the user
// context, selects an agent, drives the model with tool calling, executes
// requested tools, and finalizes the reply.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"

	"github.com/aleenlabs/aleen-agents/internal/agent"
	"github.com/aleenlabs/aleen-agents/internal/genai"
	"github.com/aleenlabs/aleen-agents/internal/memory"
	"github.com/aleenlabs/aleen-agents/internal/models"
	"github.com/aleenlabs/aleen-agents/internal/store"
	"github.com/aleenlabs/aleen-agents/internal/tools"
	"github.com/aleenlabs/aleen-agents/internal/util"
)

// maxToolRounds caps model round-trips per request. The counter is explicit
// loop state so the termination guarantee is inspectable.
const maxToolRounds = 4

// fallbackReply is sent when the model produces no usable text or the
// provider fails after the retry. Raw provider errors stay in the logs.
const fallbackReply = "Desculpe, não consegui processar sua mensagem agora. Pode tentar novamente em instantes?"

// historyTurnLimit and historyTurnFallback bound how many memory turns go
// into the model input: the last 10, or the last 6 when those exceed the
// character budget.
const (
	historyTurnLimit    = 10
	historyTurnFallback = 6
)

// Result is the outcome of one processed message.
type Result struct {
	Reply         string
	Agent         models.AgentName
	ToolsExecuted []string
}

// Flow drives one request from inbound message to final reply.
type Flow struct {
	store  store.Store
	memory memory.Store
	genai  genai.ClientInterface
	agents *agent.Registry
	tools  *tools.Registry
}

// NewFlow creates a conversation flow with the given dependencies.
func NewFlow(st store.Store, mem memory.Store, gc genai.ClientInterface, agents *agent.Registry, toolReg *tools.Registry) *Flow {
	return &Flow{store: st, memory: mem, genai: gc, agents: agents, tools: toolReg}
}

// recentHistory bounds the memory turns included in the model input.
func recentHistory(turns []models.Turn) []models.Turn {
	if len(turns) > historyTurnLimit {
		turns = turns[len(turns)-historyTurnLimit:]
	}
	total := 0
	for _, t := range turns {
		total += len(t.Text)
	}
	if total > models.MaxContextChars && len(turns) > historyTurnFallback {
		turns = turns[len(turns)-historyTurnFallback:]
	}
	return turns
}

// buildMessages assembles the model input: agent prompt, user context,
// bounded history, and the inbound message.
func buildMessages(def *models.AgentDefinition, uc models.UserContext, history []models.Turn, message string) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(def.SystemPrompt),
	}
	contextLine := fmt.Sprintf("Contexto do usuário: estado=%s", uc.State)
	if uc.Name != "" {
		contextLine += ", nome=" + uc.Name
	}
	messages = append(messages, openai.SystemMessage(contextLine))

	for _, turn := range recentHistory(history) {
		switch turn.Role {
		case models.TurnRoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Text))
		default:
			messages = append(messages, openai.UserMessage(turn.Text))
		}
	}
	return append(messages, openai.UserMessage(message))
}

// ProcessMessage runs the conversation loop for one inbound message.
//
// Memory is written exactly once, after the reply is final: the user turn
// and the assistant turn together, or neither on failure.
func (f *Flow) ProcessMessage(ctx context.Context, req models.ChatRequest) (*Result, error) {
	phone := util.CanonicalPhone(req.PhoneNumber)

	user, err := f.store.GetUserByPhone(ctx, phone)
	if err != nil {
		slog.Error("Flow.ProcessMessage: failed to resolve user", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	uc := store.UserContextFor(user, phone)
	if uc.Name == "" {
		uc.Name = req.UserName
	}
	if user == nil {
		// Unregistered contacts become leads. Failure here never blocks
		// the conversation.
		if err := f.store.RecordLead(ctx, phone); err != nil {
			slog.Warn("Flow.ProcessMessage: failed to record lead", "error", err, "phone", phone)
		}
	}

	history, err := f.memory.History(ctx, phone)
	if err != nil {
		// A cold conversation beats a dead one when the memory backend is
		// unreachable.
		slog.Warn("Flow.ProcessMessage: memory unavailable, proceeding without history", "error", err, "phone", phone)
		history = nil
	}

	agentDef, err := f.agents.Select(uc, history, req.Message)
	if err != nil {
		slog.Error("Flow.ProcessMessage: agent selection failed", "error", err, "phone", phone)
		return nil, err
	}
	slog.Info("Flow.ProcessMessage: agent selected", "agent", agentDef.Name, "state", uc.State, "phone", phone)

	messages := buildMessages(agentDef, uc, history, req.Message)
	reply, executed, err := f.runModelLoop(ctx, agentDef, uc, messages)
	if err != nil {
		if errors.Is(err, models.ErrModelProvider) {
			// The caller gets the generic retry reply; the degraded
			// exchange is not written to memory.
			slog.Error("Flow.ProcessMessage: model provider failed, sending fallback reply",
				"error", err, "agent", agentDef.Name, "phone", phone)
			return &Result{Reply: fallbackReply, Agent: agentDef.Name}, nil
		}
		return nil, err
	}
	if strings.TrimSpace(reply) == "" {
		reply = fallbackReply
	}

	if err := f.memory.AppendTurns(ctx, phone,
		memory.NewTurn(models.TurnRoleUser, req.Message),
		memory.NewTurn(models.TurnRoleAssistant, reply),
	); err != nil {
		slog.Warn("Flow.ProcessMessage: failed to append memory", "error", err, "phone", phone)
	}

	return &Result{Reply: reply, Agent: agentDef.Name, ToolsExecuted: executed}, nil
}

// runModelLoop invokes the model, executes requested tools, and feeds
// results back until the model answers in text or the round cap forces a
// finalize.
func (f *Flow) runModelLoop(ctx context.Context, agentDef *models.AgentDefinition, uc models.UserContext, messages []openai.ChatCompletionMessageParamUnion) (string, []string, error) {
	toolDefs := tools.DefinitionsFor(agentDef.AllowedTools)
	if len(toolDefs) == 0 {
		reply, err := f.genai.GenerateWithMessages(ctx, messages)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", models.ErrModelProvider, err)
		}
		return reply, nil, nil
	}

	var executed []string
	lastContent := ""
	for round := 1; round <= maxToolRounds; round++ {
		resp, err := f.genai.GenerateWithTools(ctx, messages, toolDefs)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", models.ErrModelProvider, err)
		}
		if resp.Content != "" {
			lastContent = resp.Content
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, executed, nil
		}

		slog.Info("Flow.runModelLoop: model requested tools",
			"agent", agentDef.Name, "round", round, "tool_calls", len(resp.ToolCalls))

		// The assistant message with tool_calls must precede the tool
		// result messages that reference its ids.
		var toolCalls []openai.ChatCompletionMessageToolCallParam
		for _, call := range resp.ToolCalls {
			toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
				ID:   call.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      string(call.Name),
					Arguments: string(call.Arguments),
				},
			})
		}
		assistantMsg := openai.ChatCompletionAssistantMessageParam{
			Content: openai.ChatCompletionAssistantMessageParamContentUnion{
				OfString: param.NewOpt(resp.Content),
			},
			ToolCalls: toolCalls,
		}
		messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistantMsg})

		// Sequential execution in the model's order. Tools outside the
		// agent's allowed set are refused without dispatching.
		for _, call := range resp.ToolCalls {
			var result models.ToolResult
			if !agentDef.Allows(call.Name) {
				slog.Warn("Flow.runModelLoop: tool not permitted for agent",
					"agent", agentDef.Name, "tool", call.Name)
				result = models.FailedToolResult(call, models.ErrToolNotPermitted.Error())
			} else {
				// Every dispatched tool is recorded, failed ones
				// included; only refused calls stay off the list.
				result = f.tools.Dispatch(ctx, call, uc)
				executed = append(executed, string(call.Name))
			}
			content, err := json.Marshal(result)
			if err != nil {
				content = []byte(`{"success": false, "error": "failed to serialize tool result"}`)
			}
			messages = append(messages, openai.ToolMessage(string(content), call.ID))
		}
	}

	// Round cap reached: finalize with whatever the model said last.
	slog.Warn("Flow.runModelLoop: tool round cap reached, forcing finalize",
		"agent", agentDef.Name, "rounds", maxToolRounds)
	return lastContent, executed, nil
}
