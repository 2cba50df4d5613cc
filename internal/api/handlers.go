package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aleenlabs/aleen-agents/internal/messaging"
	"github.com/aleenlabs/aleen-agents/internal/models"
	"github.com/aleenlabs/aleen-agents/internal/util"
)

const serviceName = "aleen-agents"

// handleChat processes one inbound WhatsApp message through the
// conversation flow and optionally delivers the reply to WhatsApp.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid request body: "+err.Error()))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid request: "+err.Error()))
		return
	}

	result, err := s.flow.ProcessMessage(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrNoAgentsLoaded) {
			status = http.StatusServiceUnavailable
		}
		slog.Error("Server.handleChat: processing failed", "phone", util.CanonicalPhone(req.PhoneNumber), "error", err)
		writeJSONResponse(w, status, models.Error(err.Error()))
		return
	}

	resp := models.ChatResponse{
		Response:      result.Reply,
		Messages:      []string{result.Reply},
		AgentUsed:     string(result.Agent),
		ToolsExecuted: result.ToolsExecuted,
	}

	if req.SendToWhatsApp && s.messenger != nil {
		to, err := s.messenger.ValidateAndCanonicalizeRecipient(req.PhoneNumber)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid phone number: "+err.Error()))
			return
		}
		sent, parts, err := messaging.SendSplit(r.Context(), s.messenger, to, result.Reply)
		resp.MessagesSent = sent
		if len(parts) > 0 {
			resp.Messages = parts
		}
		if err != nil {
			// The reply was generated; delivery failure is reported in
			// the payload rather than failing the request.
			slog.Error("Server.handleChat: WhatsApp delivery failed", "phone", to, "sent", sent, "error", err)
		} else {
			resp.WhatsAppSent = true
		}
	}

	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// sendRequest is the payload for direct WhatsApp delivery.
type sendRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=6"`
	Message     string `json:"message" validate:"required"`
}

// handleSend delivers an arbitrary message to a recipient, bypassing the
// conversation flow.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if s.messenger == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("message delivery is not configured"))
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid request body: "+err.Error()))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid request: "+err.Error()))
		return
	}

	to, err := s.messenger.ValidateAndCanonicalizeRecipient(req.PhoneNumber)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid phone number: "+err.Error()))
		return
	}

	sent, parts, err := messaging.SendSplit(r.Context(), s.messenger, to, req.Message)
	if err != nil {
		slog.Error("Server.handleSend: delivery failed", "phone", to, "sent", sent, "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("delivery failed: "+err.Error()))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"messages_sent": sent,
		"messages":      parts,
	}))
}

// handleHealth reports reachability of every dependency. The endpoint
// returns 503 when any check fails so load balancers can stop routing.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := make(map[string]models.HealthCheck)
	healthy := true

	record := func(name string, err error) {
		if err != nil {
			healthy = false
			checks[name] = models.HealthCheck{Status: "unhealthy", Message: err.Error()}
			return
		}
		checks[name] = models.HealthCheck{Status: "healthy"}
	}

	record("database", s.store.Ping(ctx))
	record("memory", s.memory.Ping(ctx))
	record("genai", s.genai.Ping(ctx))

	if len(s.agents.List()) == 0 {
		healthy = false
		checks["agents"] = models.HealthCheck{Status: "unhealthy", Message: models.ErrNoAgentsLoaded.Error()}
	} else {
		checks["agents"] = models.HealthCheck{Status: "healthy"}
	}

	if s.messenger != nil {
		record("delivery", s.messenger.Ping(ctx))
	}

	resp := models.HealthResponse{
		Status:    "healthy",
		Service:   serviceName,
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}
	status := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, models.Success(resp))
}

// handleListAgents returns the loaded agent catalog.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.agents.List()
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"agents":    agents,
		"count":     len(agents),
		"loaded_at": s.agents.LoadedAt(),
	}))
}

// handleReloadAgents refreshes the agent catalog from the database. A
// failed reload keeps the previous catalog serving.
func (s *Server) handleReloadAgents(w http.ResponseWriter, r *http.Request) {
	if err := s.agents.Load(r.Context()); err != nil {
		slog.Error("Server.handleReloadAgents: reload failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("reload failed: "+err.Error()))
		return
	}
	agents := s.agents.List()
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("agents reloaded", map[string]interface{}{
		"count":     len(agents),
		"loaded_at": s.agents.LoadedAt(),
	}))
}

// handleGetMemory returns the conversation memory for a phone number.
func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	phone := util.CanonicalPhone(chi.URLParam(r, "phone"))
	if phone == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("phone number must contain digits"))
		return
	}

	turns, err := s.memory.History(r.Context(), phone)
	if err != nil {
		slog.Error("Server.handleGetMemory: read failed", "phone", phone, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("memory read failed: "+err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"phone": phone,
		"turns": turns,
		"count": len(turns),
	}))
}

// handleClearMemory deletes the conversation memory for a phone number.
func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	phone := util.CanonicalPhone(chi.URLParam(r, "phone"))
	if phone == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("phone number must contain digits"))
		return
	}

	if err := s.memory.Clear(r.Context(), phone); err != nil {
		slog.Error("Server.handleClearMemory: clear failed", "phone", phone, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("memory clear failed: "+err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("memory cleared", map[string]interface{}{
		"phone": phone,
	}))
}
