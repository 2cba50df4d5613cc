// Package agent provides the agent catalog and the selection logic that
// routes each inbound message to one conversational persona.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aleenlabs/aleen-agents/internal/models"
	"github.com/aleenlabs/aleen-agents/internal/store"
)

// identifierToName maps legacy catalog identifiers to canonical agent names.
// Rows may carry either form; both resolve to the same agent.
var identifierToName = map[string]models.AgentName{
	"GREETING_WITHOUT_MEMORY": models.AgentOnboarding,
	"ONBOARDING_REMINDER":     models.AgentOnboardingReminder,
	"DOUBT":                   models.AgentSupport,
	"SALES":                   models.AgentSales,
	"OUT_CONTEXT":             models.AgentOutContext,
	"nutrition":               models.AgentNutrition,
}

// defaultTools assigns tool sets to agents whose catalog row leaves the
// tools column empty.
var defaultTools = map[models.AgentName][]models.ToolName{
	models.AgentOnboarding: {
		models.ToolGetOnboardingQuestions,
		models.ToolCreateUserAndSaveOnboarding,
	},
	models.AgentOnboardingReminder: {
		models.ToolGetOnboardingQuestions,
		models.ToolCreateUserAndSaveOnboarding,
	},
	models.AgentNutrition: {
		models.ToolCheckUserMealPlan,
		models.ToolGetUserOnboardingResponses,
		models.ToolGetAvailableFoods,
		models.ToolCreateWeeklyMealPlan,
		models.ToolCreateRecipeWithIngredients,
		models.ToolRegisterCompleteMealPlan,
		models.ToolGetTodayMeals,
		models.ToolGetUserMealPlanDetails,
		models.ToolGetRecipeIngredients,
	},
	models.AgentSupport: {
		models.ToolCheckUserMealPlan,
		models.ToolGetUserOnboardingResponses,
	},
}

// snapshot is one immutable view of the loaded agent catalog. Reloads build
// a fresh snapshot and swap it atomically; readers never observe a partial
// update.
type snapshot struct {
	byName   map[models.AgentName]*models.AgentDefinition
	loadedAt time.Time
}

// Registry owns the agent catalog loaded from the persistence layer.
type Registry struct {
	store   store.Store
	current atomic.Pointer[snapshot]
}

// NewRegistry creates a registry backed by the given store. Call Load
// before serving requests.
func NewRegistry(st store.Store) *Registry {
	return &Registry{store: st}
}

// resolveName returns the canonical agent name for a catalog row.
func resolveName(rec store.AgentRecord) (models.AgentName, bool) {
	if name, ok := identifierToName[rec.Identifier]; ok {
		return name, true
	}
	if name, ok := identifierToName[rec.Name]; ok {
		return name, true
	}
	switch models.AgentName(rec.Name) {
	case models.AgentOnboarding, models.AgentOnboardingReminder, models.AgentNutrition,
		models.AgentSales, models.AgentSupport, models.AgentOutContext:
		return models.AgentName(rec.Name), true
	}
	return "", false
}

// parseTools turns the comma-separated tools column into tool names,
// dropping anything outside the known enumeration.
func parseTools(column string, name models.AgentName) []models.ToolName {
	if strings.TrimSpace(column) == "" {
		return defaultTools[name]
	}
	var tools []models.ToolName
	for _, part := range strings.Split(column, ",") {
		tn := models.ToolName(strings.TrimSpace(part))
		if tn == "" {
			continue
		}
		if !models.IsValidToolName(tn) {
			slog.Warn("Registry.parseTools: unknown tool in catalog, skipping", "tool", tn, "agent", name)
			continue
		}
		tools = append(tools, tn)
	}
	return tools
}

// Load reads the agent catalog from the store and swaps in a new snapshot.
// An empty catalog is an error; the previous snapshot stays in place so a
// failed reload never degrades a running service.
func (r *Registry) Load(ctx context.Context) error {
	records, err := r.store.ListAgents(ctx)
	if err != nil {
		slog.Error("Registry.Load: failed to list agents", "error", err)
		return fmt.Errorf("failed to load agent catalog: %w", err)
	}
	if len(records) == 0 {
		slog.Error("Registry.Load: agent catalog is empty")
		return models.ErrNoAgentsLoaded
	}

	byName := make(map[models.AgentName]*models.AgentDefinition, len(records))
	for _, rec := range records {
		name, ok := resolveName(rec)
		if !ok {
			slog.Warn("Registry.Load: unrecognized agent row, skipping", "name", rec.Name, "identifier", rec.Identifier)
			continue
		}
		byName[name] = &models.AgentDefinition{
			ID:           rec.ID,
			Name:         name,
			DisplayName:  rec.DisplayName,
			Identifier:   rec.Identifier,
			Description:  rec.Description,
			SystemPrompt: rec.SystemPrompt,
			AllowedTools: parseTools(rec.Tools, name),
		}
	}
	if len(byName) == 0 {
		return models.ErrNoAgentsLoaded
	}

	r.current.Store(&snapshot{byName: byName, loadedAt: time.Now()})
	slog.Info("Registry.Load: agent catalog loaded", "agents", len(byName))
	return nil
}

// Get returns the agent definition for a name from the current snapshot.
func (r *Registry) Get(name models.AgentName) (*models.AgentDefinition, error) {
	snap := r.current.Load()
	if snap == nil {
		return nil, models.ErrNoAgentsLoaded
	}
	def, ok := snap.byName[name]
	if !ok {
		return nil, fmt.Errorf("agent %s not in catalog", name)
	}
	return def, nil
}

// List returns all loaded agent definitions.
func (r *Registry) List() []models.AgentDefinition {
	snap := r.current.Load()
	if snap == nil {
		return nil
	}
	out := make([]models.AgentDefinition, 0, len(snap.byName))
	for _, def := range snap.byName {
		out = append(out, *def)
	}
	return out
}

// LoadedAt reports when the current snapshot was loaded; zero when no
// catalog has been loaded yet.
func (r *Registry) LoadedAt() time.Time {
	snap := r.current.Load()
	if snap == nil {
		return time.Time{}
	}
	return snap.loadedAt
}
