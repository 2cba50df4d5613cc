package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/aleenlabs/aleen-agents/internal/models"
	"github.com/aleenlabs/aleen-agents/internal/store"
)

// catalogStore stubs the store with a fixed agent catalog.
type catalogStore struct {
	store.Store
	agents []store.AgentRecord
	err    error
}

func (c *catalogStore) ListAgents(ctx context.Context) ([]store.AgentRecord, error) {
	return c.agents, c.err
}

func fullCatalog() []store.AgentRecord {
	return []store.AgentRecord{
		{ID: "1", Name: "onboarding", Identifier: "GREETING_WITHOUT_MEMORY", SystemPrompt: "p1"},
		{ID: "2", Name: "onboarding_reminder", Identifier: "ONBOARDING_REMINDER", SystemPrompt: "p2"},
		{ID: "3", Name: "nutrition", Identifier: "nutrition", SystemPrompt: "p3"},
		{ID: "4", Name: "sales", Identifier: "SALES", SystemPrompt: "p4"},
		{ID: "5", Name: "support", Identifier: "DOUBT", SystemPrompt: "p5"},
		{ID: "6", Name: "out_context", Identifier: "OUT_CONTEXT", SystemPrompt: "p6"},
	}
}

func loadedRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(&catalogStore{agents: fullCatalog()})
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return r
}

func TestLoadEmptyCatalog(t *testing.T) {
	r := NewRegistry(&catalogStore{})
	err := r.Load(context.Background())
	if !errors.Is(err, models.ErrNoAgentsLoaded) {
		t.Fatalf("expected ErrNoAgentsLoaded, got %v", err)
	}
	if _, err := r.Get(models.AgentOnboarding); !errors.Is(err, models.ErrNoAgentsLoaded) {
		t.Errorf("expected ErrNoAgentsLoaded from Get, got %v", err)
	}
}

func TestLoadAssignsDefaultTools(t *testing.T) {
	r := loadedRegistry(t)

	nutrition, err := r.Get(models.AgentNutrition)
	if err != nil {
		t.Fatalf("Get nutrition failed: %v", err)
	}
	if !nutrition.Allows(models.ToolCreateWeeklyMealPlan) {
		t.Error("nutrition agent should allow create_weekly_meal_plan by default")
	}
	if nutrition.Allows(models.ToolCreateUserAndSaveOnboarding) {
		t.Error("nutrition agent should not allow onboarding tools")
	}

	outContext, err := r.Get(models.AgentOutContext)
	if err != nil {
		t.Fatalf("Get out_context failed: %v", err)
	}
	if len(outContext.AllowedTools) != 0 {
		t.Errorf("out_context agent should have no tools, got %v", outContext.AllowedTools)
	}
}

func TestLoadParsesToolsColumn(t *testing.T) {
	catalog := fullCatalog()
	catalog[2].Tools = "check_user_meal_plan, get_today_meals, not_a_real_tool"
	r := NewRegistry(&catalogStore{agents: catalog})
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	nutrition, err := r.Get(models.AgentNutrition)
	if err != nil {
		t.Fatalf("Get nutrition failed: %v", err)
	}
	if len(nutrition.AllowedTools) != 2 {
		t.Fatalf("expected 2 tools after dropping unknowns, got %v", nutrition.AllowedTools)
	}
	if !nutrition.Allows(models.ToolGetTodayMeals) {
		t.Error("expected get_today_meals to be allowed")
	}
}

func TestFailedReloadKeepsPreviousSnapshot(t *testing.T) {
	cs := &catalogStore{agents: fullCatalog()}
	r := NewRegistry(cs)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cs.err = errors.New("database down")
	if err := r.Load(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	// The catalog from the first load keeps serving.
	if _, err := r.Get(models.AgentNutrition); err != nil {
		t.Errorf("previous snapshot should survive failed reload: %v", err)
	}
}

func TestSelectNewUserAlwaysOnboarding(t *testing.T) {
	r := loadedRegistry(t)
	uc := models.UserContext{State: models.UserStateNew, Phone: "5511999990001"}

	for _, msg := range []string{"Olá!", "quero criar meu plano", "quanto custa", "me ajuda"} {
		def, err := r.Select(uc, nil, msg)
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		if def.Name != models.AgentOnboarding {
			t.Errorf("message %q: expected onboarding agent, got %s", msg, def.Name)
		}
	}
}

func TestSelectIncompleteOnboarding(t *testing.T) {
	r := loadedRegistry(t)
	uc := models.UserContext{State: models.UserStateIncompleteOnboarding, Phone: "5511999990001"}
	def, err := r.Select(uc, nil, "oi de novo")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if def.Name != models.AgentOnboardingReminder {
		t.Errorf("expected onboarding_reminder agent, got %s", def.Name)
	}
}

func TestSelectCompleteUserIntent(t *testing.T) {
	r := loadedRegistry(t)
	uc := models.UserContext{State: models.UserStateComplete, UserID: "u1", Phone: "5511999990001"}

	cases := []struct {
		message string
		want    models.AgentName
	}{
		{"quero criar meu plano", models.AgentNutrition},
		{"o que tem de almoço hoje?", models.AgentNutrition},
		{"quanto custa a assinatura?", models.AgentSales},
		{"estou com um problema no app", models.AgentSupport},
		{"qual a capital da França?", models.AgentOutContext},
	}
	for _, c := range cases {
		def, err := r.Select(uc, nil, c.message)
		if err != nil {
			t.Fatalf("Select(%q) failed: %v", c.message, err)
		}
		if def.Name != c.want {
			t.Errorf("Select(%q) = %s, want %s", c.message, def.Name, c.want)
		}
	}
}

func TestSelectUsesRecentMemory(t *testing.T) {
	r := loadedRegistry(t)
	uc := models.UserContext{State: models.UserStateComplete, UserID: "u1", Phone: "5511999990001"}

	memory := []models.Turn{
		{Role: models.TurnRoleUser, Text: "quero montar minha dieta"},
		{Role: models.TurnRoleAssistant, Text: "Claro! Qual é o seu objetivo?"},
	}
	// The follow-up alone carries no signal; memory keeps it with nutrition.
	def, err := r.Select(uc, memory, "perder peso")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if def.Name != models.AgentNutrition {
		t.Errorf("expected nutrition via memory context, got %s", def.Name)
	}
}
