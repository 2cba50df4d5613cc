package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aleenlabs/aleen-agents/internal/models"
	"github.com/aleenlabs/aleen-agents/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.SQLiteStore) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "tools-test.db")
	st, err := store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewRegistry(st), st
}

func completeUser(t *testing.T, st *store.SQLiteStore, phone string) models.UserContext {
	t.Helper()
	user, err := st.CreateUserWithOnboarding(context.Background(), store.User{Name: "Maria", Phone: phone}, nil)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return store.UserContextFor(user, user.Phone)
}

func call(name models.ToolName, args string) models.ToolCallRequest {
	return models.ToolCallRequest{ID: "call_1", Name: name, Arguments: json.RawMessage(args)}
}

func TestDispatchUnknownTool(t *testing.T) {
	r, _ := newTestRegistry(t)
	result := r.Dispatch(context.Background(), call("drop_all_tables", "{}"), models.UserContext{})
	if result.Success {
		t.Fatal("expected failure for unknown tool")
	}
	if !strings.Contains(result.Error, "tool not found") {
		t.Errorf("unexpected error: %q", result.Error)
	}
}

func TestDispatchInvalidArguments(t *testing.T) {
	r, _ := newTestRegistry(t)
	uc := models.UserContext{State: models.UserStateNew, Phone: "5511999990001"}

	// name is required
	result := r.Dispatch(context.Background(), call(models.ToolCreateUserAndSaveOnboarding, `{"age": 30}`), uc)
	if result.Success {
		t.Fatal("expected failure for missing name")
	}
	if !strings.Contains(result.Error, "invalid tool arguments") {
		t.Errorf("unexpected error: %q", result.Error)
	}

	// malformed JSON
	result = r.Dispatch(context.Background(), call(models.ToolCreateUserAndSaveOnboarding, `{not json`), uc)
	if result.Success {
		t.Fatal("expected failure for malformed JSON")
	}
}

func TestCreateUserAndSaveOnboarding(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()
	uc := models.UserContext{State: models.UserStateNew, Phone: "5511999990002"}

	result := r.Dispatch(ctx, call(models.ToolCreateUserAndSaveOnboarding,
		`{"name": "João", "age": 28, "email": "joao@example.com"}`), uc)
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}

	user, err := st.GetUserByPhone(ctx, uc.Phone)
	if err != nil || user == nil {
		t.Fatalf("user not persisted: %v", err)
	}
	if !user.OnboardingCompleted {
		t.Error("expected onboarding completed")
	}

	// Second registration for the same phone fails.
	result = r.Dispatch(ctx, call(models.ToolCreateUserAndSaveOnboarding, `{"name": "João"}`), uc)
	if result.Success {
		t.Fatal("expected failure for duplicate registration")
	}
}

func TestMealPlanToolsRequireUser(t *testing.T) {
	r, _ := newTestRegistry(t)
	uc := models.UserContext{State: models.UserStateNew, Phone: "5511999990003"}

	for _, name := range []models.ToolName{
		models.ToolCheckUserMealPlan,
		models.ToolGetUserOnboardingResponses,
		models.ToolCreateWeeklyMealPlan,
		models.ToolGetTodayMeals,
		models.ToolGetUserMealPlanDetails,
	} {
		result := r.Dispatch(context.Background(), call(name, "{}"), uc)
		if result.Success {
			t.Errorf("tool %s should fail without a registered user", name)
		}
	}
}

func TestCreateRecipeUnknownFoodFailsWhole(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()
	_, err := st.CreateRecipeWithIngredients(ctx, store.Recipe{Name: "seed"}, nil)
	if err != nil {
		t.Fatalf("seed recipe failed: %v", err)
	}

	result := r.Dispatch(ctx, call(models.ToolCreateRecipeWithIngredients,
		`{"name": "Omelete", "ingredients": [{"food_name": "Ovo", "quantity": 2, "unit": "un"}]}`),
		models.UserContext{})
	if result.Success {
		t.Fatal("expected failure for unknown food")
	}
	if !strings.Contains(result.Error, "not found in catalog") {
		t.Errorf("unexpected error: %q", result.Error)
	}

	// The failed recipe must not exist.
	found, err := st.FindRecipesByName(ctx, []string{"Omelete"})
	if err != nil {
		t.Fatalf("FindRecipesByName failed: %v", err)
	}
	if len(found) != 0 {
		t.Error("partial recipe was persisted")
	}
}

func TestCreateWeeklyMealPlanSkipsUnknownRecipes(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()
	uc := completeUser(t, st, "5511999990004")

	known, err := st.CreateRecipeWithIngredients(ctx, store.Recipe{Name: "Frango grelhado"}, nil)
	if err != nil {
		t.Fatalf("seed recipe failed: %v", err)
	}

	result := r.Dispatch(ctx, call(models.ToolCreateWeeklyMealPlan, `{
		"plan_name": "Semana 1",
		"weekly_plan": {
			"monday": [
				{"mealType": "lunch", "recipeName": "Frango grelhado", "order": 1},
				{"mealType": "dinner", "recipeName": "Prato inexistente", "order": 2}
			]
		}
	}`), uc)
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}

	payload := result.Payload.(map[string]interface{})
	if payload["meals_created"].(int) != 1 {
		t.Errorf("expected 1 meal created, got %v", payload["meals_created"])
	}
	skipped := payload["skipped_recipes"].([]string)
	if len(skipped) != 1 || skipped[0] != "Prato inexistente" {
		t.Errorf("unexpected skipped list: %v", skipped)
	}

	plan, meals, err := st.GetActiveMealPlan(ctx, uc.UserID)
	if err != nil || plan == nil {
		t.Fatalf("no active plan after creation: %v", err)
	}
	if len(meals) != 1 || meals[0].RecipeID != known.ID {
		t.Errorf("unexpected plan meals: %+v", meals)
	}
}

func TestRegisterCompleteMealPlanSevenDays(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()
	uc := completeUser(t, st, "5511999990005")

	// One pre-existing recipe; the other six get created by name.
	if _, err := st.CreateRecipeWithIngredients(ctx, store.Recipe{Name: "Receita 1"}, nil); err != nil {
		t.Fatalf("seed recipe failed: %v", err)
	}

	days := []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}
	weekly := make(map[string][]map[string]interface{}, len(days))
	for i, day := range days {
		weekly[day] = []map[string]interface{}{
			{"mealType": "lunch", "recipeName": "Receita " + string(rune('1'+i)), "order": 1},
		}
	}
	args, _ := json.Marshal(map[string]interface{}{
		"plan_data": map[string]interface{}{
			"planName":   "Plano completo",
			"startDate":  "2026-08-31",
			"endDate":    "2026-09-06",
			"weeklyPlan": weekly,
		},
	})

	result := r.Dispatch(ctx, call(models.ToolRegisterCompleteMealPlan, string(args)), uc)
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	payload := result.Payload.(map[string]interface{})
	if payload["meals_created"].(int) != 7 {
		t.Errorf("expected 7 meals, got %v", payload["meals_created"])
	}
	if payload["recipes_created"].(int) != 6 {
		t.Errorf("expected 6 new recipes, got %v", payload["recipes_created"])
	}

	_, meals, err := st.GetActiveMealPlan(ctx, uc.UserID)
	if err != nil {
		t.Fatalf("GetActiveMealPlan failed: %v", err)
	}
	if len(meals) != 7 {
		t.Fatalf("expected exactly 7 plan_meals rows, got %d", len(meals))
	}
}

func TestCheckUserMealPlanRoundTrip(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()
	uc := completeUser(t, st, "5511999990006")

	result := r.Dispatch(ctx, call(models.ToolCheckUserMealPlan, "{}"), uc)
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Payload.(map[string]interface{})["has_active_plan"].(bool) {
		t.Fatal("expected no active plan for fresh user")
	}

	if _, err := st.CreateRecipeWithIngredients(ctx, store.Recipe{Name: "Salada"}, nil); err != nil {
		t.Fatalf("seed recipe failed: %v", err)
	}
	created := r.Dispatch(ctx, call(models.ToolCreateWeeklyMealPlan, `{
		"plan_name": "Semana",
		"start_date": "2026-08-31",
		"end_date": "2026-09-06",
		"weekly_plan": {"monday": [{"mealType": "lunch", "recipeName": "Salada", "order": 1}]}
	}`), uc)
	if !created.Success {
		t.Fatalf("plan creation failed: %q", created.Error)
	}

	result = r.Dispatch(ctx, call(models.ToolCheckUserMealPlan, "{}"), uc)
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	payload := result.Payload.(map[string]interface{})
	if !payload["has_active_plan"].(bool) {
		t.Fatal("expected active plan after creation")
	}
	if payload["start_date"].(string) != "2026-08-31" {
		t.Errorf("unexpected start date: %v", payload["start_date"])
	}
}

func TestGetUserMealPlanDetails(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()
	uc := completeUser(t, st, "5511999990007")

	// No plan yet: the failure goes back to the model as feedback.
	result := r.Dispatch(ctx, call(models.ToolGetUserMealPlanDetails, "{}"), uc)
	if result.Success {
		t.Fatal("expected failure without an active plan")
	}
	if !strings.Contains(result.Error, "no active meal plan") {
		t.Errorf("unexpected error: %q", result.Error)
	}

	for _, name := range []string{"Salada", "Omelete"} {
		if _, err := st.CreateRecipeWithIngredients(ctx, store.Recipe{Name: name}, nil); err != nil {
			t.Fatalf("seed recipe failed: %v", err)
		}
	}
	created := r.Dispatch(ctx, call(models.ToolCreateWeeklyMealPlan, `{
		"plan_name": "Semana",
		"weekly_plan": {
			"monday": [
				{"mealType": "lunch", "recipeName": "Salada", "order": 1},
				{"mealType": "dinner", "recipeName": "Omelete", "order": 2}
			],
			"tuesday": [{"mealType": "lunch", "recipeName": "Omelete", "order": 1}]
		}
	}`), uc)
	if !created.Success {
		t.Fatalf("plan creation failed: %q", created.Error)
	}

	result = r.Dispatch(ctx, call(models.ToolGetUserMealPlanDetails, "{}"), uc)
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	raw, err := json.Marshal(result.Payload)
	if err != nil {
		t.Fatalf("payload not serializable: %v", err)
	}
	var details struct {
		PlanName   string `json:"plan_name"`
		TotalMeals int    `json:"total_meals"`
		MealsByDay map[string][]struct {
			MealType string `json:"meal_type"`
			Recipe   string `json:"recipe"`
			Position int    `json:"position"`
		} `json:"meals_by_day"`
	}
	if err := json.Unmarshal(raw, &details); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if details.PlanName != "Semana" {
		t.Errorf("unexpected plan name: %q", details.PlanName)
	}
	if details.TotalMeals != 3 {
		t.Errorf("expected 3 meals, got %d", details.TotalMeals)
	}
	monday := details.MealsByDay["monday"]
	if len(monday) != 2 {
		t.Fatalf("expected 2 monday meals, got %d", len(monday))
	}
	if monday[0].Recipe != "Salada" || monday[1].Recipe != "Omelete" {
		t.Errorf("unexpected monday meals: %+v", monday)
	}
	if len(details.MealsByDay["tuesday"]) != 1 {
		t.Errorf("expected 1 tuesday meal, got %d", len(details.MealsByDay["tuesday"]))
	}
}

func TestGetRecipeIngredients(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	// recipe_name is required
	result := r.Dispatch(ctx, call(models.ToolGetRecipeIngredients, `{}`), models.UserContext{})
	if result.Success {
		t.Fatal("expected failure for missing recipe_name")
	}
	if !strings.Contains(result.Error, "invalid tool arguments") {
		t.Errorf("unexpected error: %q", result.Error)
	}

	result = r.Dispatch(ctx, call(models.ToolGetRecipeIngredients, `{"recipe_name": "Inexistente"}`), models.UserContext{})
	if result.Success {
		t.Fatal("expected failure for unknown recipe")
	}
	if !strings.Contains(result.Error, "not found") {
		t.Errorf("unexpected error: %q", result.Error)
	}

	if _, err := st.CreateRecipeWithIngredients(ctx, store.Recipe{Name: "Vitamina de banana", Description: "Bebida rápida"}, nil); err != nil {
		t.Fatalf("seed recipe failed: %v", err)
	}

	// Case-insensitive lookup, ingredient-less recipe included.
	result = r.Dispatch(ctx, call(models.ToolGetRecipeIngredients, `{"recipe_name": "vitamina DE banana"}`), models.UserContext{})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	payload := result.Payload.(map[string]interface{})
	if payload["recipe_name"].(string) != "Vitamina de banana" {
		t.Errorf("unexpected recipe name: %v", payload["recipe_name"])
	}
	if payload["total_ingredients"].(int) != 0 {
		t.Errorf("expected 0 ingredients, got %v", payload["total_ingredients"])
	}
}

func TestDefinitionsForSubset(t *testing.T) {
	allowed := []models.ToolName{models.ToolCheckUserMealPlan, models.ToolGetTodayMeals}
	defs := DefinitionsFor(allowed)
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Function.Name != string(models.ToolCheckUserMealPlan) {
		t.Errorf("unexpected first definition: %s", defs[0].Function.Name)
	}

	all := DefinitionsFor(models.AllToolNames)
	if len(all) != len(models.AllToolNames) {
		t.Errorf("expected a definition for every tool, got %d of %d", len(all), len(models.AllToolNames))
	}
}
