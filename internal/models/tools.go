// Package models defines tool structures for LLM function calling.
package models

import (
	"encoding/json"
)

// ToolName identifies one registered tool. The set is closed: any name the
// model emits outside this enumeration is rejected before dispatch.
type ToolName string

const (
	// ToolGetOnboardingQuestions fetches the active WhatsApp onboarding
	// questions in step order.
	ToolGetOnboardingQuestions ToolName = "get_onboarding_questions"
	// ToolCreateUserAndSaveOnboarding creates a user row from collected
	// signup data and records the onboarding responses.
	ToolCreateUserAndSaveOnboarding ToolName = "create_user_and_save_onboarding"
	// ToolCheckUserMealPlan reports whether the user has an active meal plan.
	ToolCheckUserMealPlan ToolName = "check_user_meal_plan"
	// ToolGetUserOnboardingResponses returns the user's onboarding answers.
	ToolGetUserOnboardingResponses ToolName = "get_user_onboarding_responses"
	// ToolGetAvailableFoods lists foods with nutrition fields.
	ToolGetAvailableFoods ToolName = "get_available_foods"
	// ToolCreateWeeklyMealPlan creates a weekly plan from a loosely
	// structured day layout.
	ToolCreateWeeklyMealPlan ToolName = "create_weekly_meal_plan"
	// ToolCreateRecipeWithIngredients creates one recipe plus its
	// ingredient links as a single logical unit.
	ToolCreateRecipeWithIngredients ToolName = "create_recipe_with_ingredients"
	// ToolRegisterCompleteMealPlan validates and persists a full weekly
	// plan structure transactionally.
	ToolRegisterCompleteMealPlan ToolName = "register_complete_meal_plan"
	// ToolGetTodayMeals returns the meals planned for today.
	ToolGetTodayMeals ToolName = "get_today_meals"
	// ToolGetUserMealPlanDetails returns the full active plan with meals
	// grouped by day of week.
	ToolGetUserMealPlanDetails ToolName = "get_user_meal_plan_details"
	// ToolGetRecipeIngredients lists a recipe's ingredients with
	// quantities.
	ToolGetRecipeIngredients ToolName = "get_recipe_ingredients"
)

// AllToolNames is the closed tool enumeration in a stable order.
var AllToolNames = []ToolName{
	ToolGetOnboardingQuestions,
	ToolCreateUserAndSaveOnboarding,
	ToolCheckUserMealPlan,
	ToolGetUserOnboardingResponses,
	ToolGetAvailableFoods,
	ToolCreateWeeklyMealPlan,
	ToolCreateRecipeWithIngredients,
	ToolRegisterCompleteMealPlan,
	ToolGetTodayMeals,
	ToolGetUserMealPlanDetails,
	ToolGetRecipeIngredients,
}

// IsValidToolName checks membership in the closed enumeration.
func IsValidToolName(name ToolName) bool {
	for _, t := range AllToolNames {
		if t == name {
			return true
		}
	}
	return false
}

// ToolCallRequest is one tool invocation emitted by the model.
type ToolCallRequest struct {
	ID        string          `json:"id"`
	Name      ToolName        `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing (or refusing) one tool call. It is
// serialized back into the model's context so it can compose a reply.
type ToolResult struct {
	ToolCallID string      `json:"tool_call_id,omitempty"`
	Name       ToolName    `json:"tool"`
	Success    bool        `json:"success"`
	Payload    interface{} `json:"payload,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// FailedToolResult builds an error result for a tool call.
func FailedToolResult(call ToolCallRequest, msg string) ToolResult {
	return ToolResult{ToolCallID: call.ID, Name: call.Name, Success: false, Error: msg}
}

// PlannedMeal is one entry of a weekly plan day: which recipe, at which
// meal slot, in which display order.
type PlannedMeal struct {
	MealType   string `json:"mealType" validate:"required"`
	RecipeName string `json:"recipeName" validate:"required"`
	Order      int    `json:"order"`
}

// WeeklyPlan maps a day-of-week label to its ordered list of meals.
type WeeklyPlan map[string][]PlannedMeal

// RecipeNames returns the distinct recipe names referenced by the plan.
func (wp WeeklyPlan) RecipeNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, meals := range wp {
		for _, meal := range meals {
			if meal.RecipeName != "" && !seen[meal.RecipeName] {
				seen[meal.RecipeName] = true
				names = append(names, meal.RecipeName)
			}
		}
	}
	return names
}
