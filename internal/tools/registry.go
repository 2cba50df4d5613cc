package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aleenlabs/aleen-agents/internal/models"
	"github.com/aleenlabs/aleen-agents/internal/store"
)

// Registry executes tool calls against the persistence layer.
type Registry struct {
	store    store.Store
	validate *validator.Validate
}

// NewRegistry creates a tool registry backed by the given store.
func NewRegistry(st store.Store) *Registry {
	return &Registry{store: st, validate: validator.New()}
}

// CreateUserArgs are the model-provided arguments for user registration.
type CreateUserArgs struct {
	Name      string `json:"name" validate:"required"`
	Age       int    `json:"age" validate:"omitempty,gte=0,lte=130"`
	Email     string `json:"email" validate:"omitempty,email"`
	Responses []struct {
		QuestionID string `json:"question_id" validate:"required"`
		Answer     string `json:"answer"`
	} `json:"responses" validate:"dive"`
}

// CreateWeeklyMealPlanArgs are the arguments for building a plan from
// existing recipes.
type CreateWeeklyMealPlanArgs struct {
	PlanName   string            `json:"plan_name"`
	StartDate  string            `json:"start_date"`
	EndDate    string            `json:"end_date"`
	WeeklyPlan models.WeeklyPlan `json:"weekly_plan" validate:"required,min=1"`
}

// CreateRecipeArgs are the arguments for recipe creation.
type CreateRecipeArgs struct {
	Name         string `json:"name" validate:"required"`
	Description  string `json:"description"`
	Instructions string `json:"instructions"`
	Ingredients  []struct {
		FoodName string  `json:"food_name" validate:"required"`
		Quantity float64 `json:"quantity" validate:"gt=0"`
		Unit     string  `json:"unit"`
	} `json:"ingredients" validate:"required,min=1,dive"`
}

// GetRecipeIngredientsArgs name the recipe whose ingredients to list.
type GetRecipeIngredientsArgs struct {
	RecipeName string `json:"recipe_name" validate:"required"`
}

// RegisterPlanArgs are the arguments for registering a complete plan.
type RegisterPlanArgs struct {
	PlanData struct {
		PlanName   string            `json:"planName"`
		StartDate  string            `json:"startDate"`
		EndDate    string            `json:"endDate"`
		WeeklyPlan models.WeeklyPlan `json:"weeklyPlan" validate:"required,min=1"`
	} `json:"plan_data" validate:"required"`
}

// parseArgs unmarshals and validates model-provided arguments into dst.
func (r *Registry) parseArgs(call models.ToolCallRequest, dst interface{}) error {
	raw := call.Arguments
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidArguments, err)
	}
	if err := r.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidArguments, err)
	}
	return nil
}

// Dispatch validates and executes one tool call. Failures are returned as
// failed ToolResults, never as errors: a bad tool call must not abort the
// conversation, it goes back to the model as feedback.
//
// The user's identity always comes from uc, derived from the request, not
// from model arguments.
func (r *Registry) Dispatch(ctx context.Context, call models.ToolCallRequest, uc models.UserContext) models.ToolResult {
	if !models.IsValidToolName(call.Name) {
		slog.Warn("Registry.Dispatch: unknown tool requested", "tool", call.Name, "phone", uc.Phone)
		return models.FailedToolResult(call, models.ErrToolNotFound.Error())
	}
	slog.Debug("Registry.Dispatch: executing tool", "tool", call.Name, "phone", uc.Phone)

	var (
		payload interface{}
		err     error
	)
	switch call.Name {
	case models.ToolGetOnboardingQuestions:
		payload, err = r.getOnboardingQuestions(ctx)
	case models.ToolCreateUserAndSaveOnboarding:
		payload, err = r.createUserAndSaveOnboarding(ctx, call, uc)
	case models.ToolCheckUserMealPlan:
		payload, err = r.checkUserMealPlan(ctx, uc)
	case models.ToolGetUserOnboardingResponses:
		payload, err = r.getUserOnboardingResponses(ctx, uc)
	case models.ToolGetAvailableFoods:
		payload, err = r.getAvailableFoods(ctx)
	case models.ToolCreateWeeklyMealPlan:
		payload, err = r.createWeeklyMealPlan(ctx, call, uc)
	case models.ToolCreateRecipeWithIngredients:
		payload, err = r.createRecipeWithIngredients(ctx, call)
	case models.ToolRegisterCompleteMealPlan:
		payload, err = r.registerCompleteMealPlan(ctx, call, uc)
	case models.ToolGetTodayMeals:
		payload, err = r.getTodayMeals(ctx, uc)
	case models.ToolGetUserMealPlanDetails:
		payload, err = r.getUserMealPlanDetails(ctx, uc)
	case models.ToolGetRecipeIngredients:
		payload, err = r.getRecipeIngredients(ctx, call)
	}
	if err != nil {
		slog.Warn("Registry.Dispatch: tool failed", "tool", call.Name, "error", err, "phone", uc.Phone)
		return models.FailedToolResult(call, err.Error())
	}
	return models.ToolResult{ToolCallID: call.ID, Name: call.Name, Success: true, Payload: payload}
}

func (r *Registry) getOnboardingQuestions(ctx context.Context) (interface{}, error) {
	questions, err := r.store.ListOnboardingQuestions(ctx)
	if err != nil {
		return nil, err
	}
	type question struct {
		ID       string `json:"id"`
		Position int    `json:"position"`
		Text     string `json:"text"`
		Category string `json:"category,omitempty"`
	}
	out := make([]question, 0, len(questions))
	for _, q := range questions {
		out = append(out, question{ID: q.ID, Position: q.Position, Text: q.Text, Category: q.Category})
	}
	return map[string]interface{}{"questions": out}, nil
}

func (r *Registry) createUserAndSaveOnboarding(ctx context.Context, call models.ToolCallRequest, uc models.UserContext) (interface{}, error) {
	var args CreateUserArgs
	if err := r.parseArgs(call, &args); err != nil {
		return nil, err
	}

	existing, err := r.store.GetUserByPhone(ctx, uc.Phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("user already registered for this phone number")
	}

	answers := make([]store.OnboardingAnswerInput, 0, len(args.Responses))
	for _, resp := range args.Responses {
		answers = append(answers, store.OnboardingAnswerInput{QuestionID: resp.QuestionID, Answer: resp.Answer})
	}
	user, err := r.store.CreateUserWithOnboarding(ctx, store.User{
		Name:  args.Name,
		Phone: uc.Phone,
		Email: args.Email,
		Age:   args.Age,
	}, answers)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"user_id":         user.ID,
		"name":            user.Name,
		"answers_saved":   len(answers),
		"onboarding_done": true,
	}, nil
}

func (r *Registry) checkUserMealPlan(ctx context.Context, uc models.UserContext) (interface{}, error) {
	if uc.UserID == "" {
		return nil, models.ErrUserNotFound
	}
	plan, meals, err := r.store.GetActiveMealPlan(ctx, uc.UserID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return map[string]interface{}{"has_active_plan": false}, nil
	}
	return map[string]interface{}{
		"has_active_plan": true,
		"plan_id":         plan.ID,
		"plan_name":       plan.Name,
		"start_date":      plan.StartDate,
		"end_date":        plan.EndDate,
		"meal_count":      len(meals),
	}, nil
}

func (r *Registry) getUserOnboardingResponses(ctx context.Context, uc models.UserContext) (interface{}, error) {
	if uc.UserID == "" {
		return nil, models.ErrUserNotFound
	}
	responses, err := r.store.ListOnboardingResponses(ctx, uc.UserID)
	if err != nil {
		return nil, err
	}
	type answer struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	out := make([]answer, 0, len(responses))
	for _, resp := range responses {
		out = append(out, answer{Question: resp.Question, Answer: resp.Answer})
	}
	return map[string]interface{}{"responses": out}, nil
}

func (r *Registry) getAvailableFoods(ctx context.Context) (interface{}, error) {
	foods, err := r.store.ListFoods(ctx)
	if err != nil {
		return nil, err
	}
	type food struct {
		Name     string  `json:"name"`
		Group    string  `json:"group,omitempty"`
		Calories float64 `json:"calories"`
		Protein  float64 `json:"protein"`
		Carbs    float64 `json:"carbs"`
		Fat      float64 `json:"fat"`
	}
	out := make([]food, 0, len(foods))
	for _, f := range foods {
		out = append(out, food{Name: f.Name, Group: f.Group, Calories: f.Calories, Protein: f.Protein, Carbs: f.Carbs, Fat: f.Fat})
	}
	return map[string]interface{}{"foods": out}, nil
}

// normalizeDay lowercases and trims a day-of-week label.
func normalizeDay(day string) string {
	return strings.ToLower(strings.TrimSpace(day))
}

// resolvePlanMeals turns a weekly plan into store inputs using the given
// recipe resolution. Unknown recipe names are collected, not fatal.
func resolvePlanMeals(plan models.WeeklyPlan, recipes map[string]store.Recipe) (meals []store.PlanMealInput, skipped []string) {
	for day, dayMeals := range plan {
		for _, meal := range dayMeals {
			recipe, ok := recipes[meal.RecipeName]
			if !ok {
				skipped = append(skipped, meal.RecipeName)
				continue
			}
			meals = append(meals, store.PlanMealInput{
				DayOfWeek: normalizeDay(day),
				MealType:  normalizeDay(meal.MealType),
				RecipeID:  recipe.ID,
				Position:  meal.Order,
			})
		}
	}
	return meals, skipped
}

func (r *Registry) createWeeklyMealPlan(ctx context.Context, call models.ToolCallRequest, uc models.UserContext) (interface{}, error) {
	if uc.UserID == "" {
		return nil, models.ErrUserNotFound
	}
	var args CreateWeeklyMealPlanArgs
	if err := r.parseArgs(call, &args); err != nil {
		return nil, err
	}

	recipes, err := r.store.FindRecipesByName(ctx, args.WeeklyPlan.RecipeNames())
	if err != nil {
		return nil, err
	}
	meals, skipped := resolvePlanMeals(args.WeeklyPlan, recipes)
	if len(meals) == 0 {
		return nil, fmt.Errorf("no meals could be created: none of the recipes exist")
	}

	plan, err := r.store.CreateMealPlan(ctx, store.MealPlan{
		UserID:    uc.UserID,
		Name:      args.PlanName,
		StartDate: args.StartDate,
		EndDate:   args.EndDate,
	}, meals)
	if err != nil {
		return nil, err
	}
	result := map[string]interface{}{
		"plan_id":       plan.ID,
		"meals_created": len(meals),
	}
	if len(skipped) > 0 {
		result["skipped_recipes"] = skipped
	}
	return result, nil
}

func (r *Registry) createRecipeWithIngredients(ctx context.Context, call models.ToolCallRequest) (interface{}, error) {
	var args CreateRecipeArgs
	if err := r.parseArgs(call, &args); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(args.Ingredients))
	for _, ing := range args.Ingredients {
		names = append(names, ing.FoodName)
	}
	foods, err := r.store.FindFoodsByName(ctx, names)
	if err != nil {
		return nil, err
	}

	// A single unknown food fails the whole recipe; a partial recipe is
	// worse than none.
	ingredients := make([]store.IngredientInput, 0, len(args.Ingredients))
	for _, ing := range args.Ingredients {
		food, ok := foods[ing.FoodName]
		if !ok {
			return nil, fmt.Errorf("food %q not found in catalog", ing.FoodName)
		}
		ingredients = append(ingredients, store.IngredientInput{FoodID: food.ID, Quantity: ing.Quantity, Unit: ing.Unit})
	}

	recipe, err := r.store.CreateRecipeWithIngredients(ctx, store.Recipe{
		Name:         args.Name,
		Description:  args.Description,
		Instructions: args.Instructions,
	}, ingredients)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"recipe_id":   recipe.ID,
		"name":        recipe.Name,
		"ingredients": len(ingredients),
	}, nil
}

func (r *Registry) registerCompleteMealPlan(ctx context.Context, call models.ToolCallRequest, uc models.UserContext) (interface{}, error) {
	if uc.UserID == "" {
		return nil, models.ErrUserNotFound
	}
	var args RegisterPlanArgs
	if err := r.parseArgs(call, &args); err != nil {
		return nil, err
	}
	plan := args.PlanData

	recipes, err := r.store.FindRecipesByName(ctx, plan.WeeklyPlan.RecipeNames())
	if err != nil {
		return nil, err
	}
	// Missing recipes are created by name so the full structure always
	// registers; ingredients can be attached later.
	created := 0
	for _, name := range plan.WeeklyPlan.RecipeNames() {
		if _, ok := recipes[name]; ok {
			continue
		}
		recipe, err := r.store.CreateRecipeWithIngredients(ctx, store.Recipe{Name: name}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create recipe %q: %w", name, err)
		}
		recipes[name] = *recipe
		created++
	}

	meals, _ := resolvePlanMeals(plan.WeeklyPlan, recipes)
	if len(meals) == 0 {
		return nil, fmt.Errorf("plan contains no meals")
	}
	saved, err := r.store.CreateMealPlan(ctx, store.MealPlan{
		UserID:    uc.UserID,
		Name:      plan.PlanName,
		StartDate: plan.StartDate,
		EndDate:   plan.EndDate,
	}, meals)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"plan_id":         saved.ID,
		"meals_created":   len(meals),
		"recipes_created": created,
	}, nil
}

func (r *Registry) getUserMealPlanDetails(ctx context.Context, uc models.UserContext) (interface{}, error) {
	if uc.UserID == "" {
		return nil, models.ErrUserNotFound
	}
	plan, meals, err := r.store.GetActiveMealPlan(ctx, uc.UserID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("no active meal plan found")
	}
	type meal struct {
		MealType string `json:"meal_type"`
		Recipe   string `json:"recipe"`
		Position int    `json:"position"`
	}
	mealsByDay := make(map[string][]meal)
	for _, m := range meals {
		mealsByDay[m.DayOfWeek] = append(mealsByDay[m.DayOfWeek], meal{
			MealType: m.MealType,
			Recipe:   m.RecipeName,
			Position: m.Position,
		})
	}
	return map[string]interface{}{
		"plan_id":      plan.ID,
		"plan_name":    plan.Name,
		"start_date":   plan.StartDate,
		"end_date":     plan.EndDate,
		"meals_by_day": mealsByDay,
		"total_meals":  len(meals),
	}, nil
}

func (r *Registry) getRecipeIngredients(ctx context.Context, call models.ToolCallRequest) (interface{}, error) {
	var args GetRecipeIngredientsArgs
	if err := r.parseArgs(call, &args); err != nil {
		return nil, err
	}
	recipe, items, err := r.store.GetRecipeWithIngredients(ctx, args.RecipeName)
	if err != nil {
		return nil, err
	}
	if recipe == nil {
		return nil, fmt.Errorf("recipe %q not found", args.RecipeName)
	}
	type ingredient struct {
		Food     string  `json:"food"`
		Quantity float64 `json:"quantity"`
		Unit     string  `json:"unit,omitempty"`
	}
	out := make([]ingredient, 0, len(items))
	for _, item := range items {
		out = append(out, ingredient{Food: item.FoodName, Quantity: item.Quantity, Unit: item.Unit})
	}
	return map[string]interface{}{
		"recipe_name":       recipe.Name,
		"description":       recipe.Description,
		"ingredients":       out,
		"total_ingredients": len(out),
	}, nil
}

func (r *Registry) getTodayMeals(ctx context.Context, uc models.UserContext) (interface{}, error) {
	if uc.UserID == "" {
		return nil, models.ErrUserNotFound
	}
	today := normalizeDay(time.Now().Weekday().String())
	meals, err := r.store.PlanMealsForDay(ctx, uc.UserID, today)
	if err != nil {
		return nil, err
	}
	type meal struct {
		MealType string `json:"meal_type"`
		Recipe   string `json:"recipe"`
		Position int    `json:"position"`
	}
	out := make([]meal, 0, len(meals))
	for _, m := range meals {
		out = append(out, meal{MealType: m.MealType, Recipe: m.RecipeName, Position: m.Position})
	}
	return map[string]interface{}{"day": today, "meals": out}, nil
}
