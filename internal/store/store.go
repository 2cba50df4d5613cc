// Package store provides the persistent storage backends for Aleen.
//
// It ships PostgreSQL and SQLite implementations behind a common Store
// interface. The nutrition data model (users, foods, recipes, meal plans)
// lives here together with the agent catalog.
package store

import (
	"context"
	"time"

	"github.com/aleenlabs/aleen-agents/internal/models"
)

// User is a registered WhatsApp user.
type User struct {
	ID                  string
	Name                string
	Phone               string
	Email               string
	Age                 int
	OnboardingCompleted bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Lead is a phone number that contacted the service before registering.
type Lead struct {
	ID        string
	Phone     string
	FirstSeen time.Time
	LastSeen  time.Time
}

// AgentRecord is an agent row as stored in the database. The registry
// turns these into models.AgentDefinition values.
type AgentRecord struct {
	ID           string
	Name         string
	DisplayName  string
	Identifier   string
	Description  string
	SystemPrompt string
	Tools        string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OnboardingQuestion is a single question of the onboarding flow.
type OnboardingQuestion struct {
	ID       string
	Position int
	Text     string
	Category string
}

// OnboardingResponse is a user's answer to an onboarding question.
type OnboardingResponse struct {
	ID         string
	UserID     string
	QuestionID string
	Question   string
	Answer     string
	CreatedAt  time.Time
}

// Food is an item from the food catalog.
type Food struct {
	ID       string
	Name     string
	Group    string
	Calories float64
	Protein  float64
	Carbs    float64
	Fat      float64
}

// Recipe is a named dish composed of catalog foods.
type Recipe struct {
	ID           string
	Name         string
	Description  string
	Instructions string
	CreatedAt    time.Time
}

// RecipeIngredient ties a food to a recipe with a quantity.
type RecipeIngredient struct {
	ID       string
	RecipeID string
	FoodID   string
	FoodName string
	Quantity float64
	Unit     string
}

// MealPlan is a weekly plan for a user. Only one plan per user is active
// at a time.
type MealPlan struct {
	ID        string
	UserID    string
	Name      string
	StartDate string
	EndDate   string
	Active    bool
	CreatedAt time.Time
}

// PlanMeal is a single meal slot inside a plan.
type PlanMeal struct {
	ID         string
	PlanID     string
	DayOfWeek  string
	MealType   string
	RecipeID   string
	RecipeName string
	Position   int
}

// PlanMealInput is a resolved meal slot used when writing a plan.
type PlanMealInput struct {
	DayOfWeek string
	MealType  string
	RecipeID  string
	Position  int
}

// IngredientInput is a resolved ingredient used when creating a recipe.
type IngredientInput struct {
	FoodID   string
	Quantity float64
	Unit     string
}

// OnboardingAnswerInput pairs a question with the user's answer at
// registration time.
type OnboardingAnswerInput struct {
	QuestionID string
	Answer     string
}

// Store defines the persistence operations used by the service.
type Store interface {
	// Agents
	ListAgents(ctx context.Context) ([]AgentRecord, error)

	// Users and leads
	GetUserByPhone(ctx context.Context, phone string) (*User, error)
	CreateUserWithOnboarding(ctx context.Context, user User, answers []OnboardingAnswerInput) (*User, error)
	RecordLead(ctx context.Context, phone string) error

	// Onboarding
	ListOnboardingQuestions(ctx context.Context) ([]OnboardingQuestion, error)
	ListOnboardingResponses(ctx context.Context, userID string) ([]OnboardingResponse, error)

	// Food and recipes
	ListFoods(ctx context.Context) ([]Food, error)
	FindRecipesByName(ctx context.Context, names []string) (map[string]Recipe, error)
	CreateRecipeWithIngredients(ctx context.Context, recipe Recipe, ingredients []IngredientInput) (*Recipe, error)
	GetRecipeWithIngredients(ctx context.Context, name string) (*Recipe, []RecipeIngredient, error)
	FindFoodsByName(ctx context.Context, names []string) (map[string]Food, error)

	// Meal plans
	GetActiveMealPlan(ctx context.Context, userID string) (*MealPlan, []PlanMeal, error)
	CreateMealPlan(ctx context.Context, plan MealPlan, meals []PlanMealInput) (*MealPlan, error)
	PlanMealsForDay(ctx context.Context, userID, dayOfWeek string) ([]PlanMeal, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// userStateFor derives the conversation state from a user row.
func userStateFor(u *User) models.UserState {
	if u == nil {
		return models.UserStateNew
	}
	if !u.OnboardingCompleted {
		return models.UserStateIncompleteOnboarding
	}
	return models.UserStateComplete
}

// UserContextFor builds the selector's view of a user. A nil user means
// the phone number has never registered.
func UserContextFor(u *User, phone string) models.UserContext {
	uc := models.UserContext{State: userStateFor(u), Phone: phone}
	if u != nil {
		uc.UserID = u.ID
		uc.Name = u.Name
	}
	return uc
}
