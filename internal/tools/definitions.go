// Package tools implements the tool registry: the closed set of functions
// the model may call, their OpenAI declarations, and the dispatcher that
// validates and executes requested calls against the persistence layer.
package tools

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/aleenlabs/aleen-agents/internal/models"
)

// definitions holds the OpenAI function declaration for every tool in the
// closed enumeration. The user's identity comes from the request context,
// never from model-provided arguments, so no tool takes a phone or user id.
var definitions = map[models.ToolName]openai.ChatCompletionToolParam{
	models.ToolGetOnboardingQuestions: {
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        string(models.ToolGetOnboardingQuestions),
			Description: openai.String("Get the onboarding questions to ask a new user, in order. Use this to conduct the signup conversation."),
			Parameters: shared.FunctionParameters{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	},
	models.ToolCreateUserAndSaveOnboarding: {
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        string(models.ToolCreateUserAndSaveOnboarding),
			Description: openai.String("Register the user once all onboarding questions are answered. Saves the user and their answers in one step."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{
						"type":        "string",
						"description": "The user's full name",
					},
					"age": map[string]interface{}{
						"type":        "integer",
						"description": "The user's age in years",
					},
					"email": map[string]interface{}{
						"type":        "string",
						"description": "The user's email address",
					},
					"responses": map[string]interface{}{
						"type":        "array",
						"description": "Answers collected during onboarding",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"question_id": map[string]interface{}{
									"type":        "string",
									"description": "ID of the onboarding question",
								},
								"answer": map[string]interface{}{
									"type":        "string",
									"description": "The user's answer",
								},
							},
							"required": []string{"question_id", "answer"},
						},
					},
				},
				"required": []string{"name"},
			},
		},
	},
	models.ToolCheckUserMealPlan: {
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        string(models.ToolCheckUserMealPlan),
			Description: openai.String("Check whether the user already has an active weekly meal plan. Always call this before creating a new plan."),
			Parameters: shared.FunctionParameters{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	},
	models.ToolGetUserOnboardingResponses: {
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        string(models.ToolGetUserOnboardingResponses),
			Description: openai.String("Get the user's onboarding answers (goals, restrictions, preferences) to personalize nutrition advice."),
			Parameters: shared.FunctionParameters{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	},
	models.ToolGetAvailableFoods: {
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        string(models.ToolGetAvailableFoods),
			Description: openai.String("List the foods available in the catalog with their nutrition facts. Use these when composing recipes."),
			Parameters: shared.FunctionParameters{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	},
	models.ToolCreateWeeklyMealPlan: {
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        string(models.ToolCreateWeeklyMealPlan),
			Description: openai.String("Create a weekly meal plan for the user from existing recipes. Recipe names that do not exist are skipped and reported."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"plan_name": map[string]interface{}{
						"type":        "string",
						"description": "Display name for the plan",
					},
					"start_date": map[string]interface{}{
						"type":        "string",
						"description": "Plan start date, YYYY-MM-DD",
					},
					"end_date": map[string]interface{}{
						"type":        "string",
						"description": "Plan end date, YYYY-MM-DD",
					},
					"weekly_plan": map[string]interface{}{
						"type":        "object",
						"description": "Map from day of week (monday..sunday) to the ordered meals of that day",
						"additionalProperties": map[string]interface{}{
							"type": "array",
							"items": map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"mealType": map[string]interface{}{
										"type":        "string",
										"description": "breakfast, lunch, snack or dinner",
									},
									"recipeName": map[string]interface{}{
										"type":        "string",
										"description": "Name of an existing recipe",
									},
									"order": map[string]interface{}{
										"type":        "integer",
										"description": "Display order within the day",
									},
								},
								"required": []string{"mealType", "recipeName"},
							},
						},
					},
				},
				"required": []string{"weekly_plan"},
			},
		},
	},
	models.ToolCreateRecipeWithIngredients: {
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        string(models.ToolCreateRecipeWithIngredients),
			Description: openai.String("Create a recipe with its ingredients. Every ingredient must reference a food from the catalog; unknown foods fail the whole recipe."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{
						"type":        "string",
						"description": "Recipe name",
					},
					"description": map[string]interface{}{
						"type":        "string",
						"description": "Short description of the dish",
					},
					"instructions": map[string]interface{}{
						"type":        "string",
						"description": "Preparation instructions",
					},
					"ingredients": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"food_name": map[string]interface{}{
									"type":        "string",
									"description": "Name of a food from the catalog",
								},
								"quantity": map[string]interface{}{
									"type":        "number",
									"description": "Amount of the food",
								},
								"unit": map[string]interface{}{
									"type":        "string",
									"description": "Unit for the quantity, e.g. g or ml",
								},
							},
							"required": []string{"food_name", "quantity"},
						},
					},
				},
				"required": []string{"name", "ingredients"},
			},
		},
	},
	models.ToolRegisterCompleteMealPlan: {
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        string(models.ToolRegisterCompleteMealPlan),
			Description: openai.String("Register a complete weekly meal plan in one call. Missing recipes are created by name; the plan rows are written atomically."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"plan_data": map[string]interface{}{
						"type":        "object",
						"description": "The full plan structure",
						"properties": map[string]interface{}{
							"planName": map[string]interface{}{
								"type":        "string",
								"description": "Display name for the plan",
							},
							"startDate": map[string]interface{}{
								"type":        "string",
								"description": "Plan start date, YYYY-MM-DD",
							},
							"endDate": map[string]interface{}{
								"type":        "string",
								"description": "Plan end date, YYYY-MM-DD",
							},
							"weeklyPlan": map[string]interface{}{
								"type":        "object",
								"description": "Map from day of week (monday..sunday) to the ordered meals of that day",
								"additionalProperties": map[string]interface{}{
									"type": "array",
									"items": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"mealType": map[string]interface{}{
												"type": "string",
											},
											"recipeName": map[string]interface{}{
												"type": "string",
											},
											"order": map[string]interface{}{
												"type": "integer",
											},
										},
										"required": []string{"mealType", "recipeName"},
									},
								},
							},
						},
						"required": []string{"weeklyPlan"},
					},
				},
				"required": []string{"plan_data"},
			},
		},
	},
	models.ToolGetTodayMeals: {
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        string(models.ToolGetTodayMeals),
			Description: openai.String("Get the meals planned for today from the user's active meal plan."),
			Parameters: shared.FunctionParameters{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	},
	models.ToolGetUserMealPlanDetails: {
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        string(models.ToolGetUserMealPlanDetails),
			Description: openai.String("Get the full details of the user's active meal plan: every meal of every day, grouped by day of week."),
			Parameters: shared.FunctionParameters{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	},
	models.ToolGetRecipeIngredients: {
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        string(models.ToolGetRecipeIngredients),
			Description: openai.String("Get the ingredients of a recipe with quantities. Use this when the user asks how a dish is prepared or what goes into it."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"recipe_name": map[string]interface{}{
						"type":        "string",
						"description": "Name of the recipe to look up",
					},
				},
				"required": []string{"recipe_name"},
			},
		},
	},
}

// DefinitionsFor returns the OpenAI tool declarations for an agent's
// allowed set, in the given order.
func DefinitionsFor(allowed []models.ToolName) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(allowed))
	for _, name := range allowed {
		if def, ok := definitions[name]; ok {
			out = append(out, def)
		}
	}
	return out
}
