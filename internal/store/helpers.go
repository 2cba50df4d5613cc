package store

import "fmt"

// rowScanner matches both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(rs rowScanner) (AgentRecord, error) {
	var a AgentRecord
	err := rs.Scan(&a.ID, &a.Name, &a.DisplayName, &a.Identifier, &a.Description,
		&a.SystemPrompt, &a.Tools, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, fmt.Errorf("scan agent failed: %w", err)
	}
	return a, nil
}

func scanUser(rs rowScanner) (User, error) {
	var u User
	err := rs.Scan(&u.ID, &u.Name, &u.Phone, &u.Email, &u.Age,
		&u.OnboardingCompleted, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return u, err
	}
	return u, nil
}

func scanQuestion(rs rowScanner) (OnboardingQuestion, error) {
	var q OnboardingQuestion
	err := rs.Scan(&q.ID, &q.Position, &q.Text, &q.Category)
	if err != nil {
		return q, fmt.Errorf("scan onboarding question failed: %w", err)
	}
	return q, nil
}

func scanResponse(rs rowScanner) (OnboardingResponse, error) {
	var r OnboardingResponse
	err := rs.Scan(&r.ID, &r.UserID, &r.QuestionID, &r.Question, &r.Answer, &r.CreatedAt)
	if err != nil {
		return r, fmt.Errorf("scan onboarding response failed: %w", err)
	}
	return r, nil
}

func scanFood(rs rowScanner) (Food, error) {
	var f Food
	err := rs.Scan(&f.ID, &f.Name, &f.Group, &f.Calories, &f.Protein, &f.Carbs, &f.Fat)
	if err != nil {
		return f, fmt.Errorf("scan food failed: %w", err)
	}
	return f, nil
}

func scanRecipe(rs rowScanner) (Recipe, error) {
	var r Recipe
	err := rs.Scan(&r.ID, &r.Name, &r.Description, &r.Instructions, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	return r, nil
}

func scanRecipeIngredient(rs rowScanner) (RecipeIngredient, error) {
	var ri RecipeIngredient
	err := rs.Scan(&ri.ID, &ri.RecipeID, &ri.FoodID, &ri.FoodName, &ri.Quantity, &ri.Unit)
	if err != nil {
		return ri, fmt.Errorf("scan recipe ingredient failed: %w", err)
	}
	return ri, nil
}

func scanMealPlan(rs rowScanner) (MealPlan, error) {
	var p MealPlan
	err := rs.Scan(&p.ID, &p.UserID, &p.Name, &p.StartDate, &p.EndDate, &p.Active, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	return p, nil
}

func scanPlanMeal(rs rowScanner) (PlanMeal, error) {
	var m PlanMeal
	err := rs.Scan(&m.ID, &m.PlanID, &m.DayOfWeek, &m.MealType, &m.RecipeID, &m.RecipeName, &m.Position)
	if err != nil {
		return m, fmt.Errorf("scan plan meal failed: %w", err)
	}
	return m, nil
}
