// Package store provides the persistent storage backends for Aleen.
//
// This file implements the SQLite-backed store, used for local development
// and tests.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/aleenlabs/aleen-agents/internal/util"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// ListAgents returns all active agent rows.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]AgentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, display_name, identifier, description, system_prompt, tools, active, created_at, updated_at FROM agents WHERE active = 1 ORDER BY name`)
	if err != nil {
		slog.Error("SQLiteStore.ListAgents query failed", "error", err)
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()
	var agents []AgentRecord
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agent rows: %w", err)
	}
	return agents, nil
}

// GetUserByPhone returns the user owning the phone number, or nil when no
// user is registered for it.
func (s *SQLiteStore) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, phone, email, age, onboarding_completed, created_at, updated_at FROM users WHERE phone = ?`, util.CanonicalPhone(phone))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetUserByPhone failed", "error", err)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

// CreateUserWithOnboarding registers a user and stores their onboarding
// answers in one transaction. The returned user has onboarding completed.
func (s *SQLiteStore) CreateUserWithOnboarding(ctx context.Context, user User, answers []OnboardingAnswerInput) (*User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.Phone = util.CanonicalPhone(user.Phone)
	user.OnboardingCompleted = true
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `INSERT INTO users (id, name, phone, email, age, onboarding_completed, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Phone, user.Email, user.Age, user.OnboardingCompleted, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore.CreateUserWithOnboarding insert user failed", "error", err, "phone", user.Phone)
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	for _, ans := range answers {
		_, err = tx.ExecContext(ctx, `INSERT INTO onboarding_responses (id, user_id, question_id, answer, created_at) VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), user.ID, ans.QuestionID, ans.Answer, now)
		if err != nil {
			slog.Error("SQLiteStore.CreateUserWithOnboarding insert answer failed", "error", err, "question_id", ans.QuestionID)
			return nil, fmt.Errorf("failed to insert onboarding answer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit user registration: %w", err)
	}
	slog.Info("SQLiteStore.CreateUserWithOnboarding: user registered", "user_id", user.ID, "answers", len(answers))
	return &user, nil
}

// RecordLead upserts a lead row for an unregistered phone number.
func (s *SQLiteStore) RecordLead(ctx context.Context, phone string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO leads (id, phone, first_seen, last_seen) VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP) ON CONFLICT(phone) DO UPDATE SET last_seen = CURRENT_TIMESTAMP`,
		uuid.NewString(), util.CanonicalPhone(phone))
	if err != nil {
		slog.Error("SQLiteStore.RecordLead failed", "error", err)
		return fmt.Errorf("failed to record lead: %w", err)
	}
	return nil
}

// ListOnboardingQuestions returns the onboarding questions in order.
func (s *SQLiteStore) ListOnboardingQuestions(ctx context.Context) ([]OnboardingQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, position, text, category FROM onboarding_questions ORDER BY position`)
	if err != nil {
		slog.Error("SQLiteStore.ListOnboardingQuestions query failed", "error", err)
		return nil, fmt.Errorf("failed to query onboarding questions: %w", err)
	}
	defer rows.Close()
	var questions []OnboardingQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate question rows: %w", err)
	}
	return questions, nil
}

// ListOnboardingResponses returns a user's answers joined with the
// question text.
func (s *SQLiteStore) ListOnboardingResponses(ctx context.Context, userID string) ([]OnboardingResponse, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.id, r.user_id, r.question_id, q.text, r.answer, r.created_at FROM onboarding_responses r JOIN onboarding_questions q ON q.id = r.question_id WHERE r.user_id = ? ORDER BY q.position`, userID)
	if err != nil {
		slog.Error("SQLiteStore.ListOnboardingResponses query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query onboarding responses: %w", err)
	}
	defer rows.Close()
	var responses []OnboardingResponse
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate response rows: %w", err)
	}
	return responses, nil
}

// ListFoods returns the full food catalog.
func (s *SQLiteStore) ListFoods(ctx context.Context) ([]Food, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, food_group, calories, protein, carbs, fat FROM foods ORDER BY name`)
	if err != nil {
		slog.Error("SQLiteStore.ListFoods query failed", "error", err)
		return nil, fmt.Errorf("failed to query foods: %w", err)
	}
	defer rows.Close()
	var foods []Food
	for rows.Next() {
		f, err := scanFood(rows)
		if err != nil {
			return nil, err
		}
		foods = append(foods, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate food rows: %w", err)
	}
	return foods, nil
}

// FindFoodsByName resolves food names case-insensitively. Names without a
// match are absent from the returned map.
func (s *SQLiteStore) FindFoodsByName(ctx context.Context, names []string) (map[string]Food, error) {
	found := make(map[string]Food, len(names))
	for _, name := range names {
		row := s.db.QueryRowContext(ctx, `SELECT id, name, food_group, calories, protein, carbs, fat FROM foods WHERE LOWER(name) = LOWER(?)`, name)
		f, err := scanFood(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		found[name] = f
	}
	return found, nil
}

// FindRecipesByName resolves recipe names case-insensitively. Names without
// a match are absent from the returned map.
func (s *SQLiteStore) FindRecipesByName(ctx context.Context, names []string) (map[string]Recipe, error) {
	found := make(map[string]Recipe, len(names))
	for _, name := range names {
		row := s.db.QueryRowContext(ctx, `SELECT id, name, description, instructions, created_at FROM recipes WHERE LOWER(name) = LOWER(?)`, name)
		r, err := scanRecipe(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query recipe %q: %w", name, err)
		}
		found[name] = r
	}
	return found, nil
}

// CreateRecipeWithIngredients inserts a recipe and its ingredients in one
// transaction.
func (s *SQLiteStore) CreateRecipeWithIngredients(ctx context.Context, recipe Recipe, ingredients []IngredientInput) (*Recipe, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	recipe.ID = uuid.NewString()
	recipe.CreatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `INSERT INTO recipes (id, name, description, instructions, created_at) VALUES (?, ?, ?, ?, ?)`,
		recipe.ID, recipe.Name, recipe.Description, recipe.Instructions, recipe.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore.CreateRecipeWithIngredients insert recipe failed", "error", err, "name", recipe.Name)
		return nil, fmt.Errorf("failed to insert recipe: %w", err)
	}

	for _, ing := range ingredients {
		_, err = tx.ExecContext(ctx, `INSERT INTO recipe_ingredients (id, recipe_id, food_id, quantity, unit) VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), recipe.ID, ing.FoodID, ing.Quantity, ing.Unit)
		if err != nil {
			slog.Error("SQLiteStore.CreateRecipeWithIngredients insert ingredient failed", "error", err, "food_id", ing.FoodID)
			return nil, fmt.Errorf("failed to insert recipe ingredient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit recipe: %w", err)
	}
	return &recipe, nil
}

// GetRecipeWithIngredients resolves a recipe by name case-insensitively
// and returns it with its ingredients. A nil recipe means no match.
func (s *SQLiteStore) GetRecipeWithIngredients(ctx context.Context, name string) (*Recipe, []RecipeIngredient, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, instructions, created_at FROM recipes WHERE LOWER(name) = LOWER(?)`, name)
	recipe, err := scanRecipe(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query recipe %q: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT ri.id, ri.recipe_id, ri.food_id, f.name, ri.quantity, ri.unit FROM recipe_ingredients ri JOIN foods f ON f.id = ri.food_id WHERE ri.recipe_id = ?`, recipe.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query recipe ingredients: %w", err)
	}
	defer rows.Close()

	var ingredients []RecipeIngredient
	for rows.Next() {
		ri, err := scanRecipeIngredient(rows)
		if err != nil {
			return nil, nil, err
		}
		ingredients = append(ingredients, ri)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate ingredient rows: %w", err)
	}
	return &recipe, ingredients, nil
}

// GetActiveMealPlan returns the user's active plan and its meals, or a nil
// plan when none is active.
func (s *SQLiteStore) GetActiveMealPlan(ctx context.Context, userID string) (*MealPlan, []PlanMeal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, name, start_date, end_date, active, created_at FROM user_meal_plans WHERE user_id = ? AND active = 1 ORDER BY created_at DESC LIMIT 1`, userID)
	plan, err := scanMealPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetActiveMealPlan failed", "error", err, "user_id", userID)
		return nil, nil, fmt.Errorf("failed to query meal plan: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT m.id, m.plan_id, m.day_of_week, m.meal_type, m.recipe_id, r.name, m.position FROM plan_meals m JOIN recipes r ON r.id = m.recipe_id WHERE m.plan_id = ? ORDER BY m.day_of_week, m.position`, plan.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query plan meals: %w", err)
	}
	defer rows.Close()
	var meals []PlanMeal
	for rows.Next() {
		m, err := scanPlanMeal(rows)
		if err != nil {
			return nil, nil, err
		}
		meals = append(meals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate plan meal rows: %w", err)
	}
	return &plan, meals, nil
}

// CreateMealPlan deactivates earlier plans for the user and writes the new
// plan with its meals in one transaction.
func (s *SQLiteStore) CreateMealPlan(ctx context.Context, plan MealPlan, meals []PlanMealInput) (*MealPlan, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `UPDATE user_meal_plans SET active = 0 WHERE user_id = ? AND active = 1`, plan.UserID)
	if err != nil {
		slog.Error("SQLiteStore.CreateMealPlan deactivate failed", "error", err, "user_id", plan.UserID)
		return nil, fmt.Errorf("failed to deactivate previous plans: %w", err)
	}

	plan.ID = uuid.NewString()
	plan.Active = true
	plan.CreatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `INSERT INTO user_meal_plans (id, user_id, name, start_date, end_date, active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.UserID, plan.Name, plan.StartDate, plan.EndDate, plan.Active, plan.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore.CreateMealPlan insert failed", "error", err, "user_id", plan.UserID)
		return nil, fmt.Errorf("failed to insert meal plan: %w", err)
	}

	for _, m := range meals {
		_, err = tx.ExecContext(ctx, `INSERT INTO plan_meals (id, plan_id, day_of_week, meal_type, recipe_id, position) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), plan.ID, m.DayOfWeek, m.MealType, m.RecipeID, m.Position)
		if err != nil {
			slog.Error("SQLiteStore.CreateMealPlan insert meal failed", "error", err, "day", m.DayOfWeek)
			return nil, fmt.Errorf("failed to insert plan meal: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit meal plan: %w", err)
	}
	slog.Info("SQLiteStore.CreateMealPlan: plan saved", "plan_id", plan.ID, "user_id", plan.UserID, "meals", len(meals))
	return &plan, nil
}

// PlanMealsForDay returns the meals of the user's active plan for one day
// of the week.
func (s *SQLiteStore) PlanMealsForDay(ctx context.Context, userID, dayOfWeek string) ([]PlanMeal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT m.id, m.plan_id, m.day_of_week, m.meal_type, m.recipe_id, r.name, m.position FROM plan_meals m JOIN user_meal_plans p ON p.id = m.plan_id JOIN recipes r ON r.id = m.recipe_id WHERE p.user_id = ? AND p.active = 1 AND m.day_of_week = ? ORDER BY m.position`, userID, dayOfWeek)
	if err != nil {
		slog.Error("SQLiteStore.PlanMealsForDay query failed", "error", err, "user_id", userID, "day", dayOfWeek)
		return nil, fmt.Errorf("failed to query plan meals: %w", err)
	}
	defer rows.Close()
	var meals []PlanMeal
	for rows.Next() {
		m, err := scanPlanMeal(rows)
		if err != nil {
			return nil, err
		}
		meals = append(meals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plan meal rows: %w", err)
	}
	return meals, nil
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
