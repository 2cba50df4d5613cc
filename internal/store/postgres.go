// Package store provides the persistent storage backends for Aleen.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/aleenlabs/aleen-agents/internal/util"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// ListAgents returns all active agent rows.
func (s *PostgresStore) ListAgents(ctx context.Context) ([]AgentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, display_name, identifier, description, system_prompt, tools, active, created_at, updated_at FROM agents WHERE active ORDER BY name`)
	if err != nil {
		slog.Error("PostgresStore.ListAgents query failed", "error", err)
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
func (s *PostgresStore) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, phone, email, age, onboarding_completed, created_at, updated_at FROM users WHERE phone = $1`, util.CanonicalPhone(phone))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetUserByPhone failed", "error", err)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

// CreateUserWithOnboarding registers a user and stores their onboarding
// answers in one transaction. The returned user has onboarding completed.
func (s *PostgresStore) CreateUserWithOnboarding(ctx context.Context, user User, answers []OnboardingAnswerInput) (*User, error) {
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

	_, err = tx.ExecContext(ctx, `INSERT INTO users (id, name, phone, email, age, onboarding_completed, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Name, user.Phone, user.Email, user.Age, user.OnboardingCompleted, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore.CreateUserWithOnboarding insert user failed", "error", err, "phone", user.Phone)
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	for _, ans := range answers {
		_, err = tx.ExecContext(ctx, `INSERT INTO onboarding_responses (id, user_id, question_id, answer, created_at) VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), user.ID, ans.QuestionID, ans.Answer, now)
		if err != nil {
			slog.Error("PostgresStore.CreateUserWithOnboarding insert answer failed", "error", err, "question_id", ans.QuestionID)
			return nil, fmt.Errorf("failed to insert onboarding answer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit user registration: %w", err)
	}
	slog.Info("PostgresStore.CreateUserWithOnboarding: user registered", "user_id", user.ID, "answers", len(answers))
	return &user, nil
}

// RecordLead upserts a lead row for an unregistered phone number.
func (s *PostgresStore) RecordLead(ctx context.Context, phone string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO leads (id, phone, first_seen, last_seen) VALUES ($1, $2, NOW(), NOW()) ON CONFLICT (phone) DO UPDATE SET last_seen = NOW()`,
		uuid.NewString(), util.CanonicalPhone(phone))
	if err != nil {
		slog.Error("PostgresStore.RecordLead failed", "error", err)
		return fmt.Errorf("failed to record lead: %w", err)
	}
	return nil
}

// ListOnboardingQuestions returns the onboarding questions in order.
func (s *PostgresStore) ListOnboardingQuestions(ctx context.Context) ([]OnboardingQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, position, text, category FROM onboarding_questions ORDER BY position`)
	if err != nil {
		slog.Error("PostgresStore.ListOnboardingQuestions query failed", "error", err)
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
func (s *PostgresStore) ListOnboardingResponses(ctx context.Context, userID string) ([]OnboardingResponse, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.id, r.user_id, r.question_id, q.text, r.answer, r.created_at FROM onboarding_responses r JOIN onboarding_questions q ON q.id = r.question_id WHERE r.user_id = $1 ORDER BY q.position`, userID)
	if err != nil {
		slog.Error("PostgresStore.ListOnboardingResponses query failed", "error", err, "user_id", userID)
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
func (s *PostgresStore) ListFoods(ctx context.Context) ([]Food, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, food_group, calories, protein, carbs, fat FROM foods ORDER BY name`)
	if err != nil {
		slog.Error("PostgresStore.ListFoods query failed", "error", err)
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
func (s *PostgresStore) FindFoodsByName(ctx context.Context, names []string) (map[string]Food, error) {
	found := make(map[string]Food, len(names))
	for _, name := range names {
		row := s.db.QueryRowContext(ctx, `SELECT id, name, food_group, calories, protein, carbs, fat FROM foods WHERE LOWER(name) = LOWER($1)`, name)
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
func (s *PostgresStore) FindRecipesByName(ctx context.Context, names []string) (map[string]Recipe, error) {
	found := make(map[string]Recipe, len(names))
	for _, name := range names {
		row := s.db.QueryRowContext(ctx, `SELECT id, name, description, instructions, created_at FROM recipes WHERE LOWER(name) = LOWER($1)`, name)
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
func (s *PostgresStore) CreateRecipeWithIngredients(ctx context.Context, recipe Recipe, ingredients []IngredientInput) (*Recipe, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	recipe.ID = uuid.NewString()
	recipe.CreatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `INSERT INTO recipes (id, name, description, instructions, created_at) VALUES ($1, $2, $3, $4, $5)`,
		recipe.ID, recipe.Name, recipe.Description, recipe.Instructions, recipe.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore.CreateRecipeWithIngredients insert recipe failed", "error", err, "name", recipe.Name)
		return nil, fmt.Errorf("failed to insert recipe: %w", err)
	}

	for _, ing := range ingredients {
		_, err = tx.ExecContext(ctx, `INSERT INTO recipe_ingredients (id, recipe_id, food_id, quantity, unit) VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), recipe.ID, ing.FoodID, ing.Quantity, ing.Unit)
		if err != nil {
			slog.Error("PostgresStore.CreateRecipeWithIngredients insert ingredient failed", "error", err, "food_id", ing.FoodID)
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
func (s *PostgresStore) GetRecipeWithIngredients(ctx context.Context, name string) (*Recipe, []RecipeIngredient, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, instructions, created_at FROM recipes WHERE LOWER(name) = LOWER($1)`, name)
	recipe, err := scanRecipe(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query recipe %q: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT ri.id, ri.recipe_id, ri.food_id, f.name, ri.quantity, ri.unit FROM recipe_ingredients ri JOIN foods f ON f.id = ri.food_id WHERE ri.recipe_id = $1`, recipe.ID)
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
func (s *PostgresStore) GetActiveMealPlan(ctx context.Context, userID string) (*MealPlan, []PlanMeal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, name, start_date, end_date, active, created_at FROM user_meal_plans WHERE user_id = $1 AND active ORDER BY created_at DESC LIMIT 1`, userID)
	plan, err := scanMealPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetActiveMealPlan failed", "error", err, "user_id", userID)
		return nil, nil, fmt.Errorf("failed to query meal plan: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT m.id, m.plan_id, m.day_of_week, m.meal_type, m.recipe_id, r.name, m.position FROM plan_meals m JOIN recipes r ON r.id = m.recipe_id WHERE m.plan_id = $1 ORDER BY m.day_of_week, m.position`, plan.ID)
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
func (s *PostgresStore) CreateMealPlan(ctx context.Context, plan MealPlan, meals []PlanMealInput) (*MealPlan, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `UPDATE user_meal_plans SET active = FALSE WHERE user_id = $1 AND active`, plan.UserID)
	if err != nil {
		slog.Error("PostgresStore.CreateMealPlan deactivate failed", "error", err, "user_id", plan.UserID)
		return nil, fmt.Errorf("failed to deactivate previous plans: %w", err)
	}

	plan.ID = uuid.NewString()
	plan.Active = true
	plan.CreatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `INSERT INTO user_meal_plans (id, user_id, name, start_date, end_date, active, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		plan.ID, plan.UserID, plan.Name, plan.StartDate, plan.EndDate, plan.Active, plan.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore.CreateMealPlan insert failed", "error", err, "user_id", plan.UserID)
		return nil, fmt.Errorf("failed to insert meal plan: %w", err)
	}

	for _, m := range meals {
		_, err = tx.ExecContext(ctx, `INSERT INTO plan_meals (id, plan_id, day_of_week, meal_type, recipe_id, position) VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), plan.ID, m.DayOfWeek, m.MealType, m.RecipeID, m.Position)
		if err != nil {
			slog.Error("PostgresStore.CreateMealPlan insert meal failed", "error", err, "day", m.DayOfWeek)
			return nil, fmt.Errorf("failed to insert plan meal: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit meal plan: %w", err)
	}
	slog.Info("PostgresStore.CreateMealPlan: plan saved", "plan_id", plan.ID, "user_id", plan.UserID, "meals", len(meals))
	return &plan, nil
}

// PlanMealsForDay returns the meals of the user's active plan for one day
// of the week.
func (s *PostgresStore) PlanMealsForDay(ctx context.Context, userID, dayOfWeek string) ([]PlanMeal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT m.id, m.plan_id, m.day_of_week, m.meal_type, m.recipe_id, r.name, m.position FROM plan_meals m JOIN user_meal_plans p ON p.id = m.plan_id JOIN recipes r ON r.id = m.recipe_id WHERE p.user_id = $1 AND p.active AND m.day_of_week = $2 ORDER BY m.position`, userID, dayOfWeek)
	if err != nil {
		slog.Error("PostgresStore.PlanMealsForDay query failed", "error", err, "user_id", userID, "day", dayOfWeek)
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
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
