package plans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fitcoachapp/backend/internal/telemetry/tracing"
	"github.com/fitcoachapp/backend/pkg"
)

var ErrMealPlanNotFound = errors.New("meal plan not found")

type MealRepo struct {
	db *pgxpool.Pool
}

func NewMealRepo(db *pgxpool.Pool) *MealRepo {
	return &MealRepo{
		db: db,
	}
}

// Add stores the plan with all its days and meals in one transaction.
func (r *MealRepo) Add(ctx context.Context, plan MealPlan) (_ *MealPlan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.mealPlans.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO meal_plan (id, goal_id, user_id, name, daily_calories, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		plan.ID, plan.GoalID, plan.UserID, plan.Name, plan.DailyCalories, plan.CreatedAt,
	)
	if err != nil {
		if pkg.IsForeignKeyViolationError(err) {
			return nil, ErrGoalMissing
		}
		return nil, fmt.Errorf("insert meal plan: %w", err)
	}

	for di := range plan.Days {
		dayID := uuid.NewString()
		_, err = tx.Exec(ctx, `
			INSERT INTO daily_meal (id, meal_plan_id, position, day)
			VALUES ($1, $2, $3, $4)
		`,
			dayID, plan.ID, di, plan.Days[di].Day,
		)
		if err != nil {
			return nil, fmt.Errorf("insert daily meal %s: %w", plan.Days[di].Day, err)
		}

		for mi, meal := range plan.Days[di].Meals {
			_, err = tx.Exec(ctx, `
				INSERT INTO meal
					(id, daily_meal_id, position, meal_type, name, calories, ingredients, instructions)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`,
				uuid.NewString(), dayID, mi, meal.Meal, meal.Name,
				int(meal.Calories), meal.Ingredients, meal.Instructions,
			)
			if err != nil {
				return nil, fmt.Errorf("insert meal %s: %w", meal.Name, err)
			}
		}
	}

	span.SetAttributes(attribute.String("plan.id", plan.ID))

	return &plan, nil
}

// Get reads the plan of a (goal, user) pair and reassembles its days and
// meals in order.
func (r *MealRepo) Get(ctx context.Context, goalID, userID string) (_ *MealPlan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.mealPlans.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("goal.id", goalID))

	var plan MealPlan
	err = r.db.QueryRow(ctx, `
		SELECT id, goal_id, user_id, name, daily_calories, created_at
		FROM meal_plan
		WHERE goal_id = $1 AND user_id = $2
		ORDER BY created_at DESC LIMIT 1
	`, goalID, userID).Scan(
		&plan.ID, &plan.GoalID, &plan.UserID, &plan.Name, &plan.DailyCalories, &plan.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMealPlanNotFound
		}
		return nil, err
	}

	plan.Days, err = r.getDays(ctx, plan.ID)
	if err != nil {
		return nil, err
	}

	return &plan, nil
}

func (r *MealRepo) getDays(ctx context.Context, planID string) ([]DailyMeals, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, day
		FROM daily_meal
		WHERE meal_plan_id = $1
		ORDER BY position
	`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		days   []DailyMeals
		dayIDs []string
	)
	for rows.Next() {
		var (
			dayID string
			day   DailyMeals
		)
		if err := rows.Scan(&dayID, &day.Day); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		days = append(days, day)
		dayIDs = append(dayIDs, dayID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range days {
		days[i].Meals, err = r.getMeals(ctx, dayIDs[i])
		if err != nil {
			return nil, err
		}
	}

	return days, nil
}

func (r *MealRepo) getMeals(ctx context.Context, dayID string) ([]Meal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT meal_type, name, calories, ingredients, instructions
		FROM meal
		WHERE daily_meal_id = $1
		ORDER BY position
	`, dayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meals []Meal
	for rows.Next() {
		var (
			meal     Meal
			calories int
		)
		if err := rows.Scan(
			&meal.Meal, &meal.Name, &calories, &meal.Ingredients, &meal.Instructions,
		); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		meal.Calories = FlexInt(calories)
		meals = append(meals, meal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return meals, nil
}

// Delete removes the plan, child rows go with it via ON DELETE CASCADE.
func (r *MealRepo) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.mealPlans.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))

	tag, err := r.db.Exec(ctx, `DELETE FROM meal_plan WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMealPlanNotFound
	}
	return nil
}
