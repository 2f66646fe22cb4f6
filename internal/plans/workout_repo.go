package plans

import (
	"context"
	"encoding/json"
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

var (
	ErrWorkoutPlanNotFound = errors.New("workout plan not found")
	// ErrGoalMissing marks a plan write whose goal id has no goal row behind it
	ErrGoalMissing = errors.New("goal does not exist")
)

type WorkoutRepo struct {
	db *pgxpool.Pool
}

func NewWorkoutRepo(db *pgxpool.Pool) *WorkoutRepo {
	return &WorkoutRepo{
		db: db,
	}
}

// Add stores the plan with all its weeks and days in one transaction. A
// partially written plan is never left behind.
func (r *WorkoutRepo) Add(ctx context.Context, plan WorkoutPlan) (_ *WorkoutPlan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutPlans.add")
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
		INSERT INTO workout_plan (id, goal_id, user_id, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		plan.ID, plan.GoalID, plan.UserID, plan.Name, plan.CreatedAt,
	)
	if err != nil {
		if pkg.IsForeignKeyViolationError(err) {
			return nil, ErrGoalMissing
		}
		return nil, fmt.Errorf("insert workout plan: %w", err)
	}

	for wi := range plan.Weeks {
		week := &plan.Weeks[wi]
		if week.ID == "" {
			week.ID = uuid.NewString()
		}
		if week.WeekNumber == 0 {
			week.WeekNumber = wi + 1
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO weekly_workout (id, workout_plan_id, week_number)
			VALUES ($1, $2, $3)
		`,
			week.ID, plan.ID, week.WeekNumber,
		)
		if err != nil {
			return nil, fmt.Errorf("insert weekly workout %d: %w", week.WeekNumber, err)
		}

		for di, day := range week.Days {
			exercisesJson, err := json.Marshal(day.Exercises)
			if err != nil {
				return nil, fmt.Errorf("marshal exercises of %s: %w", day.Day, err)
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO daily_workout
					(id, weekly_workout_id, position, day, workout_type, duration, stretching_duration,
					 exercises, warm_up, cool_down, stretching, stretching_focus)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			`,
				uuid.NewString(), week.ID, di, day.Day, day.WorkoutType,
				int(day.Duration), int(day.StretchingDuration),
				exercisesJson, day.WarmUp, day.CoolDown, day.Stretching, day.StretchingFocus,
			)
			if err != nil {
				return nil, fmt.Errorf("insert daily workout %s: %w", day.Day, err)
			}
		}
	}

	span.SetAttributes(attribute.String("plan.id", plan.ID))

	return &plan, nil
}

// Get reads the plan of a (goal, user) pair and reassembles its weeks and
// days in order. Missing child rows give empty lists, not errors.
func (r *WorkoutRepo) Get(ctx context.Context, goalID, userID string) (_ *WorkoutPlan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutPlans.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("goal.id", goalID))

	var plan WorkoutPlan
	err = r.db.QueryRow(ctx, `
		SELECT id, goal_id, user_id, name, created_at
		FROM workout_plan
		WHERE goal_id = $1 AND user_id = $2
		ORDER BY created_at DESC LIMIT 1
	`, goalID, userID).Scan(&plan.ID, &plan.GoalID, &plan.UserID, &plan.Name, &plan.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkoutPlanNotFound
		}
		return nil, err
	}

	plan.Weeks, err = r.getWeeks(ctx, plan.ID)
	if err != nil {
		return nil, err
	}

	return &plan, nil
}

func (r *WorkoutRepo) getWeeks(ctx context.Context, planID string) ([]WeeklyWorkout, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, week_number
		FROM weekly_workout
		WHERE workout_plan_id = $1
		ORDER BY week_number
	`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var weeks []WeeklyWorkout
	for rows.Next() {
		var week WeeklyWorkout
		if err := rows.Scan(&week.ID, &week.WeekNumber); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		weeks = append(weeks, week)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range weeks {
		weeks[i].Days, err = r.getDays(ctx, weeks[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return weeks, nil
}

func (r *WorkoutRepo) getDays(ctx context.Context, weekID string) ([]DailyWorkout, error) {
	rows, err := r.db.Query(ctx, `
		SELECT day, workout_type, duration, stretching_duration,
			   exercises, warm_up, cool_down, stretching, stretching_focus
		FROM daily_workout
		WHERE weekly_workout_id = $1
		ORDER BY position
	`, weekID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []DailyWorkout
	for rows.Next() {
		var (
			day           DailyWorkout
			duration      int
			stretchingDur int
			exercisesJson []byte
		)
		if err := rows.Scan(
			&day.Day, &day.WorkoutType, &duration, &stretchingDur,
			&exercisesJson, &day.WarmUp, &day.CoolDown, &day.Stretching, &day.StretchingFocus,
		); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}

		day.Duration = FlexInt(duration)
		day.StretchingDuration = FlexInt(stretchingDur)
		if err := json.Unmarshal(exercisesJson, &day.Exercises); err != nil {
			return nil, fmt.Errorf("unmarshal exercises of %s: %w", day.Day, err)
		}

		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return days, nil
}

// Delete removes the plan, child rows go with it via ON DELETE CASCADE.
func (r *WorkoutRepo) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workoutPlans.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))

	tag, err := r.db.Exec(ctx, `DELETE FROM workout_plan WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkoutPlanNotFound
	}
	return nil
}
