package goals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitcoachapp/backend/internal/telemetry/tracing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var ErrGoalNotFound = errors.New("goal not found")

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, goal Goal) (_ *Goal, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.goals.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = time.Now()
	}

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO goal
				(id, user_id, goal_type, target, timeframe, start_date, target_date, is_active, progress, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`,
		goal.ID, goal.UserID, goal.GoalType, goal.Target, goal.Timeframe,
		goal.StartDate, goal.TargetDate, goal.IsActive, goal.Progress, goal.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert goal: %w", err)
	}

	span.SetAttributes(attribute.String("goal.id", goal.ID))

	return &goal, nil
}

func (r *Repo) Get(ctx context.Context, id string) (_ *Goal, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.goals.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))

	var goal Goal
	err = r.db.QueryRow(
		ctx,
		`SELECT id, user_id, goal_type, target, timeframe, start_date, target_date, is_active, progress, created_at
			FROM goal WHERE id = $1;`,
		id,
	).Scan(
		&goal.ID, &goal.UserID, &goal.GoalType, &goal.Target, &goal.Timeframe,
		&goal.StartDate, &goal.TargetDate, &goal.IsActive, &goal.Progress, &goal.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGoalNotFound
		}
		return nil, err
	}

	return &goal, nil
}

func (r *Repo) List(ctx context.Context, userID string) (_ []Goal, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.goals.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, user_id, goal_type, target, timeframe, start_date, target_date, is_active, progress, created_at
			FROM goal WHERE user_id = $1 ORDER BY created_at DESC;`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []Goal
	for rows.Next() {
		var goal Goal
		if err := rows.Scan(
			&goal.ID, &goal.UserID, &goal.GoalType, &goal.Target, &goal.Timeframe,
			&goal.StartDate, &goal.TargetDate, &goal.IsActive, &goal.Progress, &goal.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		goals = append(goals, goal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return goals, nil
}

// GetActive returns the currently active goal of the user, or ErrGoalNotFound.
func (r *Repo) GetActive(ctx context.Context, userID string) (_ *Goal, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.goals.getActive")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	var goal Goal
	err = r.db.QueryRow(
		ctx,
		`SELECT id, user_id, goal_type, target, timeframe, start_date, target_date, is_active, progress, created_at
			FROM goal WHERE user_id = $1 AND is_active ORDER BY created_at DESC LIMIT 1;`,
		userID,
	).Scan(
		&goal.ID, &goal.UserID, &goal.GoalType, &goal.Target, &goal.Timeframe,
		&goal.StartDate, &goal.TargetDate, &goal.IsActive, &goal.Progress, &goal.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGoalNotFound
		}
		return nil, err
	}

	return &goal, nil
}

func (r *Repo) Update(ctx context.Context, goal *Goal) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.goals.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", goal.ID))

	tag, err := r.db.Exec(
		ctx,
		`UPDATE goal SET goal_type = $1, target = $2, timeframe = $3, start_date = $4, target_date = $5, progress = $6
			WHERE id = $7 AND user_id = $8;`,
		goal.GoalType, goal.Target, goal.Timeframe, goal.StartDate, goal.TargetDate, goal.Progress,
		goal.ID, goal.UserID,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrGoalNotFound
	}

	return nil
}

// Activate marks the given goal as the only active goal of the user. A single
// conditional update keeps the one-active-goal invariant atomic, concurrent
// activations cannot leave two goals active.
func (r *Repo) Activate(ctx context.Context, userID, goalID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.goals.activate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("goal.id", goalID))

	tag, err := r.db.Exec(
		ctx,
		`UPDATE goal SET is_active = (id = $1) WHERE user_id = $2;`,
		goalID, userID,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrGoalNotFound
	}

	return nil
}

// Deactivate clears the active flag of a single goal.
func (r *Repo) Deactivate(ctx context.Context, userID, goalID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.goals.deactivate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	tag, err := r.db.Exec(
		ctx,
		`UPDATE goal SET is_active = FALSE WHERE id = $1 AND user_id = $2;`,
		goalID, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGoalNotFound
	}
	return nil
}

func (r *Repo) UpdateProgress(ctx context.Context, userID, goalID string, progress float64) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.goals.updateProgress")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	tag, err := r.db.Exec(
		ctx,
		`UPDATE goal SET progress = $1 WHERE id = $2 AND user_id = $3;`,
		progress, goalID, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGoalNotFound
	}
	return nil
}

// Delete removes the goal and all plans hanging off it. The plan tables
// reference goal(id) with ON DELETE CASCADE, one delete is enough.
func (r *Repo) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.goals.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))

	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM goal WHERE id = $1;`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGoalNotFound
	}
	return nil
}
