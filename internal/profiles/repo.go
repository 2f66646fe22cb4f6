package profiles

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

var (
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileConflict marks an upsert reusing the profile id of another user
	ErrProfileConflict = errors.New("profile id already taken")
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// Upsert creates the profile of a user or overwrites the existing one, a
// user has exactly one profile row.
func (r *Repo) Upsert(ctx context.Context, profile Profile) (_ *Profile, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.profiles.upsert")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", profile.UserID))

	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	_, err = r.db.Exec(ctx, `
		INSERT INTO user_profile
			(id, user_id, display_name, age, height_cm, weight_kg, experience_level, dietary_restrictions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			age = EXCLUDED.age,
			height_cm = EXCLUDED.height_cm,
			weight_kg = EXCLUDED.weight_kg,
			experience_level = EXCLUDED.experience_level,
			dietary_restrictions = EXCLUDED.dietary_restrictions,
			updated_at = EXCLUDED.updated_at
	`,
		profile.ID, profile.UserID, profile.DisplayName, profile.Age,
		profile.HeightCm, profile.WeightKg, profile.ExperienceLevel,
		profile.DietaryRestrictions, profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, ErrProfileConflict
		}
		return nil, fmt.Errorf("upsert profile: %w", err)
	}

	return &profile, nil
}

func (r *Repo) Get(ctx context.Context, userID string) (_ *Profile, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.profiles.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	var profile Profile
	err = r.db.QueryRow(ctx, `
		SELECT id, user_id, display_name, age, height_cm, weight_kg, experience_level, dietary_restrictions, created_at, updated_at
		FROM user_profile WHERE user_id = $1
	`, userID).Scan(
		&profile.ID, &profile.UserID, &profile.DisplayName, &profile.Age,
		&profile.HeightCm, &profile.WeightKg, &profile.ExperienceLevel,
		&profile.DietaryRestrictions, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	return &profile, nil
}

func (r *Repo) Delete(ctx context.Context, userID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.profiles.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	tag, err := r.db.Exec(ctx, `DELETE FROM user_profile WHERE user_id = $1;`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}
