package profiles

import "time"

// Profile holds the per-user attributes fed into plan generation prompts and
// the stretching rules (experience level).
type Profile struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"userId"`
	DisplayName         string    `json:"displayName"`
	Age                 int       `json:"age,omitempty"`
	HeightCm            float64   `json:"heightCm,omitempty"`
	WeightKg            float64   `json:"weightKg,omitempty"`
	ExperienceLevel     string    `json:"experienceLevel,omitempty"`
	DietaryRestrictions []string  `json:"dietaryRestrictions,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}
