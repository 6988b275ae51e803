package domain

import (
	"fmt"
	"time"
)

// Profile is the user-scoped singleton settings row.
//
// Revalidation replaces the single row for the owning user: delete the
// existing row(s) for that user id, insert the fresh one.
type Profile struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name,omitempty"`
	BodyweightKg *float64  `json:"bodyweight_kg,omitempty"`
	Units        string    `json:"units,omitempty"` // kg or lb, display only
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks required profile fields.
func (p *Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	return nil
}

// Gym is a training location a user has registered.
type Gym struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
