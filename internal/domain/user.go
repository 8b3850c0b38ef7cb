package domain

import "time"

type UserRole string

const (
	RoleAdmin UserRole = "ADMIN"
	RoleUser  UserRole = "USUARIO"
)

type UserPlan string

const (
	PlanFree    UserPlan = "FREE"
	PlanPremium UserPlan = "PREMIUM"
)

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email" validate:"required,email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         UserRole  `json:"role"`
	Plan         UserPlan  `json:"plan"`
	GoogleID     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Subject is the identity carried in the user's tokens.
func (u *User) Subject() string { return u.Email }

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

func (u *User) IsPremium() bool { return u.Plan == PlanPremium }

// Authorities lists the role and plan grants in the ROLE_<role>, <plan> form.
func (u *User) Authorities() []string {
	out := []string{"ROLE_" + string(u.Role)}
	if u.Plan != "" {
		out = append(out, string(u.Plan))
	}
	return out
}
