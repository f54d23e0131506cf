package models

import "time"

// Role values assignable to a user.
const (
	RoleStudent   = "student"
	RoleProfessor = "professor"
	RoleHOD       = "hod"
	RoleAdmin     = "admin"
)

// User represents any actor in the review workflow: students who own
// assignments, professors and HODs who review them, and administrators.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Email      string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role       string    `gorm:"size:32;not null;index" json:"role"`
	Department string    `gorm:"size:128;index" json:"department"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsReviewer reports whether the user may act as a reviewer.
func (u User) IsReviewer() bool {
	return u.Role == RoleProfessor || u.Role == RoleHOD
}
