package types

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const (
	CookieName = "classtrack"

	RoleStudent = "student"
	RoleTeacher = "teacher"
)

var BeginningOfTime = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

// Course represents a single section of a course.
type Course struct {
	ID        int64     `json:"id" meddler:"id,pk"`
	Name      string    `json:"name" meddler:"name"`
	Label     string    `json:"label" meddler:"label"`
	CreatedAt time.Time `json:"createdAt" meddler:"created_at,localtime"`
	UpdatedAt time.Time `json:"updatedAt" meddler:"updated_at,localtime"`
}

// User represents a single user. Admin marks a superuser; per-course roles
// are carried by Enrollment records.
type User struct {
	ID             int64     `json:"id" meddler:"id,pk"`
	Name           string    `json:"name" meddler:"name"`
	Email          string    `json:"email" meddler:"email"`
	PasswordHash   string    `json:"-" meddler:"password_hash"`
	Admin          bool      `json:"admin" meddler:"admin"`
	CreatedAt      time.Time `json:"createdAt" meddler:"created_at,localtime"`
	UpdatedAt      time.Time `json:"updatedAt" meddler:"updated_at,localtime"`
	LastSignedInAt time.Time `json:"lastSignedInAt" meddler:"last_signed_in_at,localtime"`
}

// Enrollment links a user to a course with a role.
type Enrollment struct {
	ID        int64     `json:"id" meddler:"id,pk"`
	CourseID  int64     `json:"courseID" meddler:"course_id"`
	UserID    int64     `json:"userID" meddler:"user_id"`
	Role      string    `json:"role" meddler:"role"`
	CreatedAt time.Time `json:"createdAt" meddler:"created_at,localtime"`
}

// IsTeacherRole returns true if this enrollment grants teacher rights
// in its course.
func (elt *Enrollment) IsTeacherRole() bool {
	return elt.Role == RoleTeacher
}

func (course *Course) Normalize(now time.Time) error {
	course.Name = strings.TrimSpace(course.Name)
	if course.Name == "" {
		return fmt.Errorf("course name cannot be empty")
	}
	course.Label = strings.TrimSpace(course.Label)
	if course.Label == "" {
		return fmt.Errorf("course label cannot be empty")
	}

	// sanity check timestamps
	if course.CreatedAt.Before(BeginningOfTime) || course.CreatedAt.After(now) {
		return fmt.Errorf("course CreatedAt time of %v is invalid", course.CreatedAt)
	}
	if course.UpdatedAt.Before(course.CreatedAt) || course.UpdatedAt.After(now) {
		return fmt.Errorf("course UpdatedAt time of %v is invalid", course.UpdatedAt)
	}

	return nil
}

func (user *User) Normalize() error {
	user.Name = strings.TrimSpace(user.Name)
	if user.Name == "" {
		return fmt.Errorf("user name cannot be empty")
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if _, err := mail.ParseAddress(user.Email); err != nil {
		return fmt.Errorf("user email %q is invalid", user.Email)
	}
	return nil
}

func (elt *Enrollment) Normalize() error {
	elt.Role = strings.TrimSpace(elt.Role)
	if elt.Role != RoleStudent && elt.Role != RoleTeacher {
		return fmt.Errorf("enrollment role must be %q or %q", RoleStudent, RoleTeacher)
	}
	if elt.CourseID < 1 {
		return fmt.Errorf("enrollment courseID is required")
	}
	if elt.UserID < 1 {
		return fmt.Errorf("enrollment userID is required")
	}
	return nil
}
