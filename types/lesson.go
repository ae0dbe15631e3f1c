package types

import (
	"fmt"
	"strings"
	"time"
)

// Lesson represents a single unit of course content.
// Lessons are ordered within a course by Sequence.
type Lesson struct {
	ID        int64     `json:"id" meddler:"id,pk"`
	CourseID  int64     `json:"courseID" meddler:"course_id"`
	Sequence  int64     `json:"sequence" meddler:"sequence"` // note: 1-based
	Title     string    `json:"title" meddler:"title"`
	Markdown  string    `json:"markdown" meddler:"markdown"`
	HTML      string    `json:"html" meddler:"html"`
	CreatedAt time.Time `json:"createdAt" meddler:"created_at,localtime"`
	UpdatedAt time.Time `json:"updatedAt" meddler:"updated_at,localtime"`
}

type LessonPatch struct {
	Title    *string `json:"title"`
	Markdown *string `json:"markdown"`
}

// LessonProgress records that a user finished a lesson.
// At most one record exists per (lesson, user) pair; marking a lesson
// complete a second time is a no-op.
type LessonProgress struct {
	ID          int64     `json:"id" meddler:"id,pk"`
	LessonID    int64     `json:"lessonID" meddler:"lesson_id"`
	UserID      int64     `json:"userID" meddler:"user_id"`
	CompletedAt time.Time `json:"completedAt" meddler:"completed_at,localtime"`
}

// CourseProgress summarizes one user's completion within a course.
type CourseProgress struct {
	UserID    int64 `json:"userID" meddler:"user_id"`
	Completed int64 `json:"completed" meddler:"completed"`
	Total     int64 `json:"total" meddler:"-"`
}

// Normalize cleans up a lesson and renders its markdown.
func (lesson *Lesson) Normalize(now time.Time) error {
	if lesson.CourseID < 1 {
		return fmt.Errorf("lesson courseID is required")
	}
	lesson.Title = strings.TrimSpace(lesson.Title)
	if lesson.Title == "" {
		return fmt.Errorf("lesson title cannot be empty")
	}
	lesson.Markdown = fixLineEndings(lesson.Markdown)
	if strings.TrimSpace(lesson.Markdown) == "" {
		return fmt.Errorf("lesson body cannot be empty")
	}
	html, err := RenderMarkdown(lesson.Markdown)
	if err != nil {
		return fmt.Errorf("error rendering lesson %q: %v", lesson.Title, err)
	}
	lesson.HTML = html

	if lesson.CreatedAt.Before(BeginningOfTime) || lesson.CreatedAt.After(now) {
		return fmt.Errorf("lesson CreatedAt time of %v is invalid", lesson.CreatedAt)
	}
	if lesson.UpdatedAt.Before(lesson.CreatedAt) || lesson.UpdatedAt.After(now) {
		return fmt.Errorf("lesson UpdatedAt time of %v is invalid", lesson.UpdatedAt)
	}

	return nil
}
