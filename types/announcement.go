package types

import (
	"fmt"
	"strings"
	"time"
)

// Announcement is a post from a teacher to everyone in a course.
type Announcement struct {
	ID        int64     `json:"id" meddler:"id,pk"`
	CourseID  int64     `json:"courseID" meddler:"course_id"`
	AuthorID  int64     `json:"authorID" meddler:"author_id"`
	Title     string    `json:"title" meddler:"title"`
	Markdown  string    `json:"markdown" meddler:"markdown"`
	HTML      string    `json:"html" meddler:"html"`
	CreatedAt time.Time `json:"createdAt" meddler:"created_at,localtime"`
}

func (ann *Announcement) Normalize() error {
	if ann.CourseID < 1 {
		return fmt.Errorf("announcement courseID is required")
	}
	ann.Title = strings.TrimSpace(ann.Title)
	if ann.Title == "" {
		return fmt.Errorf("announcement title cannot be empty")
	}
	ann.Markdown = fixLineEndings(ann.Markdown)
	if strings.TrimSpace(ann.Markdown) == "" {
		return fmt.Errorf("announcement body cannot be empty")
	}
	html, err := RenderMarkdown(ann.Markdown)
	if err != nil {
		return fmt.Errorf("error rendering announcement %q: %v", ann.Title, err)
	}
	ann.HTML = html
	return nil
}
