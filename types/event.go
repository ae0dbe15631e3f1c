package types

import (
	"fmt"
	"time"
)

// FeedEvent is one message on a course's live feed, delivered to websocket
// subscribers. Event names one of these forms:
//   announcement Announcement
//   quiz Quiz
//   lesson Lesson
type FeedEvent struct {
	Time         time.Time     `json:"time"`
	Event        string        `json:"event"`
	CourseID     int64         `json:"courseID"`
	Announcement *Announcement `json:"announcement,omitempty"`
	Quiz         *Quiz         `json:"quiz,omitempty"`
	Lesson       *Lesson       `json:"lesson,omitempty"`
}

func (e *FeedEvent) String() string {
	switch e.Event {
	case "announcement":
		return fmt.Sprintf("event: announcement %q in course %d", e.Announcement.Title, e.CourseID)
	case "quiz":
		return fmt.Sprintf("event: quiz %q in course %d", e.Quiz.Title, e.CourseID)
	case "lesson":
		return fmt.Sprintf("event: lesson %q in course %d", e.Lesson.Title, e.CourseID)
	default:
		return fmt.Sprintf("unknown event: %s", e.Event)
	}
}
