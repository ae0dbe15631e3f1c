package types

// DashboardCourse is one course entry in a user's dashboard view.
// Students is only filled in for courses the user teaches.
type DashboardCourse struct {
	Course           *Course `json:"course"`
	Role             string  `json:"role"`
	Students         int64   `json:"students,omitempty"`
	LessonsCompleted int64   `json:"lessonsCompleted"`
	LessonsTotal     int64   `json:"lessonsTotal"`
	QuizzesTaken     int64   `json:"quizzesTaken"`
	QuizzesTotal     int64   `json:"quizzesTotal"`
}

// Dashboard is the per-user summary assembled for the landing view.
type Dashboard struct {
	User    *User              `json:"user"`
	Courses []*DashboardCourse `json:"courses"`
}
