package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Question types.
const (
	QuestionSingle   = "single"   // one choice index is correct
	QuestionMultiple = "multiple" // an exact set of choice indices is correct
	QuestionShort    = "short"    // free text, one line
	QuestionLong     = "long"     // free text, extended
)

// Quiz represents a graded assessment attached to a course.
//
// AvailableFrom and AvailableUntil are RFC3339 instants with inclusive
// bounds; an empty string leaves that side of the window unbounded.
// MaxAttempts of zero means unlimited. TimeLimitMinutes drives the client
// countdown only; the server enforces the availability window, not the
// countdown.
type Quiz struct {
	ID                          int64     `json:"id" meddler:"id,pk"`
	CourseID                    int64     `json:"courseID" meddler:"course_id"`
	Title                       string    `json:"title" meddler:"title"`
	Description                 string    `json:"description" meddler:"description,zeroisnull"`
	AvailableFrom               string    `json:"availableFrom" meddler:"available_from,zeroisnull"`
	AvailableUntil              string    `json:"availableUntil" meddler:"available_until,zeroisnull"`
	TimeLimitMinutes            int64     `json:"timeLimitMinutes" meddler:"time_limit_minutes,zeroisnull"`
	MaxAttempts                 int64     `json:"maxAttempts" meddler:"max_attempts,zeroisnull"`
	ShowScoreToStudent          bool      `json:"showScoreToStudent" meddler:"show_score"`
	ShowCorrectAnswersToStudent bool      `json:"showCorrectAnswersToStudent" meddler:"show_correct_answers"`
	CreatedAt                   time.Time `json:"createdAt" meddler:"created_at,localtime"`
	UpdatedAt                   time.Time `json:"updatedAt" meddler:"updated_at,localtime"`
}

type QuizPatch struct {
	Title                       *string `json:"title"`
	Description                 *string `json:"description"`
	AvailableFrom               *string `json:"availableFrom"`
	AvailableUntil              *string `json:"availableUntil"`
	TimeLimitMinutes            *int64  `json:"timeLimitMinutes"`
	MaxAttempts                 *int64  `json:"maxAttempts"`
	ShowScoreToStudent          *bool   `json:"showScoreToStudent"`
	ShowCorrectAnswersToStudent *bool   `json:"showCorrectAnswersToStudent"`
}

// Question represents a single quiz question.
type Question struct {
	ID             int64     `json:"id" meddler:"id,pk"`
	QuizID         int64     `json:"quizID" meddler:"quiz_id"`
	Number         int64     `json:"number" meddler:"question_number"` // note: 1-based
	Type           string    `json:"type" meddler:"question_type"`
	Text           string    `json:"text" meddler:"text"`
	HTML           string    `json:"html" meddler:"html"`
	Choices        []string  `json:"choices" meddler:"choices,json"`
	CorrectIndex   int64     `json:"correctIndex" meddler:"correct_index"`
	CorrectIndices []int64   `json:"correctIndices" meddler:"correct_indices,json"`
	ExpectedAnswer string    `json:"expectedAnswer" meddler:"expected_answer,zeroisnull"`
	CorrectPoints  float64   `json:"correctPoints" meddler:"correct_points"`
	WrongPoints    float64   `json:"wrongPoints" meddler:"wrong_points"`
	SkipPoints     float64   `json:"skipPoints" meddler:"skip_points"`
	Explanation    string    `json:"explanation" meddler:"explanation,zeroisnull"`
	CreatedAt      time.Time `json:"createdAt" meddler:"created_at,localtime"`
	UpdatedAt      time.Time `json:"updatedAt" meddler:"updated_at,localtime"`
}

// QuestionUpload is the payload for creating a question. Point values are
// pointers so that absent and zero can be told apart; defaulting happens in
// exactly one place (Question below) and nowhere downstream.
type QuestionUpload struct {
	QuizID         int64    `json:"quizID"`
	Type           string   `json:"type"`
	Text           string   `json:"text"`
	Choices        []string `json:"choices"`
	CorrectIndex   *int64   `json:"correctIndex"`
	CorrectIndices []int64  `json:"correctIndices"`
	ExpectedAnswer string   `json:"expectedAnswer"`
	CorrectPoints  *float64 `json:"correctPoints"`
	WrongPoints    *float64 `json:"wrongPoints"`
	SkipPoints     *float64 `json:"skipPoints"`
	Explanation    string   `json:"explanation"`
}

type QuestionPatch struct {
	Text           *string   `json:"text"`
	Choices        *[]string `json:"choices"`
	CorrectIndex   *int64    `json:"correctIndex"`
	CorrectIndices *[]int64  `json:"correctIndices"`
	ExpectedAnswer *string   `json:"expectedAnswer"`
	CorrectPoints  *float64  `json:"correctPoints"`
	WrongPoints    *float64  `json:"wrongPoints"`
	SkipPoints     *float64  `json:"skipPoints"`
	Explanation    *string   `json:"explanation"`
}

// Question converts an upload into a Question, applying the point defaults:
// correctPoints defaults to 1, wrongPoints and skipPoints to 0. Explicit
// zeros and negative values are kept as given.
func (upload *QuestionUpload) Question() *Question {
	question := &Question{
		QuizID:         upload.QuizID,
		Type:           upload.Type,
		Text:           upload.Text,
		Choices:        upload.Choices,
		CorrectIndices: upload.CorrectIndices,
		ExpectedAnswer: upload.ExpectedAnswer,
		Explanation:    upload.Explanation,
		CorrectPoints:  1.0,
	}
	if upload.CorrectIndex != nil {
		question.CorrectIndex = *upload.CorrectIndex
	}
	if upload.CorrectPoints != nil {
		question.CorrectPoints = *upload.CorrectPoints
	}
	if upload.WrongPoints != nil {
		question.WrongPoints = *upload.WrongPoints
	}
	if upload.SkipPoints != nil {
		question.SkipPoints = *upload.SkipPoints
	}
	return question
}

func (quiz *Quiz) Normalize(now time.Time) error {
	if quiz.CourseID < 1 {
		return fmt.Errorf("quiz courseID is required")
	}
	quiz.Title = strings.TrimSpace(quiz.Title)
	if quiz.Title == "" {
		return fmt.Errorf("quiz title cannot be empty")
	}
	quiz.Description = strings.TrimSpace(quiz.Description)
	quiz.AvailableFrom = strings.TrimSpace(quiz.AvailableFrom)
	quiz.AvailableUntil = strings.TrimSpace(quiz.AvailableUntil)

	// a window that can never admit a submission is a configuration error
	from, until, err := quiz.Window()
	if err != nil {
		return err
	}
	if from != nil && until != nil && until.Before(*from) {
		return fmt.Errorf("quiz closes at %v, before it opens at %v", until, from)
	}

	if quiz.TimeLimitMinutes < 0 {
		return fmt.Errorf("quiz time limit cannot be negative")
	}
	if quiz.MaxAttempts < 0 {
		return fmt.Errorf("quiz max attempts cannot be negative")
	}

	if quiz.CreatedAt.Before(BeginningOfTime) || quiz.CreatedAt.After(now) {
		return fmt.Errorf("quiz CreatedAt time of %v is invalid", quiz.CreatedAt)
	}
	if quiz.UpdatedAt.Before(quiz.CreatedAt) || quiz.UpdatedAt.After(now) {
		return fmt.Errorf("quiz UpdatedAt time of %v is invalid", quiz.UpdatedAt)
	}

	return nil
}

// Window parses the availability bounds. A nil time means that side is
// unbounded. A malformed value is reported as an error, never ignored.
func (quiz *Quiz) Window() (from, until *time.Time, err error) {
	if quiz.AvailableFrom != "" {
		t, err := time.Parse(time.RFC3339, quiz.AvailableFrom)
		if err != nil {
			return nil, nil, fmt.Errorf("quiz availableFrom %q is not a valid RFC3339 time", quiz.AvailableFrom)
		}
		from = &t
	}
	if quiz.AvailableUntil != "" {
		t, err := time.Parse(time.RFC3339, quiz.AvailableUntil)
		if err != nil {
			return nil, nil, fmt.Errorf("quiz availableUntil %q is not a valid RFC3339 time", quiz.AvailableUntil)
		}
		until = &t
	}
	return from, until, nil
}

// Normalize cleans up a question and validates its shape against its type.
func (question *Question) Normalize(now time.Time) error {
	if question.QuizID < 1 {
		return fmt.Errorf("question quizID is required")
	}
	question.Type = strings.TrimSpace(question.Type)
	question.Text = fixLineEndings(question.Text)
	if strings.TrimSpace(question.Text) == "" {
		return fmt.Errorf("question text cannot be empty")
	}
	html, err := RenderMarkdown(question.Text)
	if err != nil {
		return fmt.Errorf("error rendering question %d: %v", question.Number, err)
	}
	question.HTML = html
	question.ExpectedAnswer = strings.TrimSpace(question.ExpectedAnswer)
	question.Explanation = strings.TrimSpace(question.Explanation)
	for i, choice := range question.Choices {
		question.Choices[i] = strings.TrimSpace(choice)
	}

	switch question.Type {
	case QuestionSingle:
		if len(question.Choices) < 2 {
			return fmt.Errorf("single-choice question must have at least two choices")
		}
		if question.CorrectIndex < 0 || question.CorrectIndex >= int64(len(question.Choices)) {
			return fmt.Errorf("single-choice correctIndex %d is out of range", question.CorrectIndex)
		}
		question.CorrectIndices = nil
		question.ExpectedAnswer = ""

	case QuestionMultiple:
		if len(question.Choices) < 2 {
			return fmt.Errorf("multiple-choice question must have at least two choices")
		}
		seen := make(map[int64]bool)
		for _, n := range question.CorrectIndices {
			if n < 0 || n >= int64(len(question.Choices)) {
				return fmt.Errorf("multiple-choice correct index %d is out of range", n)
			}
			if seen[n] {
				return fmt.Errorf("multiple-choice correct index %d is repeated", n)
			}
			seen[n] = true
		}
		sort.Slice(question.CorrectIndices, func(i, j int) bool {
			return question.CorrectIndices[i] < question.CorrectIndices[j]
		})
		question.CorrectIndex = 0
		question.ExpectedAnswer = ""

	case QuestionShort, QuestionLong:
		if len(question.Choices) > 0 {
			return fmt.Errorf("%s question cannot have choices", question.Type)
		}
		question.Choices = nil
		question.CorrectIndex = 0
		question.CorrectIndices = nil

	default:
		return fmt.Errorf("question type must be one of %s, %s, %s, %s",
			QuestionSingle, QuestionMultiple, QuestionShort, QuestionLong)
	}

	if question.CreatedAt.Before(BeginningOfTime) || question.CreatedAt.After(now) {
		return fmt.Errorf("question CreatedAt time of %v is invalid", question.CreatedAt)
	}
	if question.UpdatedAt.Before(question.CreatedAt) || question.UpdatedAt.After(now) {
		return fmt.Errorf("question UpdatedAt time of %v is invalid", question.UpdatedAt)
	}

	return nil
}

// HideKey strips the answer key and explanation before a question is shown
// to a student who has not submitted yet.
func (question *Question) HideKey() {
	question.CorrectIndex = 0
	question.CorrectIndices = nil
	question.ExpectedAnswer = ""
	question.Explanation = ""
}

// Submission is one graded attempt at a quiz. A submission is written once
// and never updated; a retake appends a new record with the next attempt
// number, subject to the quiz attempt cap.
type Submission struct {
	ID          int64                 `json:"id" meddler:"id,pk"`
	QuizID      int64                 `json:"quizID" meddler:"quiz_id"`
	UserID      int64                 `json:"userID" meddler:"user_id"`
	Attempt     int64                 `json:"attempt" meddler:"attempt"` // note: 1-based
	Earned      float64               `json:"earned" meddler:"earned"`
	Possible    float64               `json:"possible" meddler:"possible"`
	Responses   []*SubmissionResponse `json:"responses" meddler:"responses,json"`
	SubmittedAt time.Time             `json:"submittedAt" meddler:"submitted_at,localtime"`
}

// SubmissionResponse is the per-question record of a submission. It carries
// a snapshot of the question and its key so the record stays meaningful even
// if the question bank is edited later.
type SubmissionResponse struct {
	Number          int64    `json:"number"`
	Type            string   `json:"type"`
	Text            string   `json:"text"`
	Choices         []string `json:"choices,omitempty"`
	SelectedIndex   *int64   `json:"selectedIndex,omitempty"`
	SelectedIndices []int64  `json:"selectedIndices,omitempty"`
	AnswerText      string   `json:"answerText,omitempty"`
	Answered        bool     `json:"answered"`
	Correct         bool     `json:"correct"`
	Awarded         float64  `json:"awarded"`
	CorrectIndex    *int64   `json:"correctIndex,omitempty"`
	CorrectIndices  []int64  `json:"correctIndices,omitempty"`
	ExpectedAnswer  string   `json:"expectedAnswer,omitempty"`
	Explanation     string   `json:"explanation,omitempty"`
}

// HideKey strips the correct answers and per-question judgments from a
// submission shown to a student when the quiz does not reveal them.
func (sub *Submission) HideKey() {
	for _, response := range sub.Responses {
		response.Correct = false
		response.Awarded = 0.0
		response.CorrectIndex = nil
		response.CorrectIndices = nil
		response.ExpectedAnswer = ""
		response.Explanation = ""
	}
}

// HideScore strips the totals from a submission shown to a student when the
// quiz does not reveal the score.
func (sub *Submission) HideScore() {
	sub.Earned = 0.0
	sub.Possible = 0.0
}
