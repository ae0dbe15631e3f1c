package main

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/classtrack/classtrack/types"
	"github.com/go-martini/martini"
	"github.com/martini-contrib/render"
	"github.com/russross/meddler"
)

// PostQuizSubmission handles /v1/quizzes/:quiz_id/submissions requests,
// grading a quiz attempt for the current user.
//
// The whole operation runs inside one serialized transaction: counting
// prior attempts, grading, and inserting the record cannot interleave
// with another submission, so the attempt cap cannot be oversubscribed
// by concurrent requests. A rejection from any gate commits nothing.
func PostQuizSubmission(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, upload types.SubmissionUpload, render render.Render) {
	now := time.Now()

	quizID, err := parseID(w, "quiz_id", params["quiz_id"])
	if err != nil {
		return
	}

	quiz := new(types.Quiz)
	if err := meddler.Load(tx, "quizzes", quiz, quizID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	if _, ok := requireCourseMember(w, tx, currentUser, quiz.CourseID); !ok {
		return
	}

	questions := []*types.Question{}
	if err := meddler.QueryAll(tx, &questions, `SELECT * FROM questions WHERE quiz_id = ? ORDER BY question_number`, quizID); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}

	var prior int64
	if err := tx.QueryRow(`SELECT COUNT(1) FROM submissions WHERE quiz_id = ? AND user_id = ?`,
		quizID, currentUser.ID).Scan(&prior); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}

	sub, evalErr := types.Evaluate(quiz, questions, prior, upload.Answers, now)
	if evalErr != nil {
		rejectionsCounter.Add(1)
		renderEvaluationError(w, render, evalErr)
		return
	}

	sub.UserID = currentUser.ID
	sub.Attempt = prior + 1
	if err := meddler.Insert(tx, "submissions", sub); err != nil {
		// the unique index on (quiz_id, user_id, attempt) is the
		// backstop against a duplicate attempt number
		loggedHTTPErrorf(w, http.StatusConflict, "db error saving submission: %v", err)
		return
	}
	submissionsCounter.Add(1)

	log.Printf("user %s (%d) submitted quiz %d attempt %d: %g of %g",
		currentUser.Name, currentUser.ID, quizID, sub.Attempt, sub.Earned, sub.Possible)

	result := *sub
	if role, err := courseRole(tx, currentUser, quiz.CourseID); err == nil && role != types.RoleTeacher {
		// hand back a copy filtered through the display flags; the
		// stored record keeps everything
		copied := result
		copied.Responses = append([]*types.SubmissionResponse{}, sub.Responses...)
		for i, response := range copied.Responses {
			r := *response
			copied.Responses[i] = &r
		}
		applyStudentVisibility(quiz, &copied)
		render.JSON(http.StatusOK, &copied)
		return
	}
	render.JSON(http.StatusOK, &result)
}
