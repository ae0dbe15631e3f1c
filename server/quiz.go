package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/classtrack/classtrack/types"
	"github.com/go-martini/martini"
	"github.com/martini-contrib/render"
	"github.com/russross/meddler"
)

// GetCourseQuizzes handles /v1/courses/:course_id/quizzes requests,
// returning all quizzes in the course.
func GetCourseQuizzes(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, render render.Render) {
	courseID, err := parseID(w, "course_id", params["course_id"])
	if err != nil {
		return
	}
	if _, ok := requireCourseMember(w, tx, currentUser, courseID); !ok {
		return
	}

	quizzes := []*types.Quiz{}
	err = meddler.QueryAll(tx, &quizzes, `SELECT * FROM quizzes WHERE course_id = ? ORDER BY id`, courseID)
	if err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	render.JSON(http.StatusOK, quizzes)
}

// GetQuiz handles /v1/quizzes/:quiz_id requests,
// returning a single quiz.
func GetQuiz(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, render render.Render) {
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
	render.JSON(http.StatusOK, quiz)
}

// PostQuiz handles /v1/quizzes requests,
// creating a new quiz with no questions.
// Restricted to teachers of the course.
func PostQuiz(w http.ResponseWriter, tx *sql.Tx, currentUser *types.User, quiz types.Quiz, render render.Render) {
	now := time.Now()

	if !requireCourseTeacher(w, tx, currentUser, quiz.CourseID) {
		return
	}

	quiz.ID = 0
	quiz.CreatedAt = now
	quiz.UpdatedAt = now
	if err := quiz.Normalize(now); err != nil {
		loggedHTTPErrorf(w, http.StatusBadRequest, "%v", err)
		return
	}

	if err := meddler.Insert(tx, "quizzes", &quiz); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}

	courseFeed.broadcast(&types.FeedEvent{
		Time:     now,
		Event:    "quiz",
		CourseID: quiz.CourseID,
		Quiz:     &quiz,
	})
	render.JSON(http.StatusOK, &quiz)
}

// PostQuizBundle handles /v1/quiz_bundles requests,
// creating a quiz together with its questions in one step. Questions are
// numbered in the order given. Restricted to teachers of the course.
func PostQuizBundle(w http.ResponseWriter, tx *sql.Tx, currentUser *types.User, bundle types.QuizBundle, render render.Render) {
	now := time.Now()

	if bundle.Quiz == nil {
		loggedHTTPErrorf(w, http.StatusBadRequest, "bundle must include a quiz object")
		return
	}
	if !requireCourseTeacher(w, tx, currentUser, bundle.Quiz.CourseID) {
		return
	}

	quiz := bundle.Quiz
	quiz.ID = 0
	quiz.CreatedAt = now
	quiz.UpdatedAt = now
	if err := quiz.Normalize(now); err != nil {
		loggedHTTPErrorf(w, http.StatusBadRequest, "%v", err)
		return
	}
	if err := meddler.Insert(tx, "quizzes", quiz); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}

	questions := []*types.Question{}
	for i, upload := range bundle.Questions {
		question := upload.Question()
		question.QuizID = quiz.ID
		question.Number = int64(i) + 1
		question.CreatedAt = now
		question.UpdatedAt = now
		if err := question.Normalize(now); err != nil {
			loggedHTTPErrorf(w, http.StatusBadRequest, "question %d: %v", question.Number, err)
			return
		}
		if err := meddler.Insert(tx, "questions", question); err != nil {
			loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
			return
		}
		questions = append(questions, question)
	}

	courseFeed.broadcast(&types.FeedEvent{
		Time:     now,
		Event:    "quiz",
		CourseID: quiz.CourseID,
		Quiz:     quiz,
	})
	render.JSON(http.StatusOK, &types.QuizExport{Quiz: quiz, Questions: questions})
}

// PatchQuiz handles /v1/quizzes/:quiz_id requests,
// updating quiz settings. Restricted to teachers of the course.
func PatchQuiz(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, patch types.QuizPatch, render render.Render) {
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
	if !requireCourseTeacher(w, tx, currentUser, quiz.CourseID) {
		return
	}

	if patch.Title != nil {
		quiz.Title = *patch.Title
	}
	if patch.Description != nil {
		quiz.Description = *patch.Description
	}
	if patch.AvailableFrom != nil {
		quiz.AvailableFrom = *patch.AvailableFrom
	}
	if patch.AvailableUntil != nil {
		quiz.AvailableUntil = *patch.AvailableUntil
	}
	if patch.TimeLimitMinutes != nil {
		quiz.TimeLimitMinutes = *patch.TimeLimitMinutes
	}
	if patch.MaxAttempts != nil {
		quiz.MaxAttempts = *patch.MaxAttempts
	}
	if patch.ShowScoreToStudent != nil {
		quiz.ShowScoreToStudent = *patch.ShowScoreToStudent
	}
	if patch.ShowCorrectAnswersToStudent != nil {
		quiz.ShowCorrectAnswersToStudent = *patch.ShowCorrectAnswersToStudent
	}
	quiz.UpdatedAt = now
	if err := quiz.Normalize(now); err != nil {
		loggedHTTPErrorf(w, http.StatusBadRequest, "%v", err)
		return
	}

	if err := meddler.Update(tx, "quizzes", quiz); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	render.JSON(http.StatusOK, quiz)
}

// DeleteQuiz handles /v1/quizzes/:quiz_id requests,
// deleting a quiz along with its questions and submissions.
// Restricted to teachers of the course.
func DeleteQuiz(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User) {
	quizID, err := parseID(w, "quiz_id", params["quiz_id"])
	if err != nil {
		return
	}

	quiz := new(types.Quiz)
	if err := meddler.Load(tx, "quizzes", quiz, quizID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	if !requireCourseTeacher(w, tx, currentUser, quiz.CourseID) {
		return
	}

	if _, err := tx.Exec(`DELETE FROM quizzes WHERE id = ?`, quizID); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
}

// GetQuizQuestions handles /v1/quizzes/:quiz_id/questions requests,
// returning the quiz's questions in order. Students get the questions
// with the answer key stripped.
func GetQuizQuestions(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, render render.Render) {
	quizID, err := parseID(w, "quiz_id", params["quiz_id"])
	if err != nil {
		return
	}

	quiz := new(types.Quiz)
	if err := meddler.Load(tx, "quizzes", quiz, quizID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	role, ok := requireCourseMember(w, tx, currentUser, quiz.CourseID)
	if !ok {
		return
	}

	questions := []*types.Question{}
	err = meddler.QueryAll(tx, &questions, `SELECT * FROM questions WHERE quiz_id = ? ORDER BY question_number`, quizID)
	if err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}

	if role != types.RoleTeacher {
		for _, question := range questions {
			question.HideKey()
		}
	}
	render.JSON(http.StatusOK, questions)
}

// GetQuestion handles /v1/questions/:question_id requests,
// returning a single question, with the key stripped for students.
func GetQuestion(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, render render.Render) {
	questionID, err := parseID(w, "question_id", params["question_id"])
	if err != nil {
		return
	}

	question := new(types.Question)
	if err := meddler.Load(tx, "questions", question, questionID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	quiz := new(types.Quiz)
	if err := meddler.Load(tx, "quizzes", quiz, question.QuizID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	role, ok := requireCourseMember(w, tx, currentUser, quiz.CourseID)
	if !ok {
		return
	}

	if role != types.RoleTeacher {
		question.HideKey()
	}
	render.JSON(http.StatusOK, question)
}

// PostQuestion handles /v1/questions requests,
// appending a question to a quiz. Restricted to teachers of the course.
func PostQuestion(w http.ResponseWriter, tx *sql.Tx, currentUser *types.User, upload types.QuestionUpload, render render.Render) {
	now := time.Now()

	quiz := new(types.Quiz)
	if err := meddler.Load(tx, "quizzes", quiz, upload.QuizID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	if !requireCourseTeacher(w, tx, currentUser, quiz.CourseID) {
		return
	}

	question := upload.Question()
	question.CreatedAt = now
	question.UpdatedAt = now

	// append to the question sequence
	var max sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(question_number) FROM questions WHERE quiz_id = ?`, question.QuizID).Scan(&max); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	question.Number = max.Int64 + 1

	if err := question.Normalize(now); err != nil {
		loggedHTTPErrorf(w, http.StatusBadRequest, "%v", err)
		return
	}
	if err := meddler.Insert(tx, "questions", question); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	render.JSON(http.StatusOK, question)
}

// PatchQuestion handles /v1/questions/:question_id requests,
// updating a question. Submissions already stored are unaffected: they
// carry their own snapshot of the question and its key.
// Restricted to teachers of the course.
func PatchQuestion(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, patch types.QuestionPatch, render render.Render) {
	now := time.Now()

	questionID, err := parseID(w, "question_id", params["question_id"])
	if err != nil {
		return
	}

	question := new(types.Question)
	if err := meddler.Load(tx, "questions", question, questionID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	quiz := new(types.Quiz)
	if err := meddler.Load(tx, "quizzes", quiz, question.QuizID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	if !requireCourseTeacher(w, tx, currentUser, quiz.CourseID) {
		return
	}

	if patch.Text != nil {
		question.Text = *patch.Text
	}
	if patch.Choices != nil {
		question.Choices = *patch.Choices
	}
	if patch.CorrectIndex != nil {
		question.CorrectIndex = *patch.CorrectIndex
	}
	if patch.CorrectIndices != nil {
		question.CorrectIndices = *patch.CorrectIndices
	}
	if patch.ExpectedAnswer != nil {
		question.ExpectedAnswer = *patch.ExpectedAnswer
	}
	if patch.CorrectPoints != nil {
		question.CorrectPoints = *patch.CorrectPoints
	}
	if patch.WrongPoints != nil {
		question.WrongPoints = *patch.WrongPoints
	}
	if patch.SkipPoints != nil {
		question.SkipPoints = *patch.SkipPoints
	}
	if patch.Explanation != nil {
		question.Explanation = *patch.Explanation
	}
	question.UpdatedAt = now
	if err := question.Normalize(now); err != nil {
		loggedHTTPErrorf(w, http.StatusBadRequest, "%v", err)
		return
	}

	if err := meddler.Update(tx, "questions", question); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	render.JSON(http.StatusOK, question)
}

// DeleteQuestion handles /v1/questions/:question_id requests,
// deleting a question and renumbering those that follow it so question
// numbers stay contiguous and 1-based.
// Restricted to teachers of the course.
func DeleteQuestion(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User) {
	questionID, err := parseID(w, "question_id", params["question_id"])
	if err != nil {
		return
	}

	question := new(types.Question)
	if err := meddler.Load(tx, "questions", question, questionID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	quiz := new(types.Quiz)
	if err := meddler.Load(tx, "quizzes", quiz, question.QuizID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	if !requireCourseTeacher(w, tx, currentUser, quiz.CourseID) {
		return
	}

	if _, err := tx.Exec(`DELETE FROM questions WHERE id = ?`, questionID); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	if _, err := tx.Exec(`UPDATE questions SET question_number = question_number - 1 WHERE quiz_id = ? AND question_number > ?`,
		question.QuizID, question.Number); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
}

// applyStudentVisibility strips score and answer key details from a
// submission according to the quiz's display flags.
func applyStudentVisibility(quiz *types.Quiz, sub *types.Submission) {
	if !quiz.ShowCorrectAnswersToStudent {
		sub.HideKey()
	}
	if !quiz.ShowScoreToStudent {
		sub.HideScore()
	}
}

// GetQuizSubmissions handles /v1/quizzes/:quiz_id/submissions requests.
// A teacher gets every submission for the quiz; a student gets their own,
// filtered through the quiz's display flags.
func GetQuizSubmissions(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, render render.Render) {
	quizID, err := parseID(w, "quiz_id", params["quiz_id"])
	if err != nil {
		return
	}

	quiz := new(types.Quiz)
	if err := meddler.Load(tx, "quizzes", quiz, quizID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	role, ok := requireCourseMember(w, tx, currentUser, quiz.CourseID)
	if !ok {
		return
	}

	submissions := []*types.Submission{}
	if role == types.RoleTeacher {
		err = meddler.QueryAll(tx, &submissions, `SELECT * FROM submissions WHERE quiz_id = ? ORDER BY user_id, attempt`, quizID)
	} else {
		err = meddler.QueryAll(tx, &submissions, `SELECT * FROM submissions WHERE quiz_id = ? AND user_id = ? ORDER BY attempt`,
			quizID, currentUser.ID)
	}
	if err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}

	if role != types.RoleTeacher {
		for _, sub := range submissions {
			applyStudentVisibility(quiz, sub)
		}
	}
	render.JSON(http.StatusOK, submissions)
}

// GetSubmission handles /v1/submissions/:submission_id requests,
// returning one submission. Students may only see their own, filtered
// through the quiz's display flags.
func GetSubmission(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, render render.Render) {
	submissionID, err := parseID(w, "submission_id", params["submission_id"])
	if err != nil {
		return
	}

	sub := new(types.Submission)
	if err := meddler.Load(tx, "submissions", sub, submissionID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	quiz := new(types.Quiz)
	if err := meddler.Load(tx, "quizzes", quiz, sub.QuizID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	role, ok := requireCourseMember(w, tx, currentUser, quiz.CourseID)
	if !ok {
		return
	}

	if role != types.RoleTeacher {
		if sub.UserID != currentUser.ID {
			loggedHTTPErrorf(w, http.StatusUnauthorized, "user %d may not view someone else's submission", currentUser.ID)
			return
		}
		applyStudentVisibility(quiz, sub)
	}
	render.JSON(http.StatusOK, sub)
}

// GetQuizExport handles /v1/quizzes/:quiz_id/export requests,
// returning the quiz, its question bank, and every submission in one
// payload. Restricted to teachers of the course.
func GetQuizExport(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, render render.Render) {
	quizID, err := parseID(w, "quiz_id", params["quiz_id"])
	if err != nil {
		return
	}

	quiz := new(types.Quiz)
	if err := meddler.Load(tx, "quizzes", quiz, quizID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	if !requireCourseTeacher(w, tx, currentUser, quiz.CourseID) {
		return
	}

	export := &types.QuizExport{Quiz: quiz}
	if err := meddler.QueryAll(tx, &export.Questions, `SELECT * FROM questions WHERE quiz_id = ? ORDER BY question_number`, quizID); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	if err := meddler.QueryAll(tx, &export.Submissions, `SELECT * FROM submissions WHERE quiz_id = ? ORDER BY user_id, attempt`, quizID); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	render.JSON(http.StatusOK, export)
}
