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

// GetCourseLessons handles /v1/courses/:course_id/lessons requests,
// returning the course's lessons in sequence order.
func GetCourseLessons(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, render render.Render) {
	courseID, err := parseID(w, "course_id", params["course_id"])
	if err != nil {
		return
	}
	if _, ok := requireCourseMember(w, tx, currentUser, courseID); !ok {
		return
	}

	lessons := []*types.Lesson{}
	err = meddler.QueryAll(tx, &lessons, `SELECT * FROM lessons WHERE course_id = ? ORDER BY sequence`, courseID)
	if err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	render.JSON(http.StatusOK, lessons)
}

// GetLesson handles /v1/lessons/:lesson_id requests,
// returning a single lesson.
func GetLesson(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, render render.Render) {
	lessonID, err := parseID(w, "lesson_id", params["lesson_id"])
	if err != nil {
		return
	}

	lesson := new(types.Lesson)
	if err := meddler.Load(tx, "lessons", lesson, lessonID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	if _, ok := requireCourseMember(w, tx, currentUser, lesson.CourseID); !ok {
		return
	}
	render.JSON(http.StatusOK, lesson)
}

// PostLesson handles /v1/lessons requests,
// creating a new lesson at the end of the course's sequence.
// Restricted to teachers of the course.
func PostLesson(w http.ResponseWriter, tx *sql.Tx, currentUser *types.User, lesson types.Lesson, render render.Render) {
	now := time.Now()

	if !requireCourseTeacher(w, tx, currentUser, lesson.CourseID) {
		return
	}

	lesson.ID = 0
	lesson.CreatedAt = now
	lesson.UpdatedAt = now
	if err := lesson.Normalize(now); err != nil {
		loggedHTTPErrorf(w, http.StatusBadRequest, "%v", err)
		return
	}

	// append to the sequence
	var max sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(sequence) FROM lessons WHERE course_id = ?`, lesson.CourseID).Scan(&max); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	lesson.Sequence = max.Int64 + 1

	if err := meddler.Insert(tx, "lessons", &lesson); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}

	courseFeed.broadcast(&types.FeedEvent{
		Time:     now,
		Event:    "lesson",
		CourseID: lesson.CourseID,
		Lesson:   &lesson,
	})
	render.JSON(http.StatusOK, &lesson)
}

// PatchLesson handles /v1/lessons/:lesson_id requests,
// updating the title and/or body of a lesson.
// Restricted to teachers of the course.
func PatchLesson(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, patch types.LessonPatch, render render.Render) {
	now := time.Now()

	lessonID, err := parseID(w, "lesson_id", params["lesson_id"])
	if err != nil {
		return
	}

	lesson := new(types.Lesson)
	if err := meddler.Load(tx, "lessons", lesson, lessonID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	if !requireCourseTeacher(w, tx, currentUser, lesson.CourseID) {
		return
	}

	if patch.Title != nil {
		lesson.Title = *patch.Title
	}
	if patch.Markdown != nil {
		lesson.Markdown = *patch.Markdown
	}
	lesson.UpdatedAt = now
	if err := lesson.Normalize(now); err != nil {
		loggedHTTPErrorf(w, http.StatusBadRequest, "%v", err)
		return
	}

	if err := meddler.Update(tx, "lessons", lesson); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	render.JSON(http.StatusOK, lesson)
}

// DeleteLesson handles /v1/lessons/:lesson_id requests,
// deleting a lesson and renumbering those that follow it so the
// sequence stays contiguous and 1-based.
// Restricted to teachers of the course.
func DeleteLesson(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User) {
	lessonID, err := parseID(w, "lesson_id", params["lesson_id"])
	if err != nil {
		return
	}

	lesson := new(types.Lesson)
	if err := meddler.Load(tx, "lessons", lesson, lessonID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	if !requireCourseTeacher(w, tx, currentUser, lesson.CourseID) {
		return
	}

	if _, err := tx.Exec(`DELETE FROM lessons WHERE id = ?`, lessonID); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	if _, err := tx.Exec(`UPDATE lessons SET sequence = sequence - 1 WHERE course_id = ? AND sequence > ?`,
		lesson.CourseID, lesson.Sequence); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
}

// PostLessonProgress handles /v1/lessons/:lesson_id/progress requests,
// marking the lesson complete for the current user. Marking a lesson
// complete twice is a no-op that returns the existing record.
func PostLessonProgress(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, render render.Render) {
	now := time.Now()

	lessonID, err := parseID(w, "lesson_id", params["lesson_id"])
	if err != nil {
		return
	}

	lesson := new(types.Lesson)
	if err := meddler.Load(tx, "lessons", lesson, lessonID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	if _, ok := requireCourseMember(w, tx, currentUser, lesson.CourseID); !ok {
		return
	}

	progress := new(types.LessonProgress)
	err = meddler.QueryRow(tx, progress, `SELECT * FROM lesson_progress WHERE lesson_id = ? AND user_id = ?`,
		lessonID, currentUser.ID)
	if err == nil {
		render.JSON(http.StatusOK, progress)
		return
	}
	if err != sql.ErrNoRows {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}

	progress = &types.LessonProgress{
		LessonID:    lessonID,
		UserID:      currentUser.ID,
		CompletedAt: now,
	}
	if err := meddler.Insert(tx, "lesson_progress", progress); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	render.JSON(http.StatusOK, progress)
}

// GetCourseProgress handles /v1/courses/:course_id/progress requests.
// A teacher gets a completion summary for every student in the course;
// a student gets only their own.
func GetCourseProgress(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, render render.Render) {
	courseID, err := parseID(w, "course_id", params["course_id"])
	if err != nil {
		return
	}
	role, ok := requireCourseMember(w, tx, currentUser, courseID)
	if !ok {
		return
	}

	var total int64
	if err := tx.QueryRow(`SELECT COUNT(1) FROM lessons WHERE course_id = ?`, courseID).Scan(&total); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}

	summaries := []*types.CourseProgress{}
	if role == types.RoleTeacher {
		err = meddler.QueryAll(tx, &summaries, `SELECT enrollments.user_id AS user_id, COUNT(lesson_progress.id) AS completed `+
			`FROM enrollments LEFT JOIN lessons ON lessons.course_id = enrollments.course_id `+
			`LEFT JOIN lesson_progress ON lesson_progress.lesson_id = lessons.id AND lesson_progress.user_id = enrollments.user_id `+
			`WHERE enrollments.course_id = ? AND enrollments.role = ? `+
			`GROUP BY enrollments.user_id ORDER BY enrollments.user_id`,
			courseID, types.RoleStudent)
	} else {
		err = meddler.QueryAll(tx, &summaries, `SELECT lesson_progress.user_id AS user_id, COUNT(1) AS completed `+
			`FROM lesson_progress JOIN lessons ON lesson_progress.lesson_id = lessons.id `+
			`WHERE lessons.course_id = ? AND lesson_progress.user_id = ? `+
			`GROUP BY lesson_progress.user_id`,
			courseID, currentUser.ID)
		if err == nil && len(summaries) == 0 {
			summaries = append(summaries, &types.CourseProgress{UserID: currentUser.ID})
		}
	}
	if err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}

	for _, elt := range summaries {
		elt.Total = total
	}
	render.JSON(http.StatusOK, summaries)
}
