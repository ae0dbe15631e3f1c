package main

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/classtrack/classtrack/types"
	"github.com/go-martini/martini"
	"github.com/martini-contrib/render"
	"github.com/russross/meddler"
	"golang.org/x/crypto/bcrypt"
)

// UserUpload is the payload for creating a user account.
type UserUpload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Admin    bool   `json:"admin"`
}

const minPasswordLength = 8

// GetUsers handles /v1/users requests,
// returning a list of all users (administrators only).
//
// If parameter name=<...> present, results will be filtered by case-insensitive substring match on Name field.
// If parameter email=<...> present, results will be filtered by case-insensitive substring match on Email field.
// If parameter admin=<...> present, results will be filtered matching admin field (true or false).
func GetUsers(w http.ResponseWriter, r *http.Request, tx *sql.Tx, render render.Render) {
	// build search terms
	where := ""
	args := []interface{}{}

	if name := r.FormValue("name"); name != "" {
		where, args = addWhereLike(where, args, "name", name)
	}

	if email := r.FormValue("email"); email != "" {
		where, args = addWhereLike(where, args, "email", email)
	}

	if admin := r.FormValue("admin"); admin != "" {
		val, err := strconv.ParseBool(admin)
		if err != nil {
			loggedHTTPErrorf(w, http.StatusBadRequest, "error parsing admin value as boolean: %v", err)
			return
		}
		where, args = addWhereEq(where, args, "admin", val)
	}

	users := []*types.User{}
	if err := meddler.QueryAll(tx, &users, `SELECT * FROM users`+where+` ORDER BY id`, args...); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	render.JSON(http.StatusOK, users)
}

// GetUserMe handles /v1/users/me requests,
// returning the current user.
func GetUserMe(w http.ResponseWriter, tx *sql.Tx, currentUser *types.User, render render.Render) {
	render.JSON(http.StatusOK, currentUser)
}

// GetUser handles /v1/users/:user_id requests,
// returning a single user. A non-admin may see themselves and any user
// who shares a course they teach.
func GetUser(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, render render.Render) {
	userID, err := parseID(w, "user_id", params["user_id"])
	if err != nil {
		return
	}

	user := new(types.User)

	if currentUser.Admin || currentUser.ID == userID {
		err = meddler.Load(tx, "users", user, userID)
	} else {
		err = meddler.QueryRow(tx, user, `SELECT DISTINCT users.* `+
			`FROM users JOIN enrollments ON users.id = enrollments.user_id `+
			`JOIN enrollments AS mine ON mine.course_id = enrollments.course_id `+
			`WHERE users.id = ? AND mine.user_id = ? AND mine.role = ?`,
			userID, currentUser.ID, types.RoleTeacher)
	}

	if err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	render.JSON(http.StatusOK, user)
}

// PostUser handles /v1/users requests,
// creating a new user account (administrators only).
func PostUser(w http.ResponseWriter, tx *sql.Tx, upload UserUpload, render render.Render) {
	now := time.Now()

	if len(upload.Password) < minPasswordLength {
		loggedHTTPErrorf(w, http.StatusBadRequest, "password must be at least %d characters", minPasswordLength)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(upload.Password), bcrypt.DefaultCost)
	if err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "error hashing password: %v", err)
		return
	}

	user := &types.User{
		Name:           upload.Name,
		Email:          upload.Email,
		PasswordHash:   string(hash),
		Admin:          upload.Admin,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastSignedInAt: now,
	}
	if err := user.Normalize(); err != nil {
		loggedHTTPErrorf(w, http.StatusBadRequest, "%v", err)
		return
	}

	var count int64
	if err := tx.QueryRow(`SELECT COUNT(1) FROM users WHERE email = ?`, user.Email).Scan(&count); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	if count > 0 {
		loggedHTTPErrorf(w, http.StatusConflict, "a user with email %s already exists", user.Email)
		return
	}

	if err := meddler.Insert(tx, "users", user); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	render.JSON(http.StatusOK, user)
}

// DeleteUser handles /v1/users/:user_id requests,
// deleting a single user (administrators only).
// This will also delete all enrollments, progress, and submissions
// related to the user.
func DeleteUser(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User) {
	userID, err := parseID(w, "user_id", params["user_id"])
	if err != nil {
		return
	}
	if userID == currentUser.ID {
		loggedHTTPErrorf(w, http.StatusBadRequest, "an administrator cannot delete their own account")
		return
	}

	if _, err := tx.Exec(`DELETE FROM users WHERE id = ?`, userID); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
}

// GetCourses handles /v1/courses requests,
// returning the list of courses the user can see: all of them for an
// administrator, enrolled courses for everyone else.
//
// If parameter label=<...> present, results will be filtered by matching label field.
// If parameter name=<...> present, results will be filtered by case-insensitive substring matching on name field.
func GetCourses(w http.ResponseWriter, r *http.Request, tx *sql.Tx, currentUser *types.User, render render.Render) {
	where := ""
	args := []interface{}{}

	if label := r.FormValue("label"); label != "" {
		where, args = addWhereEq(where, args, "label", label)
	}

	if name := r.FormValue("name"); name != "" {
		where, args = addWhereLike(where, args, "name", name)
	}

	courses := []*types.Course{}
	var err error

	if currentUser.Admin {
		err = meddler.QueryAll(tx, &courses, `SELECT * FROM courses`+where+` ORDER BY label`, args...)
	} else {
		where, args = addWhereEq(where, args, "enrollments.user_id", currentUser.ID)
		err = meddler.QueryAll(tx, &courses, `SELECT DISTINCT courses.* `+
			`FROM courses JOIN enrollments ON courses.id = enrollments.course_id`+
			where+` ORDER BY label`, args...)
	}

	if err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	render.JSON(http.StatusOK, courses)
}

// GetCourse handles /v1/courses/:course_id requests,
// returning a single course.
func GetCourse(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, render render.Render) {
	courseID, err := parseID(w, "course_id", params["course_id"])
	if err != nil {
		return
	}

	course := new(types.Course)

	if currentUser.Admin {
		err = meddler.Load(tx, "courses", course, courseID)
	} else {
		err = meddler.QueryRow(tx, course, `SELECT courses.* `+
			`FROM courses JOIN enrollments ON courses.id = enrollments.course_id `+
			`WHERE enrollments.user_id = ? AND enrollments.course_id = ?`,
			currentUser.ID, courseID)
	}

	if err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	render.JSON(http.StatusOK, course)
}

// GetCourseUsers handles /v1/courses/:course_id/users requests,
// returning a list of users enrolled in the given course.
func GetCourseUsers(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, render render.Render) {
	courseID, err := parseID(w, "course_id", params["course_id"])
	if err != nil {
		return
	}
	if _, ok := requireCourseMember(w, tx, currentUser, courseID); !ok {
		return
	}

	users := []*types.User{}
	err = meddler.QueryAll(tx, &users, `SELECT users.* `+
		`FROM users JOIN enrollments ON users.id = enrollments.user_id `+
		`WHERE enrollments.course_id = ? ORDER BY users.name`,
		courseID)
	if err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	render.JSON(http.StatusOK, users)
}

// PostCourse handles /v1/courses requests,
// creating a new course (administrators only).
func PostCourse(w http.ResponseWriter, tx *sql.Tx, course types.Course, render render.Render) {
	now := time.Now()
	course.ID = 0
	course.CreatedAt = now
	course.UpdatedAt = now
	if err := course.Normalize(now); err != nil {
		loggedHTTPErrorf(w, http.StatusBadRequest, "%v", err)
		return
	}

	var count int64
	if err := tx.QueryRow(`SELECT COUNT(1) FROM courses WHERE label = ?`, course.Label).Scan(&count); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	if count > 0 {
		loggedHTTPErrorf(w, http.StatusConflict, "a course with label %s already exists", course.Label)
		return
	}

	if err := meddler.Insert(tx, "courses", &course); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	render.JSON(http.StatusOK, &course)
}

// DeleteCourse handles /v1/courses/:course_id requests,
// deleting a single course (administrators only).
// This will also delete all lessons, quizzes, and submissions related to the course.
func DeleteCourse(w http.ResponseWriter, tx *sql.Tx, params martini.Params) {
	courseID, err := parseID(w, "course_id", params["course_id"])
	if err != nil {
		return
	}

	if _, err := tx.Exec(`DELETE FROM courses WHERE id = ?`, courseID); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
}

// GetCourseEnrollments handles /v1/courses/:course_id/enrollments requests,
// returning the roster with roles. Restricted to teachers of the course.
func GetCourseEnrollments(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, render render.Render) {
	courseID, err := parseID(w, "course_id", params["course_id"])
	if err != nil {
		return
	}
	if !requireCourseTeacher(w, tx, currentUser, courseID) {
		return
	}

	enrollments := []*types.Enrollment{}
	err = meddler.QueryAll(tx, &enrollments, `SELECT * FROM enrollments WHERE course_id = ? ORDER BY id`, courseID)
	if err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	render.JSON(http.StatusOK, enrollments)
}

// PostEnrollment handles /v1/enrollments requests,
// enrolling a user in a course. Restricted to admins and teachers of the course.
func PostEnrollment(w http.ResponseWriter, tx *sql.Tx, currentUser *types.User, enrollment types.Enrollment, render render.Render) {
	enrollment.ID = 0
	enrollment.CreatedAt = time.Now()
	if err := enrollment.Normalize(); err != nil {
		loggedHTTPErrorf(w, http.StatusBadRequest, "%v", err)
		return
	}
	if !requireCourseTeacher(w, tx, currentUser, enrollment.CourseID) {
		return
	}

	// the target user and course must both exist
	user := new(types.User)
	if err := meddler.Load(tx, "users", user, enrollment.UserID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	course := new(types.Course)
	if err := meddler.Load(tx, "courses", course, enrollment.CourseID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}

	var count int64
	if err := tx.QueryRow(`SELECT COUNT(1) FROM enrollments WHERE course_id = ? AND user_id = ?`,
		enrollment.CourseID, enrollment.UserID).Scan(&count); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	if count > 0 {
		loggedHTTPErrorf(w, http.StatusConflict, "user %d is already enrolled in course %d", enrollment.UserID, enrollment.CourseID)
		return
	}

	if err := meddler.Insert(tx, "enrollments", &enrollment); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	render.JSON(http.StatusOK, &enrollment)
}

// DeleteEnrollment handles /v1/enrollments/:enrollment_id requests,
// removing a user from a course. Restricted to admins and teachers of the course.
func DeleteEnrollment(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User) {
	enrollmentID, err := parseID(w, "enrollment_id", params["enrollment_id"])
	if err != nil {
		return
	}

	enrollment := new(types.Enrollment)
	if err := meddler.Load(tx, "enrollments", enrollment, enrollmentID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	if !requireCourseTeacher(w, tx, currentUser, enrollment.CourseID) {
		return
	}

	if _, err := tx.Exec(`DELETE FROM enrollments WHERE id = ?`, enrollmentID); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
}

// GetUserMeDashboard handles /v1/users/me/dashboard requests,
// returning a per-course summary for the current user: lesson progress
// and quiz activity, plus roster size for courses they teach.
func GetUserMeDashboard(w http.ResponseWriter, tx *sql.Tx, currentUser *types.User, render render.Render) {
	enrollments := []*types.Enrollment{}
	err := meddler.QueryAll(tx, &enrollments, `SELECT * FROM enrollments WHERE user_id = ? ORDER BY course_id`, currentUser.ID)
	if err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}

	dashboard := &types.Dashboard{
		User:    currentUser,
		Courses: []*types.DashboardCourse{},
	}
	for _, enrollment := range enrollments {
		course := new(types.Course)
		if err := meddler.Load(tx, "courses", course, enrollment.CourseID); err != nil {
			loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
			return
		}
		entry := &types.DashboardCourse{
			Course: course,
			Role:   enrollment.Role,
		}

		if err := tx.QueryRow(`SELECT COUNT(1) FROM lessons WHERE course_id = ?`, course.ID).Scan(&entry.LessonsTotal); err != nil {
			loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
			return
		}
		if err := tx.QueryRow(`SELECT COUNT(1) FROM lesson_progress `+
			`JOIN lessons ON lesson_progress.lesson_id = lessons.id `+
			`WHERE lessons.course_id = ? AND lesson_progress.user_id = ?`,
			course.ID, currentUser.ID).Scan(&entry.LessonsCompleted); err != nil {
			loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
			return
		}
		if err := tx.QueryRow(`SELECT COUNT(1) FROM quizzes WHERE course_id = ?`, course.ID).Scan(&entry.QuizzesTotal); err != nil {
			loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
			return
		}
		if err := tx.QueryRow(`SELECT COUNT(DISTINCT quiz_id) FROM submissions `+
			`JOIN quizzes ON submissions.quiz_id = quizzes.id `+
			`WHERE quizzes.course_id = ? AND submissions.user_id = ?`,
			course.ID, currentUser.ID).Scan(&entry.QuizzesTaken); err != nil {
			loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
			return
		}
		if enrollment.IsTeacherRole() {
			if err := tx.QueryRow(`SELECT COUNT(1) FROM enrollments WHERE course_id = ? AND role = ?`,
				course.ID, types.RoleStudent).Scan(&entry.Students); err != nil {
				loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
				return
			}
		}

		dashboard.Courses = append(dashboard.Courses, entry)
	}

	render.JSON(http.StatusOK, dashboard)
}
