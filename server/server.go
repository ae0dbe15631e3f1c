package main

import (
	"compress/gzip"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"expvar"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/classtrack/classtrack/types"
	"github.com/go-martini/martini"
	"github.com/martini-contrib/binding"
	mgzip "github.com/martini-contrib/gzip"
	"github.com/martini-contrib/render"
	_ "github.com/mattn/go-sqlite3"
	"github.com/russross/meddler"
)

// Config holds site-specific configuration data.
var Config struct {
	// required parameters
	Hostname      string `json:"hostname"`      // Hostname for the site: "your.host.goes.here"
	SessionSecret string `json:"sessionSecret"` // Random string used to sign cookie sessions: `head -c 32 /dev/urandom | base64`

	// parameters where the default is usually sufficient
	SQLite3Path string `json:"sqlite3Path"` // path to the sqlite database file: default "$CLASSTRACKROOT/db/classtrack.db"
	SessionDays int    `json:"sessionDays"` // days before a login session expires: default 14

	// bootstrap admin account, created on first startup if no users exist
	AdminName     string `json:"adminName"`
	AdminEmail    string `json:"adminEmail"`
	AdminPassword string `json:"adminPassword"`
}

var root string
var port string

// the database handle and the mutex that serializes access to it.
// every transaction runs under the mutex, so a submission's
// check-then-insert sequence can never interleave with another.
var db *sql.DB
var dbMutex sync.Mutex

func main() {
	log.SetFlags(log.Lshortfile)

	root = os.Getenv("CLASSTRACKROOT")
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("CLASSTRACKROOT is not set, and cannot find user's home directory")
		}
		root = filepath.Join(home, "classtrack")
	}
	log.Printf("CLASSTRACKROOT set to %s", root)

	port = ":" + os.Getenv("PORT")
	if port == ":" {
		port = ":8080"
	}
	log.Printf("port set to %s", port)

	// parse command line
	var useConfig bool
	flag.BoolVar(&useConfig, "config", false, "Use config.json for config data (for testing)")
	flag.Parse()

	// set config defaults
	Config.SQLite3Path = filepath.Join(root, "db", "classtrack.db")
	Config.SessionDays = 14

	// load config
	if useConfig {
		configFile := filepath.Join(root, "config.json")
		if raw, err := os.ReadFile(configFile); err != nil {
			log.Fatalf("failed to load config file %q: %v", configFile, err)
		} else if err := json.Unmarshal(raw, &Config); err != nil {
			log.Fatalf("failed to parse config file: %v", err)
		}
	} else {
		Config.Hostname = os.Getenv("CLASSTRACK_HOSTNAME")
		Config.SessionSecret = os.Getenv("CLASSTRACK_SESSIONSECRET")
		Config.AdminName = os.Getenv("CLASSTRACK_ADMINNAME")
		Config.AdminEmail = os.Getenv("CLASSTRACK_ADMINEMAIL")
		Config.AdminPassword = os.Getenv("CLASSTRACK_ADMINPASSWORD")
		if days := os.Getenv("CLASSTRACK_SESSIONDAYS"); days != "" {
			n, err := strconv.Atoi(days)
			if err != nil {
				log.Fatalf("failed to parse CLASSTRACK_SESSIONDAYS: %v", err)
			}
			Config.SessionDays = n
		}
	}
	Config.SessionSecret = unBase64(Config.SessionSecret)

	if Config.Hostname == "" {
		log.Fatalf("cannot run with no hostname in the config")
	}
	if Config.SessionSecret == "" {
		log.Fatalf("cannot run with no sessionSecret in the config")
	}

	// set up martini
	r := martini.NewRouter()
	m := martini.New()
	m.Logger(log.New(os.Stderr, "", log.Lshortfile))
	m.Use(martini.Recovery())
	m.MapTo(r, (*martini.Routes)(nil))
	m.Action(r.Handle)

	counter := func(w http.ResponseWriter, r *http.Request, c martini.Context) {
		start := time.Now()
		c.Next()
		now := time.Now()
		seconds := now.Sub(start).Seconds()
		hits++
		hitsCounter.Add(1)
		if seconds > slowest {
			slowest = seconds
			slowestCounter.Set(seconds)
			slowestTimeCounter.Set(now.Format(time.RFC1123))
			slowestPathCounter.Set(r.URL.Path)
		}
		totalSeconds += seconds
		totalSecondsCounter.Add(seconds)
		averageSecondsCounter.Set(totalSeconds / float64(hits))
		rw := w.(martini.ResponseWriter)
		if rw.Status() >= 400 {
			errorsCounter.Add(1)
		}
		goroutineCounter.Set(int64(runtime.NumGoroutine()))
	}

	m.Use(mgzip.All())
	m.Use(martini.Static(filepath.Join(root, "www"), martini.StaticOptions{SkipLogging: true}))
	m.Use(render.Renderer(render.Options{IndentJSON: false}))

	// set up the database
	db = setupDB(Config.SQLite3Path)
	if err := createTables(db); err != nil {
		log.Fatalf("error creating database tables: %v", err)
	}
	if err := bootstrapAdmin(db); err != nil {
		log.Fatalf("error creating initial admin account: %v", err)
	}

	// martini service: wrap handler in a transaction
	withTx := func(c martini.Context, r *http.Request, w http.ResponseWriter) {
		// start a transaction
		dbMutex.Lock()
		defer dbMutex.Unlock()

		start := time.Now()
		defer func() {
			elapsed := time.Since(start)
			if elapsed > 500*time.Millisecond {
				switch {
				case elapsed < time.Second:
					elapsed -= elapsed % time.Millisecond
				case elapsed < 10*time.Second:
					elapsed -= elapsed % (10 * time.Millisecond)
				default:
					elapsed -= elapsed % (100 * time.Millisecond)
				}
				log.Printf("transaction took %v, req was %s", elapsed, r.RequestURI)
			}
		}()
		tx, err := db.Begin()
		if err != nil {
			loggedHTTPErrorf(w, http.StatusInternalServerError, "db error starting transaction: %v", err)
			return
		}

		// pass it on to the main handler
		c.Map(tx)
		c.Next()

		// was it a successful result?
		rw := w.(martini.ResponseWriter)
		if rw.Status() < http.StatusBadRequest {
			// commit the transaction
			if err := tx.Commit(); err != nil {
				loggedHTTPErrorf(w, http.StatusInternalServerError, "db error committing transaction: %v", err)
				return
			}
		} else {
			// rollback
			if err := tx.Rollback(); err != nil {
				loggedHTTPErrorf(w, http.StatusInternalServerError, "db error rolling back transaction: %v", err)
				return
			}
		}
	}

	// martini service: include the current logged-in user (requires withTx)
	withCurrentUser := func(c martini.Context, w http.ResponseWriter, r *http.Request, tx *sql.Tx) {
		session, err := GetSession(r)
		if err != nil {
			loggedHTTPErrorf(w, http.StatusUnauthorized, "authentication failed: try logging in again")
			log.Printf("%v", err)
			return
		}

		// load the user record
		userID := session.UserID
		user := new(types.User)
		if err := meddler.Load(tx, "users", user, userID); err != nil {
			session.Delete(w)

			if err == sql.ErrNoRows {
				loggedHTTPErrorf(w, http.StatusUnauthorized, "user %d not found", userID)
				return
			}
			loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
			return
		}

		// map the current user to the request context
		c.Map(user)
	}

	// martini service: require logged in user to be an administrator (requires withCurrentUser)
	administratorOnly := func(w http.ResponseWriter, currentUser *types.User) {
		if !currentUser.Admin {
			loggedHTTPErrorf(w, http.StatusUnauthorized, "user %d (%s) is not an administrator", currentUser.ID, currentUser.Email)
			return
		}
	}

	// martini middleware: decompress incoming requests
	gunzip := func(c martini.Context, w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") != "gzip" {
			return
		}

		r.Header.Del("Content-Encoding")
		body := r.Body
		var err error
		r.Body, err = gzip.NewReader(body)
		defer body.Close()
		if err != nil {
			loggedHTTPErrorf(w, http.StatusBadRequest, "gzip error in request: %v", err)
			return
		}
		c.Next()
	}

	// version
	r.Get("/v1/version", counter, func(w http.ResponseWriter, render render.Render) {
		render.JSON(http.StatusOK, &types.CurrentVersion)
	})

	// stats
	r.Get("/v1/stats", counter, withTx, withCurrentUser, administratorOnly, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		fmt.Fprintf(w, "{\n")
		first := true
		expvar.Do(func(kv expvar.KeyValue) {
			if !first {
				fmt.Fprintf(w, ",\n")
			}
			first = false
			fmt.Fprintf(w, "%q: %s", kv.Key, kv.Value)
		})
		fmt.Fprintf(w, "\n}\n")
	})

	// sessions
	r.Post("/v1/users/sessions", counter, withTx, gunzip, binding.Json(UserLogin{}), PostUserSession)
	r.Delete("/v1/users/sessions", counter, DeleteUserSession)

	// users
	r.Get("/v1/users", counter, withTx, withCurrentUser, administratorOnly, GetUsers)
	r.Get("/v1/users/me", counter, withTx, withCurrentUser, GetUserMe)
	r.Get("/v1/users/me/dashboard", counter, withTx, withCurrentUser, GetUserMeDashboard)
	r.Get("/v1/users/:user_id", counter, withTx, withCurrentUser, GetUser)
	r.Post("/v1/users", counter, withTx, withCurrentUser, administratorOnly, gunzip, binding.Json(UserUpload{}), PostUser)
	r.Delete("/v1/users/:user_id", counter, withTx, withCurrentUser, administratorOnly, DeleteUser)

	// courses
	r.Get("/v1/courses", counter, withTx, withCurrentUser, GetCourses)
	r.Get("/v1/courses/:course_id", counter, withTx, withCurrentUser, GetCourse)
	r.Get("/v1/courses/:course_id/users", counter, withTx, withCurrentUser, GetCourseUsers)
	r.Post("/v1/courses", counter, withTx, withCurrentUser, administratorOnly, gunzip, binding.Json(types.Course{}), PostCourse)
	r.Delete("/v1/courses/:course_id", counter, withTx, withCurrentUser, administratorOnly, DeleteCourse)

	// enrollments
	r.Get("/v1/courses/:course_id/enrollments", counter, withTx, withCurrentUser, GetCourseEnrollments)
	r.Post("/v1/enrollments", counter, withTx, withCurrentUser, gunzip, binding.Json(types.Enrollment{}), PostEnrollment)
	r.Delete("/v1/enrollments/:enrollment_id", counter, withTx, withCurrentUser, DeleteEnrollment)

	// lessons
	r.Get("/v1/courses/:course_id/lessons", counter, withTx, withCurrentUser, GetCourseLessons)
	r.Get("/v1/lessons/:lesson_id", counter, withTx, withCurrentUser, GetLesson)
	r.Post("/v1/lessons", counter, withTx, withCurrentUser, gunzip, binding.Json(types.Lesson{}), PostLesson)
	r.Patch("/v1/lessons/:lesson_id", counter, withTx, withCurrentUser, gunzip, binding.Json(types.LessonPatch{}), PatchLesson)
	r.Delete("/v1/lessons/:lesson_id", counter, withTx, withCurrentUser, DeleteLesson)

	// lesson progress
	r.Post("/v1/lessons/:lesson_id/progress", counter, withTx, withCurrentUser, PostLessonProgress)
	r.Get("/v1/courses/:course_id/progress", counter, withTx, withCurrentUser, GetCourseProgress)

	// announcements
	r.Get("/v1/courses/:course_id/announcements", counter, withTx, withCurrentUser, GetCourseAnnouncements)
	r.Post("/v1/announcements", counter, withTx, withCurrentUser, gunzip, binding.Json(types.Announcement{}), PostAnnouncement)
	r.Delete("/v1/announcements/:announcement_id", counter, withTx, withCurrentUser, DeleteAnnouncement)

	// quizzes
	r.Get("/v1/courses/:course_id/quizzes", counter, withTx, withCurrentUser, GetCourseQuizzes)
	r.Get("/v1/quizzes/:quiz_id", counter, withTx, withCurrentUser, GetQuiz)
	r.Post("/v1/quizzes", counter, withTx, withCurrentUser, gunzip, binding.Json(types.Quiz{}), PostQuiz)
	r.Post("/v1/quiz_bundles", counter, withTx, withCurrentUser, gunzip, binding.Json(types.QuizBundle{}), PostQuizBundle)
	r.Patch("/v1/quizzes/:quiz_id", counter, withTx, withCurrentUser, gunzip, binding.Json(types.QuizPatch{}), PatchQuiz)
	r.Delete("/v1/quizzes/:quiz_id", counter, withTx, withCurrentUser, DeleteQuiz)

	// questions
	r.Get("/v1/quizzes/:quiz_id/questions", counter, withTx, withCurrentUser, GetQuizQuestions)
	r.Get("/v1/questions/:question_id", counter, withTx, withCurrentUser, GetQuestion)
	r.Post("/v1/questions", counter, withTx, withCurrentUser, gunzip, binding.Json(types.QuestionUpload{}), PostQuestion)
	r.Patch("/v1/questions/:question_id", counter, withTx, withCurrentUser, gunzip, binding.Json(types.QuestionPatch{}), PatchQuestion)
	r.Delete("/v1/questions/:question_id", counter, withTx, withCurrentUser, DeleteQuestion)

	// submissions
	r.Post("/v1/quizzes/:quiz_id/submissions", counter, withTx, withCurrentUser, gunzip, binding.Json(types.SubmissionUpload{}), PostQuizSubmission)
	r.Get("/v1/quizzes/:quiz_id/submissions", counter, withTx, withCurrentUser, GetQuizSubmissions)
	r.Get("/v1/submissions/:submission_id", counter, withTx, withCurrentUser, GetSubmission)
	r.Get("/v1/quizzes/:quiz_id/export", counter, withTx, withCurrentUser, GetQuizExport)

	// live course feed (long-lived socket: authenticates and checks
	// enrollment itself rather than holding a transaction open)
	r.Get("/v1/courses/:course_id/feed", GetCourseFeed)

	go courseFeed.run()

	// note: this will work behind a TLS proxy or for debugging with some calls
	log.Printf("accepting http connections on %s", port)
	if err := http.ListenAndServe(port, m); err != nil {
		log.Fatalf("ListenAndServe: %v", err)
	}
}

func setupDB(path string) *sql.DB {
	meddler.Default = meddler.SQLite

	options :=
		"?" + "mode=rwc" +
			"&" + "_busy_timeout=10000" +
			"&" + "_cache_size=-20000" +
			"&" + "_foreign_keys=ON" +
			"&" + "_journal_mode=WAL" +
			"&" + "_synchronous=NORMAL" +
			"&" + "_temp_store=MEMORY"
	db, err := sql.Open("sqlite3", path+options)
	if err != nil {
		log.Fatalf("error opening database: %v", err)
	}

	return db
}

// courseRole reports the role the user holds in the given course.
// Administrators act as teachers everywhere; an empty role means the
// user is not enrolled.
func courseRole(tx *sql.Tx, user *types.User, courseID int64) (string, error) {
	if user.Admin {
		return types.RoleTeacher, nil
	}
	enrollment := new(types.Enrollment)
	err := meddler.QueryRow(tx, enrollment, `SELECT * FROM enrollments WHERE course_id = ? AND user_id = ?`,
		courseID, user.ID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return enrollment.Role, nil
}

// requireCourseMember verifies enrollment (any role) in the course,
// writing the HTTP error itself. It returns the role on success.
func requireCourseMember(w http.ResponseWriter, tx *sql.Tx, user *types.User, courseID int64) (string, bool) {
	role, err := courseRole(tx, user, courseID)
	if err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return "", false
	}
	if role == "" {
		loggedHTTPErrorf(w, http.StatusUnauthorized, "user %d (%s) is not enrolled in course %d", user.ID, user.Email, courseID)
		return "", false
	}
	return role, true
}

// requireCourseTeacher verifies the user teaches the course,
// writing the HTTP error itself.
func requireCourseTeacher(w http.ResponseWriter, tx *sql.Tx, user *types.User, courseID int64) bool {
	role, err := courseRole(tx, user, courseID)
	if err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return false
	}
	if role != types.RoleTeacher {
		loggedHTTPErrorf(w, http.StatusUnauthorized, "user %d (%s) is not a teacher in course %d", user.ID, user.Email, courseID)
		return false
	}
	return true
}

func addWhereEq(where string, args []interface{}, label string, value interface{}) (string, []interface{}) {
	if where == "" {
		where = " WHERE"
	} else {
		where += " AND"
	}
	args = append(args, value)
	where += fmt.Sprintf(" %s = ?", label)
	return where, args
}

func addWhereLike(where string, args []interface{}, label string, value string) (string, []interface{}) {
	if where == "" {
		where = " WHERE"
	} else {
		where += " AND"
	}
	args = append(args, "%"+strings.ToLower(value)+"%")

	// sqlite is set to use case insensitive LIKEs
	where += fmt.Sprintf(" %s LIKE ?", label)
	return where, args
}

func loggedHTTPDBNotFoundError(w http.ResponseWriter, err error) {
	msg := "not found"
	status := http.StatusNotFound
	if err != sql.ErrNoRows {
		msg = fmt.Sprintf("db error: %v", err)
		status = http.StatusInternalServerError
	}
	log.Print(logPrefix() + msg)
	http.Error(w, msg, status)
}

func loggedHTTPErrorf(w http.ResponseWriter, status int, format string, params ...interface{}) error {
	msg := fmt.Sprintf(format, params...)
	log.Print(logPrefix() + msg)
	http.Error(w, msg, status)
	return fmt.Errorf("%s", msg)
}

func loggedErrorf(f string, params ...interface{}) error {
	log.Print(logPrefix() + fmt.Sprintf(f, params...))
	return fmt.Errorf(f, params...)
}

// renderEvaluationError maps an evaluation rejection onto an HTTP status
// and sends the tagged error as the JSON body.
func renderEvaluationError(w http.ResponseWriter, render render.Render, evalErr *types.EvaluationError) {
	status := http.StatusBadRequest
	switch evalErr.Kind {
	case types.EvalNotYetOpen, types.EvalClosed, types.EvalAttemptLimitReached:
		status = http.StatusForbidden
	case types.EvalAvailabilityInvalid:
		status = http.StatusConflict
	}
	log.Print(logPrefix() + evalErr.Message)
	render.JSON(status, evalErr)
}

func parseID(w http.ResponseWriter, name, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, loggedHTTPErrorf(w, http.StatusBadRequest, "error parsing %s from URL: %v", name, err)
	}
	if id < 1 {
		return 0, loggedHTTPErrorf(w, http.StatusBadRequest, "invalid ID in URL: %s must be 1 or greater", name)
	}

	return id, nil
}

func logPrefix() string {
	prefix := ""
	if _, file, line, ok := runtime.Caller(2); ok {
		if slash := strings.LastIndex(file, "/"); slash >= 0 {
			file = file[slash+1:]
		}
		prefix = fmt.Sprintf("%s:%d: ", file, line)
	}
	return prefix
}

func unBase64(s string) string {
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return string(raw)
	}
	return s
}

var (
	hits                  int
	hitsCounter           = expvar.NewInt("hits")
	slowest               float64
	slowestCounter        = expvar.NewFloat("slowestSeconds")
	slowestPathCounter    = expvar.NewString("slowestPath")
	slowestTimeCounter    = expvar.NewString("slowestTime")
	totalSeconds          float64
	totalSecondsCounter   = expvar.NewFloat("totalSeconds")
	averageSecondsCounter = expvar.NewFloat("averageSeconds")
	errorsCounter         = expvar.NewInt("errors")
	goroutineCounter      = expvar.NewInt("goroutines")
	submissionsCounter    = expvar.NewInt("submissions")
	rejectionsCounter     = expvar.NewInt("submissionRejections")
)
