package main

import (
	"database/sql"
	"testing"
	"time"

	"github.com/classtrack/classtrack/types"
	_ "github.com/mattn/go-sqlite3"
	"github.com/russross/meddler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	meddler.Default = meddler.SQLite

	// foreign keys stay off here so fixtures can insert child rows
	// without building the whole parent graph
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, createTables(db))
	return db
}

func insertSubmission(t *testing.T, db *sql.DB, quizID, userID, attempt int64) error {
	t.Helper()
	sub := &types.Submission{
		QuizID:      quizID,
		UserID:      userID,
		Attempt:     attempt,
		Earned:      1.0,
		Possible:    2.0,
		Responses:   []*types.SubmissionResponse{},
		SubmittedAt: time.Now(),
	}
	return meddler.Insert(db, "submissions", sub)
}

func TestCreateTablesIsIdempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, createTables(db))
}

func TestSubmissionAttemptUniqueIndex(t *testing.T) {
	db := testDB(t)

	require.NoError(t, insertSubmission(t, db, 1, 7, 1))
	require.NoError(t, insertSubmission(t, db, 1, 7, 2))
	require.NoError(t, insertSubmission(t, db, 1, 8, 1), "other users get their own attempt sequence")
	require.NoError(t, insertSubmission(t, db, 2, 7, 1), "other quizzes get their own attempt sequence")

	// a second record for the same attempt must be refused by the index
	assert.Error(t, insertSubmission(t, db, 1, 7, 1))

	var count int64
	require.NoError(t, db.QueryRow(`SELECT COUNT(1) FROM submissions WHERE quiz_id = 1 AND user_id = 7`).Scan(&count))
	assert.Equal(t, int64(2), count)
}

func TestSubmissionRoundTrip(t *testing.T) {
	db := testDB(t)

	selected := int64(2)
	in := &types.Submission{
		QuizID:   3,
		UserID:   9,
		Attempt:  1,
		Earned:   2.0,
		Possible: 4.0,
		Responses: []*types.SubmissionResponse{
			{
				Number:        1,
				Type:          types.QuestionSingle,
				Text:          "pick one",
				Choices:       []string{"a", "b", "c"},
				SelectedIndex: &selected,
				Answered:      true,
				Correct:       true,
				Awarded:       2.0,
			},
		},
		SubmittedAt: time.Now(),
	}
	require.NoError(t, meddler.Insert(db, "submissions", in))
	require.NotZero(t, in.ID)

	out := new(types.Submission)
	require.NoError(t, meddler.Load(db, "submissions", out, in.ID))
	assert.Equal(t, in.Earned, out.Earned)
	assert.Equal(t, in.Possible, out.Possible)
	require.Len(t, out.Responses, 1)
	assert.Equal(t, "pick one", out.Responses[0].Text)
	require.NotNil(t, out.Responses[0].SelectedIndex)
	assert.Equal(t, int64(2), *out.Responses[0].SelectedIndex)
	assert.True(t, out.Responses[0].Correct)
}

func TestEnrollmentUniqueIndex(t *testing.T) {
	db := testDB(t)

	enrollment := &types.Enrollment{CourseID: 1, UserID: 2, Role: types.RoleStudent, CreatedAt: time.Now()}
	require.NoError(t, meddler.Insert(db, "enrollments", enrollment))

	dup := &types.Enrollment{CourseID: 1, UserID: 2, Role: types.RoleTeacher, CreatedAt: time.Now()}
	assert.Error(t, meddler.Insert(db, "enrollments", dup))
}

func TestCourseRoleScoping(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	student := &types.User{Name: "Sal Student", Email: "sal@school.test", PasswordHash: "x",
		CreatedAt: now, UpdatedAt: now, LastSignedInAt: now}
	teacher := &types.User{Name: "Tia Teacher", Email: "tia@school.test", PasswordHash: "x",
		CreatedAt: now, UpdatedAt: now, LastSignedInAt: now}
	admin := &types.User{Name: "Root", Email: "root@school.test", PasswordHash: "x", Admin: true,
		CreatedAt: now, UpdatedAt: now, LastSignedInAt: now}
	for _, u := range []*types.User{student, teacher, admin} {
		require.NoError(t, meddler.Insert(db, "users", u))
	}

	course := &types.Course{Name: "Intro", Label: "cs101", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, meddler.Insert(db, "courses", course))

	require.NoError(t, meddler.Insert(db, "enrollments",
		&types.Enrollment{CourseID: course.ID, UserID: student.ID, Role: types.RoleStudent, CreatedAt: now}))
	require.NoError(t, meddler.Insert(db, "enrollments",
		&types.Enrollment{CourseID: course.ID, UserID: teacher.ID, Role: types.RoleTeacher, CreatedAt: now}))

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	role, err := courseRole(tx, student, course.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleStudent, role)

	role, err = courseRole(tx, teacher, course.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleTeacher, role)

	role, err = courseRole(tx, admin, course.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleTeacher, role, "admins act as teachers everywhere")

	role, err = courseRole(tx, student, course.ID+100)
	require.NoError(t, err)
	assert.Empty(t, role, "no enrollment means no role")
}
