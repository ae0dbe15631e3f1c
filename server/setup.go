package main

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/classtrack/classtrack/types"
	"github.com/russross/meddler"
	"golang.org/x/crypto/bcrypt"
)

// createTables brings up the schema. Every statement is idempotent, so
// this runs unconditionally at startup.
//
// The unique index on (quiz_id, user_id, attempt) is the backstop for the
// attempt cap: even if two submissions for the same attempt number ever
// raced past the count check, the second insert would fail instead of
// producing an extra record.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		admin BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		last_signed_in_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		label TEXT UNIQUE NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL REFERENCES courses (id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (course_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS lessons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL REFERENCES courses (id) ON DELETE CASCADE,
		sequence INTEGER NOT NULL,
		title TEXT NOT NULL,
		markdown TEXT NOT NULL,
		html TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lesson_progress (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		lesson_id INTEGER NOT NULL REFERENCES lessons (id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		completed_at DATETIME NOT NULL,
		UNIQUE (lesson_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS announcements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL REFERENCES courses (id) ON DELETE CASCADE,
		author_id INTEGER NOT NULL REFERENCES users (id),
		title TEXT NOT NULL,
		markdown TEXT NOT NULL,
		html TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS quizzes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL REFERENCES courses (id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT,
		available_from TEXT,
		available_until TEXT,
		time_limit_minutes INTEGER,
		max_attempts INTEGER,
		show_score BOOLEAN NOT NULL DEFAULT 1,
		show_correct_answers BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quiz_id INTEGER NOT NULL REFERENCES quizzes (id) ON DELETE CASCADE,
		question_number INTEGER NOT NULL,
		question_type TEXT NOT NULL,
		text TEXT NOT NULL,
		html TEXT NOT NULL,
		choices TEXT NOT NULL,
		correct_index INTEGER NOT NULL DEFAULT 0,
		correct_indices TEXT NOT NULL,
		expected_answer TEXT,
		correct_points REAL NOT NULL,
		wrong_points REAL NOT NULL,
		skip_points REAL NOT NULL,
		explanation TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (quiz_id, question_number)
	)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quiz_id INTEGER NOT NULL REFERENCES quizzes (id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		attempt INTEGER NOT NULL,
		earned REAL NOT NULL,
		possible REAL NOT NULL,
		responses TEXT NOT NULL,
		submitted_at DATETIME NOT NULL,
		UNIQUE (quiz_id, user_id, attempt)
	)`,
	`CREATE INDEX IF NOT EXISTS enrollments_user ON enrollments (user_id)`,
	`CREATE INDEX IF NOT EXISTS lessons_course ON lessons (course_id, sequence)`,
	`CREATE INDEX IF NOT EXISTS announcements_course ON announcements (course_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS quizzes_course ON quizzes (course_id)`,
	`CREATE INDEX IF NOT EXISTS submissions_user ON submissions (user_id)`,
}

func createTables(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("error running schema statement: %v\n%s", err, stmt)
		}
	}
	return nil
}

// bootstrapAdmin creates the initial administrator account when the users
// table is empty and the config supplies credentials. Without it a fresh
// install would have no way to log in.
func bootstrapAdmin(db *sql.DB) error {
	var count int64
	if err := db.QueryRow(`SELECT COUNT(1) FROM users`).Scan(&count); err != nil {
		return fmt.Errorf("db error counting users: %v", err)
	}
	if count > 0 {
		return nil
	}
	if Config.AdminEmail == "" || Config.AdminPassword == "" {
		log.Printf("no users exist and no admin account is configured; logins will fail")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(Config.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("error hashing admin password: %v", err)
	}

	now := time.Now()
	admin := &types.User{
		Name:           Config.AdminName,
		Email:          Config.AdminEmail,
		PasswordHash:   string(hash),
		Admin:          true,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastSignedInAt: now,
	}
	if admin.Name == "" {
		admin.Name = "Administrator"
	}
	if err := admin.Normalize(); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("db error starting transaction: %v", err)
	}
	if err := meddler.Insert(tx, "users", admin); err != nil {
		tx.Rollback()
		return fmt.Errorf("db error inserting admin user: %v", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db error committing transaction: %v", err)
	}
	log.Printf("created initial admin account for %s", admin.Email)
	return nil
}
