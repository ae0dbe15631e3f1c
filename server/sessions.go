package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/classtrack/classtrack/types"
	"github.com/gorilla/securecookie"
	"github.com/martini-contrib/render"
	"github.com/russross/meddler"
	"golang.org/x/crypto/bcrypt"
)

type CookieSession struct {
	ExpiresAt time.Time
	UserID    int64
	path      string
}

func NewSession(id int64) *CookieSession {
	return &CookieSession{
		ExpiresAt: time.Now().Add(time.Duration(Config.SessionDays) * 24 * time.Hour),
		UserID:    id,
		path:      "/",
	}
}

func GetSession(r *http.Request) (*CookieSession, error) {
	now := time.Now()

	cookie, err := r.Cookie(types.CookieName)
	if err != nil {
		return nil, fmt.Errorf("unable to read session cookie")
	}

	// decode and verify signature
	session := new(CookieSession)
	secure := securecookie.New([]byte(Config.SessionSecret), nil)
	secure.MaxAge(0)
	if err = secure.Decode(types.CookieName, cookie.Value, session); err != nil {
		return nil, fmt.Errorf("unable to decode session cookie")
	}

	// check expiration
	if session.ExpiresAt.Before(now) {
		return nil, fmt.Errorf("session is expired; must log in again to continue")
	}

	// sanity check
	if session.UserID < 1 {
		return nil, fmt.Errorf("session does not contain a legal user ID field")
	}

	return session, nil
}

func (session *CookieSession) Save(w http.ResponseWriter) string {
	// encode and sign
	secure := securecookie.New([]byte(Config.SessionSecret), nil)
	secure.MaxAge(0)
	encoded, err := secure.Encode(types.CookieName, session)
	if err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "creating session: %v", err)
		return ""
	}

	cookie := &http.Cookie{
		Name:    types.CookieName,
		Value:   encoded,
		Path:    session.path,
		Expires: session.ExpiresAt,
		MaxAge:  int(time.Until(session.ExpiresAt).Seconds()),
		Secure:  true,
	}
	http.SetCookie(w, cookie)
	return fmt.Sprintf("%s=%s", types.CookieName, encoded)
}

func (session *CookieSession) Delete(w http.ResponseWriter) {
	epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	cookie := &http.Cookie{
		Name:    types.CookieName,
		Value:   "deleted",
		Path:    session.path,
		Expires: epoch,
		MaxAge:  -1,
		Secure:  true,
	}
	http.SetCookie(w, cookie)
}

// UserLogin is the credentials payload for PostUserSession.
type UserLogin struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PostUserSession handles /v1/users/sessions requests,
// checking email+password credentials and issuing a session cookie.
//
// The response includes the cookie in the body as well, so non-browser
// clients (the CLI) can store it without cookie-jar support.
func PostUserSession(w http.ResponseWriter, tx *sql.Tx, login UserLogin, render render.Render) {
	now := time.Now()

	email := strings.ToLower(strings.TrimSpace(login.Email))
	user := new(types.User)
	err := meddler.QueryRow(tx, user, `SELECT * FROM users WHERE email = ?`, email)
	if err != nil && err != sql.ErrNoRows {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}

	// run the comparison even when the user was not found so a probe
	// cannot distinguish a bad email from a bad password by timing
	hash := []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")
	if err == nil {
		hash = []byte(user.PasswordHash)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(login.Password)) != nil || err == sql.ErrNoRows {
		loggedHTTPErrorf(w, http.StatusUnauthorized, "login failed for %s", email)
		return
	}

	user.LastSignedInAt = now
	if err := meddler.Update(tx, "users", user); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}

	session := NewSession(user.ID)
	cookie := session.Save(w)

	result := map[string]string{"Cookie": cookie}
	render.JSON(http.StatusOK, result)
}

// DeleteUserSession handles /v1/users/sessions requests,
// clearing the session cookie.
func DeleteUserSession(w http.ResponseWriter, r *http.Request) {
	session, err := GetSession(r)
	if err != nil {
		session = &CookieSession{path: "/"}
	}
	session.Delete(w)
}
