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

// GetCourseAnnouncements handles /v1/courses/:course_id/announcements requests,
// returning the course's announcements, newest first.
func GetCourseAnnouncements(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User, render render.Render) {
	courseID, err := parseID(w, "course_id", params["course_id"])
	if err != nil {
		return
	}
	if _, ok := requireCourseMember(w, tx, currentUser, courseID); !ok {
		return
	}

	announcements := []*types.Announcement{}
	err = meddler.QueryAll(tx, &announcements, `SELECT * FROM announcements WHERE course_id = ? ORDER BY created_at DESC, id DESC`, courseID)
	if err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
	render.JSON(http.StatusOK, announcements)
}

// PostAnnouncement handles /v1/announcements requests,
// posting an announcement to a course and broadcasting it on the course
// feed. Restricted to teachers of the course.
func PostAnnouncement(w http.ResponseWriter, tx *sql.Tx, currentUser *types.User, announcement types.Announcement, render render.Render) {
	now := time.Now()

	if !requireCourseTeacher(w, tx, currentUser, announcement.CourseID) {
		return
	}

	announcement.ID = 0
	announcement.AuthorID = currentUser.ID
	announcement.CreatedAt = now
	if err := announcement.Normalize(); err != nil {
		loggedHTTPErrorf(w, http.StatusBadRequest, "%v", err)
		return
	}

	if err := meddler.Insert(tx, "announcements", &announcement); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}

	courseFeed.broadcast(&types.FeedEvent{
		Time:         now,
		Event:        "announcement",
		CourseID:     announcement.CourseID,
		Announcement: &announcement,
	})
	render.JSON(http.StatusOK, &announcement)
}

// DeleteAnnouncement handles /v1/announcements/:announcement_id requests,
// deleting an announcement. Restricted to teachers of the course.
func DeleteAnnouncement(w http.ResponseWriter, tx *sql.Tx, params martini.Params, currentUser *types.User) {
	announcementID, err := parseID(w, "announcement_id", params["announcement_id"])
	if err != nil {
		return
	}

	announcement := new(types.Announcement)
	if err := meddler.Load(tx, "announcements", announcement, announcementID); err != nil {
		loggedHTTPDBNotFoundError(w, err)
		return
	}
	if !requireCourseTeacher(w, tx, currentUser, announcement.CourseID) {
		return
	}

	if _, err := tx.Exec(`DELETE FROM announcements WHERE id = ?`, announcementID); err != nil {
		loggedHTTPErrorf(w, http.StatusInternalServerError, "db error: %v", err)
		return
	}
}
