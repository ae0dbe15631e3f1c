package main

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/classtrack/classtrack/types"
	"github.com/go-martini/martini"
	"github.com/gorilla/websocket"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = (feedPongWait * 9) / 10
)

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// feedClient is one websocket subscriber to a course feed.
type feedClient struct {
	hub      *feedHub
	courseID int64
	conn     *websocket.Conn
	send     chan *types.FeedEvent
}

// feedHub fans course events out to subscribed clients. All client
// bookkeeping happens on the run goroutine; handlers only send on the
// channels.
type feedHub struct {
	clients    map[*feedClient]bool
	events     chan *types.FeedEvent
	register   chan *feedClient
	unregister chan *feedClient
}

var courseFeed = &feedHub{
	clients:    make(map[*feedClient]bool),
	events:     make(chan *types.FeedEvent, 64),
	register:   make(chan *feedClient),
	unregister: make(chan *feedClient),
}

func (h *feedHub) run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if h.clients[client] {
				delete(h.clients, client)
				close(client.send)
			}

		case event := <-h.events:
			for client := range h.clients {
				if client.courseID != event.CourseID {
					continue
				}
				select {
				case client.send <- event:
				default:
					// slow consumer, drop it
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// broadcast queues an event for delivery. It never blocks the caller:
// if the hub is backed up the event is dropped, since the feed is a
// courtesy stream and the record of truth is in the database.
func (h *feedHub) broadcast(event *types.FeedEvent) {
	select {
	case h.events <- event:
	default:
		log.Printf("course feed is backed up, dropping %s event for course %d", event.Event, event.CourseID)
	}
}

// GetCourseFeed handles /v1/courses/:course_id/feed requests,
// upgrading to a websocket that streams course events. This handler
// runs outside withTx: a held transaction (and the database mutex)
// cannot span a long-lived socket.
func GetCourseFeed(w http.ResponseWriter, r *http.Request, params martini.Params) {
	courseID, err := parseID(w, "course_id", params["course_id"])
	if err != nil {
		return
	}

	session, err := GetSession(r)
	if err != nil {
		loggedHTTPErrorf(w, http.StatusUnauthorized, "authentication failed: try logging in again")
		return
	}
	if err := checkFeedAccess(session.UserID, courseID); err != nil {
		loggedHTTPErrorf(w, http.StatusUnauthorized, "%v", err)
		return
	}

	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	client := &feedClient{
		hub:      courseFeed,
		courseID: courseID,
		conn:     conn,
		send:     make(chan *types.FeedEvent, 16),
	}
	courseFeed.register <- client
	go client.writePump()
	go client.readPump()
}

// checkFeedAccess verifies the user may watch the course feed, using a
// short-lived query under the database mutex.
func checkFeedAccess(userID, courseID int64) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	var admin bool
	if err := db.QueryRow(`SELECT admin FROM users WHERE id = ?`, userID).Scan(&admin); err != nil {
		if err == sql.ErrNoRows {
			return loggedErrorf("user %d not found", userID)
		}
		return loggedErrorf("db error: %v", err)
	}
	if admin {
		return nil
	}

	var count int64
	if err := db.QueryRow(`SELECT COUNT(1) FROM enrollments WHERE course_id = ? AND user_id = ?`,
		courseID, userID).Scan(&count); err != nil {
		return loggedErrorf("db error: %v", err)
	}
	if count == 0 {
		return loggedErrorf("user %d is not enrolled in course %d", userID, courseID)
	}
	return nil
}

// readPump discards incoming messages; the feed is one-way. It exists
// to process control frames and notice a closed connection.
func (c *feedClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
