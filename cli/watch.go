package main

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/classtrack/classtrack/types"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// CommandWatch subscribes to a course's live event feed and prints each
// event as it arrives, until interrupted.
func CommandWatch(cmd *cobra.Command, args []string) {
	mustLoadConfig(cmd)
	if len(args) != 1 {
		cmd.Help()
		os.Exit(1)
	}
	courseID := parseIDArg("course ID", args[0])

	endpoint := &url.URL{
		Scheme: "wss",
		Host:   Config.Host,
		Path:   fmt.Sprintf("%s/courses/%d/feed", urlPrefix, courseID),
	}
	headers := http.Header{}
	headers.Add("Cookie", Config.Cookie)

	conn, resp, err := websocket.DefaultDialer.Dial(endpoint.String(), headers)
	if err != nil {
		if resp != nil {
			log.Fatalf("error connecting to feed: %v (%s)", err, resp.Status)
		}
		log.Fatalf("error connecting to feed: %v", err)
	}
	defer conn.Close()

	fmt.Printf("watching course %d (interrupt to stop)\n", courseID)
	for {
		event := new(types.FeedEvent)
		if err := conn.ReadJSON(event); err != nil {
			log.Fatalf("feed closed: %v", err)
		}
		fmt.Printf("%s %s\n", event.Time.Format("15:04:05"), event)
	}
}
