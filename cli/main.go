package main

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/blang/semver"
	"github.com/classtrack/classtrack/types"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"
)

const (
	perUserDotFile = ".classtrackrc"
	urlPrefix      = "/v1"
)

var Config struct {
	Host      string `json:"host"`
	Cookie    string `json:"cookie"`
	apiReport bool
	apiDump   bool
}

func main() {
	log.SetFlags(0)

	cmdClasstrack := &cobra.Command{
		Use:   "classtrack",
		Short: "Command-line interface to Classtrack",
		Long:  "A command-line tool to access a Classtrack course server",
	}
	cmdClasstrack.PersistentFlags().BoolVarP(&Config.apiReport, "api", "", false, "report all API requests")
	cmdClasstrack.PersistentFlags().BoolVarP(&Config.apiDump, "api-dump", "", false, "dump API request and response data")

	cmdVersion := &cobra.Command{
		Use:   "version",
		Short: "print the version number of classtrack",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("classtrack " + types.CurrentVersion.Version)
		},
	}
	cmdClasstrack.AddCommand(cmdVersion)

	cmdLogin := &cobra.Command{
		Use:   "login <hostname> <email>",
		Short: "login to a classtrack server",
		Long: "Log in with the email address of your account; you will be\n" +
			"prompted for your password.\n\n" +
			"You should normally only need to do this once per device.",
		Run: CommandLogin,
	}
	cmdClasstrack.AddCommand(cmdLogin)

	cmdCourses := &cobra.Command{
		Use:   "courses",
		Short: "list your courses and progress",
		Run:   CommandCourses,
	}
	cmdClasstrack.AddCommand(cmdCourses)

	cmdLessons := &cobra.Command{
		Use:   "lessons <course id> [lesson number]",
		Short: "list the lessons in a course, or read one",
		Long: fmt.Sprintf("With just a course ID, lists the lessons and your progress.\n"+
			"With a lesson number as well, prints the lesson and marks it complete.\n\n"+
			"   Example: '%s lessons 3'\n\n"+
			"   Example: '%s lessons 3 2'", os.Args[0], os.Args[0]),
		Run: CommandLessons,
	}
	cmdClasstrack.AddCommand(cmdLessons)

	cmdTake := &cobra.Command{
		Use:   "take <quiz id>",
		Short: "take a quiz interactively",
		Long: fmt.Sprintf("Answer each question in turn; press enter with no input to skip\n"+
			"a question. Your answers are submitted and graded when the last\n"+
			"question is answered.\n\n"+
			"   Example: '%s take 12'", os.Args[0]),
		Run: CommandTake,
	}
	cmdClasstrack.AddCommand(cmdTake)

	cmdGrades := &cobra.Command{
		Use:   "grades <course id>",
		Short: "list your quiz results in a course",
		Run:   CommandGrades,
	}
	cmdClasstrack.AddCommand(cmdGrades)

	cmdCreate := &cobra.Command{
		Use:   "create <quiz.cfg>",
		Short: "create a quiz from a config file (teachers only)",
		Long: fmt.Sprintf("The config file gives quiz settings in a [quiz] section and one\n"+
			"[question \"N\"] section per question.\n\n"+
			"   Example: '%s create week3-quiz.cfg'", os.Args[0]),
		Run: CommandCreate,
	}
	cmdClasstrack.AddCommand(cmdCreate)

	cmdExport := &cobra.Command{
		Use:   "export <course id> [directory]",
		Short: "export a course's quizzes and submissions (teachers only)",
		Long: "Each quiz is written as a JSON file with its questions and every\n" +
			"submission, into the given directory (default: the course label).",
		Run: CommandExport,
	}
	cmdClasstrack.AddCommand(cmdExport)

	cmdWatch := &cobra.Command{
		Use:   "watch <course id>",
		Short: "stream live course events",
		Run:   CommandWatch,
	}
	cmdClasstrack.AddCommand(cmdWatch)

	cmdClasstrack.Execute()
}

type LoginSession struct {
	Cookie string `json:"Cookie"`
}

func CommandLogin(cmd *cobra.Command, args []string) {
	if len(args) != 2 {
		log.Fatalf("Usage: %s login <hostname> <email>", os.Args[0])
	}
	hostname, email := args[0], args[1]
	Config.Host = hostname

	fmt.Printf("password for %s: ", email)
	password, err := terminal.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		log.Fatalf("error reading password: %v", err)
	}

	session := new(LoginSession)
	mustPostObject("/users/sessions", nil,
		map[string]string{"email": email, "password": string(password)}, session)

	// set up config
	Config.Cookie = session.Cookie

	// see if they need an upgrade
	checkVersion()

	// try it out by fetching a user record
	user := new(types.User)
	mustGetObject("/users/me", nil, user)

	// save config for later use
	mustWriteConfig()

	fmt.Printf("login successful; welcome %s\n", user.Name)
}

func mustGetObject(path string, params url.Values, download interface{}) {
	doRequest(path, params, "GET", nil, download, false)
}

func getObject(path string, params url.Values, download interface{}) bool {
	return doRequest(path, params, "GET", nil, download, true)
}

func mustPostObject(path string, params url.Values, upload interface{}, download interface{}) {
	doRequest(path, params, "POST", upload, download, false)
}

func doRequest(path string, params url.Values, method string, upload interface{}, download interface{}, notfoundokay bool) bool {
	if !strings.HasPrefix(path, "/") {
		log.Panicf("doRequest path must start with /")
	}
	if method != "GET" && method != "POST" && method != "PUT" && method != "DELETE" {
		log.Panicf("doRequest only recognizes GET, POST, PUT, and DELETE methods")
	}
	url := fmt.Sprintf("https://%s%s%s", Config.Host, urlPrefix, path)
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		log.Fatalf("error creating http request: %v\n", err)
	}

	// add any parameters
	if len(params) > 0 {
		req.URL.RawQuery = params.Encode()
	}

	if Config.apiReport {
		fmt.Printf("%s %s\n", method, req.URL)
	}

	// set the headers
	req.Header.Add("Cookie", Config.Cookie)
	if download != nil {
		req.Header.Add("Accept", "application/json")
		req.Header.Add("Accept-Encoding", "gzip")
	}

	// upload the payload if any
	if upload != nil && (method == "POST" || method == "PUT") {
		req.Header.Add("Content-Type", "application/json")
		req.Header.Add("Content-Encoding", "gzip")
		payload := new(bytes.Buffer)
		gw := gzip.NewWriter(payload)
		uncompressed := new(bytes.Buffer)
		var jsontarget io.Writer
		if Config.apiDump {
			jsontarget = io.MultiWriter(gw, uncompressed)
		} else {
			jsontarget = gw
		}
		jw := json.NewEncoder(jsontarget)
		if err := jw.Encode(upload); err != nil {
			log.Fatalf("doRequest: JSON error encoding object to upload: %v", err)
		}
		if err := gw.Close(); err != nil {
			log.Fatalf("doRequest: gzip error encoding object to upload: %v", err)
		}
		req.Body = io.NopCloser(payload)

		if Config.apiDump {
			fmt.Printf("Request data: %s\n", uncompressed)
		}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("error connecting to %s: %v", Config.Host, err)
	}
	defer resp.Body.Close()
	if notfoundokay && resp.StatusCode == http.StatusNotFound {
		return false
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("unexpected status from %s: %s", url, resp.Status)
		dumpBody(resp)
		log.Fatalf("giving up")
	}

	// parse the result if any
	if download != nil {
		body := resp.Body
		if resp.Header.Get("Content-Encoding") == "gzip" {
			gz, err := gzip.NewReader(body)
			if err != nil {
				log.Fatalf("failed to decompress gzip result: %v", err)
			}
			body = gz
			defer gz.Close()
		}
		decoder := json.NewDecoder(body)
		if err := decoder.Decode(download); err != nil {
			log.Fatalf("failed to parse result object from server: %v", err)
		}

		if Config.apiDump {
			raw, err := json.MarshalIndent(download, "", "    ")
			if err != nil {
				log.Fatalf("doRequest: JSON error encoding downloaded object: %v", err)
			}
			fmt.Printf("Response data: %s\n", raw)
		}

		return true
	}
	return false
}

func mustLoadConfig(cmd *cobra.Command) {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("unable to find home directory: %v", err)
	}
	configFile := filepath.Join(home, perUserDotFile)

	if raw, err := os.ReadFile(configFile); err != nil {
		log.Fatalf("Unable to load config file; try running '%s login'\n", os.Args[0])
	} else if err := json.Unmarshal(raw, &Config); err != nil {
		log.Printf("failed to parse %s: %v", configFile, err)
		log.Fatalf("you may wish to try deleting the file and running '%s login' again\n", os.Args[0])
	}
	if Config.apiDump {
		Config.apiReport = true
	}

	checkVersion()
}

func mustWriteConfig() {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("unable to find home directory: %v", err)
	}
	configFile := filepath.Join(home, perUserDotFile)

	raw, err := json.MarshalIndent(&Config, "", "    ")
	if err != nil {
		log.Fatalf("JSON error encoding config file: %v", err)
	}
	raw = append(raw, '\n')

	if err = os.WriteFile(configFile, raw, 0600); err != nil {
		log.Fatalf("error writing %s: %v", configFile, err)
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func checkVersion() {
	server := new(types.Version)
	mustGetObject("/version", nil, server)
	current := semver.MustParse(types.CurrentVersion.Version)
	required := semver.MustParse(server.CLIVersionRequired)
	if required.GT(current) {
		log.Printf("this is classtrack version %s, but the server requires %s or higher", types.CurrentVersion.Version, server.CLIVersionRequired)
		log.Fatalf("  you must upgrade to continue")
	}
	recommended := semver.MustParse(server.CLIVersionRecommended)
	if recommended.GT(current) {
		log.Printf("this is classtrack version %s, but the server recommends %s or higher", types.CurrentVersion.Version, server.CLIVersionRecommended)
		log.Printf("  please upgrade as soon as possible")
	}
}

func dumpBody(resp *http.Response) {
	if resp.Body == nil {
		return
	}

	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			log.Fatalf("failed to decompress gzip result: %v", err)
		}
		defer gz.Close()
		io.Copy(os.Stderr, gz)
	} else {
		io.Copy(os.Stderr, resp.Body)
	}
}

// readLine reads one line of input, trimming the trailing newline.
func readLine(in *bufio.Reader) string {
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	return strings.TrimRight(line, "\r\n")
}
