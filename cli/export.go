package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/classtrack/classtrack/types"
	"github.com/spf13/cobra"
)

// CommandExport downloads every quiz in a course, with questions and all
// submissions, and writes one JSON file per quiz.
func CommandExport(cmd *cobra.Command, args []string) {
	mustLoadConfig(cmd)
	if len(args) != 1 && len(args) != 2 {
		cmd.Help()
		os.Exit(1)
	}
	courseID := parseIDArg("course ID", args[0])

	course := new(types.Course)
	mustGetObject(fmt.Sprintf("/courses/%d", courseID), nil, course)

	directory := course.Label
	if len(args) == 2 {
		directory = args[1]
	}
	if err := os.MkdirAll(directory, 0755); err != nil {
		log.Fatalf("error creating directory %s: %v", directory, err)
	}

	quizzes := []*types.Quiz{}
	mustGetObject(fmt.Sprintf("/courses/%d/quizzes", courseID), nil, &quizzes)
	if len(quizzes) == 0 {
		fmt.Println("this course has no quizzes to export")
		return
	}

	for _, quiz := range quizzes {
		export := new(types.QuizExport)
		mustGetObject(fmt.Sprintf("/quizzes/%d/export", quiz.ID), nil, export)

		raw, err := json.MarshalIndent(export, "", "    ")
		if err != nil {
			log.Fatalf("JSON error encoding quiz %d: %v", quiz.ID, err)
		}
		raw = append(raw, '\n')

		filename := filepath.Join(directory, fmt.Sprintf("quiz-%d.json", quiz.ID))
		if err := os.WriteFile(filename, raw, 0644); err != nil {
			log.Fatalf("error writing %s: %v", filename, err)
		}
		fmt.Printf("wrote %s: %q with %d question%s and %d submission%s\n",
			filename, export.Quiz.Title,
			len(export.Questions), plural(len(export.Questions)),
			len(export.Submissions), plural(len(export.Submissions)))
	}
}
