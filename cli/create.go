package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/classtrack/classtrack/types"
	"github.com/spf13/cobra"
	"gopkg.in/gcfg.v1"
)

// QuizConfigFile is the on-disk authoring format for a quiz: one [quiz]
// section and one [question "N"] section per question, numbered from 1.
//
//	[quiz]
//	course = 3
//	title = Week 3 quiz
//	maxattempts = 2
//
//	[question "1"]
//	type = single
//	text = What is 2+2?
//	choice = 3
//	choice = 4
//	correct = 2
type QuizConfigFile struct {
	Quiz struct {
		Course             int64
		Title              string
		Description        string
		AvailableFrom      string
		AvailableUntil     string
		TimeLimitMinutes   int64
		MaxAttempts        int64
		ShowScore          bool
		ShowCorrectAnswers bool
	}
	Question map[string]*struct {
		Type        string
		Text        string
		Choice      []string
		Correct     []string // choice numbers, 1-based
		Answer      string   // expected answer for short questions
		Points      float64
		WrongPoints float64
		SkipPoints  float64
		Explanation string
	}
}

func CommandCreate(cmd *cobra.Command, args []string) {
	mustLoadConfig(cmd)
	if len(args) != 1 {
		cmd.Help()
		os.Exit(1)
	}
	filename := args[0]

	cfg := new(QuizConfigFile)
	if err := gcfg.ReadFileInto(cfg, filename); err != nil {
		log.Fatalf("failed to parse %s: %v", filename, err)
	}
	if cfg.Quiz.Course < 1 {
		log.Fatalf("%s: the [quiz] section must give a course ID", filename)
	}
	if len(cfg.Question) == 0 {
		log.Fatalf("%s: a quiz needs at least one [question \"N\"] section", filename)
	}

	bundle := &types.QuizBundle{
		Quiz: &types.Quiz{
			CourseID:                    cfg.Quiz.Course,
			Title:                       cfg.Quiz.Title,
			Description:                 cfg.Quiz.Description,
			AvailableFrom:               cfg.Quiz.AvailableFrom,
			AvailableUntil:              cfg.Quiz.AvailableUntil,
			TimeLimitMinutes:            cfg.Quiz.TimeLimitMinutes,
			MaxAttempts:                 cfg.Quiz.MaxAttempts,
			ShowScoreToStudent:          cfg.Quiz.ShowScore,
			ShowCorrectAnswersToStudent: cfg.Quiz.ShowCorrectAnswers,
		},
	}

	// question sections must be numbered 1..n with no gaps
	for n := 1; n <= len(cfg.Question); n++ {
		section, present := cfg.Question[strconv.Itoa(n)]
		if !present {
			log.Fatalf("%s: question sections must be numbered 1 through %d with no gaps; %d is missing",
				filename, len(cfg.Question), n)
		}
		upload, err := questionUpload(section.Type, section.Text, section.Choice, section.Correct,
			section.Answer, section.Points, section.WrongPoints, section.SkipPoints, section.Explanation)
		if err != nil {
			log.Fatalf("%s: question %d: %v", filename, n, err)
		}
		bundle.Questions = append(bundle.Questions, upload)
	}

	created := new(types.QuizExport)
	mustPostObject("/quiz_bundles", nil, bundle, created)
	fmt.Printf("created quiz %d %q with %d question%s\n",
		created.Quiz.ID, created.Quiz.Title, len(created.Questions), plural(len(created.Questions)))
}

func questionUpload(qtype, text string, choices, correct []string, answer string, points, wrongPoints, skipPoints float64, explanation string) (*types.QuestionUpload, error) {
	upload := &types.QuestionUpload{
		Type:           qtype,
		Text:           text,
		Choices:        choices,
		ExpectedAnswer: answer,
		Explanation:    explanation,
	}
	if points != 0 {
		upload.CorrectPoints = &points
	}
	if wrongPoints != 0 {
		upload.WrongPoints = &wrongPoints
	}
	if skipPoints != 0 {
		upload.SkipPoints = &skipPoints
	}

	indices := []int64{}
	for _, field := range correct {
		n, err := strconv.ParseInt(field, 10, 64)
		if err != nil || n < 1 || n > int64(len(choices)) {
			return nil, fmt.Errorf("correct choice %q is not a valid choice number", field)
		}
		indices = append(indices, n-1)
	}

	switch qtype {
	case types.QuestionSingle:
		if len(indices) != 1 {
			return nil, fmt.Errorf("a single-choice question needs exactly one correct choice")
		}
		upload.CorrectIndex = &indices[0]
	case types.QuestionMultiple:
		upload.CorrectIndices = indices
	case types.QuestionShort, types.QuestionLong:
		if len(indices) > 0 {
			return nil, fmt.Errorf("a %s question cannot list correct choices", qtype)
		}
	default:
		return nil, fmt.Errorf("unknown question type %q", qtype)
	}
	return upload, nil
}
