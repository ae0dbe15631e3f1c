package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/classtrack/classtrack/types"
	"github.com/spf13/cobra"
)

func CommandTake(cmd *cobra.Command, args []string) {
	mustLoadConfig(cmd)
	if len(args) != 1 {
		cmd.Help()
		os.Exit(1)
	}
	quizID := parseIDArg("quiz ID", args[0])

	quiz := new(types.Quiz)
	mustGetObject(fmt.Sprintf("/quizzes/%d", quizID), nil, quiz)
	questions := []*types.Question{}
	mustGetObject(fmt.Sprintf("/quizzes/%d/questions", quizID), nil, &questions)
	if len(questions) == 0 {
		log.Fatalf("this quiz has no questions and cannot be taken")
	}

	fmt.Printf("%s\n", quiz.Title)
	if quiz.Description != "" {
		fmt.Printf("%s\n", quiz.Description)
	}
	if quiz.AvailableUntil != "" {
		fmt.Printf("closes at %s\n", quiz.AvailableUntil)
	}
	if quiz.TimeLimitMinutes > 0 {
		// the server does not cut the attempt off, but the window might
		fmt.Printf("suggested time limit: %d minute%s\n", quiz.TimeLimitMinutes, plural(int(quiz.TimeLimitMinutes)))
	}
	if quiz.MaxAttempts > 0 {
		fmt.Printf("attempts allowed: %d\n", quiz.MaxAttempts)
	}
	fmt.Printf("%d question%s; press enter with no answer to skip a question\n\n",
		len(questions), plural(len(questions)))

	in := bufio.NewReader(os.Stdin)
	answers := []types.AnswerSlot{}
	for _, question := range questions {
		answers = append(answers, promptQuestion(in, question))
	}

	upload := &types.SubmissionUpload{Answers: answers}
	sub := new(types.Submission)
	mustPostObject(fmt.Sprintf("/quizzes/%d/submissions", quizID), nil, upload, sub)

	fmt.Printf("\nsubmitted attempt %d at %s\n", sub.Attempt, sub.SubmittedAt.Format(time.RFC1123))
	if quiz.ShowScoreToStudent {
		fmt.Printf("score: %g of %g\n", sub.Earned, sub.Possible)
	} else {
		fmt.Println("your score will be released by your teacher")
	}
	if quiz.ShowCorrectAnswersToStudent {
		for _, response := range sub.Responses {
			if response.Correct {
				continue
			}
			fmt.Printf("\nquestion %d was %s\n", response.Number, reviewLabel(response))
			if response.Explanation != "" {
				fmt.Printf("  %s\n", response.Explanation)
			}
		}
	}
}

func reviewLabel(response *types.SubmissionResponse) string {
	if !response.Answered {
		return "skipped"
	}
	return "answered incorrectly"
}

func promptQuestion(in *bufio.Reader, question *types.Question) types.AnswerSlot {
	fmt.Printf("%d. %s\n", question.Number, question.Text)
	for i, choice := range question.Choices {
		fmt.Printf("   %d) %s\n", i+1, choice)
	}

	switch question.Type {
	case types.QuestionSingle:
		for {
			fmt.Printf("choice (1-%d): ", len(question.Choices))
			line := strings.TrimSpace(readLine(in))
			if line == "" {
				return types.AnswerSlot{}
			}
			n, err := strconv.ParseInt(line, 10, 64)
			if err != nil || n < 1 || n > int64(len(question.Choices)) {
				fmt.Println("please enter a choice number, or press enter to skip")
				continue
			}
			index := n - 1
			return types.AnswerSlot{SelectedIndex: &index}
		}

	case types.QuestionMultiple:
		for {
			fmt.Printf("choices (1-%d, comma separated): ", len(question.Choices))
			line := strings.TrimSpace(readLine(in))
			if line == "" {
				return types.AnswerSlot{}
			}
			indices, ok := parseChoiceList(line, len(question.Choices))
			if !ok {
				fmt.Println("please enter choice numbers like 1,3 or press enter to skip")
				continue
			}
			return types.AnswerSlot{SelectedIndices: indices}
		}

	case types.QuestionShort:
		fmt.Printf("answer: ")
		return types.AnswerSlot{AnswerText: readLine(in)}

	case types.QuestionLong:
		fmt.Println("answer (finish with a line containing only a period):")
		var lines []string
		for {
			line := readLine(in)
			if line == "." {
				break
			}
			lines = append(lines, line)
		}
		return types.AnswerSlot{AnswerText: strings.Join(lines, "\n")}
	}

	log.Fatalf("question %d has unknown type %q", question.Number, question.Type)
	return types.AnswerSlot{}
}

// parseChoiceList parses "1,3" into zero-based indices, rejecting
// out-of-range and repeated entries.
func parseChoiceList(line string, choices int) ([]int64, bool) {
	indices := []int64{}
	seen := make(map[int64]bool)
	for _, field := range strings.Split(line, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.ParseInt(field, 10, 64)
		if err != nil || n < 1 || n > int64(choices) {
			return nil, false
		}
		if seen[n-1] {
			return nil, false
		}
		seen[n-1] = true
		indices = append(indices, n-1)
	}
	return indices, len(indices) > 0
}
