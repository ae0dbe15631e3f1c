package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/classtrack/classtrack/types"
	"github.com/spf13/cobra"
)

func parseIDArg(name, s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		log.Fatalf("%q is not a valid %s", s, name)
	}
	return id
}

func CommandCourses(cmd *cobra.Command, args []string) {
	mustLoadConfig(cmd)
	if len(args) != 0 {
		cmd.Help()
		os.Exit(1)
	}

	dashboard := new(types.Dashboard)
	mustGetObject("/users/me/dashboard", nil, dashboard)

	if len(dashboard.Courses) == 0 {
		fmt.Println("you are not enrolled in any courses")
		return
	}
	for _, entry := range dashboard.Courses {
		fmt.Printf("%d: %s (%s) [%s]\n", entry.Course.ID, entry.Course.Name, entry.Course.Label, entry.Role)
		fmt.Printf("   lessons completed: %d/%d, quizzes taken: %d/%d\n",
			entry.LessonsCompleted, entry.LessonsTotal, entry.QuizzesTaken, entry.QuizzesTotal)
		if entry.Role == types.RoleTeacher {
			fmt.Printf("   students enrolled: %d\n", entry.Students)
		}
	}
}

func CommandLessons(cmd *cobra.Command, args []string) {
	mustLoadConfig(cmd)
	if len(args) != 1 && len(args) != 2 {
		cmd.Help()
		os.Exit(1)
	}
	courseID := parseIDArg("course ID", args[0])

	lessons := []*types.Lesson{}
	mustGetObject(fmt.Sprintf("/courses/%d/lessons", courseID), nil, &lessons)
	if len(lessons) == 0 {
		fmt.Println("this course has no lessons yet")
		return
	}

	if len(args) == 1 {
		progress := []*types.CourseProgress{}
		mustGetObject(fmt.Sprintf("/courses/%d/progress", courseID), nil, &progress)
		done := int64(0)
		if len(progress) > 0 {
			done = progress[0].Completed
		}

		for _, lesson := range lessons {
			fmt.Printf("%2d: %s\n", lesson.Sequence, lesson.Title)
		}
		fmt.Printf("\ncompleted %d of %d lesson%s\n", done, len(lessons), plural(len(lessons)))
		return
	}

	// read a single lesson and mark it complete
	number := parseIDArg("lesson number", args[1])
	var target *types.Lesson
	for _, lesson := range lessons {
		if lesson.Sequence == number {
			target = lesson
		}
	}
	if target == nil {
		log.Fatalf("this course has no lesson %d", number)
	}

	fmt.Printf("# %s\n\n%s\n", target.Title, target.Markdown)

	progress := new(types.LessonProgress)
	mustPostObject(fmt.Sprintf("/lessons/%d/progress", target.ID), nil, nil, progress)
	fmt.Printf("\n(lesson marked as completed)\n")
}

func CommandGrades(cmd *cobra.Command, args []string) {
	mustLoadConfig(cmd)
	if len(args) != 1 {
		cmd.Help()
		os.Exit(1)
	}
	courseID := parseIDArg("course ID", args[0])

	quizzes := []*types.Quiz{}
	mustGetObject(fmt.Sprintf("/courses/%d/quizzes", courseID), nil, &quizzes)
	if len(quizzes) == 0 {
		fmt.Println("this course has no quizzes yet")
		return
	}

	for _, quiz := range quizzes {
		submissions := []*types.Submission{}
		mustGetObject(fmt.Sprintf("/quizzes/%d/submissions", quiz.ID), nil, &submissions)

		fmt.Printf("%d: %s\n", quiz.ID, quiz.Title)
		if len(submissions) == 0 {
			fmt.Println("   not attempted")
			continue
		}
		for _, sub := range submissions {
			if quiz.ShowScoreToStudent {
				fmt.Printf("   attempt %d: %g of %g (%s)\n",
					sub.Attempt, sub.Earned, sub.Possible, sub.SubmittedAt.Format("Jan 2 15:04"))
			} else {
				fmt.Printf("   attempt %d submitted %s (score withheld)\n",
					sub.Attempt, sub.SubmittedAt.Format("Jan 2 15:04"))
			}
		}
	}
}
