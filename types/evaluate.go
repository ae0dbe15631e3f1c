package types

import (
	"fmt"
	"strings"
	"time"
)

// UngradedAutoAccept controls grading of short and long questions that have
// no expected answer configured: any non-blank response is accepted as
// correct, deferring real review to the teacher. Questions with an expected
// answer are unaffected.
const UngradedAutoAccept = true

// Evaluation error kinds. These are expected, user-facing outcomes; none of
// them writes a submission record.
const (
	EvalNoQuestions         = "NoQuestions"
	EvalAvailabilityInvalid = "AvailabilityInvalid"
	EvalNotYetOpen          = "NotYetOpen"
	EvalClosed              = "Closed"
	EvalAttemptLimitReached = "AttemptLimitReached"
	EvalMalformedAnswer     = "MalformedAnswer"
)

// EvaluationError is the tagged rejection result of a submission attempt.
type EvaluationError struct {
	Kind     string     `json:"kind"`
	Message  string     `json:"message"`
	OpensAt  *time.Time `json:"opensAt,omitempty"`
	ClosedAt *time.Time `json:"closedAt,omitempty"`
	Limit    int64      `json:"limit,omitempty"`
}

func (e *EvaluationError) Error() string {
	return e.Message
}

func evalErrorf(kind string, format string, params ...interface{}) *EvaluationError {
	return &EvaluationError{Kind: kind, Message: fmt.Sprintf(format, params...)}
}

// AnswerSlot is one raw submitted answer. Slots line up with the quiz's
// questions in order; a zero-value slot is a skipped question. Exactly one
// of the fields may be set, and it must match the question type.
type AnswerSlot struct {
	SelectedIndex   *int64  `json:"selectedIndex,omitempty"`
	SelectedIndices []int64 `json:"selectedIndices,omitempty"`
	AnswerText      string  `json:"answerText,omitempty"`
}

// normalized form of one answer slot
type normalizedAnswer struct {
	selectedIndex   *int64
	selectedIndices []int64
	answerText      string
	answered        bool
}

// CheckAvailability decides whether a submission may proceed at the given
// instant. Both bounds are inclusive. The client shows the same result as a
// courtesy, but this check runs again at the server boundary on every
// submission because client clocks are untrusted.
func CheckAvailability(quiz *Quiz, now time.Time) *EvaluationError {
	from, until, err := quiz.Window()
	if err != nil {
		return evalErrorf(EvalAvailabilityInvalid, "quiz availability is misconfigured: %v", err)
	}
	if from != nil && now.Before(*from) {
		e := evalErrorf(EvalNotYetOpen, "quiz opens at %s", from.Format(time.RFC1123))
		e.OpensAt = from
		return e
	}
	if until != nil && now.After(*until) {
		e := evalErrorf(EvalClosed, "quiz closed at %s", until.Format(time.RFC1123))
		e.ClosedAt = until
		return e
	}
	return nil
}

// CheckAttemptLimit enforces the quiz attempt cap given the count of prior
// stored submissions for this (user, quiz) pair. A cap of zero means
// unlimited.
func CheckAttemptLimit(quiz *Quiz, prior int64) *EvaluationError {
	if quiz.MaxAttempts < 1 {
		return nil
	}
	if prior >= quiz.MaxAttempts {
		e := evalErrorf(EvalAttemptLimitReached, "the limit of %d attempt%s has been reached",
			quiz.MaxAttempts, plural(quiz.MaxAttempts))
		e.Limit = quiz.MaxAttempts
		return e
	}
	return nil
}

// normalizeAnswer interprets one raw slot against its question's type.
// A slot whose shape does not match the question type is a caller error.
func normalizeAnswer(question *Question, slot AnswerSlot) (normalizedAnswer, *EvaluationError) {
	var out normalizedAnswer

	switch question.Type {
	case QuestionSingle:
		if slot.SelectedIndices != nil || slot.AnswerText != "" {
			return out, evalErrorf(EvalMalformedAnswer,
				"question %d takes a single choice index", question.Number)
		}
		if slot.SelectedIndex != nil {
			if *slot.SelectedIndex < 0 || *slot.SelectedIndex >= int64(len(question.Choices)) {
				return out, evalErrorf(EvalMalformedAnswer,
					"question %d choice index %d is out of range", question.Number, *slot.SelectedIndex)
			}
			out.selectedIndex = slot.SelectedIndex
			out.answered = true
		}

	case QuestionMultiple:
		if slot.SelectedIndex != nil || slot.AnswerText != "" {
			return out, evalErrorf(EvalMalformedAnswer,
				"question %d takes a set of choice indices", question.Number)
		}
		seen := make(map[int64]bool)
		for _, n := range slot.SelectedIndices {
			if n < 0 || n >= int64(len(question.Choices)) {
				return out, evalErrorf(EvalMalformedAnswer,
					"question %d choice index %d is out of range", question.Number, n)
			}
			if seen[n] {
				return out, evalErrorf(EvalMalformedAnswer,
					"question %d choice index %d is repeated", question.Number, n)
			}
			seen[n] = true
		}
		out.selectedIndices = slot.SelectedIndices
		out.answered = len(slot.SelectedIndices) > 0

	case QuestionShort, QuestionLong:
		if slot.SelectedIndex != nil || slot.SelectedIndices != nil {
			return out, evalErrorf(EvalMalformedAnswer,
				"question %d takes a text answer", question.Number)
		}
		out.answerText = slot.AnswerText
		out.answered = strings.TrimSpace(slot.AnswerText) != ""

	default:
		return out, evalErrorf(EvalMalformedAnswer,
			"question %d has unknown type %q", question.Number, question.Type)
	}

	return out, nil
}

// judgeAnswer decides correctness for an answered question. Unanswered
// questions are never correct and are scored as skips by the caller.
func judgeAnswer(question *Question, answer normalizedAnswer) bool {
	if !answer.answered {
		return false
	}

	switch question.Type {
	case QuestionSingle:
		return *answer.selectedIndex == question.CorrectIndex

	case QuestionMultiple:
		// all or nothing: the selected set must equal the correct set
		if len(answer.selectedIndices) != len(question.CorrectIndices) {
			return false
		}
		want := make(map[int64]bool)
		for _, n := range question.CorrectIndices {
			want[n] = true
		}
		for _, n := range answer.selectedIndices {
			if !want[n] {
				return false
			}
		}
		return true

	case QuestionShort, QuestionLong:
		if question.ExpectedAnswer == "" {
			// no reference answer to compare against
			return UngradedAutoAccept
		}
		return strings.EqualFold(
			strings.TrimSpace(answer.answerText),
			strings.TrimSpace(question.ExpectedAnswer))
	}

	return false
}

// Evaluate validates a submission attempt and grades it.
//
// The gates run in order: a quiz with no questions is rejected, then the
// availability window, then the attempt cap (prior is the count of stored
// submissions for this user and quiz). Only when every gate passes are the
// answers normalized, judged, and folded into earned/possible totals.
//
// questions must be in quiz order; answers line up with them by position.
// Missing trailing slots count as skips, but extra slots are a caller error.
//
// The returned submission snapshots each question with its key, so the
// record is immune to later question edits. The caller assigns UserID and
// the attempt number and persists the record; a non-nil error means nothing
// may be written.
func Evaluate(quiz *Quiz, questions []*Question, prior int64, answers []AnswerSlot, now time.Time) (*Submission, *EvaluationError) {
	if len(questions) == 0 {
		return nil, evalErrorf(EvalNoQuestions, "quiz has no questions and cannot be submitted")
	}
	if err := CheckAvailability(quiz, now); err != nil {
		return nil, err
	}
	if err := CheckAttemptLimit(quiz, prior); err != nil {
		return nil, err
	}
	if len(answers) > len(questions) {
		return nil, evalErrorf(EvalMalformedAnswer,
			"%d answers submitted for %d questions", len(answers), len(questions))
	}

	sub := &Submission{
		QuizID:      quiz.ID,
		Responses:   []*SubmissionResponse{},
		SubmittedAt: now,
	}

	for i, question := range questions {
		var slot AnswerSlot
		if i < len(answers) {
			slot = answers[i]
		}
		answer, err := normalizeAnswer(question, slot)
		if err != nil {
			return nil, err
		}
		correct := judgeAnswer(question, answer)

		awarded := question.SkipPoints
		if answer.answered {
			if correct {
				awarded = question.CorrectPoints
			} else {
				awarded = question.WrongPoints
			}
		}
		sub.Possible += question.CorrectPoints
		sub.Earned += awarded

		response := &SubmissionResponse{
			Number:          question.Number,
			Type:            question.Type,
			Text:            question.Text,
			Choices:         question.Choices,
			SelectedIndex:   answer.selectedIndex,
			SelectedIndices: answer.selectedIndices,
			AnswerText:      answer.answerText,
			Answered:        answer.answered,
			Correct:         correct,
			Awarded:         awarded,
			ExpectedAnswer:  question.ExpectedAnswer,
			Explanation:     question.Explanation,
		}
		switch question.Type {
		case QuestionSingle:
			n := question.CorrectIndex
			response.CorrectIndex = &n
		case QuestionMultiple:
			response.CorrectIndices = question.CorrectIndices
		}
		sub.Responses = append(sub.Responses, response)
	}

	return sub, nil
}

func plural(n int64) string {
	if n == 1 {
		return ""
	}
	return "s"
}
