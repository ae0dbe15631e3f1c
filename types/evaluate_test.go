package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexp(n int64) *int64 {
	return &n
}

func singleQuestion(number int64, correct int64, correctPoints, wrongPoints, skipPoints float64) *Question {
	return &Question{
		ID:            number,
		QuizID:        1,
		Number:        number,
		Type:          QuestionSingle,
		Text:          "pick one",
		Choices:       []string{"a", "b", "c", "d"},
		CorrectIndex:  correct,
		CorrectPoints: correctPoints,
		WrongPoints:   wrongPoints,
		SkipPoints:    skipPoints,
	}
}

func TestCheckAvailability(t *testing.T) {
	opens := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	closes := time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC)
	quiz := &Quiz{
		AvailableFrom:  opens.Format(time.RFC3339),
		AvailableUntil: closes.Format(time.RFC3339),
	}

	tests := []struct {
		name string
		quiz *Quiz
		now  time.Time
		kind string
	}{
		{"no bounds", &Quiz{}, time.Now(), ""},
		{"before opening", quiz, opens.Add(-time.Millisecond), EvalNotYetOpen},
		{"exactly at opening", quiz, opens, ""},
		{"inside the window", quiz, opens.Add(24 * time.Hour), ""},
		{"exactly at closing", quiz, closes, ""},
		{"after closing", quiz, closes.Add(time.Millisecond), EvalClosed},
		{"malformed from", &Quiz{AvailableFrom: "next tuesday"}, time.Now(), EvalAvailabilityInvalid},
		{"malformed until", &Quiz{AvailableUntil: "2025-13-99"}, time.Now(), EvalAvailabilityInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAvailability(tt.quiz, tt.now)
			if tt.kind == "" {
				assert.Nil(t, err)
			} else {
				require.NotNil(t, err)
				assert.Equal(t, tt.kind, err.Kind)
			}
		})
	}
}

func TestCheckAvailabilityCarriesTimes(t *testing.T) {
	opens := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	quiz := &Quiz{AvailableFrom: opens.Format(time.RFC3339)}
	err := CheckAvailability(quiz, opens.Add(-time.Hour))
	require.NotNil(t, err)
	require.NotNil(t, err.OpensAt)
	assert.True(t, err.OpensAt.Equal(opens))
}

func TestCheckAttemptLimit(t *testing.T) {
	tests := []struct {
		name  string
		max   int64
		prior int64
		kind  string
	}{
		{"unlimited", 0, 99, ""},
		{"first of two", 2, 0, ""},
		{"second of two", 2, 1, ""},
		{"third of two", 2, 2, EvalAttemptLimitReached},
		{"far past the cap", 1, 5, EvalAttemptLimitReached},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAttemptLimit(&Quiz{MaxAttempts: tt.max}, tt.prior)
			if tt.kind == "" {
				assert.Nil(t, err)
			} else {
				require.NotNil(t, err)
				assert.Equal(t, tt.kind, err.Kind)
				assert.Equal(t, tt.max, err.Limit)
			}
		})
	}
}

func TestEvaluateSingleChoiceScoring(t *testing.T) {
	// two questions, correct=2 wrong=0 skip=1 each, possible=4
	quiz := &Quiz{ID: 1, CourseID: 1, Title: "unit 3 quiz"}
	questions := []*Question{
		singleQuestion(1, 2, 2.0, 0.0, 1.0),
		singleQuestion(2, 1, 2.0, 0.0, 1.0),
	}
	now := time.Now()

	tests := []struct {
		name    string
		answers []AnswerSlot
		earned  float64
	}{
		{
			name:    "one right one wrong",
			answers: []AnswerSlot{{SelectedIndex: indexp(2)}, {SelectedIndex: indexp(0)}},
			earned:  2.0,
		},
		{
			name:    "both skipped",
			answers: []AnswerSlot{{}, {}},
			earned:  2.0,
		},
		{
			name:    "both right",
			answers: []AnswerSlot{{SelectedIndex: indexp(2)}, {SelectedIndex: indexp(1)}},
			earned:  4.0,
		},
		{
			name:    "missing trailing slots count as skips",
			answers: []AnswerSlot{{SelectedIndex: indexp(2)}},
			earned:  3.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := Evaluate(quiz, questions, 0, tt.answers, now)
			require.Nil(t, err)
			assert.Equal(t, tt.earned, sub.Earned)
			assert.Equal(t, 4.0, sub.Possible)
			assert.Len(t, sub.Responses, 2)
		})
	}
}

func TestEvaluateMultipleChoiceAllOrNothing(t *testing.T) {
	quiz := &Quiz{ID: 1, CourseID: 1, Title: "all or nothing"}
	question := &Question{
		ID:             1,
		QuizID:         1,
		Number:         1,
		Type:           QuestionMultiple,
		Text:           "pick all that apply",
		Choices:        []string{"a", "b", "c", "d"},
		CorrectIndices: []int64{1, 3},
		CorrectPoints:  5.0,
	}
	now := time.Now()

	tests := []struct {
		name     string
		selected []int64
		correct  bool
	}{
		{"exact match", []int64{1, 3}, true},
		{"exact match reordered", []int64{3, 1}, true},
		{"subset", []int64{1}, false},
		{"superset", []int64{1, 2, 3}, false},
		{"disjoint", []int64{0, 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := Evaluate(quiz, []*Question{question}, 0,
				[]AnswerSlot{{SelectedIndices: tt.selected}}, now)
			require.Nil(t, err)
			assert.Equal(t, tt.correct, sub.Responses[0].Correct)
			if tt.correct {
				assert.Equal(t, 5.0, sub.Earned)
			} else {
				assert.Equal(t, 0.0, sub.Earned)
			}
		})
	}

	// the empty set is a skip, not a wrong answer
	sub, err := Evaluate(quiz, []*Question{question}, 0, []AnswerSlot{{SelectedIndices: []int64{}}}, now)
	require.Nil(t, err)
	assert.False(t, sub.Responses[0].Answered)
	assert.False(t, sub.Responses[0].Correct)
}

func TestEvaluateTextQuestions(t *testing.T) {
	quiz := &Quiz{ID: 1, CourseID: 1, Title: "free text"}
	now := time.Now()

	graded := &Question{
		ID: 1, QuizID: 1, Number: 1,
		Type:           QuestionShort,
		Text:           "capital of france?",
		ExpectedAnswer: "Paris",
		CorrectPoints:  1.0,
	}
	ungraded := &Question{
		ID: 2, QuizID: 1, Number: 2,
		Type:          QuestionLong,
		Text:          "explain your reasoning",
		CorrectPoints: 3.0,
	}

	tests := []struct {
		name    string
		answers []AnswerSlot
		earned  float64
		correct []bool
	}{
		{
			name:    "exact answer",
			answers: []AnswerSlot{{AnswerText: "Paris"}, {}},
			earned:  1.0,
			correct: []bool{true, false},
		},
		{
			name:    "case and whitespace are forgiven",
			answers: []AnswerSlot{{AnswerText: "  paris\t"}, {}},
			earned:  1.0,
			correct: []bool{true, false},
		},
		{
			name:    "wrong answer",
			answers: []AnswerSlot{{AnswerText: "Lyon"}, {}},
			earned:  0.0,
			correct: []bool{false, false},
		},
		{
			name:    "whitespace only is a skip",
			answers: []AnswerSlot{{AnswerText: "   "}, {}},
			earned:  0.0,
			correct: []bool{false, false},
		},
		{
			name:    "ungraded question auto-accepts any answer",
			answers: []AnswerSlot{{}, {AnswerText: "because"}},
			earned:  3.0,
			correct: []bool{false, true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := Evaluate(quiz, []*Question{graded, ungraded}, 0, tt.answers, now)
			require.Nil(t, err)
			assert.Equal(t, tt.earned, sub.Earned)
			assert.Equal(t, 4.0, sub.Possible)
			for i, want := range tt.correct {
				assert.Equal(t, want, sub.Responses[i].Correct, "question %d", i+1)
			}
		})
	}
}

func TestEvaluateNegativeAndZeroPoints(t *testing.T) {
	quiz := &Quiz{ID: 1, CourseID: 1, Title: "penalty quiz"}
	questions := []*Question{
		singleQuestion(1, 0, 4.0, -1.0, 0.0),
		singleQuestion(2, 0, 0.0, 0.0, 2.0),
	}
	now := time.Now()

	// wrong answer on q1 costs a point, skipping q2 still pays out
	sub, err := Evaluate(quiz, questions, 0,
		[]AnswerSlot{{SelectedIndex: indexp(3)}, {}}, now)
	require.Nil(t, err)
	assert.Equal(t, 1.0, sub.Earned)
	assert.Equal(t, 4.0, sub.Possible)
}

func TestEvaluateGates(t *testing.T) {
	now := time.Now()
	questions := []*Question{singleQuestion(1, 0, 1.0, 0.0, 0.0)}
	answers := []AnswerSlot{{SelectedIndex: indexp(0)}}

	t.Run("no questions", func(t *testing.T) {
		sub, err := Evaluate(&Quiz{ID: 1}, nil, 0, nil, now)
		assert.Nil(t, sub)
		require.NotNil(t, err)
		assert.Equal(t, EvalNoQuestions, err.Kind)
	})

	t.Run("attempt cap rejects before grading", func(t *testing.T) {
		quiz := &Quiz{ID: 1, MaxAttempts: 1}
		sub, err := Evaluate(quiz, questions, 1, answers, now)
		assert.Nil(t, sub)
		require.NotNil(t, err)
		assert.Equal(t, EvalAttemptLimitReached, err.Kind)
	})

	t.Run("closed quiz rejects before attempt cap", func(t *testing.T) {
		quiz := &Quiz{
			ID:             1,
			AvailableUntil: now.Add(-time.Hour).Format(time.RFC3339),
			MaxAttempts:    1,
		}
		_, err := Evaluate(quiz, questions, 5, answers, now)
		require.NotNil(t, err)
		assert.Equal(t, EvalClosed, err.Kind)
	})

	t.Run("too many answer slots", func(t *testing.T) {
		sub, err := Evaluate(&Quiz{ID: 1}, questions, 0,
			[]AnswerSlot{{}, {}}, now)
		assert.Nil(t, sub)
		require.NotNil(t, err)
		assert.Equal(t, EvalMalformedAnswer, err.Kind)
	})
}

func TestEvaluateMalformedAnswers(t *testing.T) {
	now := time.Now()
	quiz := &Quiz{ID: 1}

	tests := []struct {
		name     string
		question *Question
		slot     AnswerSlot
	}{
		{
			name:     "text for a single-choice question",
			question: singleQuestion(1, 0, 1, 0, 0),
			slot:     AnswerSlot{AnswerText: "b"},
		},
		{
			name:     "index set for a single-choice question",
			question: singleQuestion(1, 0, 1, 0, 0),
			slot:     AnswerSlot{SelectedIndices: []int64{0}},
		},
		{
			name:     "index out of range",
			question: singleQuestion(1, 0, 1, 0, 0),
			slot:     AnswerSlot{SelectedIndex: indexp(17)},
		},
		{
			name: "single index for a multi-select question",
			question: &Question{
				Number: 1, Type: QuestionMultiple,
				Choices: []string{"a", "b"}, CorrectIndices: []int64{0},
			},
			slot: AnswerSlot{SelectedIndex: indexp(0)},
		},
		{
			name: "repeated index in a multi-select answer",
			question: &Question{
				Number: 1, Type: QuestionMultiple,
				Choices: []string{"a", "b"}, CorrectIndices: []int64{0},
			},
			slot: AnswerSlot{SelectedIndices: []int64{0, 0}},
		},
		{
			name:     "choice index for a text question",
			question: &Question{Number: 1, Type: QuestionShort},
			slot:     AnswerSlot{SelectedIndex: indexp(0)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := Evaluate(quiz, []*Question{tt.question}, 0, []AnswerSlot{tt.slot}, now)
			assert.Nil(t, sub)
			require.NotNil(t, err)
			assert.Equal(t, EvalMalformedAnswer, err.Kind)
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	quiz := &Quiz{ID: 1, CourseID: 1, Title: "repeatable"}
	questions := []*Question{
		singleQuestion(1, 2, 2.0, 0.0, 1.0),
		singleQuestion(2, 1, 2.0, 0.0, 1.0),
	}
	answers := []AnswerSlot{{SelectedIndex: indexp(2)}, {}}
	now := time.Now()

	first, err := Evaluate(quiz, questions, 0, answers, now)
	require.Nil(t, err)
	second, err := Evaluate(quiz, questions, 0, answers, now)
	require.Nil(t, err)
	assert.Equal(t, first, second)
}

func TestEvaluateSnapshotsTheQuestionBank(t *testing.T) {
	quiz := &Quiz{ID: 1, CourseID: 1, Title: "frozen"}
	question := singleQuestion(1, 2, 2.0, 0.0, 0.0)
	now := time.Now()

	sub, err := Evaluate(quiz, []*Question{question}, 0,
		[]AnswerSlot{{SelectedIndex: indexp(2)}}, now)
	require.Nil(t, err)
	assert.Equal(t, 2.0, sub.Possible)

	// a later edit to the question bank must not reach into the record
	question.Text = "rewritten"
	question.CorrectPoints = 100.0
	question.CorrectIndex = 0
	assert.Equal(t, "pick one", sub.Responses[0].Text)
	assert.Equal(t, 2.0, sub.Possible)
	assert.Equal(t, int64(2), *sub.Responses[0].CorrectIndex)
}
