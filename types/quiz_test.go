package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointsp(f float64) *float64 {
	return &f
}

func TestQuestionUploadDefaults(t *testing.T) {
	tests := []struct {
		name    string
		upload  QuestionUpload
		correct float64
		wrong   float64
		skip    float64
	}{
		{
			name:    "all defaults",
			upload:  QuestionUpload{Type: QuestionShort, Text: "q"},
			correct: 1.0, wrong: 0.0, skip: 0.0,
		},
		{
			name: "explicit values kept",
			upload: QuestionUpload{
				Type: QuestionShort, Text: "q",
				CorrectPoints: pointsp(5.0), WrongPoints: pointsp(-1.0), SkipPoints: pointsp(0.5),
			},
			correct: 5.0, wrong: -1.0, skip: 0.5,
		},
		{
			name: "explicit zero correct points is not re-defaulted",
			upload: QuestionUpload{
				Type: QuestionShort, Text: "q",
				CorrectPoints: pointsp(0.0),
			},
			correct: 0.0, wrong: 0.0, skip: 0.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.upload.Question()
			assert.Equal(t, tt.correct, q.CorrectPoints)
			assert.Equal(t, tt.wrong, q.WrongPoints)
			assert.Equal(t, tt.skip, q.SkipPoints)
		})
	}
}

func TestQuizNormalize(t *testing.T) {
	now := time.Now()
	valid := func() *Quiz {
		return &Quiz{
			CourseID:  1,
			Title:     "  Midterm  ",
			CreatedAt: now.Add(-time.Hour),
			UpdatedAt: now.Add(-time.Hour),
		}
	}

	t.Run("trims the title", func(t *testing.T) {
		quiz := valid()
		require.NoError(t, quiz.Normalize(now))
		assert.Equal(t, "Midterm", quiz.Title)
	})

	t.Run("rejects a malformed window", func(t *testing.T) {
		quiz := valid()
		quiz.AvailableFrom = "soonish"
		assert.Error(t, quiz.Normalize(now))
	})

	t.Run("rejects a window that closes before it opens", func(t *testing.T) {
		quiz := valid()
		quiz.AvailableFrom = "2025-03-08T09:00:00Z"
		quiz.AvailableUntil = "2025-03-01T09:00:00Z"
		assert.Error(t, quiz.Normalize(now))
	})

	t.Run("rejects negative limits", func(t *testing.T) {
		quiz := valid()
		quiz.MaxAttempts = -1
		assert.Error(t, quiz.Normalize(now))

		quiz = valid()
		quiz.TimeLimitMinutes = -5
		assert.Error(t, quiz.Normalize(now))
	})

	t.Run("rejects an empty title", func(t *testing.T) {
		quiz := valid()
		quiz.Title = "   "
		assert.Error(t, quiz.Normalize(now))
	})
}

func TestQuestionNormalize(t *testing.T) {
	now := time.Now()
	base := func(typ string) *Question {
		return &Question{
			QuizID:    1,
			Number:    1,
			Type:      typ,
			Text:      "what is it?",
			CreatedAt: now.Add(-time.Hour),
			UpdatedAt: now.Add(-time.Hour),
		}
	}

	t.Run("single choice needs enough choices", func(t *testing.T) {
		q := base(QuestionSingle)
		q.Choices = []string{"only one"}
		assert.Error(t, q.Normalize(now))
	})

	t.Run("single choice index must be in range", func(t *testing.T) {
		q := base(QuestionSingle)
		q.Choices = []string{"a", "b"}
		q.CorrectIndex = 2
		assert.Error(t, q.Normalize(now))
	})

	t.Run("single choice clears fields for other types", func(t *testing.T) {
		q := base(QuestionSingle)
		q.Choices = []string{"a", "b"}
		q.CorrectIndex = 1
		q.CorrectIndices = []int64{0}
		q.ExpectedAnswer = "b"
		require.NoError(t, q.Normalize(now))
		assert.Nil(t, q.CorrectIndices)
		assert.Empty(t, q.ExpectedAnswer)
		assert.NotEmpty(t, q.HTML)
	})

	t.Run("multiple choice sorts and validates indices", func(t *testing.T) {
		q := base(QuestionMultiple)
		q.Choices = []string{"a", "b", "c"}
		q.CorrectIndices = []int64{2, 0}
		require.NoError(t, q.Normalize(now))
		assert.Equal(t, []int64{0, 2}, q.CorrectIndices)
	})

	t.Run("multiple choice rejects a repeated index", func(t *testing.T) {
		q := base(QuestionMultiple)
		q.Choices = []string{"a", "b"}
		q.CorrectIndices = []int64{1, 1}
		assert.Error(t, q.Normalize(now))
	})

	t.Run("text questions cannot carry choices", func(t *testing.T) {
		q := base(QuestionShort)
		q.Choices = []string{"a", "b"}
		assert.Error(t, q.Normalize(now))
	})

	t.Run("unknown type", func(t *testing.T) {
		q := base("essay")
		assert.Error(t, q.Normalize(now))
	})
}

func TestQuestionHideKey(t *testing.T) {
	q := &Question{
		Type:           QuestionMultiple,
		Choices:        []string{"a", "b"},
		CorrectIndex:   1,
		CorrectIndices: []int64{0, 1},
		ExpectedAnswer: "secret",
		Explanation:    "because",
	}
	q.HideKey()
	assert.Zero(t, q.CorrectIndex)
	assert.Nil(t, q.CorrectIndices)
	assert.Empty(t, q.ExpectedAnswer)
	assert.Empty(t, q.Explanation)
	assert.Equal(t, []string{"a", "b"}, q.Choices, "choices stay visible")
}

func TestSubmissionHiding(t *testing.T) {
	keyIndex := int64(1)
	sub := &Submission{
		Earned:   3.0,
		Possible: 4.0,
		Responses: []*SubmissionResponse{
			{
				Number:         1,
				Correct:        true,
				Awarded:        3.0,
				CorrectIndex:   &keyIndex,
				ExpectedAnswer: "secret",
				Explanation:    "because",
			},
		},
	}

	sub.HideKey()
	assert.False(t, sub.Responses[0].Correct)
	assert.Zero(t, sub.Responses[0].Awarded)
	assert.Nil(t, sub.Responses[0].CorrectIndex)
	assert.Empty(t, sub.Responses[0].ExpectedAnswer)
	assert.Empty(t, sub.Responses[0].Explanation)
	assert.Equal(t, 3.0, sub.Earned, "HideKey leaves the totals alone")

	sub.HideScore()
	assert.Zero(t, sub.Earned)
	assert.Zero(t, sub.Possible)
}
