package types

// QuizBundle carries a quiz together with its questions, used to create or
// export a quiz in a single request. Questions are in quiz order.
type QuizBundle struct {
	Quiz      *Quiz             `json:"quiz"`
	Questions []*QuestionUpload `json:"questions"`
}

// SubmissionUpload is the payload for submitting a quiz attempt: one
// answer slot per question in quiz order.
type SubmissionUpload struct {
	Answers []AnswerSlot `json:"answers"`
}

// QuizExport is the full record of a quiz written out by the export
// command: the quiz, its question bank, and every stored submission.
type QuizExport struct {
	Quiz        *Quiz         `json:"quiz"`
	Questions   []*Question   `json:"questions"`
	Submissions []*Submission `json:"submissions"`
}
