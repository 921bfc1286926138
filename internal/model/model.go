package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// QuestionType identifies which marking rules apply to a question.
type QuestionType string

const (
	// TypeMultipleChoice is a single-answer multiple choice question.
	TypeMultipleChoice QuestionType = "multiple_choice"
	// TypeShortAnswer is a free-text question marked by keyword coverage.
	TypeShortAnswer QuestionType = "short_answer"
	// TypeCalculation is a worked calculation with method and final answer marks.
	TypeCalculation QuestionType = "calculation"
)

// legacyTypes maps the short names used by older clients.
var legacyTypes = map[string]QuestionType{
	"mcq":   TypeMultipleChoice,
	"short": TypeShortAnswer,
	"calc":  TypeCalculation,
}

// ParseQuestionType returns the canonical type for a wire name.
func ParseQuestionType(s string) (QuestionType, error) {
	switch t := QuestionType(s); t {
	case TypeMultipleChoice, TypeShortAnswer, TypeCalculation:
		return t, nil
	}
	if t, ok := legacyTypes[s]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown question type %q", s)
}

// UnmarshalJSON accepts canonical and legacy type names.
func (t *QuestionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("question type: %w", err)
	}
	parsed, err := ParseQuestionType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Question represents an exam question including its marking data.
type Question struct {
	ID    string       `json:"id"`
	Type  QuestionType `json:"type"`
	Stem  string       `json:"stem"`
	Marks int          `json:"marks"`

	// Multiple choice.
	Options   []string `json:"options,omitempty"`
	AnswerKey string   `json:"answer_key,omitempty"`

	// Short answer.
	ExpectedKeywords []string `json:"expected_keywords,omitempty"`
	ModelAnswer      string   `json:"model_answer,omitempty"`

	// Calculation.
	StepsKeywords    []string `json:"steps_keywords,omitempty"`
	FinalAnswer      string   `json:"final_answer,omitempty"`
	FinalAnswerMarks int      `json:"final_answer_marks,omitempty"`
	ModelMethod      []string `json:"model_method,omitempty"`
}

// MethodMarks returns the share of a calculation's marks awarded for working.
func (q Question) MethodMarks() int {
	m := q.Marks - q.FinalAnswerMarks
	if m < 0 {
		return 0
	}
	return m
}

// QuestionView is the client-safe projection of a Question.
type QuestionView struct {
	ID      string       `json:"id"`
	Type    QuestionType `json:"type"`
	Stem    string       `json:"stem"`
	Marks   int          `json:"marks"`
	Options []string     `json:"options,omitempty"`
}

// Paper is the ordered set of questions presented to a candidate.
type Paper []Question

// TotalMarks returns the marks available across the paper.
func (p Paper) TotalMarks() int {
	total := 0
	for _, q := range p {
		total += q.Marks
	}
	return total
}

// Submission maps question id to the candidate's raw answer.
type Submission map[string]string

// Note is a feedback message identifier with its template data.
// Notes are rendered into text by the i18n package.
type Note struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data,omitempty"`
}

// QuestionResult holds the marks awarded for one question.
type QuestionResult struct {
	ID            string       `json:"id"`
	Index         int          `json:"q_index"`
	Type          QuestionType `json:"type"`
	Awarded       int          `json:"awarded"`
	MaxMarks      int          `json:"max_marks"`
	MethodAwarded *int         `json:"method_awarded,omitempty"`
	FinalAwarded  *int         `json:"final_awarded,omitempty"`
	Notes         []Note       `json:"notes,omitempty"`
	Feedback      string       `json:"feedback"`
}

// UnmarshalJSON decodes a stored result. Unlike a Question, an unrecognised
// type is kept as is rather than rejected.
func (r *QuestionResult) UnmarshalJSON(data []byte) error {
	type plain QuestionResult
	aux := struct {
		*plain
		Type string `json:"type"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if t, err := ParseQuestionType(aux.Type); err == nil {
		r.Type = t
	} else {
		r.Type = QuestionType(aux.Type)
	}
	return nil
}

// MarkResult is the outcome of marking a whole paper.
type MarkResult struct {
	AttemptID    string           `json:"attempt_id,omitempty"`
	Results      []QuestionResult `json:"results"`
	TotalAwarded int              `json:"total_awarded"`
	TotalMax     int              `json:"total_max"`
}

// PaperRequest carries the parameters of a paper request.
// All fields are optional and currently do not influence the paper.
type PaperRequest struct {
	Board   string   `json:"board"`
	Level   string   `json:"level"`
	Subject string   `json:"subject"`
	Topics  []string `json:"topics"`
}

// MarkRequest submits answers against the server's paper.
type MarkRequest struct {
	PaperRequest
	Answers Submission `json:"answers"`
}

// MarkBundle submits a full paper together with the answers to it.
type MarkBundle struct {
	Paper   Paper      `json:"paper"`
	Answers Submission `json:"answers"`
}

// Attempt is a marked submission kept in the history store.
type Attempt struct {
	ID        string       `json:"id"`
	Request   PaperRequest `json:"request"`
	Answers   Submission   `json:"answers"`
	Result    MarkResult   `json:"result"`
	CreatedAt time.Time    `json:"created_at"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	Lang        string   // default UI language for feedback
	CORSOrigins []string // allowed browser origins
	History     bool     // record marked attempts
}
