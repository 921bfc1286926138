// Package marker scores a submission against an exam paper.
//
// Each question type has its own strategy. Strategies never fail on a
// candidate's answer: blank, missing or nonsensical answers score zero.
// The only error Mark returns is for a question type with no strategy,
// which means the paper itself is broken.
package marker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pavelanni/examcoach/internal/model"
)

// ErrUnknownQuestionType is returned when a paper contains a question the
// marker has no rules for.
var ErrUnknownQuestionType = errors.New("unknown question type")

// Feedback note identifiers. They double as translation message IDs.
const (
	NoteNoAnswer            = "NoAnswer"
	NoteCorrectChoice       = "CorrectChoice"
	NoteCorrectAnswerIs     = "CorrectAnswerIs"
	NoteKeywordsFound       = "KeywordsFound"
	NoteMissingKeywords     = "MissingKeywords"
	NoteModelAnswer         = "ModelAnswer"
	NoteMethodCredited      = "MethodCredited"
	NoteMethodMissing       = "MethodMissing"
	NoteFinalAnswerCorrect  = "FinalAnswerCorrect"
	NoteExpectedFinalAnswer = "ExpectedFinalAnswer"
	NoteModelMethod         = "ModelMethod"
)

// outcome is what a strategy awards for a single answer.
type outcome struct {
	awarded int
	method  *int
	final   *int
	notes   []model.Note
}

type strategy interface {
	mark(q model.Question, answer string) outcome
}

var strategies = map[model.QuestionType]strategy{
	model.TypeMultipleChoice: multipleChoice{},
	model.TypeShortAnswer:    shortAnswer{},
	model.TypeCalculation:    calculation{},
}

// Mark scores every question of p against s.
// Answers are looked up by question id, falling back to the question's
// zero-based position for clients that key answers by index.
// Multiple choice answers must equal the key exactly, with no trimming or
// case folding.
func Mark(p model.Paper, s model.Submission) (model.MarkResult, error) {
	res := model.MarkResult{Results: make([]model.QuestionResult, 0, len(p))}
	for i, q := range p {
		st, ok := strategies[q.Type]
		if !ok {
			return model.MarkResult{}, fmt.Errorf("question %q: %w %q", q.ID, ErrUnknownQuestionType, q.Type)
		}

		answer := lookup(s, q.ID, i)
		out := st.mark(q, answer)
		if strings.TrimSpace(answer) == "" {
			out.notes = append([]model.Note{{ID: NoteNoAnswer}}, out.notes...)
		}

		qr := model.QuestionResult{
			ID:            q.ID,
			Index:         i,
			Type:          q.Type,
			Awarded:       clamp(out.awarded, 0, q.Marks),
			MaxMarks:      q.Marks,
			MethodAwarded: out.method,
			FinalAwarded:  out.final,
			Notes:         out.notes,
		}
		res.Results = append(res.Results, qr)
		res.TotalAwarded += qr.Awarded
		res.TotalMax += q.Marks
	}
	return res, nil
}

func lookup(s model.Submission, id string, index int) string {
	if v, ok := s[id]; ok {
		return v
	}
	return s[strconv.Itoa(index)]
}

// --- Strategies ---

type multipleChoice struct{}

func (multipleChoice) mark(q model.Question, answer string) outcome {
	if q.AnswerKey != "" && answer == q.AnswerKey {
		return outcome{
			awarded: q.Marks,
			notes:   []model.Note{{ID: NoteCorrectChoice}},
		}
	}
	return outcome{
		notes: []model.Note{{ID: NoteCorrectAnswerIs, Data: map[string]any{"Key": q.AnswerKey}}},
	}
}

type shortAnswer struct{}

func (shortAnswer) mark(q model.Question, answer string) outcome {
	found, missing := coverage(answer, q.ExpectedKeywords)
	total := found + len(missing)

	var out outcome
	if total > 0 {
		out.awarded = proportional(found, total, q.Marks)
	}
	out.notes = append(out.notes, model.Note{
		ID:   NoteKeywordsFound,
		Data: map[string]any{"Count": found, "Total": total},
	})
	if len(missing) > 0 {
		out.notes = append(out.notes, model.Note{
			ID:   NoteMissingKeywords,
			Data: map[string]any{"Keywords": summarize(missing, 3)},
		})
	}
	if q.ModelAnswer != "" {
		out.notes = append(out.notes, model.Note{
			ID:   NoteModelAnswer,
			Data: map[string]any{"Answer": q.ModelAnswer},
		})
	}
	return out
}

type calculation struct{}

func (calculation) mark(q model.Question, answer string) outcome {
	method, final := 0, 0
	var notes []model.Note

	found, _ := coverage(answer, q.StepsKeywords)
	if found > 0 {
		method = q.MethodMarks()
		notes = append(notes, model.Note{ID: NoteMethodCredited})
	} else {
		notes = append(notes, model.Note{ID: NoteMethodMissing})
	}

	if finalAnswerMatches(answer, q.FinalAnswer) {
		final = q.FinalAnswerMarks
		notes = append(notes, model.Note{ID: NoteFinalAnswerCorrect})
	} else if q.FinalAnswer != "" {
		notes = append(notes, model.Note{
			ID:   NoteExpectedFinalAnswer,
			Data: map[string]any{"Answer": q.FinalAnswer},
		})
	}

	if len(q.ModelMethod) > 0 {
		notes = append(notes, model.Note{
			ID:   NoteModelMethod,
			Data: map[string]any{"Steps": strings.Join(q.ModelMethod, " | ")},
		})
	}

	method = clamp(method, 0, q.MethodMarks())
	final = clamp(final, 0, q.FinalAnswerMarks)
	return outcome{
		awarded: method + final,
		method:  &method,
		final:   &final,
		notes:   notes,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
