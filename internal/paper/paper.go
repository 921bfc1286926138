// Package paper builds the exam paper presented to candidates.
package paper

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/pavelanni/examcoach/internal/model"
)

// Question identifiers of the fixed paper.
const (
	IDPhotosynthesis = "q1"
	IDOsmosis        = "q2"
	IDEnergy         = "q3"
)

var fixed = model.Paper{
	{
		ID:    IDPhotosynthesis,
		Type:  model.TypeMultipleChoice,
		Stem:  "Which process converts light energy into chemical energy in plants?",
		Marks: 1,
		Options: []string{
			"A. Photosynthesis",
			"B. Respiration",
			"C. Osmosis",
			"D. Fermentation",
		},
		AnswerKey: "A",
	},
	{
		ID:               IDOsmosis,
		Type:             model.TypeShortAnswer,
		Stem:             "Define osmosis.",
		Marks:            3,
		ExpectedKeywords: []string{"diffusion", "water", "partially permeable membrane"},
		ModelAnswer:      "Diffusion of water through a partially permeable membrane.",
	},
	{
		ID:   IDEnergy,
		Type: model.TypeCalculation,
		Stem: "A 2 kg mass is lifted 1.5 m in a gravitational field where g = 9.8 m/s². " +
			"Calculate the increase in gravitational potential energy (GPE).",
		Marks:            6,
		StepsKeywords:    []string{"GPE = mgh", "2×9.8×1.5"},
		FinalAnswer:      "29.4 J",
		FinalAnswerMarks: 2,
		ModelMethod: []string{
			"Use GPE = mgh",
			"m = 2 kg",
			"g = 9.8 m/s²",
			"h = 1.5 m",
			"GPE = 2×9.8×1.5 = 29.4 J",
		},
	},
}

// Generate returns the exam paper for the request. The request parameters
// are accepted for forward compatibility and do not change the paper.
// Callers own the returned paper.
func Generate(_ model.PaperRequest) model.Paper {
	return clone(fixed)
}

// Views projects a paper to what a candidate may see.
func Views(p model.Paper) []model.QuestionView {
	views := make([]model.QuestionView, 0, len(p))
	for _, q := range p {
		views = append(views, model.QuestionView{
			ID:      q.ID,
			Type:    q.Type,
			Stem:    q.Stem,
			Marks:   q.Marks,
			Options: slices.Clone(q.Options),
		})
	}
	return views
}

// Normalize fills in what older clients leave out of a paper. A blank id
// becomes the question's zero-based position, or "<pos>-<n>" when another
// question already uses that id. A calculation with a final answer but no
// final answer marks gets one mark for it.
func Normalize(p model.Paper) {
	taken := make(map[string]bool, len(p))
	for _, q := range p {
		if q.ID != "" {
			taken[q.ID] = true
		}
	}
	for i := range p {
		q := &p[i]
		if q.ID == "" {
			id := strconv.Itoa(i)
			for n := 2; taken[id]; n++ {
				id = fmt.Sprintf("%d-%d", i, n)
			}
			q.ID = id
			taken[id] = true
		}
		if q.Type == model.TypeCalculation && q.FinalAnswer != "" && q.FinalAnswerMarks == 0 && q.Marks > 0 {
			q.FinalAnswerMarks = 1
		}
	}
}

// Validate checks a client-supplied paper before it is marked.
func Validate(p model.Paper) error {
	if len(p) == 0 {
		return errors.New("paper has no questions")
	}
	seen := make(map[string]bool, len(p))
	var errs []error
	for i, q := range p {
		if q.ID == "" {
			errs = append(errs, fmt.Errorf("question %d: id is required", i))
		} else if seen[q.ID] {
			errs = append(errs, fmt.Errorf("question %d: duplicate id %q", i, q.ID))
		}
		seen[q.ID] = true

		if _, err := model.ParseQuestionType(string(q.Type)); err != nil {
			errs = append(errs, fmt.Errorf("question %d: %w", i, err))
		}
		if q.Marks <= 0 {
			errs = append(errs, fmt.Errorf("question %d: marks must be positive", i))
		}
		if q.FinalAnswerMarks < 0 || q.FinalAnswerMarks > q.Marks {
			errs = append(errs, fmt.Errorf("question %d: final_answer_marks must be between 0 and marks", i))
		}
	}
	return errors.Join(errs...)
}

func clone(p model.Paper) model.Paper {
	out := make(model.Paper, len(p))
	for i, q := range p {
		q.Options = slices.Clone(q.Options)
		q.ExpectedKeywords = slices.Clone(q.ExpectedKeywords)
		q.StepsKeywords = slices.Clone(q.StepsKeywords)
		q.ModelMethod = slices.Clone(q.ModelMethod)
		out[i] = q
	}
	return out
}
