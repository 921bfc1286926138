package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/examcoach/internal/model"
)

// ExportHistory builds an export of all attempts, oldest first, with
// per-question averages.
func (s *Store) ExportHistory() (model.HistoryExport, error) {
	attempts, err := s.ListAttempts(0)
	if err != nil {
		return model.HistoryExport{}, fmt.Errorf("list attempts: %w", err)
	}
	// ListAttempts returns newest first.
	for i, j := 0, len(attempts)-1; i < j; i, j = i+1, j-1 {
		attempts[i], attempts[j] = attempts[j], attempts[i]
	}

	export := model.HistoryExport{
		ExportedAt:  time.Now().UTC(),
		NumAttempts: len(attempts),
		Attempts:    attempts,
	}
	if len(attempts) == 0 {
		return export, nil
	}

	// Track per-question stats in first-seen order.
	var order []string
	stats := make(map[string]*model.QuestionStats)
	sums := make(map[string]int)
	seen := make(map[string]int)
	totalAwarded := 0

	for _, a := range attempts {
		totalAwarded += a.Result.TotalAwarded
		if a.Result.TotalMax > export.TotalMax {
			export.TotalMax = a.Result.TotalMax
		}
		for _, r := range a.Result.Results {
			st, ok := stats[r.ID]
			if !ok {
				st = &model.QuestionStats{ID: r.ID, MaxMarks: r.MaxMarks}
				stats[r.ID] = st
				order = append(order, r.ID)
			}
			sums[r.ID] += r.Awarded
			seen[r.ID]++
			if r.MaxMarks > 0 && r.Awarded == r.MaxMarks {
				st.FullMarks++
			}
		}
	}

	export.MeanAwarded = float64(totalAwarded) / float64(len(attempts))
	for _, id := range order {
		st := stats[id]
		st.MeanAwarded = float64(sums[id]) / float64(seen[id])
		export.Questions = append(export.Questions, *st)
	}
	return export, nil
}
