package model

import "time"

// HistoryExport is the top-level JSON structure for attempt history export.
type HistoryExport struct {
	ExportedAt  time.Time       `json:"exported_at"`
	NumAttempts int             `json:"num_attempts"`
	MeanAwarded float64         `json:"mean_awarded"`
	TotalMax    int             `json:"total_max"`
	Attempts    []Attempt       `json:"attempts"`
	Questions   []QuestionStats `json:"questions"`
}

// QuestionStats summarises marks for one question across attempts.
type QuestionStats struct {
	ID          string  `json:"id"`
	MaxMarks    int     `json:"max_marks"`
	MeanAwarded float64 `json:"mean_awarded"`
	FullMarks   int     `json:"full_marks"`
}
