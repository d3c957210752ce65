package attendance

import (
	"math"
	"time"
)

// Record is the attendance of one section, as submitted.
type Record struct {
	Section    string   `json:"section" validate:"required,notblank,max=150"`
	Present    int      `json:"present" validate:"min=0"`
	Absent     int      `json:"absent" validate:"min=0"`
	Excused    int      `json:"excused" validate:"min=0"`
	Total      int      `json:"total" validate:"min=0"`
	Percentage *float64 `json:"percentage" validate:"omitempty,min=0,max=100"`
}

// Batch is one attendance submission for a given day.
type Batch struct {
	Date    string   `json:"date" validate:"required,date"`
	Records []Record `json:"records" validate:"required,min=1,dive"`
}

// Entry is a stored attendance record, unique per (date, section).
type Entry struct {
	ID         int       `json:"id"`
	Date       string    `json:"date"`
	Section    string    `json:"section"`
	Present    int       `json:"present"`
	Absent     int       `json:"absent"`
	Excused    int       `json:"excused"`
	Total      int       `json:"total"`
	Percentage float64   `json:"percentage"`
	RecordedBy string    `json:"recorded_by"`
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

type HistoryFilter struct {
	From    string // inclusive, YYYY-MM-DD
	To      string // inclusive, YYYY-MM-DD
	Section string // case/whitespace-insensitive
}

type SectionStats struct {
	Section       string  `json:"section"`
	Sessions      int     `json:"sessions"`
	AvgPercentage float64 `json:"avg_percentage"`
	TotalPresent  int     `json:"total_present"`
	TotalAbsent   int     `json:"total_absent"`
	TotalExcused  int     `json:"total_excused"`
}

type Summary struct {
	TotalSessions  int     `json:"total_sessions"` // distinct dates
	TotalRecords   int     `json:"total_records"`
	OverallAverage float64 `json:"overall_average"`
}

type Analytics struct {
	Sections []SectionStats `json:"sections"`
	Summary  Summary        `json:"summary"`
}

// Round2 rounds to two decimals, the precision percentages are stored with.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}
