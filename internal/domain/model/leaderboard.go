package model

import "strings"

// Sort is the ranking direction applied to score1.
type Sort string

// Supported sort directions.
const (
	SortAsc  Sort = "ASC"
	SortDesc Sort = "DESC"
)

// ParseSort accepts "asc"/"desc" in any case.
func ParseSort(s string) (Sort, bool) {
	switch Sort(strings.ToUpper(strings.TrimSpace(s))) {
	case SortAsc:
		return SortAsc, true
	case SortDesc:
		return SortDesc, true
	}
	return "", false
}

// LeaderboardQuery selects a leaderboard. Callers validate it first.
type LeaderboardQuery struct {
	Subtask Subtask
	Sort    Sort
	Limit   int
}

// Standing is one row of a leaderboard list, one per user.
type Standing struct {
	Verified  bool
	Name      string
	Timestamp int64
	State     int
	Score1    *float64
	Score2    *float64
	Score3    *float64
	Comment   string
}

// Leaderboard groups the three disjoint per-user lists of a subtask.
type Leaderboard struct {
	Valid   []Standing
	Active  []Standing
	Invalid []Standing
}

// SnapshotEntry is a user joined with one of their runs. Run is nil for
// users without any run.
type SnapshotEntry struct {
	Name  string
	Email string
	Token string
	Run   *Run
}
