// Package types contains the reply shapes returned by the service and
// serialised by the HTTP adapter.
package types

// Reply is the user-facing title and message attached to every outcome.
type Reply struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Registration is returned when a user registers.
type Registration struct {
	Reply
	Token string `json:"token"`
}

// UserDetails is returned by a token lookup.
type UserDetails struct {
	Reply
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Entry is a leaderboard row.
type Entry struct {
	Verified  bool     `json:"verified"`
	Name      string   `json:"name"`
	Timestamp int64    `json:"timestamp"`
	Time      string   `json:"time"`
	State     int      `json:"state"`
	Score1    *float64 `json:"score1,omitempty"`
	Score2    *float64 `json:"score2,omitempty"`
	Score3    *float64 `json:"score3,omitempty"`
	Comment   string   `json:"comment"`
}

// Leaderboard is the reply for a leaderboard request.
type Leaderboard struct {
	Reply
	Valid   []Entry `json:"valid"`
	Active  []Entry `json:"active"`
	Invalid []Entry `json:"invalid"`
}

// RunUpdate is the scorer's verdict on a run.
type RunUpdate struct {
	Token     string   `json:"token"`
	Timestamp int64    `json:"timestamp"`
	State     int      `json:"state"`
	Subtask   string   `json:"subtask"`
	Score1    *float64 `json:"score1"`
	Score2    *float64 `json:"score2"`
	Score3    *float64 `json:"score3"`
	Comment   string   `json:"comment"`
}
