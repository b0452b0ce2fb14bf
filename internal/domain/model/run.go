package model

import (
	"strings"
	"time"
)

// Subtask identifies one of the two competition categories.
type Subtask string

// Supported subtasks.
const (
	SubtaskTag     Subtask = "tag"
	SubtaskCaption Subtask = "caption"
)

// Subtasks lists every supported subtask in display order.
var Subtasks = []Subtask{SubtaskTag, SubtaskCaption} //nolint:gochecknoglobals // fixed set

// ParseSubtask returns the subtask named by s and whether it is supported.
func ParseSubtask(s string) (Subtask, bool) {
	switch Subtask(strings.TrimSpace(s)) {
	case SubtaskTag:
		return SubtaskTag, true
	case SubtaskCaption:
		return SubtaskCaption, true
	}
	return "", false
}

// Run states. Negative values are errors reported by the scorer, zero is
// processing, positive values are validated runs.
const (
	StateProcessing = 0
	StateValid      = 1
)

// IsValidState reports whether state marks a validated run.
func IsValidState(state int) bool { return state > 0 }

// IsPendingState reports whether state marks a run still being scored.
func IsPendingState(state int) bool { return state == StateProcessing }

// IsErrorState reports whether state marks a run the scorer rejected.
func IsErrorState(state int) bool { return state < 0 }

// Run is a single submission by a user to one subtask.
type Run struct {
	Token        string
	Timestamp    int64 // client-supplied, milliseconds since epoch
	State        int
	Subtask      Subtask
	Score1       *float64
	Score2       *float64
	Score3       *float64
	Comment      string
	LastModified time.Time
}
