package domain

import "time"

// HistoryAction tags a MovementHistory entry.
type HistoryAction string

const (
	HistoryActionCreate     HistoryAction = "CREATE"
	HistoryActionSplit      HistoryAction = "SPLIT"
	HistoryActionDistribute HistoryAction = "DISTRIBUTE"
	HistoryActionDelete     HistoryAction = "DELETE"
)

// MovementHistory is an append-only audit entry for one mutating operation.
type MovementHistory struct {
	ID         string
	MovementID string
	UserID     string
	Action     HistoryAction
	Comment    string
	CreatedAt  time.Time
}
