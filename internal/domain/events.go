package domain

import "time"

// Notification types
const (
	EventTypeMovementCreated     = "movement.created"
	EventTypeMovementSplit       = "movement.split"
	EventTypeMovementSplitUpdate = "movement.split_updated"
	EventTypeMovementUnsplit     = "movement.unsplit"
	EventTypeMovementDistributed = "movement.distributed"
	EventTypeMovementDeleted     = "movement.deleted"
)

// ChangeNotification is broadcast to listeners of every affected area after
// a mutation commits.
type ChangeNotification struct {
	Type       string         `json:"type"`
	MovementID string         `json:"movement_id"`
	AreaIDs    []string       `json:"area_ids"`
	Amount     int64          `json:"amount"`
	Currency   string         `json:"currency"`
	OccurredAt time.Time      `json:"occurred_at"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// AddArea appends areaID to the notification scope if not already present.
func (n *ChangeNotification) AddArea(areaID string) {
	for _, id := range n.AreaIDs {
		if id == areaID {
			return
		}
	}
	n.AreaIDs = append(n.AreaIDs, areaID)
}
