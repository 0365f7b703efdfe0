package model

import "time"

// SourceState is the fetch mode a source is in
type SourceState string

const (
	SourceStateFirstRun    SourceState = "first_run"
	SourceStateSteadyState SourceState = "steady_state"
)

// SourceCheckpoint is the per-source cursor used to bound re-fetching
type SourceCheckpoint struct {
	ID             uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	SourceID       string    `json:"source_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	Title          string    `json:"title" gorm:"type:varchar(255)"`
	LastItemID     int64     `json:"last_item_id" gorm:"not null;default:0"`
	ItemsSeenTotal int64     `json:"items_seen_total" gorm:"not null;default:0"`
	LastRunAt      time.Time `json:"last_run_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for SourceCheckpoint
func (SourceCheckpoint) TableName() string {
	return "source_checkpoints"
}

// StateOf maps a checkpoint lookup to the source state machine.
// A missing checkpoint means the source has never been advanced.
func StateOf(found bool) SourceState {
	if !found {
		return SourceStateFirstRun
	}
	return SourceStateSteadyState
}
