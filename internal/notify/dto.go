package notify

import (
	"time"

	"github.com/tphakala/catchsync/internal/catchsync"
)

// PassEventDTO is the payload published after every sync pass.
//
// Field names are part of the published contract; add fields, do not rename.
type PassEventDTO struct {
	UserID         string    `json:"userId"`
	StartedAt      time.Time `json:"startedAt"`
	DurationMs     int64     `json:"durationMs"`
	Attempted      int       `json:"attempted"`
	Created        int       `json:"created"`
	Reconciled     int       `json:"reconciled"`
	Synced         int       `json:"synced"`
	Failed         int       `json:"failed"`
	SkippedMissing int       `json:"skippedMissing"`
	// Pending counts records still waiting after the pass.
	Pending int `json:"pending"`
}

// NewPassEventDTO converts a pass result into its published form.
func NewPassEventDTO(uid string, r *catchsync.Result) PassEventDTO {
	return PassEventDTO{
		UserID:         uid,
		StartedAt:      r.StartedAt.UTC(),
		DurationMs:     r.Duration.Milliseconds(),
		Attempted:      r.Attempted,
		Created:        r.Created,
		Reconciled:     r.Reconciled,
		Synced:         r.Synced,
		Failed:         r.Failed,
		SkippedMissing: r.SkippedMissing,
		Pending:        r.Attempted - r.Synced,
	}
}
