// Package actionlog keeps a bounded trail of front-desk actions
// (registrations, handoffs, payments, sign-ins) for the activity
// feed. Only the most recent entries are retained.
package actionlog

import (
	"context"
	"time"
)

// DefaultMax is how many entries the log retains.
const DefaultMax = 100

// Entry is a single logged action.
type Entry struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    string            `json:"action"`
	Actor     string            `json:"actor"`
	Role      string            `json:"role"`
	Details   map[string]string `json:"details,omitempty"`
}

// Recorder appends actions and serves the recent trail, newest first.
type Recorder interface {
	Record(ctx context.Context, e Entry)
	Recent(ctx context.Context, n int) ([]Entry, error)
}
