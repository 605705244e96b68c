package queue

import "context"

// Store is an ordered set per scope: members are appointment IDs, scores are
// arrival ranks. Individual calls are atomic; sequences of calls are not.
type Store interface {
	// NextRank atomically issues the next arrival rank for the scope. Ranks
	// start at 0 and are never reused, so a removed member does not free its
	// rank and two concurrent callers never receive the same value.
	NextRank(ctx context.Context, scope Scope) (int64, error)
	// Enqueue inserts the member or re-scores it if already present.
	Enqueue(ctx context.Context, scope Scope, appointmentID string, rank int64) error
	// PositionOf returns the 1-based ordinal of the member, false when absent.
	PositionOf(ctx context.Context, scope Scope, appointmentID string) (int64, bool, error)
	// Remove deletes the member without renumbering the others.
	Remove(ctx context.Context, scope Scope, appointmentID string) error
	// Members lists the scope in ascending rank order.
	Members(ctx context.Context, scope Scope) ([]string, error)
	// Len returns the member count.
	Len(ctx context.Context, scope Scope) (int64, error)
}
