package core

import (
	"context"
)

// Reasoner defines the interface for the external AI judgment service
type Reasoner interface {
	// Judge evaluates message text against a rule's natural-language
	// instruction and returns a match decision with a confidence in [0,1]
	Judge(ctx context.Context, text string, prompt string) (*Verdict, error)
}

// MessageSource supplies message content by id
type MessageSource interface {
	FetchMessage(ctx context.Context, id string) (*Message, error)
}

// MessageMover performs folder moves through the external mail API
type MessageMover interface {
	MoveMessage(ctx context.Context, id string, destinationFolderID string) error
}

// RuleStore provides read access to the persisted rule set. Rule CRUD lives
// outside this service.
type RuleStore interface {
	// ListActive returns active rules, optionally restricted to the given
	// ids. Unknown ids yield a ValidationError.
	ListActive(ctx context.Context, ids []string) ([]Rule, error)
}

// HistoryStore persists executed classifications and serves aggregates
type HistoryStore interface {
	// Append stores a new history entry
	Append(ctx context.Context, entry *HistoryEntry) error

	// Recent returns up to limit entries, most recent first
	Recent(ctx context.Context, limit int) ([]HistoryEntry, error)

	// Stats derives aggregate counts from the stored entries
	Stats(ctx context.Context) (*Stats, error)
}

// ExecutionRegistry tracks message ids with an execution in flight so that
// overlapping execute calls cannot move the same message twice. In-process
// deployments use a mutex-backed registry; a distributed deployment would
// swap in a shared lock behind the same interface.
type ExecutionRegistry interface {
	// TryClaim atomically claims an id, returning false if it is already held
	TryClaim(id string) bool

	// Release frees a previously claimed id
	Release(id string)
}
