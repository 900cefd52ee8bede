// Package approval is the authoritative state machine for KY entry sign-off
// and its append-only audit log.
//
// KyEntry.IsApproved is a cache of the latest ApprovalLogRecord. Stores write
// the flag and the record in one atomic unit so readers never see one
// without the other.
package approval

import (
	"context"
	"time"

	"github.com/yourorg/kysafety/internal/errs"
)

// Action is a sign-off transition.
type Action string

const (
	ActionApprove   Action = "approve"
	ActionUnapprove Action = "unapprove"
)

// Valid reports whether a is one of the two enumerated actions.
func (a Action) Valid() bool {
	return a == ActionApprove || a == ActionUnapprove
}

var (
	ErrEntryNotFound          = errs.New(errs.KindNotFound, "ENTRY_NOT_FOUND", "ky entry not found")
	ErrApprovedEntryImmutable = errs.New(errs.KindInvariant, "APPROVED_ENTRY_IMMUTABLE", "approved ky entry cannot be deleted; unapprove it first")
	ErrEntryExists            = errs.New(errs.KindInvariant, "ENTRY_EXISTS", "a ky entry with this id already exists")
)

// KyEntry is a danger-prediction record for one work task.
type KyEntry struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	Title      string    `json:"title"`
	IsApproved bool      `json:"isApproved"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ApprovalLogRecord is one immutable sign-off event.
type ApprovalLogRecord struct {
	ID        string    `json:"id"`
	KyEntryID string    `json:"kyEntryId"`
	ProjectID string    `json:"projectId"`
	ActorID   *string   `json:"actorId,omitempty"`
	Action    Action    `json:"action"`
	Note      *string   `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	PrevHash  string    `json:"prevHash"`
	Hash      string    `json:"hash"`
}

// TransitionInput requests an approve or unapprove.
type TransitionInput struct {
	EntryID   string
	ProjectID string
	Action    Action
	ActorID   *string
	Note      *string
}

// TransitionResult is the committed outcome of a transition.
type TransitionResult struct {
	Entry  KyEntry           `json:"entry"`
	Record ApprovalLogRecord `json:"record"`
}

// IsApproved is the entry state after the transition.
func (r TransitionResult) IsApproved() bool { return r.Entry.IsApproved }

// Store persists entries and the approval log.
type Store interface {
	// CreateEntry inserts an unapproved entry, assigning ID and timestamps when empty.
	CreateEntry(ctx context.Context, entry KyEntry) (KyEntry, error)
	// GetEntry returns ErrEntryNotFound for an unknown id.
	GetEntry(ctx context.Context, id string) (KyEntry, error)
	// Transition sets IsApproved and appends a log record atomically.
	Transition(ctx context.Context, in TransitionInput) (TransitionResult, error)
	// DeleteEntry removes an unapproved entry. Log records are kept.
	DeleteEntry(ctx context.Context, id string) error
	// ListLog returns the entry's records oldest first.
	ListLog(ctx context.Context, entryID string) ([]ApprovalLogRecord, error)
}
