package approval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// NewRecord builds the record appended for in. prev is the entry's latest
// record or nil. createdAt is now, bumped past prev so timestamps are
// strictly increasing per entry.
func NewRecord(id string, in TransitionInput, prev *ApprovalLogRecord, now time.Time) ApprovalLogRecord {
	createdAt := now.UTC()
	rec := ApprovalLogRecord{
		ID:        id,
		KyEntryID: in.EntryID,
		ProjectID: in.ProjectID,
		ActorID:   in.ActorID,
		Action:    in.Action,
		Note:      in.Note,
	}
	if prev != nil {
		if !createdAt.After(prev.CreatedAt) {
			createdAt = prev.CreatedAt.UTC().Add(time.Microsecond)
		}
		rec.PrevHash = prev.Hash
	}
	rec.CreatedAt = createdAt
	rec.Hash = hashRecord(rec)
	return rec
}

// VerifyChain recomputes the hash chain of one entry's records, oldest first.
func VerifyChain(records []ApprovalLogRecord) error {
	prevHash := ""
	for i, rec := range records {
		if rec.PrevHash != prevHash {
			return fmt.Errorf("record %d (%s): prevHash mismatch", i, rec.ID)
		}
		if want := hashRecord(rec); rec.Hash != want {
			return fmt.Errorf("record %d (%s): hash mismatch", i, rec.ID)
		}
		prevHash = rec.Hash
	}
	return nil
}

func hashRecord(rec ApprovalLogRecord) string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s",
		rec.ID, rec.KyEntryID, rec.ProjectID, deref(rec.ActorID), rec.Action, deref(rec.Note),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.PrevHash)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
