package approval

import (
	"strings"
	"unicode/utf8"

	"github.com/yourorg/kysafety/internal/errs"
)

const maxNoteLength = 1000

// Validate checks the input before any store access.
func (in TransitionInput) Validate() error {
	fields := make([]errs.FieldError, 0)
	if strings.TrimSpace(in.EntryID) == "" {
		fields = append(fields, errs.FieldError{Code: "KY-APR-001", Path: "kyEntryId", Message: "kyEntryId is required"})
	}
	if strings.TrimSpace(in.ProjectID) == "" {
		fields = append(fields, errs.FieldError{Code: "KY-APR-002", Path: "projectId", Message: "projectId is required"})
	}
	if !in.Action.Valid() {
		fields = append(fields, errs.FieldError{Code: "KY-APR-003", Path: "action", Message: "action must be approve or unapprove"})
	}
	if in.Note != nil && utf8.RuneCountInString(*in.Note) > maxNoteLength {
		fields = append(fields, errs.FieldError{Code: "KY-APR-004", Path: "note", Message: "note too long"})
	}
	if len(fields) > 0 {
		return errs.Validation(fields)
	}
	return nil
}

// ValidateEntryID rejects a blank entry id.
func ValidateEntryID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errs.Validation([]errs.FieldError{{Code: "KY-APR-001", Path: "kyEntryId", Message: "kyEntryId is required"}})
	}
	return nil
}
