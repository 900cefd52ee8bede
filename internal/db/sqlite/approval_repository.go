package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yourorg/kysafety/internal/approval"
)

// ApprovalRepository implements approval.Store.
type ApprovalRepository struct {
	db  *gorm.DB
	now func() time.Time
}

var _ approval.Store = (*ApprovalRepository)(nil)

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db, now: time.Now}
}

func (r *ApprovalRepository) CreateEntry(ctx context.Context, value approval.KyEntry) (approval.KyEntry, error) {
	if value.ID == "" {
		value.ID = uuid.NewString()
	}
	now := r.now().UTC()
	m := KyEntryModel{
		ID:        value.ID,
		ProjectID: value.ProjectID,
		Title:     value.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&KyEntryModel{}).Where("id = ?", m.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return approval.ErrEntryExists
		}
		return tx.Create(&m).Error
	})
	if err != nil {
		return approval.KyEntry{}, storeErr(err)
	}
	return toEntry(m), nil
}

func (r *ApprovalRepository) GetEntry(ctx context.Context, id string) (approval.KyEntry, error) {
	m, err := findEntry(r.db.WithContext(ctx), id)
	if err != nil {
		return approval.KyEntry{}, err
	}
	return toEntry(m), nil
}

// Transition writes the flag and the log record in one transaction. With the
// single pooled connection, concurrent transitions on the same entry observe
// each other's records, so the chain and timestamps stay ordered.
func (r *ApprovalRepository) Transition(ctx context.Context, in approval.TransitionInput) (approval.TransitionResult, error) {
	if err := in.Validate(); err != nil {
		return approval.TransitionResult{}, err
	}

	var result approval.TransitionResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := findEntry(tx, in.EntryID)
		if err != nil {
			return err
		}
		if entry.ProjectID != in.ProjectID {
			return approval.ErrEntryNotFound
		}

		var prev *approval.ApprovalLogRecord
		latest := make([]ApprovalLogModel, 0, 1)
		if err := tx.Where("ky_entry_id = ?", in.EntryID).Order("seq DESC").Limit(1).Find(&latest).Error; err != nil {
			return err
		}
		if len(latest) == 1 {
			rec := toRecord(latest[0])
			prev = &rec
		}

		rec := approval.NewRecord(uuid.NewString(), in, prev, r.now())
		m := fromRecord(rec)
		if err := tx.Create(&m).Error; err != nil {
			return err
		}

		entry.IsApproved = in.Action == approval.ActionApprove
		entry.UpdatedAt = rec.CreatedAt
		if err := tx.Model(&KyEntryModel{}).Where("id = ?", entry.ID).Updates(map[string]any{
			"is_approved": entry.IsApproved,
			"updated_at":  entry.UpdatedAt,
		}).Error; err != nil {
			return err
		}

		result = approval.TransitionResult{Entry: toEntry(entry), Record: rec}
		return nil
	})
	if err != nil {
		return approval.TransitionResult{}, storeErr(err)
	}
	return result, nil
}

func (r *ApprovalRepository) DeleteEntry(ctx context.Context, id string) error {
	if err := approval.ValidateEntryID(id); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := findEntry(tx, id)
		if err != nil {
			return err
		}
		if entry.IsApproved {
			return approval.ErrApprovedEntryImmutable
		}
		return tx.Where("id = ?", id).Delete(&KyEntryModel{}).Error
	})
	return storeErr(err)
}

func (r *ApprovalRepository) ListLog(ctx context.Context, entryID string) ([]approval.ApprovalLogRecord, error) {
	rows := make([]ApprovalLogModel, 0)
	if err := r.db.WithContext(ctx).Where("ky_entry_id = ?", entryID).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, storeErr(err)
	}
	result := make([]approval.ApprovalLogRecord, 0, len(rows))
	for _, m := range rows {
		result = append(result, toRecord(m))
	}
	return result, nil
}

func findEntry(db *gorm.DB, id string) (KyEntryModel, error) {
	var m KyEntryModel
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return KyEntryModel{}, approval.ErrEntryNotFound
		}
		return KyEntryModel{}, storeErr(err)
	}
	return m, nil
}

func toEntry(m KyEntryModel) approval.KyEntry {
	return approval.KyEntry{
		ID:         m.ID,
		ProjectID:  m.ProjectID,
		Title:      m.Title,
		IsApproved: m.IsApproved,
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}

func toRecord(m ApprovalLogModel) approval.ApprovalLogRecord {
	return approval.ApprovalLogRecord{
		ID:        m.ID,
		KyEntryID: m.KyEntryID,
		ProjectID: m.ProjectID,
		ActorID:   m.ActorID,
		Action:    approval.Action(m.Action),
		Note:      m.Note,
		CreatedAt: m.CreatedAt.UTC(),
		PrevHash:  m.PrevHash,
		Hash:      m.Hash,
	}
}

func fromRecord(rec approval.ApprovalLogRecord) ApprovalLogModel {
	return ApprovalLogModel{
		ID:        rec.ID,
		KyEntryID: rec.KyEntryID,
		ProjectID: rec.ProjectID,
		ActorID:   rec.ActorID,
		Action:    string(rec.Action),
		Note:      rec.Note,
		CreatedAt: rec.CreatedAt,
		PrevHash:  rec.PrevHash,
		Hash:      rec.Hash,
	}
}
