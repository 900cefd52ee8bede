package sqlite

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/yourorg/kysafety/internal/auth"
)

// SessionRepository implements auth.SessionStore.
type SessionRepository struct {
	db *gorm.DB
}

var _ auth.SessionStore = (*SessionRepository)(nil)

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) CreateSession(ctx context.Context, s auth.Session) error {
	m := SessionModel{
		ID:          s.ID,
		ActorID:     s.ActorID,
		ActorName:   s.ActorName,
		TokenPrefix: s.TokenPrefix,
		TokenHash:   s.TokenHash,
		ExpiresAt:   s.ExpiresAt,
		RevokedAt:   s.RevokedAt,
		CreatedAt:   s.CreatedAt,
	}
	return storeErr(r.db.WithContext(ctx).Create(&m).Error)
}

func (r *SessionRepository) FindByPrefix(ctx context.Context, prefix string) ([]auth.Session, error) {
	rows := make([]SessionModel, 0)
	if err := r.db.WithContext(ctx).Where("token_prefix = ?", prefix).Find(&rows).Error; err != nil {
		return nil, storeErr(err)
	}
	result := make([]auth.Session, 0, len(rows))
	for _, m := range rows {
		result = append(result, toSession(m))
	}
	return result, nil
}

func (r *SessionRepository) GetSession(ctx context.Context, id string) (auth.Session, error) {
	var m SessionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return auth.Session{}, auth.ErrSessionNotFound
		}
		return auth.Session{}, storeErr(err)
	}
	return toSession(m), nil
}

func (r *SessionRepository) RevokeSession(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&SessionModel{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at.UTC())
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		// Already revoked, or unknown.
		_, err := r.GetSession(ctx, id)
		return err
	}
	return nil
}

func toSession(m SessionModel) auth.Session {
	s := auth.Session{
		ID:          m.ID,
		ActorID:     m.ActorID,
		ActorName:   m.ActorName,
		TokenPrefix: m.TokenPrefix,
		TokenHash:   m.TokenHash,
		CreatedAt:   m.CreatedAt.UTC(),
	}
	if m.ExpiresAt != nil {
		t := m.ExpiresAt.UTC()
		s.ExpiresAt = &t
	}
	if m.RevokedAt != nil {
		t := m.RevokedAt.UTC()
		s.RevokedAt = &t
	}
	return s
}
