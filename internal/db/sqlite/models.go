package sqlite

import "time"

type KyEntryModel struct {
	ID         string `gorm:"primaryKey"`
	ProjectID  string `gorm:"not null;index"`
	Title      string `gorm:"not null;default:''"`
	IsApproved bool   `gorm:"not null;default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (KyEntryModel) TableName() string { return "ky_entries" }

// ApprovalLogModel rows are insert-only; Seq gives the append order.
type ApprovalLogModel struct {
	Seq       uint   `gorm:"primaryKey;autoIncrement"`
	ID        string `gorm:"not null;uniqueIndex"`
	KyEntryID string `gorm:"not null;index"`
	ProjectID string `gorm:"not null"`
	ActorID   *string
	Action    string `gorm:"not null"`
	Note      *string
	CreatedAt time.Time
	PrevHash  string `gorm:"not null;default:''"`
	Hash      string `gorm:"not null"`
}

func (ApprovalLogModel) TableName() string { return "approval_logs" }

type SessionModel struct {
	ID          string `gorm:"primaryKey"`
	ActorID     string `gorm:"not null"`
	ActorName   string `gorm:"not null;default:''"`
	TokenPrefix string `gorm:"not null;index"`
	TokenHash   string `gorm:"not null"`
	ExpiresAt   *time.Time
	RevokedAt   *time.Time
	CreatedAt   time.Time
}

func (SessionModel) TableName() string { return "sessions" }
