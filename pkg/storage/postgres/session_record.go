package postgres

import (
	"time"

	"github.com/google/uuid"
)

// SessionRecord is one closed feed connection stored in the database.
type SessionRecord struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	RemoteAddr string `gorm:"type:text;not null"`

	ConnectedAt    time.Time  `gorm:"not null"`
	SubscribedAt   *time.Time `gorm:""`
	DisconnectedAt time.Time  `gorm:"not null;index:idx_session_disconnected_at"`

	FramesSent  int64  `gorm:"not null;default:0"`
	ErrorsSent  int64  `gorm:"not null;default:0"`
	CloseReason string `gorm:"type:text"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (SessionRecord) TableName() string {
	return "session_record"
}
