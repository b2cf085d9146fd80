package postgres

import (
	"context"
	"fmt"
	"time"

	"marketfeed/internal/ledger"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// Record implements ledger.Recorder.
func (p *PostgresClient) Record(ctx context.Context, rec ledger.SessionRecord) error {
	row, err := ToSessionRecord(rec)
	if err != nil {
		return err
	}

	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(row)
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return fmt.Errorf("duplicate session record skipped: id=%s", rec.ID)
	}
	return nil
}

// DeleteBefore implements ledger.Recorder.
func (p *PostgresClient) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tx := p.DB.WithContext(ctx).
		Where("disconnected_at < ?", before).
		Delete(&SessionRecord{})
	return tx.RowsAffected, tx.Error
}

func (p *PostgresClient) GetSession(ctx context.Context, id uuid.UUID) (*SessionRecord, error) {
	var rec SessionRecord
	if err := p.DB.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ToSessionRecord converts a ledger record into a database row.
func ToSessionRecord(rec ledger.SessionRecord) (*SessionRecord, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", rec.ID, err)
	}

	return &SessionRecord{
		ID:             id,
		RemoteAddr:     rec.RemoteAddr,
		ConnectedAt:    rec.ConnectedAt,
		SubscribedAt:   rec.SubscribedAt,
		DisconnectedAt: rec.DisconnectedAt,
		FramesSent:     rec.FramesSent,
		ErrorsSent:     rec.ErrorsSent,
		CloseReason:    rec.CloseReason,
	}, nil
}
