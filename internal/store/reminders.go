package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DeliveryKindReminder is the only delivery kind confirmations apply to.
const DeliveryKindReminder = "reminder"

// Delivery is one row of the deliveries table: an outbound message whose
// receipt may be confirmed out of band.
type Delivery struct {
	ID          string
	Kind        string
	Recipient   string
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

// ReminderStore persists reminder deliveries and their confirmations.
type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

// GetDelivery returns the delivery or (nil, nil).
func (s *ReminderStore) GetDelivery(ctx context.Context, id string) (*Delivery, error) {
	d := &Delivery{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, recipient, created_at, confirmed_at FROM deliveries WHERE id = $1`, id).
		Scan(&d.ID, &d.Kind, &d.Recipient, &d.CreatedAt, &d.ConfirmedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return d, nil
}

// ConfirmDelivery stamps confirmed_at on a reminder delivery. The first
// writer wins; false means the row was already confirmed (or is not an
// unconfirmed reminder), and the caller re-reads to return the original
// timestamp.
func (s *ReminderStore) ConfirmDelivery(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE deliveries SET confirmed_at = $2
		WHERE id = $1 AND kind = $3 AND confirmed_at IS NULL`,
		id, now, DeliveryKindReminder)
	if err != nil {
		return false, fmt.Errorf("confirm delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("confirm delivery: %w", err)
	}
	return n > 0, nil
}
