// Package reminder confirms out-of-band reminder deliveries.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediajobs/internal/apperrors"
	"mediajobs/internal/store"
)

// DeliveryStore is the slice of the persistence layer confirmations need.
type DeliveryStore interface {
	GetDelivery(ctx context.Context, id string) (*store.Delivery, error)
	ConfirmDelivery(ctx context.Context, id string, now time.Time) (bool, error)
}

// Confirmation is the response body for a confirm call.
type Confirmation struct {
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// Service handles webhook confirmation callbacks for reminder deliveries.
type Service struct {
	store DeliveryStore
	now   func() time.Time
}

func NewService(st DeliveryStore) *Service {
	return &Service{store: st, now: time.Now}
}

// Confirm marks a reminder delivery as confirmed. Repeated calls are
// idempotent: the first writer's timestamp is returned on every call.
// Unknown deliveries are not found; deliveries of another kind cannot be
// confirmed.
func (s *Service) Confirm(ctx context.Context, deliveryID string) (*Confirmation, error) {
	d, err := s.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperrors.NotFound("delivery", deliveryID)
	}
	if d.Kind != store.DeliveryKindReminder {
		return nil, apperrors.InvalidState("delivery", deliveryID,
			fmt.Sprintf("delivery %s is a %s delivery, not a reminder", deliveryID, d.Kind))
	}
	if d.ConfirmedAt != nil {
		return &Confirmation{ConfirmedAt: *d.ConfirmedAt}, nil
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	won, err := s.store.ConfirmDelivery(ctx, deliveryID, now)
	if err != nil {
		return nil, err
	}
	if won {
		return &Confirmation{ConfirmedAt: now}, nil
	}

	// Lost the write race: a concurrent confirmation landed first. Re-read
	// and return its timestamp.
	d, err = s.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if d == nil || d.ConfirmedAt == nil {
		return nil, apperrors.Internal("reminder.confirm", errors.New("delivery vanished during confirmation"))
	}
	return &Confirmation{ConfirmedAt: *d.ConfirmedAt}, nil
}
