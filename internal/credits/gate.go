// Package credits exposes the billing ledger as an admission capability
// check. The ledger itself lives in another service; this package only asks
// "may this job be created".
package credits

import "context"

// Gate is consulted before a job row is created. A non-nil error denies
// admission and is surfaced to the caller unchanged.
type Gate interface {
	Authorize(ctx context.Context, lane, resourceID string) error
}

// Unlimited is the default gate used when no ledger is configured.
type Unlimited struct{}

// Authorize always admits.
func (Unlimited) Authorize(ctx context.Context, lane, resourceID string) error {
	return nil
}
