package catalog

import (
	"context"
	"errors"
)

var (
	ErrBusinessNotFound = errors.New("business not found")
	ErrDateInPast       = errors.New("date is in the past")
	ErrBusinessClosed   = errors.New("business is closed on that day")
)

// Repository contains all DB interactions needed by the booking flow.
type Repository interface {
	// GetBusiness loads the business with its opening hours and services.
	GetBusiness(ctx context.Context, id string) (*Business, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
