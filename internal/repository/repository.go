package repository

import (
	"context"

	"github.com/m2tx/function_calling/internal/model"
)

// DispatchRepository persists the journal of broker requests.
type DispatchRepository interface {
	// Save stores record, replacing any record with the same ID.
	Save(ctx context.Context, record model.DispatchRecord) error

	// Load retrieves the record with the given ID.
	// Returns nil, nil if the record does not exist.
	Load(ctx context.Context, id string) (*model.DispatchRecord, error)

	// Delete removes the record with the given ID.
	// Is a no-op if the record does not exist.
	Delete(ctx context.Context, id string) error
}
