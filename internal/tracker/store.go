package tracker

import (
	"context"
	"errors"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
)

// ErrNotFound is returned for an unknown batch id.
var ErrNotFound = errors.New("batch not found")

// Store persists batches and their outcomes.
//
// Every method returns copies; callers never share state with the store.
// The update callbacks receive a copy of the stored batch and may mutate it;
// when a callback returns an error nothing is written.
type Store interface {
	// CreateBatch stores a new batch.
	CreateBatch(ctx context.Context, b *types.Batch) error

	// GetBatch returns the batch or ErrNotFound.
	GetBatch(ctx context.Context, id string) (*types.Batch, error)

	// UpdateBatch applies fn to the batch atomically and returns the result.
	UpdateBatch(ctx context.Context, id string, fn func(*types.Batch) error) (*types.Batch, error)

	// AppendOutcome applies fn to the batch and appends o in one atomic step.
	AppendOutcome(ctx context.Context, id string, o *types.ProcessingOutcome, fn func(*types.Batch) error) (*types.Batch, error)

	// ListOutcomes returns the batch's outcomes in the order they were appended.
	ListOutcomes(ctx context.Context, id string) ([]*types.ProcessingOutcome, error)

	Close() error
}
