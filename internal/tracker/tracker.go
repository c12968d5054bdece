// =============================================================================
// NFe to XLSX Converter - Batch Tracker
// =============================================================================
//
// The tracker owns the lifecycle of a batch:
//
//   processing --(every file has an outcome)--> completed
//
// Outcomes are appended one at a time. Counters and status change in the same
// store operation as the append, so a reader never sees a counter that
// disagrees with the outcome list. A completed batch never changes again.
//
// =============================================================================

package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/logging"
	"github.com/ginjaninja78/nfe-xlsx-converter/internal/types"
)

var (
	ErrEmptyInput     = errors.New("no files to process")
	ErrBatchCompleted = errors.New("batch already completed")
	ErrIncomplete     = errors.New("batch still has files without an outcome")
	ErrInvalidOutcome = errors.New("invalid processing outcome")
)

// Tracker records batch progress on top of a Store.
type Tracker struct {
	store  Store
	logger logging.Logger
	now    func() time.Time
}

// New creates a tracker. A nil logger discards messages.
func New(store Store, logger logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Tracker{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateBatch registers a new batch expecting total files.
func (t *Tracker) CreateBatch(ctx context.Context, total int) (*types.Batch, error) {
	if total <= 0 {
		return nil, ErrEmptyInput
	}
	b := &types.Batch{
		ID:         uuid.New().String(),
		TotalFiles: total,
		Status:     types.BatchProcessing,
		CreatedAt:  t.now(),
	}
	if err := t.store.CreateBatch(ctx, b); err != nil {
		return nil, err
	}
	t.logger.Info("Batch %s created with %d file(s)", b.ID, total)
	return b.Clone(), nil
}

// RecordOutcome appends o to the batch and bumps the matching counter. The
// batch completes when the last expected outcome arrives.
//
// RETURNS:
//   - The updated batch.
//   - ErrNotFound, ErrBatchCompleted or ErrInvalidOutcome.
func (t *Tracker) RecordOutcome(ctx context.Context, batchID string, o *types.ProcessingOutcome) (*types.Batch, error) {
	if err := checkOutcome(o); err != nil {
		return nil, err
	}

	b, err := t.store.AppendOutcome(ctx, batchID, o, func(b *types.Batch) error {
		if b.Status == types.BatchCompleted || b.Done() >= b.TotalFiles {
			return ErrBatchCompleted
		}
		if o.Status == types.StatusProcessed {
			b.ProcessedFiles++
		} else {
			b.ErrorFiles++
		}
		if b.Done() == b.TotalFiles {
			now := t.now()
			b.Status = types.BatchCompleted
			b.CompletedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if o.Status == types.StatusError {
		t.logger.Warn("Batch %s: %s failed: %s", batchID, o.FileName, o.ErrorMessage)
	} else {
		t.logger.Debug("Batch %s: %s processed", batchID, o.FileName)
	}
	if b.Status == types.BatchCompleted {
		t.logger.Info("Batch %s completed: %d processed, %d error(s)", batchID, b.ProcessedFiles, b.ErrorFiles)
	}
	return b, nil
}

// Finalize marks the batch completed. It is a no-op for a batch that already
// completed and fails with ErrIncomplete while outcomes are missing.
func (t *Tracker) Finalize(ctx context.Context, batchID string) (*types.Batch, error) {
	return t.store.UpdateBatch(ctx, batchID, func(b *types.Batch) error {
		if b.Status == types.BatchCompleted {
			return nil
		}
		if b.Done() < b.TotalFiles {
			return fmt.Errorf("%w: %d of %d", ErrIncomplete, b.Done(), b.TotalFiles)
		}
		now := t.now()
		b.Status = types.BatchCompleted
		b.CompletedAt = &now
		return nil
	})
}

// Status returns a snapshot of the batch.
func (t *Tracker) Status(ctx context.Context, batchID string) (*types.Batch, error) {
	return t.store.GetBatch(ctx, batchID)
}

// Outcomes returns every outcome of the batch in completion order.
func (t *Tracker) Outcomes(ctx context.Context, batchID string) ([]*types.ProcessingOutcome, error) {
	return t.store.ListOutcomes(ctx, batchID)
}

// ProcessedRecords returns the records of the successful outcomes, in order.
func (t *Tracker) ProcessedRecords(ctx context.Context, batchID string) ([]*types.FiscalRecord, error) {
	outcomes, err := t.store.ListOutcomes(ctx, batchID)
	if err != nil {
		return nil, err
	}
	records := make([]*types.FiscalRecord, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Status == types.StatusProcessed && o.Record != nil {
			records = append(records, o.Record)
		}
	}
	return records, nil
}

func checkOutcome(o *types.ProcessingOutcome) error {
	switch {
	case o == nil:
		return fmt.Errorf("%w: nil", ErrInvalidOutcome)
	case o.Status == types.StatusProcessed && (o.Record == nil || o.ErrorMessage != ""):
		return fmt.Errorf("%w: processed outcome needs a record and no error", ErrInvalidOutcome)
	case o.Status == types.StatusError && (o.Record != nil || o.ErrorMessage == ""):
		return fmt.Errorf("%w: error outcome needs a message and no record", ErrInvalidOutcome)
	case o.Status != types.StatusProcessed && o.Status != types.StatusError:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidOutcome, o.Status)
	}
	return nil
}
