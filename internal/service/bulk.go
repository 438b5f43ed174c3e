package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/shohag/notifyd/internal/events"
	"github.com/shohag/notifyd/internal/metrics"
	"github.com/shohag/notifyd/internal/models"
)

type BulkOp string

const (
	BulkCreate BulkOp = "create"
	BulkUpdate BulkOp = "update"
	BulkCancel BulkOp = "cancel"
	BulkRetry  BulkOp = "retry"
)

func (op BulkOp) IsValid() bool {
	switch op {
	case BulkCreate, BulkUpdate, BulkCancel, BulkRetry:
		return true
	}
	return false
}

// BulkItem is one unit of work. Create items carry a full request; update,
// cancel and retry items reference an existing notification.
type BulkItem struct {
	Create *CreateRequest `json:"create,omitempty"`
	ID     string         `json:"id,omitempty"`
	Update *UpdateRequest `json:"update,omitempty"`
}

type BulkRequest struct {
	Op              BulkOp     `json:"op"`
	Items           []BulkItem `json:"items"`
	BatchSize       int        `json:"batch_size,omitempty"`
	Concurrency     int        `json:"concurrency,omitempty"`
	ContinueOnError bool       `json:"continue_on_error"`
}

type BulkItemResult struct {
	Index    int    `json:"index"`
	EntityID string `json:"entity_id,omitempty"`
	Success  bool   `json:"success"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}

type BulkItemError struct {
	Index    int    `json:"index"`
	EntityID string `json:"entity_id,omitempty"`
	Error    string `json:"error"`
}

type BulkResult struct {
	Op           BulkOp           `json:"op"`
	TotalCount   int              `json:"total_count"`
	SuccessCount int              `json:"success_count"`
	FailureCount int              `json:"failure_count"`
	SkippedCount int              `json:"skipped_count,omitempty"`
	Duration     time.Duration    `json:"duration"`
	Results      []BulkItemResult `json:"results"`
	Errors       []BulkItemError  `json:"errors,omitempty"`
}

// RunBulk processes the request's items in batches of BatchSize, with up to
// Concurrency batches in flight at once. Items run one transaction each, so
// one bad item never aborts its batch's committed work. Partial failure is
// reported in the aggregate, never as an error; only total infrastructure
// failure (context dead before work started) errors out.
func (s *Service) RunBulk(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	if !req.Op.IsValid() {
		return nil, models.ValidationError(fmt.Sprintf("invalid bulk op %q", req.Op))
	}
	if s.bulk.MaxRequestItems > 0 && len(req.Items) > s.bulk.MaxRequestItems {
		return nil, models.ValidationError(fmt.Sprintf("bulk request exceeds %d items", s.bulk.MaxRequestItems))
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("bulk operation aborted: %w", err)
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = s.bulk.BatchSize
	}
	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = s.bulk.MaxConcurrency
	}

	start := time.Now()
	results := make([]BulkItemResult, len(req.Items))

	// Batches run concurrently up to the bound; items within a batch run
	// sequentially so continueOnError=false can abort the remainder of its
	// own batch without touching batches already in flight.
	p := pool.New().WithMaxGoroutines(concurrency)
	for begin := 0; begin < len(req.Items); begin += batchSize {
		end := begin + batchSize
		if end > len(req.Items) {
			end = len(req.Items)
		}
		begin, end := begin, end

		p.Go(func() {
			aborted := false
			for i := begin; i < end; i++ {
				if aborted {
					results[i] = BulkItemResult{Index: i, Skipped: true, Error: "aborted: earlier item in batch failed"}
					continue
				}

				entityID, err := s.runBulkItem(ctx, req.Op, req.Items[i])
				if err != nil {
					results[i] = BulkItemResult{Index: i, EntityID: entityID, Error: err.Error()}
					if !req.ContinueOnError {
						aborted = true
					}
					continue
				}
				results[i] = BulkItemResult{Index: i, EntityID: entityID, Success: true}
			}
		})
	}
	p.Wait()

	res := &BulkResult{
		Op:         req.Op,
		TotalCount: len(req.Items),
		Duration:   time.Since(start),
		Results:    results,
	}
	for _, r := range results {
		switch {
		case r.Success:
			res.SuccessCount++
		case r.Skipped:
			res.SkippedCount++
		default:
			res.FailureCount++
			res.Errors = append(res.Errors, BulkItemError{Index: r.Index, EntityID: r.EntityID, Error: r.Error})
		}
	}

	s.sink.RecordBulk(metrics.BulkEvent{
		Operation:    string(req.Op),
		TotalCount:   res.TotalCount,
		SuccessCount: res.SuccessCount,
		FailureCount: res.FailureCount,
		Duration:     res.Duration,
	})
	s.bus.Publish(events.BulkOperationDone, "", map[string]string{
		"op":      string(req.Op),
		"total":   fmt.Sprintf("%d", res.TotalCount),
		"success": fmt.Sprintf("%d", res.SuccessCount),
		"failure": fmt.Sprintf("%d", res.FailureCount),
	})
	s.invalidateStats()

	s.log.Info().
		Str("op", string(req.Op)).
		Int("total", res.TotalCount).
		Int("success", res.SuccessCount).
		Int("failure", res.FailureCount).
		Dur("duration", res.Duration).
		Msg("bulk operation completed")
	return res, nil
}

func (s *Service) runBulkItem(ctx context.Context, op BulkOp, item BulkItem) (string, error) {
	switch op {
	case BulkCreate:
		if item.Create == nil {
			return "", models.ValidationError("create item missing request body")
		}
		n, err := s.Create(ctx, *item.Create)
		if err != nil {
			return "", err
		}
		return n.ID, nil

	case BulkUpdate:
		if item.ID == "" {
			return "", models.ValidationError("update item missing id")
		}
		if item.Update == nil {
			return item.ID, models.ValidationError("update item missing request body")
		}
		if _, err := s.Update(ctx, item.ID, *item.Update); err != nil {
			return item.ID, err
		}
		return item.ID, nil

	case BulkCancel:
		if item.ID == "" {
			return "", models.ValidationError("cancel item missing id")
		}
		if _, err := s.Cancel(ctx, item.ID); err != nil {
			return item.ID, err
		}
		return item.ID, nil

	case BulkRetry:
		if item.ID == "" {
			return "", models.ValidationError("retry item missing id")
		}
		if _, err := s.Retry(ctx, item.ID); err != nil {
			return item.ID, err
		}
		return item.ID, nil
	}
	return "", models.ValidationError(fmt.Sprintf("invalid bulk op %q", op))
}
