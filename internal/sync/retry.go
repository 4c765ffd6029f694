package sync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/outletpos/syncengine/internal/api"
	"github.com/outletpos/syncengine/internal/models"
)

// RetryPolicy is the pure backoff/retry policy. It owns no I/O: the durable
// retry counter lives in the queue and is advanced through the onRetry
// callback of ExecuteWithRetry.
type RetryPolicy struct {
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxBackoff    time.Duration
	MaxConcurrent int
}

// DefaultRetryPolicy mirrors the engine defaults: 1s initial delay doubling
// up to 60s, three concurrent items on bulk retry.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay:  time.Second,
		BackoffFactor: 2,
		MaxBackoff:    60 * time.Second,
		MaxConcurrent: 3,
	}
}

// ShouldRetry reports whether the item has retries left.
func (p RetryPolicy) ShouldRetry(item *models.SyncQueueItem) bool {
	return item.RetryCount < item.MaxRetries
}

// Delay returns min(InitialDelay × BackoffFactor^retryCount, MaxBackoff).
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(retryCount)))
	if d > p.MaxBackoff || d <= 0 {
		return p.MaxBackoff
	}
	return d
}

// IsRetryable classifies an error. Network failures, timeouts and 5xx
// responses are transient; 4xx responses and conflicts are not.
func (p RetryPolicy) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var conflict *api.ConflictError
	if errors.As(err, &conflict) {
		return false
	}

	var status *api.StatusError
	if errors.As(err, &status) {
		// 408 is the one 4xx the server sends for a timeout on its side.
		return status.StatusCode >= 500 || status.StatusCode == http.StatusRequestTimeout
	}

	// fetch failures, DNS errors, connection resets, context deadlines
	return true
}

// ExecuteWithRetry runs op until it succeeds, hits a non-retryable error, or
// the item's retry budget is spent. Between attempts it sleeps the backoff
// delay for the attempt number. onRetry is called after every retryable
// failure and must persist the new retry count; a non-nil error from onRetry
// is a storage failure and aborts immediately.
//
// The final error returned is the last error op produced, so callers can
// classify it.
func (p RetryPolicy) ExecuteWithRetry(
	ctx context.Context,
	item *models.SyncQueueItem,
	op func(ctx context.Context) error,
	onRetry func(ctx context.Context, cause error) (int, error),
) error {
	count := item.RetryCount
	var lastErr error

	for {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !p.IsRetryable(err) {
			return err
		}

		if onRetry != nil {
			n, rerr := onRetry(ctx, err)
			if rerr != nil {
				return fmt.Errorf("failed to record retry: %w", rerr)
			}
			count = n
		} else {
			count++
		}

		if count >= item.MaxRetries {
			return lastErr
		}

		select {
		case <-time.After(p.Delay(count - 1)):
		case <-ctx.Done():
			return lastErr
		}
	}
}

// BatchResult pairs one item of a bulk retry with its outcome.
type BatchResult struct {
	Item *models.SyncQueueItem
	Err  error
}

// BatchRetry fans op out over items with bounded concurrency. Every item is
// attempted regardless of the others' outcomes; results are returned in the
// input order. onItemComplete, when set, is called as each item finishes.
func (p RetryPolicy) BatchRetry(
	ctx context.Context,
	items []*models.SyncQueueItem,
	op func(ctx context.Context, item *models.SyncQueueItem) error,
	onItemComplete func(item *models.SyncQueueItem, err error),
) []BatchResult {
	limit := p.MaxConcurrent
	if limit <= 0 {
		limit = 3
	}

	results := make([]BatchResult, len(items))

	var g errgroup.Group
	g.SetLimit(limit)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			err := op(ctx, item)
			results[i] = BatchResult{Item: item, Err: err}
			if onItemComplete != nil {
				onItemComplete(item, err)
			}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// ExecuteWithTimeout races op against a deadline. The in-flight operation is
// not cancelled on timeout beyond the context signal; it runs to completion
// in the background, matching the engine's shutdown semantics.
func ExecuteWithTimeout(ctx context.Context, d time.Duration, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("operation timed out after %s: %w", d, ctx.Err())
	}
}
