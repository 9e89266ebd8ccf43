package deskapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
)

// retryRead runs op with exponential backoff. Only transport failures, 429
// and 5xx responses are retried; anything else returns immediately.
func (c *Client) retryRead(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryStart

	attempt := 0
	return backoff.RetryNotify(
		func() error {
			attempt++
			err := op()
			if err == nil || retryable(ctx, err) {
				return err
			}
			return backoff.Permanent(err)
		},
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.readRetries)), ctx),
		func(err error, wait time.Duration) {
			c.logger.Warn("retrying backend read", "attempt", attempt, "wait", wait, "error", err)
		},
	)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, model.ErrUnauthorized) {
		return false
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	// Transport-level failure: connection refused, reset, timeout.
	return true
}
