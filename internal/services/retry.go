package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy defines retry behavior for failed operations
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// DefaultRetryPolicies returns the policies used at startup.
func DefaultRetryPolicies() map[string]RetryPolicy {
	return map[string]RetryPolicy{
		"postgres_connect": {
			MaxRetries:    5,
			InitialDelay:  500 * time.Millisecond,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
		"redis_connect": {
			MaxRetries:    3,
			InitialDelay:  250 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
	}
}

// Retry runs op until it succeeds, the policy is exhausted or ctx is done.
// It returns the number of attempts made and the last error.
func Retry(ctx context.Context, name string, policy RetryPolicy, logger *logrus.Logger, op func(context.Context) error) (int, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = 1
	}

	delay := policy.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= policy.MaxRetries+1; attempt++ {
		if lastErr = op(ctx); lastErr == nil {
			if attempt > 1 {
				logger.WithFields(logrus.Fields{
					"operation": name,
					"attempts":  attempt,
				}).Info("Operation recovered after retry")
			}
			return attempt, nil
		}

		if attempt > policy.MaxRetries {
			return attempt, fmt.Errorf("%s failed after %d attempts: %w", name, attempt, lastErr)
		}

		wait := calculateDelay(delay, policy.JitterEnabled)
		logger.WithFields(logrus.Fields{
			"operation": name,
			"attempt":   attempt,
			"delay":     wait.String(),
			"error":     lastErr.Error(),
		}).Warn("Operation failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * policy.BackoffFactor)
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return policy.MaxRetries + 1, lastErr
}

// calculateDelay adds up to 25% jitter either side of baseDelay.
func calculateDelay(baseDelay time.Duration, jitter bool) time.Duration {
	if !jitter || baseDelay <= 0 {
		return baseDelay
	}
	offset := time.Duration(float64(baseDelay) * 0.25 * (0.5 - float64(time.Now().UnixNano()%1000)/1000.0))
	return baseDelay + offset
}
