package verifier

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	log "github.com/sirupsen/logrus"
)

type realTimer struct{}

func (realTimer) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// retryFor calls do up to Retries times, waiting RetryDelay after each failure. Every
// attempt gets its own timeout; there is no deadline across attempts.
func (r *run) retryFor(ctx context.Context, do func(context.Context) (*contract.ActualResponse, error)) (*contract.ActualResponse, error) {
	return retry.DoWithData(func() (*contract.ActualResponse, error) {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, retry.Unrecoverable(err)
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
		return do(attemptCtx)
	},
		retry.Context(ctx),
		retry.Attempts(uint(r.opts.Retries)),
		retry.Delay(r.opts.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.WithTimer(r.timer),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.WithFields(log.Fields{"run": r.id, "attempt": n + 1}).WithError(err).Debug("provider request failed")
		}),
	)
}
