package contracts

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/streamswap/stellar-indexer/metrics"
	"github.com/streamswap/stellar-indexer/models"
)

// RetryReader retries transient read-through failures with exponential
// backoff. Results of the wrong type are not retried.
type RetryReader struct {
	next            Reader
	maxAttempts     uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	log             zerolog.Logger
}

func NewRetryReader(next Reader, maxAttempts int, log zerolog.Logger) *RetryReader {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryReader{
		next:            next,
		maxAttempts:     uint64(maxAttempts),
		initialInterval: 200 * time.Millisecond,
		maxInterval:     5 * time.Second,
		log:             log,
	}
}

var _ Reader = (*RetryReader)(nil)

func (r *RetryReader) TokenMetadata(ctx context.Context, token string) (models.TokenInfo, error) {
	return retry(ctx, r, "token_metadata", func() (models.TokenInfo, error) {
		return r.next.TokenMetadata(ctx, token)
	})
}

func (r *RetryReader) Balance(ctx context.Context, token, account string) (*big.Int, error) {
	return retry(ctx, r, "balance", func() (*big.Int, error) {
		return r.next.Balance(ctx, token, account)
	})
}

func (r *RetryReader) NetFlow(ctx context.Context, token, account string) (*big.Int, error) {
	return retry(ctx, r, "net_flow", func() (*big.Int, error) {
		return r.next.NetFlow(ctx, token, account)
	})
}

func (r *RetryReader) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxInterval = r.maxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, r.maxAttempts-1), ctx)
}

func retry[T any](ctx context.Context, r *RetryReader, method string, call func() (T, error)) (T, error) {
	op := func() (T, error) {
		v, err := call()
		if errors.Is(err, ErrUnexpectedResult) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		metrics.ReadThroughRetries.WithLabelValues(method).Inc()
		r.log.Warn().Err(err).Str("method", method).Dur("wait", wait).Msg("read-through call failed, retrying")
	}
	return backoff.RetryNotifyWithData(op, r.policy(ctx), notify)
}
