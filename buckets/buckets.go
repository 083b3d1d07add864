// Package buckets folds events into hourly and daily aggregate records.
//
// Counters are deltas; per-token reserve and volume are snapshots that the
// last event touching a bucket overwrites. Touch reads the saved pooled-token
// state, so callers save their pooled tokens first.
package buckets

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/streamswap/stellar-indexer/ids"
	"github.com/streamswap/stellar-indexer/models"
	"github.com/streamswap/stellar-indexer/store"
)

const (
	Hour int64 = 3600
	Day  int64 = 86400
)

// Index is floor(ts / secs).
func Index(ts, secs int64) int64 {
	idx := ts / secs
	if ts%secs != 0 && ts < 0 {
		idx--
	}
	return idx
}

// Start is the first second of bucket index.
func Start(index, secs int64) int64 {
	return index * secs
}

// Delta is what one event adds to a bucket.
type Delta struct {
	InstantSwaps   int64
	ContinuousSets int64
	// Volume is the token trade volume this event already added to the
	// token; it only matters when the event opens a new token bucket.
	Volume decimal.Decimal
}

type poolBucket[T any] interface {
	*T
	store.Entity
	Bucket() *models.PoolBucket
}

type tokenSnapshot[T any] interface {
	*T
	store.Entity
	Snapshot() *models.PooledTokenSnapshot
}

// TouchPool updates the pool's day and hour buckets for ts.
func TouchPool(ctx context.Context, tx store.Tx, pool *models.Pool, ts int64, delta Delta) error {
	if _, err := TouchPoolDay(ctx, tx, pool, ts, delta); err != nil {
		return err
	}
	_, err := TouchPoolHour(ctx, tx, pool, ts, delta)
	return err
}

func TouchPoolDay(ctx context.Context, tx store.Tx, pool *models.Pool, ts int64, delta Delta) (*models.PoolDayData, error) {
	return touchPool[models.PoolDayData, *models.PoolDayData, models.DailyPooledToken](ctx, tx, pool, ts, Day, delta)
}

func TouchPoolHour(ctx context.Context, tx store.Tx, pool *models.Pool, ts int64, delta Delta) (*models.PoolHourData, error) {
	return touchPool[models.PoolHourData, *models.PoolHourData, models.HourlyPooledToken](ctx, tx, pool, ts, Hour, delta)
}

func touchPool[B any, PB poolBucket[B], S any, PS tokenSnapshot[S]](ctx context.Context, tx store.Tx, pool *models.Pool, ts, secs int64, delta Delta) (PB, error) {
	idx := Index(ts, secs)
	date := Start(idx, secs)
	id := ids.PoolBucket(pool.ID, idx)

	b, _, err := store.LoadOrCreate[B, PB](ctx, tx, id, func() PB {
		var v B
		pb := PB(&v)
		*pb.Bucket() = models.PoolBucket{ID: id, Pool: pool.ID, Date: date, Tokens: []string{}}
		return pb
	})
	if err != nil {
		return nil, err
	}

	bucket := b.Bucket()
	bucket.InstantSwapCount += delta.InstantSwaps
	bucket.ContinuousSwapSetCount += delta.ContinuousSets

	for _, token := range pool.TokenAddresses {
		pt, err := store.MustLoad[models.PooledToken](ctx, tx, ids.PooledToken(token, pool.ID))
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", id, err)
		}
		sid := ids.PooledTokenBucket(token, pool.ID, idx)
		var v S
		ps := PS(&v)
		*ps.Snapshot() = models.PooledTokenSnapshot{
			ID:      sid,
			Token:   token,
			Pool:    pool.ID,
			Date:    date,
			Reserve: pt.Reserve,
			Volume:  pt.Volume,
		}
		if err := store.Save(ctx, tx, ps); err != nil {
			return nil, err
		}
		bucket.AddToken(sid)
	}

	if err := store.Save(ctx, tx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// TouchToken updates the token's day bucket for ts from the token's current
// state. Call it after the event's changes are applied to token.
func TouchToken(ctx context.Context, tx store.Tx, token *models.Token, ts int64, delta Delta) (*models.TokenDayData, error) {
	idx := Index(ts, Day)
	id := ids.TokenBucket(token.ID, idx)

	day, _, err := store.LoadOrCreate(ctx, tx, id, func() *models.TokenDayData {
		return &models.TokenDayData{
			ID:               id,
			Token:            token.ID,
			Date:             Start(idx, Day),
			OpeningVolume:    token.TradeVolume.Sub(delta.Volume),
			DailyVolumeToken: decimal.Zero,
		}
	})
	if err != nil {
		return nil, err
	}

	day.InstantSwapCount += delta.InstantSwaps
	day.ContinuousSwapSetCount += delta.ContinuousSets
	day.DailyVolumeToken = token.TradeVolume.Sub(day.OpeningVolume)
	day.TotalLiquidityToken = token.TotalLiquidity

	if err := store.Save(ctx, tx, day); err != nil {
		return nil, err
	}
	return day, nil
}
