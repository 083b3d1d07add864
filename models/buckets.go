package models

import "github.com/shopspring/decimal"

// PoolBucket is the shared shape of the pool day and hour aggregates.
type PoolBucket struct {
	ID                     string   `json:"id"`
	Pool                   string   `json:"pool"`
	Date                   int64    `json:"date"`
	InstantSwapCount       int64    `json:"instantSwapCount"`
	ContinuousSwapSetCount int64    `json:"continuousSwapSetCount"`
	Tokens                 []string `json:"tokens"`
}

func (b *PoolBucket) Bucket() *PoolBucket { return b }

// AddToken lists a per-token snapshot id once.
func (b *PoolBucket) AddToken(id string) {
	for _, t := range b.Tokens {
		if t == id {
			return
		}
	}
	b.Tokens = append(b.Tokens, id)
}

type PoolDayData struct {
	PoolBucket
}

func (d *PoolDayData) EntityKind() string { return KindPoolDayData }
func (d *PoolDayData) EntityID() string   { return d.ID }

type PoolHourData struct {
	PoolBucket
}

func (d *PoolHourData) EntityKind() string { return KindPoolHourData }
func (d *PoolHourData) EntityID() string   { return d.ID }

// PooledTokenSnapshot is the reserve and cumulative volume of a pooled token
// as of the last event that touched the bucket.
type PooledTokenSnapshot struct {
	ID      string          `json:"id"`
	Token   string          `json:"token"`
	Pool    string          `json:"pool"`
	Date    int64           `json:"date"`
	Reserve decimal.Decimal `json:"reserve"`
	Volume  decimal.Decimal `json:"volume"`
}

func (s *PooledTokenSnapshot) Snapshot() *PooledTokenSnapshot { return s }

type DailyPooledToken struct {
	PooledTokenSnapshot
}

func (d *DailyPooledToken) EntityKind() string { return KindDailyPooledToken }
func (d *DailyPooledToken) EntityID() string   { return d.ID }

type HourlyPooledToken struct {
	PooledTokenSnapshot
}

func (h *HourlyPooledToken) EntityKind() string { return KindHourlyPooledToken }
func (h *HourlyPooledToken) EntityID() string   { return h.ID }

type TokenDayData struct {
	ID                     string          `json:"id"`
	Token                  string          `json:"token"`
	Date                   int64           `json:"date"`
	OpeningVolume          decimal.Decimal `json:"openingVolume"`
	DailyVolumeToken       decimal.Decimal `json:"dailyVolumeToken"`
	TotalLiquidityToken    decimal.Decimal `json:"totalLiquidityToken"`
	InstantSwapCount       int64           `json:"dailyInstantSwapCount"`
	ContinuousSwapSetCount int64           `json:"dailyContinuousSwapSetCount"`
}

func (d *TokenDayData) EntityKind() string { return KindTokenDayData }
func (d *TokenDayData) EntityID() string   { return d.ID }
