package models

import (
	"github.com/shopspring/decimal"
	"github.com/streamswap/stellar-indexer/utils"
)

// Entity kinds, used as the store namespace of each record type.
const (
	KindFactory           = "Factory"
	KindPool              = "Pool"
	KindToken             = "Token"
	KindPooledToken       = "PooledToken"
	KindUser              = "User"
	KindTransaction       = "Transaction"
	KindInstantSwap       = "InstantSwap"
	KindContinuousSwap    = "ContinuousSwap"
	KindUserToken         = "UserToken"
	KindLiquidityProvider = "LiquidityProvider"
	KindPoolDayData       = "PoolDayData"
	KindPoolHourData      = "PoolHourData"
	KindDailyPooledToken  = "DailyPooledToken"
	KindHourlyPooledToken = "HourlyPooledToken"
	KindTokenDayData      = "TokenDayData"
	KindProcessedEvent    = "ProcessedEvent"
	KindCursor            = "Cursor"
)

type Factory struct {
	ID        string `json:"id"`
	PoolCount int64  `json:"poolCount"`
}

func NewFactory(id string) *Factory {
	return &Factory{ID: id}
}

func (f *Factory) EntityKind() string { return KindFactory }
func (f *Factory) EntityID() string   { return f.ID }

type Pool struct {
	ID                        string   `json:"id"`
	CreatedAtTimestamp        int64    `json:"createdAtTimestamp"`
	CreatedAtBlockNumber      uint32   `json:"createdAtBlockNumber"`
	InstantSwapCount          int64    `json:"instantSwapCount"`
	ContinuousSwapSetCount    int64    `json:"continuousSwapSetCount"`
	ContinuousRateChangeCount int64    `json:"continuousRateChangeCount"`
	LiquidityProviderCount    int64    `json:"liquidityProviderCount"`
	TokenAddresses            []string `json:"tokenAddresses"`
}

func NewPool(id string, timestamp int64, block uint32) *Pool {
	return &Pool{
		ID:                   id,
		CreatedAtTimestamp:   timestamp,
		CreatedAtBlockNumber: block,
		TokenAddresses:       []string{},
	}
}

func (p *Pool) EntityKind() string { return KindPool }
func (p *Pool) EntityID() string   { return p.ID }

// HasToken reports whether token has been bound to the pool.
func (p *Pool) HasToken(token string) bool {
	for _, t := range p.TokenAddresses {
		if t == token {
			return true
		}
	}
	return false
}

type Token struct {
	ID                     string          `json:"id"`
	Symbol                 string          `json:"symbol"`
	Name                   string          `json:"name"`
	Decimals               uint32          `json:"decimals"`
	IsSAC                  bool            `json:"isSac"` // wraps a classic asset
	TotalSupply            decimal.Decimal `json:"totalSupply"`
	InstantSwapCount       int64           `json:"instantSwapCount"`
	ContinuousSwapSetCount int64           `json:"continuousSwapSetCount"`
	TotalLiquidity         decimal.Decimal `json:"totalLiquidity"`
	TradeVolume            decimal.Decimal `json:"tradeVolume"`
}

// NewToken builds a token from its first read-through metadata. Decimals is
// never changed afterwards.
func NewToken(meta TokenInfo) *Token {
	return &Token{
		ID:             meta.ContractAddress,
		Symbol:         meta.Symbol,
		Name:           meta.Name,
		Decimals:       meta.Decimals,
		IsSAC:          meta.IsSAC,
		TotalSupply:    utils.ConvertTokenToDecimal(meta.TotalSupply, meta.Decimals),
		TotalLiquidity: decimal.Zero,
		TradeVolume:    decimal.Zero,
	}
}

func (t *Token) EntityKind() string { return KindToken }
func (t *Token) EntityID() string   { return t.ID }

type PooledToken struct {
	ID      string          `json:"id"`
	Pool    string          `json:"pool"`
	Token   string          `json:"token"`
	Reserve decimal.Decimal `json:"reserve"`
	Volume  decimal.Decimal `json:"volume"`
}

func NewPooledToken(id, pool, token string) *PooledToken {
	return &PooledToken{ID: id, Pool: pool, Token: token, Reserve: decimal.Zero, Volume: decimal.Zero}
}

func (p *PooledToken) EntityKind() string { return KindPooledToken }
func (p *PooledToken) EntityID() string   { return p.ID }

type User struct {
	ID string `json:"id"`
}

func NewUser(id string) *User { return &User{ID: id} }

func (u *User) EntityKind() string { return KindUser }
func (u *User) EntityID() string   { return u.ID }

type Transaction struct {
	ID          string `json:"id"`
	BlockNumber uint32 `json:"blockNumber"`
	Timestamp   int64  `json:"timestamp"`
}

func NewTransaction(hash string, block uint32, timestamp int64) *Transaction {
	return &Transaction{ID: hash, BlockNumber: block, Timestamp: timestamp}
}

func (t *Transaction) EntityKind() string { return KindTransaction }
func (t *Transaction) EntityID() string   { return t.ID }

type InstantSwap struct {
	ID           string          `json:"id"`
	Transaction  string          `json:"transaction"`
	Pool         string          `json:"pool"`
	User         string          `json:"user"`
	TokenIn      string          `json:"tokenIn"`
	TokenOut     string          `json:"tokenOut"`
	AmountIn     decimal.Decimal `json:"amountIn"`
	AmountOut    decimal.Decimal `json:"amountOut"`
	AmountInRaw  string          `json:"amountInRaw"`
	AmountOutRaw string          `json:"amountOutRaw"`
	Timestamp    int64           `json:"timestamp"`
}

func (s *InstantSwap) EntityKind() string { return KindInstantSwap }
func (s *InstantSwap) EntityID() string   { return s.ID }

// ContinuousSwap is the directed (user, pool, tokenIn, tokenOut) streaming edge.
// Rates are decimal token units per second.
type ContinuousSwap struct {
	ID                    string          `json:"id"`
	Pool                  string          `json:"pool"`
	User                  string          `json:"user"`
	TokenIn               string          `json:"tokenIn"`
	TokenOut              string          `json:"tokenOut"`
	Transaction           string          `json:"transaction"`
	RateIn                decimal.Decimal `json:"rateIn"`
	CurrentRateOut        decimal.Decimal `json:"currentRateOut"`
	TotalOutUntilLastSwap decimal.Decimal `json:"totalOutUntilLastSwap"`
	MinOut                decimal.Decimal `json:"minOut"`
	MaxOut                decimal.Decimal `json:"maxOut"`
	Timestamp             int64           `json:"timestamp"`
	TimestampLastSwap     int64           `json:"timestampLastSwap"`
	Active                bool            `json:"active"`
}

// NewContinuousSwap returns the pre-state of an edge that has never been set:
// zero rates anchored at the first event's timestamp, so the first
// integration credits nothing.
func NewContinuousSwap(id, user, pool, tokenIn, tokenOut string, timestamp int64) *ContinuousSwap {
	return &ContinuousSwap{
		ID:                    id,
		Pool:                  pool,
		User:                  user,
		TokenIn:               tokenIn,
		TokenOut:              tokenOut,
		RateIn:                decimal.Zero,
		CurrentRateOut:        decimal.Zero,
		TotalOutUntilLastSwap: decimal.Zero,
		MinOut:                decimal.Zero,
		MaxOut:                decimal.Zero,
		Timestamp:             timestamp,
		TimestampLastSwap:     timestamp,
	}
}

func (c *ContinuousSwap) EntityKind() string { return KindContinuousSwap }
func (c *ContinuousSwap) EntityID() string   { return c.ID }

// UserToken caches a balance snapshot and the net flow rate at LastAction.
type UserToken struct {
	ID         string          `json:"id"`
	User       string          `json:"user"`
	Token      string          `json:"token"`
	Balance    decimal.Decimal `json:"balance"`
	NetFlow    decimal.Decimal `json:"netFlow"`
	LastAction int64           `json:"lastAction"`
}

func NewUserToken(id, user, token string, timestamp int64) *UserToken {
	return &UserToken{
		ID:         id,
		User:       user,
		Token:      token,
		Balance:    decimal.Zero,
		NetFlow:    decimal.Zero,
		LastAction: timestamp,
	}
}

func (u *UserToken) EntityKind() string { return KindUserToken }
func (u *UserToken) EntityID() string   { return u.ID }

type LiquidityProvider struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	Pool      string `json:"pool"`
	JoinCount int64  `json:"joinCount"`
	FirstJoin int64  `json:"firstJoin"`
}

func NewLiquidityProvider(id, user, pool string, timestamp int64) *LiquidityProvider {
	return &LiquidityProvider{ID: id, User: user, Pool: pool, FirstJoin: timestamp}
}

func (l *LiquidityProvider) EntityKind() string { return KindLiquidityProvider }
func (l *LiquidityProvider) EntityID() string   { return l.ID }

// ProcessedEvent marks an event whose effects are already committed.
type ProcessedEvent struct {
	ID     string `json:"id"`
	Ledger uint32 `json:"ledger"`
	Kind   string `json:"kind"`
}

func (p *ProcessedEvent) EntityKind() string { return KindProcessedEvent }
func (p *ProcessedEvent) EntityID() string   { return p.ID }

// Cursor is the resume point of an event source.
type Cursor struct {
	ID       string `json:"id"`
	Ledger   uint32 `json:"ledger"`
	TxHash   string `json:"txHash"`
	LogIndex uint32 `json:"logIndex"`
}

func (c *Cursor) EntityKind() string { return KindCursor }
func (c *Cursor) EntityID() string   { return c.ID }
