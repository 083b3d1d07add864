package models

import (
	"errors"
	"fmt"
	"math/big"
	"time"
)

type EventKind string

const (
	EventPoolCreated           EventKind = "pool_created"
	EventTokenBound            EventKind = "token_bound"
	EventInstantSwapExecuted   EventKind = "instant_swap"
	EventContinuousRateSet     EventKind = "continuous_rate_set"
	EventContinuousRateChanged EventKind = "continuous_rate_changed"
	EventLiquidityJoined       EventKind = "liquidity_joined"
	EventLiquidityExited       EventKind = "liquidity_exited"
	EventBalanceAffecting      EventKind = "balance_affecting"
)

// Event is one decoded entry of the pool event log. Only the params block
// matching Kind is set.
type Event struct {
	Kind            EventKind `json:"kind"`
	ContractAddress string    `json:"contract_address"` // emitting pool, factory or token
	LedgerSequence  uint32    `json:"ledger_sequence"`
	BlockTime       time.Time `json:"block_time"`
	TransactionHash string    `json:"transaction_hash"`
	LogIndex        uint32    `json:"log_index"`
	Symbol          string    `json:"symbol,omitempty"` // raw topic symbol, informational

	PoolCreated           *PoolCreatedParams           `json:"pool_created,omitempty"`
	TokenBound            *TokenBoundParams            `json:"token_bound,omitempty"`
	InstantSwap           *InstantSwapParams           `json:"instant_swap,omitempty"`
	ContinuousRateSet     *ContinuousRateSetParams     `json:"continuous_rate_set,omitempty"`
	ContinuousRateChanged *ContinuousRateChangedParams `json:"continuous_rate_changed,omitempty"`
	LiquidityJoined       *LiquidityParams             `json:"liquidity_joined,omitempty"`
	LiquidityExited       *LiquidityParams             `json:"liquidity_exited,omitempty"`
	BalanceAffecting      *BalanceAffectingParams      `json:"balance_affecting,omitempty"`
}

// ID is unique per emitted event and stable across redelivery.
func (e Event) ID() string {
	return fmt.Sprintf("%s-%d", e.TransactionHash, e.LogIndex)
}

// ErrMissingParams is returned for an event whose params block does not
// match its kind.
var ErrMissingParams = errors.New("event params missing for kind")

// Validate checks that the params block matching Kind is present.
func (e Event) Validate() error {
	var present bool
	switch e.Kind {
	case EventPoolCreated:
		present = e.PoolCreated != nil
	case EventTokenBound:
		present = e.TokenBound != nil
	case EventInstantSwapExecuted:
		present = e.InstantSwap != nil
	case EventContinuousRateSet:
		present = e.ContinuousRateSet != nil
	case EventContinuousRateChanged:
		present = e.ContinuousRateChanged != nil
	case EventLiquidityJoined:
		present = e.LiquidityJoined != nil
	case EventLiquidityExited:
		present = e.LiquidityExited != nil
	case EventBalanceAffecting:
		present = e.BalanceAffecting != nil
	default:
		return nil
	}
	if !present {
		return fmt.Errorf("%w %s", ErrMissingParams, e.Kind)
	}
	return nil
}

// Timestamp is the block close time in unix seconds.
func (e Event) Timestamp() int64 {
	return e.BlockTime.Unix()
}

type PoolCreatedParams struct {
	Pool string `json:"pool"`
}

type TokenBoundParams struct {
	Token string `json:"token"`
}

type InstantSwapParams struct {
	Caller    string   `json:"caller"`
	TokenIn   string   `json:"token_in"`
	TokenOut  string   `json:"token_out"`
	AmountIn  *big.Int `json:"amount_in"`
	AmountOut *big.Int `json:"amount_out"`
}

// ContinuousRateSetParams carries raw per-second rates and raw bounds.
type ContinuousRateSetParams struct {
	Caller         string   `json:"caller"`
	TokenIn        string   `json:"token_in"`
	TokenOut       string   `json:"token_out"`
	NewInboundRate *big.Int `json:"new_inbound_rate"`
	MinOut         *big.Int `json:"min_out"`
	MaxOut         *big.Int `json:"max_out"`
}

type ContinuousRateChangedParams struct {
	Receiver        string   `json:"receiver"`
	TokenIn         string   `json:"token_in"`
	TokenOut        string   `json:"token_out"`
	NewOutboundRate *big.Int `json:"new_outbound_rate"`
}

type LiquidityParams struct {
	Caller string   `json:"caller"`
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
}

type BalanceAffectingParams struct {
	Accounts []string `json:"accounts"`
}
