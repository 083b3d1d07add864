package source

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/stellar/go/xdr"

	"github.com/streamswap/stellar-indexer/models"
	"github.com/streamswap/stellar-indexer/utils"
)

var ErrMalformed = errors.New("malformed contract event")

// Meta locates a contract event in the ledger.
type Meta struct {
	Ledger    uint32
	CloseTime time.Time
	TxHash    string
	LogIndex  uint32
}

var balanceSymbols = map[string]bool{
	"transfer":        true,
	"mint":            true,
	"burn":            true,
	"clawback":        true,
	"upgrade":         true,
	"downgrade":       true,
	"liquidate":       true,
	"account_updated": true,
}

// DecodeContractEvent turns a Soroban contract event into an engine event.
// ok is false for events the indexer does not follow.
func DecodeContractEvent(event xdr.ContractEvent, meta Meta) (models.Event, bool, error) {
	body := event.Body.V0
	if body == nil || event.ContractId == nil {
		return models.Event{}, false, nil
	}
	scAddr := xdr.ScAddress{
		Type:       xdr.ScAddressTypeScAddressTypeContract,
		ContractId: event.ContractId,
	}
	contract, err := scAddr.String()
	if err != nil {
		return models.Event{}, false, fmt.Errorf("%w: contract id: %v", ErrMalformed, err)
	}
	return Decode(contract, body.Topics, body.Data, meta)
}

// Decode maps topic[0]'s symbol to an event kind and reads its parameters
// from the remaining topics and the data value.
func Decode(contract string, topics []xdr.ScVal, data xdr.ScVal, meta Meta) (models.Event, bool, error) {
	if len(topics) == 0 {
		return models.Event{}, false, nil
	}
	sym, ok := topics[0].GetSym()
	if !ok {
		return models.Event{}, false, nil
	}
	symbol := string(sym)

	ev := models.Event{
		ContractAddress: contract,
		LedgerSequence:  meta.Ledger,
		BlockTime:       meta.CloseTime,
		TransactionHash: meta.TxHash,
		LogIndex:        meta.LogIndex,
		Symbol:          symbol,
	}

	var err error
	switch symbol {
	case "new_pool":
		ev.Kind = models.EventPoolCreated
		ev.PoolCreated = &models.PoolCreatedParams{}
		ev.PoolCreated.Pool, err = addressAt(topics, 1)

	case "bind":
		ev.Kind = models.EventTokenBound
		ev.TokenBound = &models.TokenBoundParams{}
		ev.TokenBound.Token, err = addressAt(topics, 1)

	case "swap":
		ev.Kind = models.EventInstantSwapExecuted
		p := &models.InstantSwapParams{}
		if p.Caller, p.TokenIn, p.TokenOut, err = threeAddresses(topics); err != nil {
			break
		}
		var amounts []*big.Int
		if amounts, err = i128Vec(data, 2); err != nil {
			break
		}
		p.AmountIn, p.AmountOut = amounts[0], amounts[1]
		ev.InstantSwap = p

	case "set_flow":
		ev.Kind = models.EventContinuousRateSet
		p := &models.ContinuousRateSetParams{}
		if p.Caller, p.TokenIn, p.TokenOut, err = threeAddresses(topics); err != nil {
			break
		}
		var values []*big.Int
		if values, err = i128Vec(data, 3); err != nil {
			break
		}
		p.NewInboundRate, p.MinOut, p.MaxOut = values[0], values[1], values[2]
		ev.ContinuousRateSet = p

	case "flow_rate":
		ev.Kind = models.EventContinuousRateChanged
		p := &models.ContinuousRateChangedParams{}
		if p.Receiver, p.TokenIn, p.TokenOut, err = threeAddresses(topics); err != nil {
			break
		}
		if p.NewOutboundRate, err = i128(data); err != nil {
			break
		}
		ev.ContinuousRateChanged = p

	case "join", "exit":
		p := &models.LiquidityParams{}
		if p.Caller, err = addressAt(topics, 1); err != nil {
			break
		}
		if p.Token, err = addressAt(topics, 2); err != nil {
			break
		}
		if p.Amount, err = i128(data); err != nil {
			break
		}
		if symbol == "join" {
			ev.Kind = models.EventLiquidityJoined
			ev.LiquidityJoined = p
		} else {
			ev.Kind = models.EventLiquidityExited
			ev.LiquidityExited = p
		}

	default:
		if !balanceSymbols[symbol] {
			return models.Event{}, false, nil
		}
		ev.Kind = models.EventBalanceAffecting
		accounts := addresses(topics[1:])
		if len(accounts) == 0 {
			err = fmt.Errorf("%w: %s without account topics", ErrMalformed, symbol)
			break
		}
		ev.BalanceAffecting = &models.BalanceAffectingParams{Accounts: accounts}
	}

	if err != nil {
		return models.Event{}, false, fmt.Errorf("decode %s at %s-%d: %w", symbol, meta.TxHash, meta.LogIndex, err)
	}
	return ev, true, nil
}

func addressAt(topics []xdr.ScVal, i int) (string, error) {
	if i >= len(topics) {
		return "", fmt.Errorf("%w: missing topic %d", ErrMalformed, i)
	}
	addr, ok := topics[i].GetAddress()
	if !ok {
		return "", fmt.Errorf("%w: topic %d is not an address", ErrMalformed, i)
	}
	s, err := addr.String()
	if err != nil {
		return "", fmt.Errorf("%w: topic %d: %v", ErrMalformed, i, err)
	}
	return s, nil
}

func threeAddresses(topics []xdr.ScVal) (a, b, c string, err error) {
	if a, err = addressAt(topics, 1); err != nil {
		return
	}
	if b, err = addressAt(topics, 2); err != nil {
		return
	}
	c, err = addressAt(topics, 3)
	return
}

// addresses collects every address-typed topic, skipping the asset string
// Stellar Asset Contracts append.
func addresses(topics []xdr.ScVal) []string {
	var out []string
	for _, t := range topics {
		addr, ok := t.GetAddress()
		if !ok {
			continue
		}
		if s, err := addr.String(); err == nil {
			out = append(out, s)
		}
	}
	return out
}

func i128(v xdr.ScVal) (*big.Int, error) {
	parts, ok := v.GetI128()
	if !ok {
		return nil, fmt.Errorf("%w: expected i128, got %s", ErrMalformed, v.Type)
	}
	return utils.Int128ToBigInt(parts), nil
}

func i128Vec(v xdr.ScVal, n int) ([]*big.Int, error) {
	vec, ok := v.GetVec()
	if !ok || vec == nil || len(*vec) < n {
		return nil, fmt.Errorf("%w: expected vec of %d i128", ErrMalformed, n)
	}
	out := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		x, err := i128((*vec)[i])
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}
