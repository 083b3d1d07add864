package models

import (
	"math/big"
	"time"
)

// TokenInfo is the static token metadata read from the token contract the
// first time the token is seen.
type TokenInfo struct {
	ContractAddress string   `json:"contract_address"`
	Symbol          string   `json:"symbol"`
	Name            string   `json:"name"`
	Decimals        uint32   `json:"decimals"`
	TotalSupply     *big.Int `json:"total_supply"`
	IsSAC           bool     `json:"is_sac"` // Is Stellar Asset Contract
}

// Config for the read-through helpers
type GetTokenConfig struct {
	RPCUrl            string
	HorizonUrl        string
	NetworkPassphrase string
	FlowContract      string
	Timeout           time.Duration
}
