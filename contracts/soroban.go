package contracts

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	client "github.com/stellar/go/clients/rpcclient"
	protocol "github.com/stellar/go/protocols/rpc"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"

	"github.com/streamswap/stellar-indexer/models"
	"github.com/streamswap/stellar-indexer/utils"
)

// classic assets always carry 7 decimals
const classicDecimals = 7

// SorobanReader simulates read-only contract invocations over Soroban RPC.
// Simulation runs against the latest ledger state.
type SorobanReader struct {
	config  models.GetTokenConfig
	rpc     *client.Client
	horizon *horizonclient.Client
	log     zerolog.Logger
}

func NewSorobanReader(config models.GetTokenConfig, log zerolog.Logger) *SorobanReader {
	httpClient := &http.Client{Timeout: config.Timeout}
	return &SorobanReader{
		config:  config,
		rpc:     client.NewClient(config.RPCUrl, httpClient),
		horizon: &horizonclient.Client{HorizonURL: config.HorizonUrl, HTTP: httpClient},
		log:     log,
	}
}

var _ Reader = (*SorobanReader)(nil)

// TokenMetadata detects Stellar Asset Contracts by their "CODE:ISSUER" name
// and falls back to Horizon for their supply.
func (r *SorobanReader) TokenMetadata(ctx context.Context, token string) (models.TokenInfo, error) {
	info := models.TokenInfo{ContractAddress: token}

	scAddr, err := createScAddressFromString(token)
	if err != nil {
		return info, fmt.Errorf("invalid contract address: %w", err)
	}

	if info.Symbol, err = r.stringCall(ctx, scAddr, "symbol"); err != nil {
		return info, fmt.Errorf("failed to get symbol: %w", err)
	}
	if info.Name, err = r.stringCall(ctx, scAddr, "name"); err != nil {
		return info, fmt.Errorf("failed to get name: %w", err)
	}
	if info.Decimals, err = r.getTokenDecimals(ctx, scAddr); err != nil {
		return info, fmt.Errorf("failed to get decimals: %w", err)
	}

	// Optional entry point; Stellar Asset Contracts do not expose it.
	if supply, err := r.i128Call(ctx, scAddr, "total_supply", xdr.ScVec{}); err == nil {
		info.TotalSupply = supply
	}

	assetCode, issuer, isSAC := parseSACName(info.Name)
	info.IsSAC = isSAC
	if isSAC && info.TotalSupply == nil {
		supply, err := r.getClassicAssetSupply(assetCode, issuer)
		if err != nil {
			r.log.Warn().Err(err).Str("token", token).Msg("classic asset supply unavailable")
		} else {
			info.TotalSupply = supply
		}
	}
	return info, nil
}

func (r *SorobanReader) Balance(ctx context.Context, token, account string) (*big.Int, error) {
	tokenAddr, err := createScAddressFromString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid contract address: %w", err)
	}
	accountArg, err := addressArg(account)
	if err != nil {
		return nil, err
	}
	return r.i128Call(ctx, tokenAddr, "balance", xdr.ScVec{accountArg})
}

// NetFlow asks the flow agreement contract for the account's net rate. With
// no flow contract configured every account has zero net flow.
func (r *SorobanReader) NetFlow(ctx context.Context, token, account string) (*big.Int, error) {
	if r.config.FlowContract == "" {
		return big.NewInt(0), nil
	}
	flowAddr, err := createScAddressFromString(r.config.FlowContract)
	if err != nil {
		return nil, fmt.Errorf("invalid flow contract address: %w", err)
	}
	tokenArg, err := addressArg(token)
	if err != nil {
		return nil, err
	}
	accountArg, err := addressArg(account)
	if err != nil {
		return nil, err
	}
	return r.i128Call(ctx, flowAddr, "get_net_flow", xdr.ScVec{tokenArg, accountArg})
}

// --- Internal Helper Functions ---

func createScAddressFromString(addressStr string) (xdr.ScAddress, error) {
	var scAddr xdr.ScAddress

	if len(addressStr) == 0 {
		return scAddr, fmt.Errorf("empty address string")
	}

	switch addressStr[0] {
	case 'G':
		rawBytes, err := strkey.Decode(strkey.VersionByteAccountID, addressStr)
		if err != nil {
			return scAddr, fmt.Errorf("failed to decode account address: %w", err)
		}

		var accountID xdr.AccountId
		var uint256 xdr.Uint256
		copy(uint256[:], rawBytes)
		accountID.Type = xdr.PublicKeyTypePublicKeyTypeEd25519
		accountID.Ed25519 = &uint256

		scAddr.Type = xdr.ScAddressTypeScAddressTypeAccount
		scAddr.AccountId = &accountID
	case 'C':
		rawBytes, err := strkey.Decode(strkey.VersionByteContract, addressStr)
		if err != nil {
			return scAddr, fmt.Errorf("failed to decode contract address: %w", err)
		}

		var contractId xdr.ContractId
		copy(contractId[:], rawBytes)

		scAddr.Type = xdr.ScAddressTypeScAddressTypeContract
		scAddr.ContractId = &contractId
	default:
		return scAddr, fmt.Errorf("invalid address format: must start with G or C")
	}

	return scAddr, nil
}

func addressArg(address string) (xdr.ScVal, error) {
	scAddr, err := createScAddressFromString(address)
	if err != nil {
		return xdr.ScVal{}, fmt.Errorf("invalid address %s: %w", address, err)
	}
	return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &scAddr}, nil
}

func (r *SorobanReader) callReadOnlyFunction(ctx context.Context, contractAddress xdr.ScAddress, functionName string, args xdr.ScVec) (xdr.ScVal, error) {
	invokeContractArgs := xdr.InvokeContractArgs{
		ContractAddress: contractAddress,
		FunctionName:    xdr.ScSymbol(functionName),
		Args:            args,
	}

	hostFunction := xdr.HostFunction{
		Type:           xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
		InvokeContract: &invokeContractArgs,
	}

	dummyAccountAddress := "GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF"
	dummySource := txnbuild.NewSimpleAccount(dummyAccountAddress, 0)

	invokeHostFunctionOp := &txnbuild.InvokeHostFunction{
		HostFunction:  hostFunction,
		SourceAccount: dummySource.AccountID,
	}

	tx, err := txnbuild.NewTransaction(
		txnbuild.TransactionParams{
			SourceAccount:        &dummySource,
			IncrementSequenceNum: true,
			Operations:           []txnbuild.Operation{invokeHostFunctionOp},
			BaseFee:              txnbuild.MinBaseFee,
			Preconditions: txnbuild.Preconditions{
				TimeBounds: txnbuild.NewInfiniteTimeout(),
			},
		},
	)
	if err != nil {
		return xdr.ScVal{}, fmt.Errorf("failed to build transaction: %w", err)
	}

	txEnvelopeXDR, err := xdr.MarshalBase64(tx.ToXDR())
	if err != nil {
		return xdr.ScVal{}, fmt.Errorf("failed to marshal tx envelope: %w", err)
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	resp, err := r.rpc.SimulateTransaction(ctx, protocol.SimulateTransactionRequest{
		Transaction: txEnvelopeXDR,
	})
	if err != nil {
		return xdr.ScVal{}, fmt.Errorf("simulate %s: %w", functionName, err)
	}
	if resp.Error != "" {
		return xdr.ScVal{}, fmt.Errorf("simulation error: %s", resp.Error)
	}
	if len(resp.Results) == 0 || resp.Results[0].ReturnValueXDR == nil {
		return xdr.ScVal{}, fmt.Errorf("%s: no results returned", functionName)
	}

	var scVal xdr.ScVal
	if err := xdr.SafeUnmarshalBase64(*resp.Results[0].ReturnValueXDR, &scVal); err != nil {
		return xdr.ScVal{}, fmt.Errorf("failed to unmarshal result XDR: %w", err)
	}

	return scVal, nil
}

func (r *SorobanReader) stringCall(ctx context.Context, scAddr xdr.ScAddress, fn string) (string, error) {
	scVal, err := r.callReadOnlyFunction(ctx, scAddr, fn, xdr.ScVec{})
	if err != nil {
		return "", err
	}
	if scVal.Type != xdr.ScValTypeScvString {
		return "", fmt.Errorf("%s: %w", fn, ErrUnexpectedResult)
	}
	return string(scVal.MustStr()), nil
}

func (r *SorobanReader) getTokenDecimals(ctx context.Context, scAddr xdr.ScAddress) (uint32, error) {
	scVal, err := r.callReadOnlyFunction(ctx, scAddr, "decimals", xdr.ScVec{})
	if err != nil {
		return 0, err
	}
	if scVal.Type != xdr.ScValTypeScvU32 {
		return 0, fmt.Errorf("decimals: %w", ErrUnexpectedResult)
	}
	return uint32(*scVal.U32), nil
}

func (r *SorobanReader) i128Call(ctx context.Context, scAddr xdr.ScAddress, fn string, args xdr.ScVec) (*big.Int, error) {
	scVal, err := r.callReadOnlyFunction(ctx, scAddr, fn, args)
	if err != nil {
		return nil, err
	}
	if scVal.Type != xdr.ScValTypeScvI128 {
		return nil, fmt.Errorf("%s: %w", fn, ErrUnexpectedResult)
	}
	return utils.Int128ToBigInt(scVal.MustI128()), nil
}

func parseSACName(name string) (assetCode, issuer string, isSAC bool) {
	parts := strings.Split(name, ":")
	if len(parts) != 2 {
		return "", "", false
	}

	assetCode = parts[0]
	issuer = parts[1]

	if !strings.HasPrefix(issuer, "G") {
		return "", "", false
	}

	return assetCode, issuer, true
}

// getClassicAssetSupply sums every bucket Horizon reports for the asset and
// returns it in raw stroops.
func (r *SorobanReader) getClassicAssetSupply(assetCode, issuer string) (*big.Int, error) {
	response, err := r.horizon.Assets(horizonclient.AssetRequest{
		ForAssetCode:   assetCode,
		ForAssetIssuer: issuer,
	})
	if err != nil {
		return nil, err
	}

	if len(response.Embedded.Records) == 0 {
		return nil, fmt.Errorf("asset not found")
	}

	record := response.Embedded.Records[0]
	total := decimal.Zero
	for _, amount := range []string{
		record.Balances.Authorized,
		record.LiquidityPoolsAmount,
		record.ContractsAmount,
		record.ClaimableBalancesAmount,
	} {
		if amount == "" {
			continue
		}
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("bad amount %q: %w", amount, err)
		}
		total = total.Add(v)
	}
	return total.Shift(classicDecimals).BigInt(), nil
}
