package tx_handlers

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamswap/stellar-indexer/ids"
	"github.com/streamswap/stellar-indexer/models"
	"github.com/streamswap/stellar-indexer/store"
)

const (
	factoryAddr = "CFACTORY"
	poolAddr    = "CPOOL"
	tokA        = "CTOKENA"
	tokB        = "CTOKENB"
	alice       = "GALICE"
	bob         = "GBOB"
)

type fakeReader struct {
	decimals    map[string]uint32
	balances    map[string]*big.Int
	flows       map[string]*big.Int
	metadataErr error
	calls       int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		decimals: map[string]uint32{tokA: 0, tokB: 0},
		balances: map[string]*big.Int{},
		flows:    map[string]*big.Int{},
	}
}

func (f *fakeReader) TokenMetadata(_ context.Context, token string) (models.TokenInfo, error) {
	f.calls++
	if f.metadataErr != nil {
		return models.TokenInfo{}, f.metadataErr
	}
	return models.TokenInfo{
		ContractAddress: token,
		Symbol:          token[1:],
		Name:            token,
		Decimals:        f.decimals[token],
		TotalSupply:     big.NewInt(1_000_000),
	}, nil
}

func (f *fakeReader) Balance(_ context.Context, token, account string) (*big.Int, error) {
	if b, ok := f.balances[token+"|"+account]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeReader) NetFlow(_ context.Context, token, account string) (*big.Int, error) {
	if v, ok := f.flows[token+"|"+account]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	store  *store.Memory
	reader *fakeReader
	proc   *Processor
	ledger uint32
}

func newHarness(t *testing.T) *harness {
	s := store.NewMemory()
	r := newFakeReader()
	return &harness{
		t:      t,
		ctx:    context.Background(),
		store:  s,
		reader: r,
		proc:   NewProcessor(s, r, zerolog.Nop(), WithFactory(factoryAddr)),
		ledger: 100,
	}
}

func (h *harness) base(kind models.EventKind, contract string, ts int64, tx string, idx uint32) models.Event {
	h.ledger++
	return models.Event{
		Kind:            kind,
		ContractAddress: contract,
		LedgerSequence:  h.ledger,
		BlockTime:       time.Unix(ts, 0).UTC(),
		TransactionHash: tx,
		LogIndex:        idx,
	}
}

func (h *harness) apply(events ...models.Event) {
	h.t.Helper()
	for _, ev := range events {
		require.NoError(h.t, h.proc.Process(h.ctx, ev))
	}
}

func (h *harness) poolCreated(ts int64) models.Event {
	ev := h.base(models.EventPoolCreated, factoryAddr, ts, "txpool", 0)
	ev.PoolCreated = &models.PoolCreatedParams{Pool: poolAddr}
	return ev
}

func (h *harness) bind(token string, ts int64) models.Event {
	ev := h.base(models.EventTokenBound, poolAddr, ts, "txbind"+token, 0)
	ev.TokenBound = &models.TokenBoundParams{Token: token}
	return ev
}

func (h *harness) swap(tx string, idx uint32, ts int64, in, out int64) models.Event {
	ev := h.base(models.EventInstantSwapExecuted, poolAddr, ts, tx, idx)
	ev.InstantSwap = &models.InstantSwapParams{
		Caller: alice, TokenIn: tokA, TokenOut: tokB,
		AmountIn: big.NewInt(in), AmountOut: big.NewInt(out),
	}
	return ev
}

func (h *harness) setFlow(tx string, ts int64, rate int64) models.Event {
	ev := h.base(models.EventContinuousRateSet, poolAddr, ts, tx, 0)
	ev.ContinuousRateSet = &models.ContinuousRateSetParams{
		Caller: alice, TokenIn: tokA, TokenOut: tokB,
		NewInboundRate: big.NewInt(rate), MinOut: big.NewInt(1), MaxOut: big.NewInt(1000),
	}
	return ev
}

func (h *harness) rateChanged(tx string, ts int64, rate int64) models.Event {
	ev := h.base(models.EventContinuousRateChanged, poolAddr, ts, tx, 1)
	ev.ContinuousRateChanged = &models.ContinuousRateChangedParams{
		Receiver: alice, TokenIn: tokA, TokenOut: tokB, NewOutboundRate: big.NewInt(rate),
	}
	return ev
}

func (h *harness) liquidity(kind models.EventKind, tx string, ts int64, user, token string, amount int64) models.Event {
	ev := h.base(kind, poolAddr, ts, tx, 0)
	params := &models.LiquidityParams{Caller: user, Token: token, Amount: big.NewInt(amount)}
	if kind == models.EventLiquidityJoined {
		ev.LiquidityJoined = params
	} else {
		ev.LiquidityExited = params
	}
	return ev
}

func (h *harness) setup() {
	h.apply(h.poolCreated(0), h.bind(tokA, 0), h.bind(tokB, 0))
}

func pooledToken(h *harness, token string) *models.PooledToken {
	h.t.Helper()
	pt, err := store.MustLoad[models.PooledToken](h.ctx, h.store, ids.PooledToken(token, poolAddr))
	require.NoError(h.t, err)
	return pt
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestPoolCreationAndBinding(t *testing.T) {
	h := newHarness(t)
	h.setup()
	// rebinding is a no-op
	h.apply(h.bind(tokA, 5))

	pool, err := store.MustLoad[models.Pool](h.ctx, h.store, poolAddr)
	require.NoError(t, err)
	assert.Equal(t, []string{tokA, tokB}, pool.TokenAddresses)
	assert.Equal(t, uint32(101), pool.CreatedAtBlockNumber)

	factory, err := store.MustLoad[models.Factory](h.ctx, h.store, factoryAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(1), factory.PoolCount)

	token, err := store.MustLoad[models.Token](h.ctx, h.store, tokA)
	require.NoError(t, err)
	assert.Equal(t, "TOKENA", token.Symbol)
	assert.True(t, token.TotalSupply.Equal(dec(1_000_000)))
	assert.Equal(t, 2, h.reader.calls, "metadata is read once per token")

	assert.True(t, pooledToken(h, tokA).Reserve.IsZero())
}

func TestForeignFactoryIsIgnored(t *testing.T) {
	h := newHarness(t)
	ev := h.poolCreated(0)
	ev.ContractAddress = "COTHERFACTORY"
	h.apply(ev)

	_, ok, err := store.Load[models.Pool](h.ctx, h.store, poolAddr)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenThenCloseStream(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.apply(h.setFlow("tx1", 0, 5), h.setFlow("tx2", 100, 0))

	assert.True(t, pooledToken(h, tokA).Volume.Equal(dec(500)))

	cs, err := store.MustLoad[models.ContinuousSwap](h.ctx, h.store, ids.ContinuousSwap(alice, poolAddr, tokA, tokB))
	require.NoError(t, err)
	assert.False(t, cs.Active)
	assert.True(t, cs.RateIn.IsZero())
	assert.Equal(t, "tx2", cs.Transaction)
	assert.Equal(t, int64(100), cs.Timestamp)

	pool, err := store.MustLoad[models.Pool](h.ctx, h.store, poolAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pool.ContinuousSwapSetCount)
	assert.Equal(t, int64(0), pool.InstantSwapCount)

	day, err := store.MustLoad[models.TokenDayData](h.ctx, h.store, ids.TokenBucket(tokA, 0))
	require.NoError(t, err)
	assert.True(t, day.DailyVolumeToken.Equal(dec(500)))
	assert.Equal(t, int64(2), day.ContinuousSwapSetCount)

	_, err = store.MustLoad[models.UserToken](h.ctx, h.store, ids.UserToken(alice, tokB))
	require.NoError(t, err)
}

func TestOutboundRateChangesAccumulateDelivered(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.apply(
		h.setFlow("tx1", 0, 5),
		h.rateChanged("tx1", 10, 2),
		h.rateChanged("tx3", 30, 0),
	)

	cs, err := store.MustLoad[models.ContinuousSwap](h.ctx, h.store, ids.ContinuousSwap(alice, poolAddr, tokA, tokB))
	require.NoError(t, err)
	assert.True(t, cs.TotalOutUntilLastSwap.Equal(dec(40)), cs.TotalOutUntilLastSwap.String())
	assert.False(t, cs.Active)
	assert.Equal(t, int64(30), cs.TimestampLastSwap)

	out := pooledToken(h, tokB)
	assert.True(t, out.Volume.Equal(dec(40)))
	assert.True(t, out.Reserve.Equal(dec(-40)))

	pool, err := store.MustLoad[models.Pool](h.ctx, h.store, poolAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pool.ContinuousRateChangeCount)
	assert.Equal(t, int64(1), pool.ContinuousSwapSetCount)
}

func TestTwoSwapsInOneTransaction(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.apply(h.swap("txswap", 0, 50, 10, 7), h.swap("txswap", 1, 50, 4, 3))

	swaps, err := store.List[models.InstantSwap](h.ctx, h.store, store.Query{})
	require.NoError(t, err)
	require.Len(t, swaps, 2)
	assert.Equal(t, "txswap-0", swaps[0].ID)
	assert.Equal(t, "txswap-1", swaps[1].ID)

	txs, err := store.List[models.Transaction](h.ctx, h.store, store.Query{})
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	in, out := pooledToken(h, tokA), pooledToken(h, tokB)
	assert.True(t, in.Volume.Equal(dec(14)))
	assert.True(t, in.Reserve.Equal(dec(14)))
	assert.True(t, out.Volume.Equal(dec(10)))
	assert.True(t, out.Reserve.Equal(dec(-10)))

	day, err := store.MustLoad[models.PoolDayData](h.ctx, h.store, ids.PoolBucket(poolAddr, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(2), day.InstantSwapCount)
	assert.Len(t, day.Tokens, 2)
}

func TestReplayIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.reader.balances[tokA+"|"+alice] = big.NewInt(99)
	events := []models.Event{
		h.poolCreated(0), h.bind(tokA, 0), h.bind(tokB, 0),
		h.setFlow("tx1", 10, 5),
		h.swap("tx2", 0, 20, 10, 7),
		h.rateChanged("tx3", 30, 2),
		h.liquidity(models.EventLiquidityJoined, "tx4", 40, bob, tokA, 100),
		h.setFlow("tx5", 90000, 0),
	}
	h.apply(events...)
	first := snapshot(t, h)

	h.apply(events[:5]...)
	h.apply(events...)
	assert.Equal(t, first, snapshot(t, h))
}

var allKinds = []string{
	models.KindFactory, models.KindPool, models.KindToken, models.KindPooledToken, models.KindUser,
	models.KindTransaction, models.KindInstantSwap, models.KindContinuousSwap, models.KindUserToken,
	models.KindLiquidityProvider, models.KindPoolDayData, models.KindPoolHourData,
	models.KindDailyPooledToken, models.KindHourlyPooledToken, models.KindTokenDayData,
	models.KindProcessedEvent, models.KindCursor,
}

func snapshot(t *testing.T, h *harness) map[string][]string {
	t.Helper()
	out := map[string][]string{}
	for _, kind := range allKinds {
		rows, err := h.store.List(h.ctx, kind, store.Query{})
		require.NoError(t, err)
		for _, r := range rows {
			out[kind] = append(out[kind], string(r))
		}
	}
	return out
}

func TestMissingEdgeFailsOnlyThatEvent(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.apply(h.rateChanged("txbad", 10, 3), h.swap("txgood", 0, 20, 1, 1))

	_, ok, err := store.Load[models.ProcessedEvent](h.ctx, h.store, "txbad-1")
	require.NoError(t, err)
	assert.False(t, ok, "failed event must roll back")

	pool, err := store.MustLoad[models.Pool](h.ctx, h.store, poolAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pool.ContinuousRateChangeCount)
	assert.Equal(t, int64(1), pool.InstantSwapCount)
}

func TestTimeRegressionRollsBack(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.apply(h.setFlow("tx1", 100, 5), h.setFlow("tx2", 50, 1))

	cs, err := store.MustLoad[models.ContinuousSwap](h.ctx, h.store, ids.ContinuousSwap(alice, poolAddr, tokA, tokB))
	require.NoError(t, err)
	assert.True(t, cs.RateIn.Equal(dec(5)))
	assert.Equal(t, int64(100), cs.Timestamp)
}

func TestUnknownPoolIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.setup()
	ev := h.swap("txtemplate", 0, 20, 1, 1)
	ev.ContractAddress = "CTEMPLATE"
	h.apply(ev)

	swaps, err := store.List[models.InstantSwap](h.ctx, h.store, store.Query{})
	require.NoError(t, err)
	assert.Empty(t, swaps)

	_, ok, err := store.Load[models.ProcessedEvent](h.ctx, h.store, "txtemplate-0")
	require.NoError(t, err)
	assert.False(t, ok, "untracked events leave no trace")

	cursor, ok, err := h.proc.Resume(h.ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "txbind"+tokB, cursor.TxHash)
}

func TestForeignFactoryAdvancesCursor(t *testing.T) {
	h := newHarness(t)
	ev := h.poolCreated(0)
	ev.ContractAddress = "COTHERFACTORY"
	ev.TransactionHash = "txforeign"
	h.apply(ev)

	cursor, ok, err := h.proc.Resume(h.ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "txforeign", cursor.TxHash)
}

func TestUntrackedTokenEventsAreDropped(t *testing.T) {
	h := newHarness(t)
	h.setup()
	ev := h.base(models.EventBalanceAffecting, "CSOMEOTHERTOKEN", 10, "txother", 0)
	ev.BalanceAffecting = &models.BalanceAffectingParams{Accounts: []string{alice}}
	h.apply(ev)

	_, ok, err := store.Load[models.ProcessedEvent](h.ctx, h.store, "txother-0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnboundTokenIsInvariantViolation(t *testing.T) {
	h := newHarness(t)
	h.apply(h.poolCreated(0), h.bind(tokA, 0))
	h.apply(h.swap("tx1", 0, 10, 1, 1))

	swaps, err := store.List[models.InstantSwap](h.ctx, h.store, store.Query{})
	require.NoError(t, err)
	assert.Empty(t, swaps)
}

func TestDayBoundaryThroughHandlers(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.apply(h.swap("tx1", 0, 86399, 1, 1), h.swap("tx2", 0, 86400, 1, 1))

	days, err := store.List[models.PoolDayData](h.ctx, h.store, store.Query{OrderBy: "date"})
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, int64(0), days[0].Date)
	assert.Equal(t, int64(86400), days[1].Date)
	assert.Equal(t, int64(1), days[0].InstantSwapCount)
	assert.Equal(t, int64(1), days[1].InstantSwapCount)
}

func TestLiquidityJoinAndExit(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.apply(
		h.liquidity(models.EventLiquidityJoined, "tx1", 10, bob, tokA, 100),
		h.liquidity(models.EventLiquidityJoined, "tx2", 20, bob, tokA, 50),
		h.liquidity(models.EventLiquidityExited, "tx3", 30, bob, tokA, 30),
	)

	assert.True(t, pooledToken(h, tokA).Reserve.Equal(dec(120)))

	token, err := store.MustLoad[models.Token](h.ctx, h.store, tokA)
	require.NoError(t, err)
	assert.True(t, token.TotalLiquidity.Equal(dec(120)))

	pool, err := store.MustLoad[models.Pool](h.ctx, h.store, poolAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pool.LiquidityProviderCount)

	lp, err := store.MustLoad[models.LiquidityProvider](h.ctx, h.store, ids.LiquidityProvider(bob, poolAddr))
	require.NoError(t, err)
	assert.Equal(t, int64(2), lp.JoinCount)
	assert.Equal(t, int64(10), lp.FirstJoin)

	day, err := store.MustLoad[models.TokenDayData](h.ctx, h.store, ids.TokenBucket(tokA, 0))
	require.NoError(t, err)
	assert.True(t, day.TotalLiquidityToken.Equal(dec(120)))
}

func TestBalanceAffectingRefreshesTrackedPairsOnly(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.apply(h.swap("tx1", 0, 10, 1, 1))

	h.reader.balances[tokA+"|"+alice] = big.NewInt(500)
	h.reader.flows[tokA+"|"+alice] = big.NewInt(-2)
	h.reader.balances[tokA+"|"+bob] = big.NewInt(77)

	ev := h.base(models.EventBalanceAffecting, tokA, 60, "txtransfer", 0)
	ev.BalanceAffecting = &models.BalanceAffectingParams{Accounts: []string{alice, bob, alice}}
	h.apply(ev)

	ut, err := store.MustLoad[models.UserToken](h.ctx, h.store, ids.UserToken(alice, tokA))
	require.NoError(t, err)
	assert.True(t, ut.Balance.Equal(dec(500)))
	assert.True(t, ut.NetFlow.Equal(dec(-2)))
	assert.Equal(t, int64(60), ut.LastAction)

	_, ok, err := store.Load[models.UserToken](h.ctx, h.store, ids.UserToken(bob, tokA))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadThroughFailureFailsEvent(t *testing.T) {
	h := newHarness(t)
	h.apply(h.poolCreated(0))
	h.reader.metadataErr = errors.New("rpc down")
	h.apply(h.bind(tokA, 0))

	pool, err := store.MustLoad[models.Pool](h.ctx, h.store, poolAddr)
	require.NoError(t, err)
	assert.Empty(t, pool.TokenAddresses)
}

func TestUnknownKindIsDropped(t *testing.T) {
	h := newHarness(t)
	h.apply(h.base("mystery", poolAddr, 0, "tx", 0))
	_, ok, err := h.proc.Resume(h.ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

type downStore struct{ *store.Memory }

func (downStore) Atomic(context.Context, func(store.Tx) error) error {
	return store.ErrUnavailable
}

func TestUnavailableStoreHaltsPipeline(t *testing.T) {
	h := newHarness(t)
	proc := NewProcessor(downStore{store.NewMemory()}, h.reader, zerolog.Nop())
	err := proc.Process(h.ctx, h.poolCreated(0))
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestMissingParamsFailsOnlyThatEvent(t *testing.T) {
	h := newHarness(t)
	h.setup()
	before := snapshot(t, h)

	ev := h.base(models.EventContinuousRateSet, poolAddr, 10, "txempty", 0)
	assert.NotPanics(t, func() {
		assert.NoError(t, h.proc.Process(h.ctx, ev))
	})
	assert.Equal(t, before, snapshot(t, h))

	h.apply(h.swap("txnext", 0, 20, 1, 1))
	pool, err := store.MustLoad[models.Pool](h.ctx, h.store, poolAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pool.InstantSwapCount)
}

func TestMissingRateIsNotZero(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.apply(h.setFlow("tx1", 0, 5))

	unset := h.setFlow("txN", 100, 0)
	unset.ContinuousRateSet.NewInboundRate = nil
	noBound := h.setFlow("txM", 100, 0)
	noBound.ContinuousRateSet.MaxOut = nil
	changed := h.rateChanged("txR", 100, 0)
	changed.ContinuousRateChanged.NewOutboundRate = nil
	h.apply(unset, noBound, changed)

	cs, err := store.MustLoad[models.ContinuousSwap](h.ctx, h.store, ids.ContinuousSwap(alice, poolAddr, tokA, tokB))
	require.NoError(t, err)
	assert.True(t, cs.RateIn.Equal(dec(5)))
	assert.True(t, cs.Active)
	assert.Equal(t, "tx1", cs.Transaction)

	for _, id := range []string{"txN-0", "txM-0", "txR-1"} {
		_, ok, err := store.Load[models.ProcessedEvent](h.ctx, h.store, id)
		require.NoError(t, err)
		assert.False(t, ok, id)
	}
}

// txWatchStore records whether a store transaction is currently open.
type txWatchStore struct {
	*store.Memory
	open bool
}

func (s *txWatchStore) Atomic(ctx context.Context, fn func(store.Tx) error) error {
	s.open = true
	defer func() { s.open = false }()
	return s.Memory.Atomic(ctx, fn)
}

type watchedReader struct {
	*fakeReader
	store *txWatchStore
	inTx  int
}

func (w *watchedReader) TokenMetadata(ctx context.Context, token string) (models.TokenInfo, error) {
	if w.store.open {
		w.inTx++
	}
	return w.fakeReader.TokenMetadata(ctx, token)
}

func (w *watchedReader) Balance(ctx context.Context, token, account string) (*big.Int, error) {
	if w.store.open {
		w.inTx++
	}
	return w.fakeReader.Balance(ctx, token, account)
}

func (w *watchedReader) NetFlow(ctx context.Context, token, account string) (*big.Int, error) {
	if w.store.open {
		w.inTx++
	}
	return w.fakeReader.NetFlow(ctx, token, account)
}

func TestContractReadsHappenOutsideTransactions(t *testing.T) {
	h := newHarness(t)
	ws := &txWatchStore{Memory: store.NewMemory()}
	wr := &watchedReader{fakeReader: h.reader, store: ws}
	h.store = ws.Memory
	h.proc = NewProcessor(ws, wr, zerolog.Nop(), WithFactory(factoryAddr))

	h.reader.balances[tokA+"|"+alice] = big.NewInt(40)
	h.reader.flows[tokB+"|"+alice] = big.NewInt(3)
	h.setup()
	h.apply(h.swap("tx1", 0, 10, 4, 2), h.setFlow("tx2", 20, 1), h.rateChanged("tx3", 30, 1))

	h.reader.balances[tokA+"|"+alice] = big.NewInt(12)
	ev := h.base(models.EventBalanceAffecting, tokA, 40, "txtransfer", 0)
	ev.BalanceAffecting = &models.BalanceAffectingParams{Accounts: []string{alice, bob}}
	h.apply(ev)

	assert.Equal(t, 0, wr.inTx)
	assert.Equal(t, 2, h.reader.calls)

	ut, err := store.MustLoad[models.UserToken](h.ctx, h.store, ids.UserToken(alice, tokA))
	require.NoError(t, err)
	assert.True(t, ut.Balance.Equal(dec(12)))
	ut, err = store.MustLoad[models.UserToken](h.ctx, h.store, ids.UserToken(alice, tokB))
	require.NoError(t, err)
	assert.True(t, ut.NetFlow.Equal(dec(3)))
}
