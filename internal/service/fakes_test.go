package service

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarb/internal/arbitrage"
	"github.com/alanyoungcy/ammarb/internal/crypto"
	"github.com/alanyoungcy/ammarb/internal/domain"
	"github.com/alanyoungcy/ammarb/internal/market/uniswapv2"
)

var (
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	tokenA   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	executor = common.HexToAddress("0x00000000000000000000000000000000000e0e0e")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newPair(addr string, token common.Address, wethUnits, tokenUnits int64) *uniswapv2.Pair {
	p := uniswapv2.NewPair(common.HexToAddress(addr), weth, token, "")
	p.SetReserves(ether(wethUnits), ether(tokenUnits))
	return p
}

type fakeChain struct {
	gas    uint64
	gasErr error
}

func (c *fakeChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return c.gas, c.gasErr
}

func (c *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 3, nil
}

type fakeLoader struct {
	mu     sync.Mutex
	blocks []uint64
	delay  time.Duration
	err    error
}

func (l *fakeLoader) RefreshReserves(_ context.Context, _ []*uniswapv2.Pair, block uint64) error {
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blocks = append(l.blocks, block)
	return l.err
}

func (l *fakeLoader) calls() []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]uint64(nil), l.blocks...)
}

type memOpportunities struct {
	mu   sync.Mutex
	recs []domain.OpportunityRecord
}

func (m *memOpportunities) Insert(_ context.Context, rec domain.OpportunityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memOpportunities) ListRecent(_ context.Context, limit int) ([]domain.OpportunityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.recs) {
		limit = len(m.recs)
	}
	return m.recs[:limit], nil
}

func (m *memOpportunities) ListBefore(context.Context, time.Time) ([]domain.OpportunityRecord, error) {
	return nil, nil
}

type memBundles struct {
	mu   sync.Mutex
	recs []domain.BundleRecord
}

func (m *memBundles) Insert(_ context.Context, rec domain.BundleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memBundles) ListRecent(context.Context, int) ([]domain.BundleRecord, error) {
	return m.recs, nil
}

func (m *memBundles) ListBefore(context.Context, time.Time) ([]domain.BundleRecord, error) {
	return nil, nil
}

func (m *memBundles) CountSubmitted(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][][]byte
	readErr   error
}

func newMemBus() *memBus {
	return &memBus{published: map[string][][]byte{}, streams: map[string][][]byte{}}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

// StreamRead numbers entries from 1 and returns those after lastID.
func (b *memBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readErr != nil {
		return nil, b.readErr
	}
	after, err := strconv.Atoi(strings.SplitN(lastID, "-", 2)[0])
	if err != nil {
		return nil, err
	}
	var out []domain.StreamMessage
	for i := after; i < len(b.streams[stream]) && len(out) < count; i++ {
		out = append(out, domain.StreamMessage{ID: strconv.Itoa(i+1) + "-0", Payload: b.streams[stream][i]})
	}
	return out, nil
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type harness struct {
	svc     *ArbService
	loader  *fakeLoader
	tracker *domain.BlockTracker
	opps    *memOpportunities
	audit   *memAudit
	bus     *memBus
	p1, p2  *uniswapv2.Pair
	chain   *fakeChain
}

// newHarness builds two balanced weth/tokenA pairs and an ArbService over
// them with in-memory history.
func newHarness(t *testing.T) *harness {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	h := &harness{
		loader:  &fakeLoader{},
		tracker: domain.NewBlockTracker(),
		opps:    &memOpportunities{},
		audit:   &memAudit{},
		bus:     newMemBus(),
		p1:      newPair("0x01", tokenA, 100, 200_000),
		p2:      newPair("0x02", tokenA, 100, 200_000),
		chain:   &fakeChain{gas: 300_000},
	}
	universe := &uniswapv2.Universe{
		ByToken: domain.MarketsByToken{tokenA: {h.p1, h.p2}},
		Pairs:   []*uniswapv2.Pair{h.p1, h.p2},
	}
	orch := arbitrage.NewOrchestrator(arbitrage.OrchestratorConfig{
		Signer: crypto.NewSigner(key, big.NewInt(1)),
		Chain:  h.chain,
		Executors: arbitrage.NewExecutorBook(map[common.Address]common.Address{
			weth:   executor,
			tokenA: executor,
		}),
		Base:   weth,
		Logger: discardLogger(),
	})
	history := NewHistoryService(HistoryServiceConfig{
		Opportunities: h.opps,
		Bus:           h.bus,
		Audit:         h.audit,
		Logger:        discardLogger(),
	})
	h.svc = NewArbService(ArbServiceConfig{
		Orchestrator:   orch,
		Universe:       universe,
		Loader:         h.loader,
		Tracker:        h.tracker,
		History:        history,
		MinerRewardPct: 80,
		RefreshWait:    100 * time.Millisecond,
		Logger:         discardLogger(),
	})
	return h
}

// dumpIntent sells 20,000 tokenA into p2 for weth.
func dumpIntent(market common.Address) domain.SwapIntent {
	return domain.SwapIntent{
		ID:          "intent-1",
		TokenIn:     tokenA,
		AmountIn:    ether(20_000),
		TokenOut:    weth,
		AmountOut:   ether(9),
		Market:      market,
		SlippageBps: 100,
	}
}
