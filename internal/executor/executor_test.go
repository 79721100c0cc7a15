package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarb/internal/arbitrage"
	"github.com/alanyoungcy/ammarb/internal/domain"
	"github.com/alanyoungcy/ammarb/internal/market/uniswapv2"
)

var (
	weth   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func opp(buy, sell string) domain.CrossedMarket {
	return domain.CrossedMarket{
		Token:   tokenA,
		BuyFrom: uniswapv2.NewPair(common.HexToAddress(buy), weth, tokenA, ""),
		SellTo:  uniswapv2.NewPair(common.HexToAddress(sell), weth, tokenA, ""),
		Volume:  big.NewInt(1e18),
		Profit:  big.NewInt(1e16),
	}
}

type fakeSubmitter struct {
	mu     sync.Mutex
	calls  [][]domain.CrossedMarket
	blocks []uint64
	pct    int64
	err    error
	submit bool
}

func (f *fakeSubmitter) SubmitBatch(_ context.Context, ranked []domain.CrossedMarket, block uint64, pct int64) (*arbitrage.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ranked)
	f.blocks = append(f.blocks, block)
	f.pct = pct
	res := &arbitrage.BatchResult{Block: block}
	if f.submit {
		res.Attempts = []arbitrage.Attempt{{
			Opportunity:  ranked[0],
			State:        domain.AttemptSubmitted,
			Tx:           &domain.SignedTx{MinerReward: big.NewInt(5e15)},
			TargetBlocks: []uint64{block + 1, block + 2},
			Acks:         []domain.BundleAck{{BundleHash: "0xa", TargetBlock: block + 1}},
		}}
		res.Submitted = &res.Attempts[0]
		return res, nil
	}
	return res, f.err
}

type fakeRecorder struct {
	results []*arbitrage.BatchResult
	causes  []error
}

func (r *fakeRecorder) RecordBatch(_ context.Context, res *arbitrage.BatchResult, cause error) {
	r.results = append(r.results, res)
	r.causes = append(r.causes, cause)
}

type fakeAnnouncer struct {
	submitted []uint64
	hashes    []string
	aborted   []error
}

func (a *fakeAnnouncer) BundleSubmitted(_ context.Context, block uint64, _ domain.CrossedMarket, _ *big.Int, hashes []string) error {
	a.submitted = append(a.submitted, block)
	a.hashes = append(a.hashes, hashes...)
	return nil
}

func (a *fakeAnnouncer) BatchAborted(_ context.Context, _ uint64, cause error) error {
	a.aborted = append(a.aborted, cause)
	return nil
}

func newExecutor(sub *fakeSubmitter, rec *fakeRecorder, ann *fakeAnnouncer, tracker *domain.BlockTracker) *Executor {
	cfg := Config{
		Submitter:      sub,
		Tracker:        tracker,
		MinerRewardPct: 80,
		Logger:         discardLogger(),
	}
	if rec != nil {
		cfg.Recorder = rec
	}
	if ann != nil {
		cfg.Announcer = ann
	}
	return New(cfg)
}

func TestProcess_SubmitsAndAnnounces(t *testing.T) {
	sub := &fakeSubmitter{submit: true}
	rec := &fakeRecorder{}
	ann := &fakeAnnouncer{}
	e := newExecutor(sub, rec, ann, nil)

	res := e.Process(context.Background(), arbitrage.Batch{Block: 10, Ranked: []domain.CrossedMarket{opp("0x1", "0x2")}})
	require.NotNil(t, res)
	require.NotNil(t, res.Submitted)
	assert.EqualValues(t, 80, sub.pct)
	assert.Equal(t, []uint64{10}, ann.submitted)
	assert.Equal(t, []string{"0xa"}, ann.hashes)
	require.Len(t, rec.results, 1)
	assert.NoError(t, rec.causes[0])
}

func TestProcess_DeduplicatesWithinBlock(t *testing.T) {
	sub := &fakeSubmitter{err: domain.ErrNoArbitrageSubmitted}
	e := newExecutor(sub, nil, nil, nil)

	a, b := opp("0x1", "0x2"), opp("0x3", "0x4")
	e.Process(context.Background(), arbitrage.Batch{Block: 5, Ranked: []domain.CrossedMarket{a}})
	e.Process(context.Background(), arbitrage.Batch{Block: 5, Ranked: []domain.CrossedMarket{a, b}})
	assert.Nil(t, e.Process(context.Background(), arbitrage.Batch{Block: 5, Ranked: []domain.CrossedMarket{a, b}}))
	e.Process(context.Background(), arbitrage.Batch{Block: 6, Ranked: []domain.CrossedMarket{a}})

	require.Len(t, sub.calls, 3)
	require.Len(t, sub.calls[1], 1)
	assert.Equal(t, b.BuyFrom.Address(), sub.calls[1][0].BuyFrom.Address())
	assert.Equal(t, []uint64{5, 5, 6}, sub.blocks)
}

func TestProcess_SkipsLateBatch(t *testing.T) {
	sub := &fakeSubmitter{}
	tracker := domain.NewBlockTracker()
	tracker.Observe(12)
	e := newExecutor(sub, nil, nil, tracker)

	assert.Nil(t, e.Process(context.Background(), arbitrage.Batch{Block: 10, Ranked: []domain.CrossedMarket{opp("0x1", "0x2")}}))
	e.Process(context.Background(), arbitrage.Batch{Block: 11, Ranked: []domain.CrossedMarket{opp("0x1", "0x2")}})
	assert.Equal(t, []uint64{11}, sub.blocks)
}

func TestProcess_AbortIsAnnounced(t *testing.T) {
	boom := errors.New("relay refused both blocks")
	sub := &fakeSubmitter{err: boom}
	rec := &fakeRecorder{}
	ann := &fakeAnnouncer{}
	e := newExecutor(sub, rec, ann, nil)

	e.Process(context.Background(), arbitrage.Batch{Block: 3, Ranked: []domain.CrossedMarket{opp("0x1", "0x2")}})
	require.Len(t, ann.aborted, 1)
	assert.ErrorIs(t, ann.aborted[0], boom)
	assert.ErrorIs(t, rec.causes[0], boom)
	assert.Empty(t, ann.submitted)
}

func TestProcess_ExhaustedIsNotAnnounced(t *testing.T) {
	sub := &fakeSubmitter{err: domain.ErrNoArbitrageSubmitted}
	ann := &fakeAnnouncer{}
	e := newExecutor(sub, nil, ann, nil)

	e.Process(context.Background(), arbitrage.Batch{Block: 3, Ranked: []domain.CrossedMarket{opp("0x1", "0x2")}})
	assert.Empty(t, ann.aborted)
	assert.Empty(t, ann.submitted)
}

func TestRun_StopsWhenChannelCloses(t *testing.T) {
	sub := &fakeSubmitter{submit: true}
	e := newExecutor(sub, nil, nil, nil)
	ch := make(chan arbitrage.Batch, 2)
	ch <- arbitrage.Batch{Block: 1, Ranked: []domain.CrossedMarket{opp("0x1", "0x2")}}
	close(ch)

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), ch) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not stop")
	}
	assert.Equal(t, []uint64{1}, sub.blocks)
}

func TestDedup_Expiry(t *testing.T) {
	d := NewDedup(time.Minute)
	now := time.Unix(0, 0)
	d.nowFn = func() time.Time { return now }

	assert.False(t, d.IsDuplicate("k"))
	assert.True(t, d.IsDuplicate("k"))

	now = now.Add(2 * time.Minute)
	d.Cleanup()
	assert.Zero(t, d.Len())
	assert.False(t, d.IsDuplicate("k"))
}
