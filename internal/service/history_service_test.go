package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarb/internal/arbitrage"
	"github.com/alanyoungcy/ammarb/internal/domain"
)

func big0() *big.Int { return new(big.Int) }

func sampleOpp(h *harness) domain.CrossedMarket {
	return domain.CrossedMarket{
		Token:   tokenA,
		BuyFrom: h.p2,
		SellTo:  h.p1,
		Volume:  ether(2),
		Profit:  big.NewInt(5e16),
	}
}

func TestOpportunityID_Deterministic(t *testing.T) {
	h := newHarness(t)
	opp := sampleOpp(h)

	assert.Equal(t, OpportunityID(opp, 1, ""), OpportunityID(opp, 1, ""))
	assert.NotEqual(t, OpportunityID(opp, 1, ""), OpportunityID(opp, 2, ""))
	assert.NotEqual(t, OpportunityID(opp, 1, ""), OpportunityID(opp, 1, "intent"))
}

func TestHistoryService_RecordOpportunities(t *testing.T) {
	h := newHarness(t)
	opps := &memOpportunities{}
	bus := newMemBus()
	s := NewHistoryService(HistoryServiceConfig{Opportunities: opps, Bus: bus, Logger: discardLogger()})

	s.RecordOpportunities(context.Background(), domain.BlockContext{Number: 8}, []domain.CrossedMarket{sampleOpp(h)})

	require.Len(t, opps.recs, 1)
	rec := opps.recs[0]
	assert.Equal(t, domain.SourceBlock, rec.Source)
	assert.Equal(t, "2000000000000000000", rec.Volume)
	assert.Equal(t, "50000000000000000", rec.Profit)

	require.Len(t, bus.published[domain.ChannelOpportunity], 1)
	require.Len(t, bus.streams[domain.StreamOpportunities], 1)
	var evt map[string]any
	require.NoError(t, json.Unmarshal(bus.published[domain.ChannelOpportunity][0], &evt))
	assert.Equal(t, "opportunity_detected", evt["event"])
	assert.Equal(t, "0.05", evt["profit_eth"])
	assert.Equal(t, rec.ID, evt["id"])
}

func TestHistoryService_RecordBatch(t *testing.T) {
	h := newHarness(t)
	bundles := &memBundles{}
	bus := newMemBus()
	audit := &memAudit{}
	s := NewHistoryService(HistoryServiceConfig{Bundles: bundles, Bus: bus, Audit: audit, Logger: discardLogger()})

	opp := sampleOpp(h)
	res := &arbitrage.BatchResult{
		Block: 20,
		Attempts: []arbitrage.Attempt{
			{Opportunity: opp, State: domain.AttemptSimFailed, Err: errors.New("reverted")},
			{
				Opportunity:  opp,
				State:        domain.AttemptSubmitted,
				Tx:           &domain.SignedTx{MinerReward: big.NewInt(4e16)},
				Simulation:   &domain.SimulationResult{BundleHash: "0xsim", CoinbaseDiff: big.NewInt(4e16), TotalGasUsed: 180_000},
				TargetBlocks: []uint64{21, 22},
				Acks:         []domain.BundleAck{{BundleHash: "0xack", TargetBlock: 21}},
			},
		},
	}
	res.Submitted = &res.Attempts[1]

	s.RecordBatch(context.Background(), res, nil)

	require.Len(t, bundles.recs, 2)
	assert.Equal(t, domain.AttemptSimFailed, bundles.recs[0].State)
	assert.Equal(t, "reverted", bundles.recs[0].Reason)
	sub := bundles.recs[1]
	assert.Equal(t, "0xack", sub.BundleHash)
	assert.Equal(t, "40000000000000000", sub.MinerReward)
	assert.EqualValues(t, 180_000, sub.GasUsed)
	assert.Equal(t, []uint64{21, 22}, sub.TargetBlocks)
	assert.Equal(t, OpportunityID(opp, 20, ""), sub.OpportunityID)

	assert.Len(t, bus.published[domain.ChannelBundle], 1)
	assert.Len(t, bus.streams[domain.StreamBundles], 1)
	assert.Equal(t, []string{"batch.submitted"}, audit.events)
}

func TestHistoryService_RecordBatchFailure(t *testing.T) {
	audit := &memAudit{}
	s := NewHistoryService(HistoryServiceConfig{Audit: audit, Logger: discardLogger()})

	s.RecordBatch(context.Background(), &arbitrage.BatchResult{Block: 3}, domain.ErrNoArbitrageSubmitted)
	s.RecordBatch(context.Background(), nil, nil)
	assert.Equal(t, []string{"batch.failed"}, audit.events)
}

func TestHistoryService_NoStores(t *testing.T) {
	s := NewHistoryService(HistoryServiceConfig{Logger: discardLogger()})
	opps, err := s.RecentOpportunities(context.Background(), 10)
	require.NoError(t, err)
	assert.Nil(t, opps)
	bundles, err := s.RecentBundles(context.Background(), 10)
	require.NoError(t, err)
	assert.Nil(t, bundles)
}

func TestHistoryService_ReadStreamReplaysAfterCursor(t *testing.T) {
	h := newHarness(t)
	bus := newMemBus()
	s := NewHistoryService(HistoryServiceConfig{Bus: bus, Logger: discardLogger()})

	opp := sampleOpp(h)
	for block := uint64(1); block <= 3; block++ {
		s.RecordOpportunities(context.Background(), domain.BlockContext{Number: block}, []domain.CrossedMarket{opp})
	}

	msgs, err := s.ReadStream(context.Background(), domain.StreamOpportunities, "1-0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "2-0", msgs[0].ID)
	assert.Equal(t, "3-0", msgs[1].ID)

	var evt map[string]any
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &evt))
	assert.EqualValues(t, 3, evt["block"])

	msgs, err = s.ReadStream(context.Background(), domain.StreamOpportunities, "0", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "1-0", msgs[0].ID)
}

func TestHistoryService_ReadStreamErrors(t *testing.T) {
	bus := newMemBus()
	bus.readErr = errors.New("connection reset")
	s := NewHistoryService(HistoryServiceConfig{Bus: bus, Logger: discardLogger()})

	_, err := s.ReadStream(context.Background(), domain.StreamBundles, "0", 10)
	require.ErrorIs(t, err, bus.readErr)

	msgs, err := NewHistoryService(HistoryServiceConfig{Logger: discardLogger()}).
		ReadStream(context.Background(), domain.StreamBundles, "0", 10)
	require.NoError(t, err)
	assert.Nil(t, msgs)
}
