package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

// Attempt is the outcome of trying one ranked opportunity.
type Attempt struct {
	Opportunity  domain.CrossedMarket
	State        domain.AttemptState
	Err          error
	Tx           *domain.SignedTx
	Simulation   *domain.SimulationResult
	TargetBlocks []uint64
	Acks         []domain.BundleAck
}

// BatchResult lists every attempt made by SubmitBatch in order. Submitted
// points at the winning attempt, if any.
type BatchResult struct {
	Block     uint64
	Attempts  []Attempt
	Submitted *Attempt
}

// SubmitBatch tries the ranked opportunities in order against the base
// asset executor. Each is built, gas-checked, signed and simulated for
// block+1; the first that simulates cleanly is sent for block+1 and block+2
// and ends the batch. When nothing gets that far the error is
// domain.ErrNoArbitrageSubmitted. If the relay rejects both submissions the
// batch stops with that error.
func (o *Orchestrator) SubmitBatch(ctx context.Context, ranked []domain.CrossedMarket, block uint64, minerRewardPct int64) (*BatchResult, error) {
	result := &BatchResult{Block: block, Attempts: make([]Attempt, 0, len(ranked))}
	for _, opp := range ranked {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		att, err := o.attempt(ctx, opp, block, minerRewardPct)
		result.Attempts = append(result.Attempts, att)
		if err != nil {
			return result, err
		}
		if att.State == domain.AttemptSubmitted {
			result.Submitted = &result.Attempts[len(result.Attempts)-1]
			return result, nil
		}
	}
	return result, domain.ErrNoArbitrageSubmitted
}

// attempt drives one opportunity through the submission states. Failures
// before submission are recorded on the attempt; only a relay that refuses
// every target block returns an error.
func (o *Orchestrator) attempt(ctx context.Context, opp domain.CrossedMarket, block uint64, pct int64) (Attempt, error) {
	att := Attempt{Opportunity: opp, State: domain.AttemptDetected}
	log := o.logger.With(
		slog.Uint64("block", block),
		slog.String("token", opp.Token.Hex()),
		slog.String("buy_from", opp.BuyFrom.Address().Hex()),
		slog.String("sell_to", opp.SellTo.Address().Hex()),
	)

	call, err := o.buildCall(opp, pct, o.base)
	if err != nil {
		att.State, att.Err = domain.AttemptBuildFailed, err
		log.WarnContext(ctx, "build failed", slog.String("error", err.Error()))
		return att, nil
	}
	att.State = domain.AttemptBuilt

	gas, err := o.estimate(ctx, call)
	if err != nil {
		att.State, att.Err = domain.AttemptGasRejected, err
		log.WarnContext(ctx, "gas estimate rejected", slog.Uint64("gas", gas), slog.String("error", err.Error()))
		return att, nil
	}
	att.State = domain.AttemptGasEstimated

	tx, err := o.sign(ctx, call, gas)
	if err != nil {
		att.State, att.Err = domain.AttemptBuildFailed, err
		log.WarnContext(ctx, "sign failed", slog.String("error", err.Error()))
		return att, nil
	}
	att.State, att.Tx = domain.AttemptSigned, tx

	bundle, err := o.relay.SignBundle([]*types.Transaction{tx.Tx})
	if err != nil {
		att.State, att.Err = domain.AttemptBuildFailed, err
		log.WarnContext(ctx, "bundle sign failed", slog.String("error", err.Error()))
		return att, nil
	}

	simCtx, cancel := context.WithTimeout(ctx, o.relayTimeout)
	sim, err := o.relay.Simulate(simCtx, bundle, block+1)
	cancel()
	if err == nil && sim.Failed() {
		err = fmt.Errorf("%w: %s%s", domain.ErrSimulationFailed, sim.Error, sim.FirstRevert)
	}
	if err != nil {
		att.State, att.Err = domain.AttemptSimFailed, err
		log.WarnContext(ctx, "simulation failed", slog.String("error", err.Error()))
		return att, nil
	}
	att.State, att.Simulation = domain.AttemptSimulated, &sim
	log.InfoContext(ctx, "bundle simulated",
		slog.String("coinbase_diff_eth", domain.FormatEther(sim.CoinbaseDiff)),
		slog.String("miner_reward_eth", domain.FormatEther(tx.MinerReward)),
		slog.String("profit_eth", domain.FormatEther(opp.Profit)),
		slog.Uint64("gas_used", sim.TotalGasUsed),
	)

	att.TargetBlocks = []uint64{block + 1, block + 2}
	acks, err := o.submitTargets(ctx, bundle, att.TargetBlocks)
	att.Acks = acks
	if err != nil {
		att.Err = err
		log.ErrorContext(ctx, "bundle submission failed", slog.String("error", err.Error()))
		return att, fmt.Errorf("arbitrage: submit bundle: %w", err)
	}
	att.State = domain.AttemptSubmitted
	log.InfoContext(ctx, "bundle submitted", slog.Int("accepted", len(acks)))
	return att, nil
}

// submitTargets sends bundle for every target block concurrently and waits
// for all of them. A failed target does not cancel the others; the call
// fails only when every target failed.
func (o *Orchestrator) submitTargets(ctx context.Context, bundle domain.SignedBundle, targets []uint64) ([]domain.BundleAck, error) {
	acks := make([]domain.BundleAck, len(targets))
	errs := make([]error, len(targets))

	var g errgroup.Group
	for i, target := range targets {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, o.relayTimeout)
			defer cancel()
			ack, err := o.relay.SendRawBundle(sendCtx, bundle, target)
			if err != nil {
				errs[i] = fmt.Errorf("block %d: %w", target, err)
				return nil
			}
			acks[i] = ack
			return nil
		})
	}
	_ = g.Wait()

	var accepted []domain.BundleAck
	for i := range targets {
		if errs[i] == nil {
			accepted = append(accepted, acks[i])
		} else {
			o.logger.WarnContext(ctx, "bundle rejected for target block",
				slog.Uint64("target", targets[i]),
				slog.String("error", errs[i].Error()),
			)
		}
	}
	if len(accepted) == 0 {
		return nil, errors.Join(errs...)
	}
	return accepted, nil
}
