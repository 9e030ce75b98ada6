package pipeline

import (
	"context"
	"fmt"
	"strings"

	"closim/internal/amort"
	"closim/internal/config"
	"closim/internal/registry"
	"closim/internal/waterfall"
)

func (e *Engine) execCLOAction(ctx context.Context, step *CLOStep) ActionResult {
	if e.run.Config.CLO == nil {
		return skipped("no CLO configured, skipping %s", step.Action)
	}

	switch step.Action {
	case "bundle":
		return e.bundleCLO(ctx)
	case "deploy":
		return e.deployCLO(ctx)
	case "distribute":
		return e.distributeCLO(ctx)
	default:
		return failure(fmt.Errorf("unknown CLO action %q", step.Action))
	}
}

// bundleCLO snapshots the accepted loans into a tranched pool. Cancelled
// loans and offers nobody took never entered execution and are excluded;
// a defaulted constituent stays in and surfaces as a waterfall loss.
// TotalValue is fixed here and never recomputed. A one-of-one manager
// token is minted into the bond manager's wallet.
func (e *Engine) bundleCLO(ctx context.Context) ActionResult {
	cfg := e.run.Config.CLO

	var pool []*registry.LoanContract
	for _, l := range e.run.Registry.Loans() {
		if l.State.IsActive || l.State.IsPaidOff || l.State.IsDefaulted {
			pool = append(pool, l)
		}
	}
	if len(pool) == 0 {
		return failure(recoverable("no accepted loans to bundle into %s", cfg.Name))
	}

	var totalValue int64
	loanIDs := make([]string, 0, len(pool))
	for _, l := range pool {
		totalValue += l.Principal
		loanIDs = append(loanIDs, l.ID)
	}

	tranches := make([]waterfall.Tranche, 0, len(cfg.Tranches))
	for _, t := range cfg.Tranches {
		tranches = append(tranches, waterfall.Tranche{
			Name:          t.Name,
			Allocation:    t.Allocation,
			YieldModifier: t.YieldModifier,
			Principal:     waterfall.ProRata(totalValue, t.Allocation),
		})
	}
	if err := waterfall.ValidateAllocations(tranches); err != nil {
		return failure(err)
	}

	clo := &registry.CLOContract{
		ID:              config.Slug(cfg.Name),
		ManagerID:       e.cloManagerID(),
		Tranches:        tranches,
		LoanIDs:         loanIDs,
		TotalValue:      totalValue,
		CollateralCount: len(pool),
		Status:          registry.StatusPending,
	}
	e.run.Registry.AddCLO(clo)

	if wallet := e.identityWallet(clo.ManagerID); wallet != nil {
		wallet.AddAsset(policyID(clo.ID), clo.ID+"-manager", 1)
	} else {
		e.reportWarnf("CLO %s: no manager wallet, manager token not minted", clo.ID)
	}

	if e.run.Metrics != nil {
		e.run.Metrics.CLOsBundled.Inc()
	}

	return success(fmt.Sprintf("bundled %s: %d loans, total value %d across %d tranches",
		clo.ID, clo.CollateralCount, clo.TotalValue, len(clo.Tranches)))
}

// deployCLO persists the bond externally and moves it into execution.
func (e *Engine) deployCLO(ctx context.Context) ActionResult {
	clo := e.currentCLO()
	if clo == nil {
		return failure(recoverable("no CLO bundled yet"))
	}
	if clo.Status != registry.StatusPending {
		return failure(recoverable("CLO %s already deployed", clo.ID))
	}

	clo.Status = registry.StatusRunning
	e.persistContract(ctx, "clo", clo.ID, string(clo.Status), clo, &clo.RemoteID)

	return success(fmt.Sprintf("deployed %s (%d tranches)", clo.ID, len(clo.Tranches)))
}

// distributeCLO mints tranche tokens to investors and runs the pool's
// expected yield through the waterfall. Any constituent already in
// default is absorbed junior-first before payouts are reported.
func (e *Engine) distributeCLO(ctx context.Context) ActionResult {
	clo := e.currentCLO()
	if clo == nil {
		return failure(recoverable("no CLO bundled yet"))
	}
	if clo.Status != registry.StatusRunning {
		return failure(recoverable("CLO %s is not deployed", clo.ID))
	}

	var pooledInterest, pooledLoss int64
	for _, id := range clo.LoanIDs {
		loan := e.run.Registry.Loan(id)
		if loan == nil {
			continue
		}
		pooledInterest += amort.TotalInterest(loan.Principal, loan.Payment, loan.Installments)
		if loan.State.IsDefaulted {
			pooledLoss += loan.State.Balance
		}
	}

	if pooledLoss > 0 {
		lossRes, err := waterfall.AbsorbLoss(pooledLoss, clo.Tranches)
		if err != nil {
			return failure(err)
		}
		for _, a := range lossRes.Absorptions {
			e.reportf("CLO %s: %s absorbs loss of %d", clo.ID, a.Tranche, a.Absorbed)
		}
		if lossRes.Shortfall > 0 {
			e.reportWarnf("CLO %s: loss of %d exceeds the principal stack, shortfall %d",
				clo.ID, pooledLoss, lossRes.Shortfall)
		}
	}

	payouts, err := waterfall.DistributeYield(pooledInterest, clo.Tranches)
	if err != nil {
		return failure(err)
	}

	for i, t := range clo.Tranches {
		investor := e.trancheInvestor(i)
		tokens := waterfall.ProRata(clo.TotalValue, t.Allocation)

		if investor == nil {
			e.reportWarnf("CLO %s: no investor wallet for tranche %s, tokens not minted", clo.ID, t.Name)
		} else {
			assetName := fmt.Sprintf("%s-%s", clo.ID, strings.ToLower(t.Name))
			investor.AddAsset(policyID(clo.ID), assetName, tokens)
			if e.run.Metrics != nil {
				e.run.Metrics.TrancheTokensMinted.WithLabelValues(t.Name).Add(float64(tokens))
			}
		}

		payout := payoutFor(payouts, t.Name)
		rate := waterfall.EffectiveRate(payout, t.Principal)
		e.reportf("CLO %s: tranche %s yield %d (effective rate %dbps on principal %d)",
			clo.ID, t.Name, payout, rate, t.Principal)
		if e.run.Metrics != nil {
			e.run.Metrics.YieldDistributed.WithLabelValues(t.Name).Add(float64(payout))
		}
	}

	clo.Status = registry.StatusPassed
	e.updateContractState(ctx, clo.RemoteID, registry.StatusPassed)

	return success(fmt.Sprintf("distributed %s: yield %d across %d tranches", clo.ID, pooledInterest, len(clo.Tranches)))
}

func (e *Engine) currentCLO() *registry.CLOContract {
	clos := e.run.Registry.CLOs()
	if len(clos) == 0 {
		return nil
	}
	return clos[len(clos)-1]
}

// cloManagerID picks the bond manager: the first Analyst, falling back to
// an Agent, falling back to an Originator.
func (e *Engine) cloManagerID() string {
	for _, role := range []registry.Role{registry.RoleAnalyst, registry.RoleAgent, registry.RoleOriginator} {
		if ids := e.run.Registry.IdentitiesByRole(role); len(ids) > 0 {
			return ids[0].ID
		}
	}
	return ""
}

// trancheInvestor resolves the wallet receiving tranche i's tokens: the
// configured investor, else the first Investor-role participant.
func (e *Engine) trancheInvestor(i int) *registry.Wallet {
	cfg := e.run.Config.CLO
	if i < len(cfg.Tranches) && cfg.Tranches[i].Investor != "" {
		return e.identityWallet(config.Slug(cfg.Tranches[i].Investor))
	}
	if investors := e.run.Registry.IdentitiesByRole(registry.RoleInvestor); len(investors) > 0 {
		return investors[0].PrimaryWallet()
	}
	return nil
}

func payoutFor(payouts []waterfall.Payout, tranche string) int64 {
	for _, p := range payouts {
		if p.Tranche == tranche {
			return p.Amount
		}
	}
	return 0
}
