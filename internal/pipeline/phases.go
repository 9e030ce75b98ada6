package pipeline

import (
	"fmt"

	"closim/internal/config"
)

// Phase numbers are fixed: the pipeline always carries all five phases so
// checkpoints and breakpoints stay addressable even when a phase has no
// steps for this configuration.
const (
	PhaseSetup = iota + 1
	PhaseTokenization
	PhaseLoanInit
	PhaseExecution
	PhaseBundling
)

func buildPhases(cfg config.Config) []*Phase {
	return []*Phase{
		buildSetupPhase(),
		buildTokenizationPhase(cfg),
		buildLoanInitPhase(cfg),
		buildExecutionPhase(cfg),
		buildBundlingPhase(cfg),
	}
}

func buildSetupPhase() *Phase {
	return &Phase{
		Number: PhaseSetup,
		Name:   "Setup",
		Status: StatusPending,
		Steps: []*StepRecord{
			{Step: &SetupStep{ID: "setup-create", Name: "create wallets", Op: "create"}, Status: StatusPending},
			{Step: &SetupStep{ID: "setup-fund", Name: "fund wallets", Op: "fund"}, Status: StatusPending},
		},
	}
}

func buildTokenizationPhase(cfg config.Config) *Phase {
	p := &Phase{Number: PhaseTokenization, Name: "Tokenization", Status: StatusPending}

	for _, w := range cfg.Wallets {
		slug := config.Slug(w.Name)
		for _, a := range w.Assets {
			p.Steps = append(p.Steps, &StepRecord{
				Step: &MintStep{
					ID:        fmt.Sprintf("mint-%s-%s", slug, config.Slug(a.AssetName)),
					Name:      fmt.Sprintf("mint %d %s into %s", a.Quantity, a.AssetName, w.Name),
					WalletID:  slug,
					AssetName: a.AssetName,
					Quantity:  a.Quantity,
				},
				Status: StatusPending,
			})
		}
	}

	return p
}

func buildLoanInitPhase(cfg config.Config) *Phase {
	p := &Phase{Number: PhaseLoanInit, Name: "Loan Initialization", Status: StatusPending}

	for i := range cfg.Loans {
		loanID := loanID(i)
		p.Steps = append(p.Steps, &StepRecord{
			Step: &LoanStep{
				ID:     "create-" + loanID,
				Name:   fmt.Sprintf("create %s", loanID),
				LoanID: loanID,
				Index:  i,
			},
			Status: StatusPending,
		})
	}

	return p
}

// buildExecutionPhase lays out the per-loan action schedule. The schedule
// follows each loan's lifecycle case: a fully repaid loan, a missed
// payment ending in default, a pre-acceptance cancellation, or an offer
// left open on the market.
func buildExecutionPhase(cfg config.Config) *Phase {
	p := &Phase{Number: PhaseExecution, Name: "Contract Execution", Status: StatusPending}

	for i, l := range cfg.Loans {
		id := loanID(i)
		borrower := config.Slug(l.BorrowerID)
		originator := config.Slug(l.OriginatorID)

		action := func(act, actor string, seq int) *StepRecord {
			stepID := fmt.Sprintf("%s-%s", act, id)
			if seq > 0 {
				stepID = fmt.Sprintf("%s-%s-%d", act, id, seq)
			}
			return &StepRecord{
				Step: &ActionStep{
					ID:     stepID,
					Name:   fmt.Sprintf("%s %s", act, id),
					LoanID: id,
					Action: act,
					Actor:  actor,
				},
				Status: StatusPending,
			}
		}

		switch l.LifecycleCase {
		case "", "happy":
			p.Steps = append(p.Steps, action("accept", borrower, 0))
			for n := int64(1); n < l.Installments(); n++ {
				p.Steps = append(p.Steps, action("pay", borrower, int(n)))
			}
			p.Steps = append(p.Steps, action("collect", originator, 0))
			p.Steps = append(p.Steps, action("complete", originator, 0))

		case "missed":
			p.Steps = append(p.Steps, action("accept", borrower, 0))
			p.Steps = append(p.Steps, action("default", originator, 0))

		case "cancel":
			p.Steps = append(p.Steps, action("cancel", originator, 0))

		case "open":
			// Offer stays on the market untouched
		}
	}

	return p
}

func buildBundlingPhase(cfg config.Config) *Phase {
	p := &Phase{Number: PhaseBundling, Name: "CLO Bundling", Status: StatusPending}

	if cfg.CLO != nil {
		p.Steps = []*StepRecord{
			{Step: &CLOStep{ID: "clo-bundle", Name: "bundle active loans", Action: "bundle"}, Status: StatusPending},
			{Step: &CLOStep{ID: "clo-deploy", Name: "deploy bond", Action: "deploy"}, Status: StatusPending},
			{Step: &CLOStep{ID: "clo-distribute", Name: "distribute tranche tokens", Action: "distribute"}, Status: StatusPending},
		}
	}

	return p
}

func loanID(index int) string {
	return fmt.Sprintf("loan-%d", index+1)
}
