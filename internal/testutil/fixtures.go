package testutil

import "closim/internal/config"

// DefaultRunConfig builds the standard three-wallet, one-loan scenario
// used across engine tests: an originator funding a 12-installment loan
// backed by minted collateral, with a three-tranche CLO on top.
func DefaultRunConfig() config.Config {
	cfg := config.Defaults()

	cfg.Wallets = []config.WalletConfig{
		{
			Name:           "lender-alice",
			Role:           "Originator",
			InitialFunding: 10_000_000_000,
			Assets: []config.AssetConfig{
				{AssetName: "PropertyDeed", Quantity: 100},
			},
		},
		{
			Name:           "borrower-bob",
			Role:           "Borrower",
			InitialFunding: 1_000_000_000,
		},
		{
			Name:           "investor-carol",
			Role:           "Investor",
			InitialFunding: 5_000_000_000,
		},
	}

	cfg.Loans = []config.LoanConfig{
		{
			OriginatorID:  "lender-alice",
			BorrowerID:    "borrower-bob",
			Asset:         "PropertyDeed",
			Quantity:      10,
			Principal:     500_000_000,
			APRBps:        600,
			Frequency:     12,
			TermMonths:    12,
			ReservedBuyer: true,
			LifecycleCase: "happy",
		},
	}

	cfg.CLO = &config.CLOConfig{
		Name: "Meridian-CLO-1",
		Tranches: []config.TrancheConfig{
			{Name: "Senior", Allocation: 60, YieldModifier: 80, Investor: "investor-carol"},
			{Name: "Mezzanine", Allocation: 25, YieldModifier: 100, Investor: "investor-carol"},
			{Name: "Junior", Allocation: 15, YieldModifier: 150, Investor: "investor-carol"},
		},
	}

	return cfg
}
