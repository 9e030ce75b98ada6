package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"closim/internal/amort"
	"closim/internal/config"
	"closim/internal/gateway"
	"closim/internal/progress"
	"closim/internal/registry"
)

func (e *Engine) execSetup(ctx context.Context, step *SetupStep) ActionResult {
	switch step.Op {
	case "create":
		return e.createWallets(ctx)
	case "fund":
		return e.fundWallets(ctx)
	default:
		return failure(fmt.Errorf("unknown setup op %q", step.Op))
	}
}

// createWallets provisions every configured wallet on the external ledger
// and registers the matching identity. Wallet creation is essential:
// nothing downstream works without addresses, so a gateway failure here
// fails the step.
func (e *Engine) createWallets(ctx context.Context) ActionResult {
	specs := make([]gateway.WalletSpec, 0, len(e.run.Config.Wallets))
	for _, w := range e.run.Config.Wallets {
		specs = append(specs, gateway.WalletSpec{
			Name:            w.Name,
			Role:            w.Role,
			RequiredBalance: w.InitialFunding,
		})
	}

	handles, err := e.run.Gateway.CreateWallets(ctx, specs)
	if err != nil {
		e.countGatewayError("create_wallets")
		return failure(&gateway.Failure{Op: "create_wallets", Err: err})
	}
	e.handles = handles

	reused := 0
	for i, w := range e.run.Config.Wallets {
		h := handles[i]
		if h.Reused {
			reused++
		}

		slug := config.Slug(w.Name)
		if e.run.Registry.Identity(slug) != nil {
			continue
		}
		ident := &registry.Identity{
			ID:      slug,
			Name:    w.Name,
			Role:    registry.Role(w.Role),
			Address: h.Address,
			Wallets: []*registry.Wallet{
				{ID: slug + "-wallet", Address: h.Address},
			},
		}
		if err := e.run.Registry.AddIdentity(ident); err != nil {
			return failure(err)
		}
	}

	return success(fmt.Sprintf("created %d wallets (%d reused)", len(handles), reused))
}

// fundWallets credits wallets on the emulator, or verifies externally
// provided funding on a live network. A shortfall on a live network is
// recoverable: the operator tops the wallet up and resumes.
func (e *Engine) fundWallets(ctx context.Context) ActionResult {
	if e.run.Config.Network == config.NetworkEmulator {
		if err := e.run.Gateway.FundWallets(ctx, e.handles); err != nil {
			e.countGatewayError("fund_wallets")
			return failure(&gateway.Failure{Op: "fund_wallets", Err: err})
		}
	}

	var funded int64
	for i, w := range e.run.Config.Wallets {
		h := e.handles[i]
		balance, err := e.run.Gateway.QueryBalance(ctx, h.Address)
		if err != nil {
			e.countGatewayError("query_balance")
			return failure(&gateway.Failure{Op: "query_balance", Err: err})
		}
		if balance < w.InitialFunding {
			return failure(recoverable("wallet %s underfunded: need %d, have %d (short %d lovelace)",
				w.Name, w.InitialFunding, balance, w.InitialFunding-balance))
		}

		wallet := e.identityWallet(config.Slug(w.Name))
		if wallet != nil {
			wallet.Balance = balance
		}
		funded += balance
	}

	return success(fmt.Sprintf("funded %d wallets with %d lovelace total", len(e.handles), funded))
}

// execMint mints one asset type into an Originator wallet. A mint whose
// target is missing or not an Originator is skipped with a warning: the
// rest of the run may still be viable without that collateral.
func (e *Engine) execMint(ctx context.Context, step *MintStep) ActionResult {
	ident := e.run.Registry.Identity(step.WalletID)
	if ident == nil {
		return skipped("mint %s skipped: wallet %s not found", step.AssetName, step.WalletID)
	}
	if ident.Role != registry.RoleOriginator {
		return skipped("mint %s skipped: wallet %s is %s, only Originators hold collateral",
			step.AssetName, step.WalletID, ident.Role)
	}

	wallet := ident.PrimaryWallet()
	if wallet == nil {
		return skipped("mint %s skipped: identity %s has no wallet", step.AssetName, step.WalletID)
	}

	wallet.AddAsset(policyID(step.AssetName), step.AssetName, step.Quantity)
	return success(fmt.Sprintf("minted %d %s into %s", step.Quantity, step.AssetName, ident.Name))
}

// execLoanCreate builds one loan contract and escrows its collateral.
// The collateral leaves the originator's wallet here and is held by the
// contract until completion, cancellation, or default.
func (e *Engine) execLoanCreate(ctx context.Context, step *LoanStep) ActionResult {
	cfg := e.run.Config.Loans[step.Index]

	originator := e.run.Registry.Identity(config.Slug(cfg.OriginatorID))
	if originator == nil {
		return failure(recoverable("loan %s: originator %s not registered", step.LoanID, cfg.OriginatorID))
	}
	wallet := originator.PrimaryWallet()
	if wallet == nil {
		return failure(recoverable("loan %s: originator %s has no wallet", step.LoanID, cfg.OriginatorID))
	}

	frequency := cfg.Frequency
	if frequency == 0 {
		frequency = 12
	}
	installments := cfg.Installments()

	payment, err := amort.NominalPayment(cfg.Principal, cfg.APRBps, frequency, installments)
	if err != nil {
		return failure(err)
	}

	if err := wallet.RemoveAsset(policyID(cfg.Asset), cfg.Asset, cfg.Quantity); err != nil {
		return failure(recoverable("loan %s: collateral unavailable: %v", step.LoanID, err))
	}

	loan := &registry.LoanContract{
		ID:            step.LoanID,
		OriginatorID:  originator.ID,
		BorrowerID:    config.Slug(cfg.BorrowerID),
		ReservedBuyer: cfg.ReservedBuyer,
		Collateral: registry.Asset{
			PolicyID:  policyID(cfg.Asset),
			AssetName: cfg.Asset,
			Quantity:  cfg.Quantity,
		},
		Principal:    cfg.Principal,
		APRBps:       cfg.APRBps,
		Frequency:    frequency,
		Installments: installments,
		Payment:      payment,
		Status:       registry.StatusPending,
	}
	e.run.Registry.AddLoan(loan)

	e.persistContract(ctx, "loan", loan.ID, string(loan.Status), loan, &loan.RemoteID)

	return success(fmt.Sprintf("created %s: principal %d, %d installments of %d",
		loan.ID, loan.Principal, loan.Installments, loan.Payment)).
		WithData("payment", payment)
}

// persistContract stores a contract record externally. Persistence is not
// essential to the run: on failure the step continues with a warning and
// the contract simply has no remote id.
func (e *Engine) persistContract(ctx context.Context, kind, localID, status string, doc any, remoteID *string) {
	data, err := json.Marshal(doc)
	if err != nil {
		e.report(fmt.Sprintf("persist %s %s: encode failed: %v", kind, localID, err), progress.LevelWarning)
		return
	}

	id, err := e.run.Gateway.PersistContract(ctx, gateway.ContractRecord{
		RunID:   e.run.RunID,
		Kind:    kind,
		LocalID: localID,
		Status:  status,
		Data:    data,
	})
	if err != nil {
		e.countGatewayError("persist_contract")
		e.report(fmt.Sprintf("persist %s %s failed, continuing: %v", kind, localID, err), progress.LevelWarning)
		return
	}
	*remoteID = id
}

// updateContractState patches the externally stored status. Non-essential,
// same as persistContract.
func (e *Engine) updateContractState(ctx context.Context, remoteID string, status registry.ContractStatus) {
	if remoteID == "" {
		return
	}
	err := e.run.Gateway.UpdateContractState(ctx, remoteID, map[string]any{"status": string(status)})
	if err != nil {
		e.countGatewayError("update_contract_state")
		e.report(fmt.Sprintf("contract %s state update failed, continuing: %v", remoteID, err), progress.LevelWarning)
	}
}

func (e *Engine) identityWallet(id string) *registry.Wallet {
	ident := e.run.Registry.Identity(id)
	if ident == nil {
		return nil
	}
	return ident.PrimaryWallet()
}

func policyID(assetName string) string {
	return "pol_" + config.Slug(assetName)
}
