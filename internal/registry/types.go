package registry

import (
	"fmt"
	"time"

	"closim/internal/waterfall"
)

// Role of a simulated participant. Immutable after setup.
type Role string

const (
	RoleOriginator Role = "Originator"
	RoleBorrower   Role = "Borrower"
	RoleAgent      Role = "Agent"
	RoleAnalyst    Role = "Analyst"
	RoleInvestor   Role = "Investor"
)

// ContractStatus is the lifecycle status shared by loan and CLO contracts.
type ContractStatus string

const (
	StatusPending ContractStatus = "pending"
	StatusRunning ContractStatus = "running"
	StatusPassed  ContractStatus = "passed"
	StatusFailed  ContractStatus = "failed"
)

// Asset is a quantity of a named token held in exactly one place at a time
// (a wallet, or escrowed inside a contract).
type Asset struct {
	PolicyID  string
	AssetName string
	Quantity  int64
}

// Wallet holds a balance in smallest currency units plus token assets.
// Owned exclusively by one Identity.
type Wallet struct {
	ID      string
	Address string
	Balance int64
	Assets  []Asset
}

// ErrInsufficientBalance is returned by Debit on attempted overdraft.
// Carries the exact shortfall so callers can report it.
type ErrInsufficientBalance struct {
	WalletID  string
	Need      int64
	Have      int64
	Shortfall int64
}

func (e *ErrInsufficientBalance) Error() string {
	return fmt.Sprintf("wallet %s underfunded: need %d, have %d (short %d lovelace)",
		e.WalletID, e.Need, e.Have, e.Shortfall)
}

// Credit adds to the wallet balance.
func (w *Wallet) Credit(amount int64) {
	w.Balance += amount
}

// Debit removes from the wallet balance. The balance is checked before any
// mutation: an overdraft is a recoverable failure, never a partial debit.
func (w *Wallet) Debit(amount int64) error {
	if amount > w.Balance {
		return &ErrInsufficientBalance{
			WalletID:  w.ID,
			Need:      amount,
			Have:      w.Balance,
			Shortfall: amount - w.Balance,
		}
	}
	w.Balance -= amount
	return nil
}

// AssetQuantity returns the held quantity of the named asset.
func (w *Wallet) AssetQuantity(policyID, assetName string) int64 {
	for _, a := range w.Assets {
		if a.PolicyID == policyID && a.AssetName == assetName {
			return a.Quantity
		}
	}
	return 0
}

// AddAsset merges quantity into the wallet's holding of the named asset.
func (w *Wallet) AddAsset(policyID, assetName string, quantity int64) {
	for i := range w.Assets {
		if w.Assets[i].PolicyID == policyID && w.Assets[i].AssetName == assetName {
			w.Assets[i].Quantity += quantity
			return
		}
	}
	w.Assets = append(w.Assets, Asset{PolicyID: policyID, AssetName: assetName, Quantity: quantity})
}

// RemoveAsset takes quantity out of the wallet's holding. The holding is
// checked before any mutation; a short holding removes nothing.
func (w *Wallet) RemoveAsset(policyID, assetName string, quantity int64) error {
	for i := range w.Assets {
		a := &w.Assets[i]
		if a.PolicyID != policyID || a.AssetName != assetName {
			continue
		}
		if a.Quantity < quantity {
			return fmt.Errorf("wallet %s holds %d of %s.%s, need %d",
				w.ID, a.Quantity, policyID, assetName, quantity)
		}
		a.Quantity -= quantity
		return nil
	}
	return fmt.Errorf("wallet %s holds no %s.%s", w.ID, policyID, assetName)
}

// Identity is one simulated participant.
type Identity struct {
	ID      string // stable slug, unique within a run
	Name    string
	Role    Role
	Address string
	Wallets []*Wallet
}

// PrimaryWallet returns the identity's first wallet, or nil.
func (id *Identity) PrimaryWallet() *Wallet {
	if len(id.Wallets) == 0 {
		return nil
	}
	return id.Wallets[0]
}

// LoanState is the mutable execution state of a loan contract.
type LoanState struct {
	Balance       int64 // remaining owed: principal + interest - payments
	EscrowBalance int64 // payments received, not yet collected by originator
	IsActive      bool
	IsPaidOff     bool
	IsDefaulted   bool
	IsCancelled   bool
	StartTime     time.Time
	PaymentCount  int64
}

// LoanContract is one asset-backed installment loan. Collateral is held in
// escrow by the contract from creation until completion, cancellation, or
// default.
type LoanContract struct {
	ID            string
	RemoteID      string // external persistence id; empty if never persisted
	OriginatorID  string
	BorrowerID    string // empty means open market
	ReservedBuyer bool
	Collateral    Asset
	Principal     int64
	APRBps        int64
	Frequency     int64 // payment periods per year
	Installments  int64
	Payment       int64 // computed nominal per-period payment
	Status        ContractStatus
	State         LoanState
}

// Terminal reports whether the loan can never change state again.
func (l *LoanContract) Terminal() bool {
	return l.State.IsPaidOff || l.State.IsDefaulted || l.State.IsCancelled
}

// CLOContract aggregates accepted loans into tranches. TotalValue
// is a snapshot of constituent principals taken at creation time and is
// never retroactively recomputed.
type CLOContract struct {
	ID              string
	RemoteID        string
	ManagerID       string
	Tranches        []waterfall.Tranche
	LoanIDs         []string
	TotalValue      int64
	CollateralCount int
	Status          ContractStatus
}
