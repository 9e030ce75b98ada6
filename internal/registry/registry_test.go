package registry_test

import (
	"errors"
	"strings"
	"testing"

	"closim/internal/registry"
)

// ============ Test: Wallet ============

func TestWallet_CreditDebit(t *testing.T) {
	w := &registry.Wallet{ID: "w1", Balance: 1000}

	w.Credit(500)
	if w.Balance != 1500 {
		t.Errorf("balance = %d, want 1500", w.Balance)
	}

	if err := w.Debit(1500); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if w.Balance != 0 {
		t.Errorf("balance = %d, want 0", w.Balance)
	}
}

func TestWallet_DebitOverdraftReportsShortfall(t *testing.T) {
	w := &registry.Wallet{ID: "w1", Balance: 750}

	err := w.Debit(1000)
	var insufficient *registry.ErrInsufficientBalance
	if !errors.As(err, &insufficient) {
		t.Fatalf("got %T, want *ErrInsufficientBalance", err)
	}

	if insufficient.Need != 1000 || insufficient.Have != 750 || insufficient.Shortfall != 250 {
		t.Errorf("error = %+v, want need 1000 have 750 short 250", insufficient)
	}
	if !strings.Contains(err.Error(), "short 250 lovelace") {
		t.Errorf("message %q should name the exact shortfall", err.Error())
	}
	if w.Balance != 750 {
		t.Errorf("balance mutated to %d on failed debit", w.Balance)
	}
}

func TestWallet_Assets(t *testing.T) {
	w := &registry.Wallet{ID: "w1"}

	w.AddAsset("pol_deed", "PropertyDeed", 100)
	w.AddAsset("pol_deed", "PropertyDeed", 50)
	if got := w.AssetQuantity("pol_deed", "PropertyDeed"); got != 150 {
		t.Errorf("quantity = %d, want 150 after merge", got)
	}
	if len(w.Assets) != 1 {
		t.Errorf("got %d holdings, want 1 merged holding", len(w.Assets))
	}

	if err := w.RemoveAsset("pol_deed", "PropertyDeed", 60); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if got := w.AssetQuantity("pol_deed", "PropertyDeed"); got != 90 {
		t.Errorf("quantity = %d, want 90", got)
	}

	if err := w.RemoveAsset("pol_deed", "PropertyDeed", 91); err == nil {
		t.Error("expected error removing more than held")
	}
	if got := w.AssetQuantity("pol_deed", "PropertyDeed"); got != 90 {
		t.Errorf("failed removal mutated quantity to %d", got)
	}

	if err := w.RemoveAsset("pol_gold", "GoldBar", 1); err == nil {
		t.Error("expected error removing an asset never held")
	}
}

// ============ Test: TransferAsset ============

func TestTransferAsset(t *testing.T) {
	src := &registry.Wallet{ID: "src"}
	dst := &registry.Wallet{ID: "dst"}
	src.AddAsset("pol_deed", "PropertyDeed", 100)

	if err := registry.TransferAsset(src, dst, "pol_deed", "PropertyDeed", 40); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if got := src.AssetQuantity("pol_deed", "PropertyDeed"); got != 60 {
		t.Errorf("source quantity = %d, want 60", got)
	}
	if got := dst.AssetQuantity("pol_deed", "PropertyDeed"); got != 40 {
		t.Errorf("destination quantity = %d, want 40", got)
	}
}

func TestTransferAsset_AllOrNothing(t *testing.T) {
	src := &registry.Wallet{ID: "src"}
	dst := &registry.Wallet{ID: "dst"}
	src.AddAsset("pol_deed", "PropertyDeed", 10)

	if err := registry.TransferAsset(src, dst, "pol_deed", "PropertyDeed", 11); err == nil {
		t.Fatal("expected error on short transfer")
	}
	if got := src.AssetQuantity("pol_deed", "PropertyDeed"); got != 10 {
		t.Errorf("source mutated to %d on failed transfer", got)
	}
	if got := dst.AssetQuantity("pol_deed", "PropertyDeed"); got != 0 {
		t.Errorf("destination received %d on failed transfer", got)
	}

	if err := registry.TransferAsset(src, dst, "pol_deed", "PropertyDeed", 0); err == nil {
		t.Error("expected error on non-positive quantity")
	}
}

// ============ Test: Registry ============

func TestRegistry_IdentityIndexes(t *testing.T) {
	r := registry.New()

	alice := &registry.Identity{ID: "lender-alice", Name: "Lender Alice", Role: registry.RoleOriginator}
	bob := &registry.Identity{ID: "borrower-bob", Name: "Borrower Bob", Role: registry.RoleBorrower}
	if err := r.AddIdentity(alice); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := r.AddIdentity(bob); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	if got := r.Identity("lender-alice"); got != alice {
		t.Error("Identity lookup by id failed")
	}
	if got := r.IdentityByName("Borrower Bob"); got != bob {
		t.Error("Identity lookup by name failed")
	}
	if got := r.IdentityByName("nobody"); got != nil {
		t.Errorf("unknown name resolved to %v", got)
	}

	originators := r.IdentitiesByRole(registry.RoleOriginator)
	if len(originators) != 1 || originators[0] != alice {
		t.Errorf("IdentitiesByRole(Originator) = %v, want [alice]", originators)
	}
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := registry.New()

	if err := r.AddIdentity(&registry.Identity{ID: "a", Name: "Alice"}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := r.AddIdentity(&registry.Identity{ID: "a", Name: "Other"}); err == nil {
		t.Error("expected error on duplicate id")
	}
	if err := r.AddIdentity(&registry.Identity{ID: "b", Name: "Alice"}); err == nil {
		t.Error("expected error on duplicate name")
	}
}

func TestRegistry_Loans(t *testing.T) {
	r := registry.New()

	active := &registry.LoanContract{ID: "loan-1", State: registry.LoanState{IsActive: true}}
	settled := &registry.LoanContract{ID: "loan-2", State: registry.LoanState{IsPaidOff: true}}
	r.AddLoan(active)
	r.AddLoan(settled)

	if got := r.Loan("loan-2"); got != settled {
		t.Error("Loan lookup by id failed")
	}
	if got := r.Loan("loan-9"); got != nil {
		t.Errorf("unknown loan resolved to %v", got)
	}

	activeLoans := r.ActiveLoans()
	if len(activeLoans) != 1 || activeLoans[0] != active {
		t.Errorf("ActiveLoans = %v, want only loan-1", activeLoans)
	}
}

func TestRegistry_ResetKeepsIdentities(t *testing.T) {
	r := registry.New()

	wallet := &registry.Wallet{ID: "w1", Balance: 1000}
	wallet.AddAsset("pol_deed", "PropertyDeed", 50)
	ident := &registry.Identity{ID: "a", Name: "Alice", Wallets: []*registry.Wallet{wallet}}
	if err := r.AddIdentity(ident); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	r.AddLoan(&registry.LoanContract{ID: "loan-1"})
	r.AddCLO(&registry.CLOContract{ID: "clo-1"})

	r.Reset()

	if got := r.Identity("a"); got != ident {
		t.Error("identity dropped by reset")
	}
	if wallet.Balance != 0 {
		t.Errorf("balance = %d after reset, want 0", wallet.Balance)
	}
	if len(wallet.Assets) != 0 {
		t.Errorf("assets survived reset: %v", wallet.Assets)
	}
	if len(r.Loans()) != 0 || len(r.CLOs()) != 0 {
		t.Error("contracts survived reset")
	}
}

// ============ Test: LoanContract ============

func TestLoanContract_Terminal(t *testing.T) {
	loan := &registry.LoanContract{ID: "loan-1"}
	if loan.Terminal() {
		t.Error("fresh loan should not be terminal")
	}

	loan.State.IsDefaulted = true
	if !loan.Terminal() {
		t.Error("defaulted loan should be terminal")
	}
}
