package gateway_test

import (
	"context"
	"testing"
	"time"

	"closim/internal/gateway"
)

func monthlyEmulator() *gateway.Emulator {
	return gateway.NewEmulator(30 * 24 * time.Hour)
}

// ============ Test: CreateWallets ============

func TestEmulator_CreateWallets(t *testing.T) {
	em := monthlyEmulator()
	ctx := context.Background()

	specs := []gateway.WalletSpec{
		{Name: "alice", RequiredBalance: 1000},
		{Name: "bob", RequiredBalance: 2000},
	}
	handles, err := em.CreateWallets(ctx, specs)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("got %d handles, want 2", len(handles))
	}

	if handles[0].Address == handles[1].Address {
		t.Errorf("addresses collide: %q", handles[0].Address)
	}
	for _, h := range handles {
		if h.Reused {
			t.Errorf("fresh wallet %s reported as reused", h.Name)
		}
	}
}

func TestEmulator_CreateWalletsIdempotent(t *testing.T) {
	em := monthlyEmulator()
	ctx := context.Background()

	specs := []gateway.WalletSpec{{Name: "alice", RequiredBalance: 1000}}
	first, err := em.CreateWallets(ctx, specs)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	second, err := em.CreateWallets(ctx, specs)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	if !second[0].Reused {
		t.Error("second create should report Reused")
	}
	if second[0].Address != first[0].Address {
		t.Errorf("address changed on reuse: %q vs %q", second[0].Address, first[0].Address)
	}
}

// ============ Test: FundWallets and QueryBalance ============

func TestEmulator_FundWallets(t *testing.T) {
	em := monthlyEmulator()
	ctx := context.Background()

	handles, err := em.CreateWallets(ctx, []gateway.WalletSpec{{Name: "alice", RequiredBalance: 5000}})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	balance, err := em.QueryBalance(ctx, handles[0].Address)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if balance != 0 {
		t.Errorf("fresh wallet balance = %d, want 0", balance)
	}

	if err := em.FundWallets(ctx, handles); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	balance, err = em.QueryBalance(ctx, handles[0].Address)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if balance != 5000 {
		t.Errorf("funded balance = %d, want 5000", balance)
	}
}

func TestEmulator_QueryBalanceUnknownAddress(t *testing.T) {
	em := monthlyEmulator()
	if _, err := em.QueryBalance(context.Background(), "addr_test1qnope"); err == nil {
		t.Error("expected error for unknown address")
	}
}

func TestEmulator_SetBalanceOverride(t *testing.T) {
	em := monthlyEmulator()
	ctx := context.Background()

	handles, err := em.CreateWallets(ctx, []gateway.WalletSpec{{Name: "alice", RequiredBalance: 5000}})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	em.SetBalance(handles[0].Address, 1234)
	balance, err := em.QueryBalance(ctx, handles[0].Address)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if balance != 1234 {
		t.Errorf("balance = %d, want 1234", balance)
	}
}

// ============ Test: AdvanceTime ============

func TestEmulator_AdvanceTime(t *testing.T) {
	em := monthlyEmulator()
	ctx := context.Background()

	start := em.Now()
	if err := em.AdvanceTime(ctx, 3); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	want := start.Add(3 * 30 * 24 * time.Hour)
	if !em.Now().Equal(want) {
		t.Errorf("clock = %v, want %v", em.Now(), want)
	}

	if err := em.AdvanceTime(ctx, -1); err == nil {
		t.Error("expected error for negative periods")
	}
}

// ============ Test: contract persistence ============

func TestEmulator_ContractLifecycle(t *testing.T) {
	em := monthlyEmulator()
	ctx := context.Background()

	remoteID, err := em.PersistContract(ctx, gateway.ContractRecord{
		RunID:   "run-1",
		Kind:    "loan",
		LocalID: "loan-1",
		Status:  "pending",
	})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if remoteID == "" {
		t.Fatal("empty remote id")
	}
	if em.ContractCount() != 1 {
		t.Errorf("contract count = %d, want 1", em.ContractCount())
	}

	err = em.UpdateContractState(ctx, remoteID, map[string]any{"status": "running"})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	if err := em.UpdateContractState(ctx, "no-such-id", map[string]any{"status": "running"}); err == nil {
		t.Error("expected error for unknown remote id")
	}
}

// ============ Test: checkpoints ============

func TestEmulator_SaveCheckpoint(t *testing.T) {
	em := monthlyEmulator()
	ctx := context.Background()

	cp := gateway.Checkpoint{RunID: "run-1", Phase: 2, State: []byte(`{}`)}
	if err := em.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	saved := em.Checkpoints()
	if len(saved) != 1 {
		t.Fatalf("got %d checkpoints, want 1", len(saved))
	}
	if saved[0].RunID != "run-1" || saved[0].Phase != 2 {
		t.Errorf("checkpoint = %+v, want run-1 phase 2", saved[0])
	}
}
