package persistence_test

import (
	"context"
	"testing"
	"time"

	"closim/internal/gateway"
	"closim/internal/persistence"
	"closim/internal/testutil"
)

// ============ Test: Store (integration) ============

func TestStore_ContractUpsert(t *testing.T) {
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := persistence.NewStore(db)

	rec := gateway.ContractRecord{
		RunID:   "run-store-test",
		Kind:    "loan",
		LocalID: "loan-1",
		Status:  "pending",
		Data:    []byte(`{"principal":500000000}`),
	}
	remoteID, err := store.PersistContract(ctx, rec)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if remoteID == "" {
		t.Fatal("empty remote id")
	}

	// Re-persisting the same (run, kind, local) key is an update, not a
	// second row: the original remote id comes back
	rec.Status = "running"
	again, err := store.PersistContract(ctx, rec)
	if err != nil {
		t.Fatalf("re-persist: %v", err)
	}
	if again != remoteID {
		t.Errorf("remote id changed on upsert: %q vs %q", again, remoteID)
	}

	if err := store.UpdateContractState(ctx, remoteID, map[string]any{"status": "passed"}); err != nil {
		t.Fatalf("update state: %v", err)
	}
	if err := store.UpdateContractState(ctx, "00000000-0000-0000-0000-000000000000", map[string]any{"status": "passed"}); err == nil {
		t.Error("expected error for unknown remote id")
	}
	if err := store.UpdateContractState(ctx, remoteID, map[string]any{}); err == nil {
		t.Error("expected error for a patch without status")
	}
}

func TestStore_CheckpointHistory(t *testing.T) {
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := persistence.NewStore(db)

	first := gateway.Checkpoint{
		RunID:     "run-checkpoint-test",
		Phase:     1,
		State:     []byte(`{"cursor":1}`),
		CreatedAt: time.Now().UTC(),
	}
	second := gateway.Checkpoint{
		RunID:     "run-checkpoint-test",
		Phase:     2,
		Paused:    true,
		State:     []byte(`{"cursor":2}`),
		CreatedAt: time.Now().UTC(),
	}
	if err := store.SaveCheckpoint(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := store.SaveCheckpoint(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	cp, err := store.LoadLatestCheckpoint(ctx, "run-checkpoint-test")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cp == nil {
		t.Fatal("no checkpoint loaded")
	}
	if cp.Phase != 2 || !cp.Paused {
		t.Errorf("loaded checkpoint = %+v, want the newest (phase 2, paused)", cp)
	}

	cp, err = store.LoadLatestCheckpoint(ctx, "run-never-seen")
	if err != nil {
		t.Fatalf("load unknown run: %v", err)
	}
	if cp != nil {
		t.Errorf("unknown run loaded %+v, want nil", cp)
	}
}
