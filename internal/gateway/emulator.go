package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Emulator is the in-memory ledger implementation of Gateway. It mints
// deterministic test addresses, tracks balances, and owns a simulated
// clock advanced in whole payment periods. Like the registry, it is only
// ever touched from one engine's call stack, so it carries no locking.
type Emulator struct {
	period time.Duration
	now    time.Time

	addrSeq  int
	wallets  map[string]WalletHandle // name -> handle
	balances map[string]int64        // address -> lovelace

	store Store // nil: keep records in memory

	contracts   map[string]ContractRecord // remoteID -> record
	checkpoints []Checkpoint
}

// NewEmulator creates an emulator whose AdvanceTime moves the clock by
// whole multiples of period.
func NewEmulator(period time.Duration) *Emulator {
	return &Emulator{
		period:    period,
		now:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		wallets:   make(map[string]WalletHandle),
		balances:  make(map[string]int64),
		contracts: make(map[string]ContractRecord),
	}
}

// WithStore delegates the persistence operations to an external store
// (Postgres) instead of the in-memory maps.
func (e *Emulator) WithStore(store Store) *Emulator {
	e.store = store
	return e
}

// Now returns the simulated clock.
func (e *Emulator) Now() time.Time {
	return e.now
}

// CreateWallets is idempotent: a wallet that already exists under the same
// name is reused and reported with Reused=true.
func (e *Emulator) CreateWallets(ctx context.Context, specs []WalletSpec) ([]WalletHandle, error) {
	handles := make([]WalletHandle, 0, len(specs))

	for _, spec := range specs {
		if existing, ok := e.wallets[spec.Name]; ok {
			existing.Reused = true
			existing.RequiredBalance = spec.RequiredBalance
			e.wallets[spec.Name] = existing
			handles = append(handles, existing)
			continue
		}

		e.addrSeq++
		h := WalletHandle{
			Name:            spec.Name,
			Address:         fmt.Sprintf("addr_test1q%03dx%s", e.addrSeq, spec.Name),
			RequiredBalance: spec.RequiredBalance,
		}
		e.wallets[spec.Name] = h
		e.balances[h.Address] = 0
		handles = append(handles, h)
	}

	return handles, nil
}

// FundWallets credits each wallet with its required balance. On the
// emulator, funding is guaranteed by construction.
func (e *Emulator) FundWallets(ctx context.Context, handles []WalletHandle) error {
	for _, h := range handles {
		if _, ok := e.balances[h.Address]; !ok {
			return fmt.Errorf("unknown wallet address %s", h.Address)
		}
		e.balances[h.Address] = h.RequiredBalance
	}
	return nil
}

// QueryBalance returns the ledger balance for an address.
func (e *Emulator) QueryBalance(ctx context.Context, address string) (int64, error) {
	balance, ok := e.balances[address]
	if !ok {
		return 0, fmt.Errorf("unknown wallet address %s", address)
	}
	return balance, nil
}

// SetBalance overrides an address's balance. Used to stage preview-network
// scenarios (underfunded wallets) in tests.
func (e *Emulator) SetBalance(address string, balance int64) {
	e.balances[address] = balance
}

// AdvanceTime moves the simulated clock forward by whole payment periods.
func (e *Emulator) AdvanceTime(ctx context.Context, periods int64) error {
	if periods < 0 {
		return fmt.Errorf("cannot advance time by %d periods", periods)
	}
	e.now = e.now.Add(time.Duration(periods) * e.period)
	return nil
}

// PersistContract stores a contract record, delegating when a store is
// configured.
func (e *Emulator) PersistContract(ctx context.Context, rec ContractRecord) (string, error) {
	if e.store != nil {
		return e.store.PersistContract(ctx, rec)
	}

	remoteID := uuid.NewString()
	e.contracts[remoteID] = rec
	return remoteID, nil
}

// UpdateContractState applies a patch to a stored contract record.
func (e *Emulator) UpdateContractState(ctx context.Context, remoteID string, patch map[string]any) error {
	if e.store != nil {
		return e.store.UpdateContractState(ctx, remoteID, patch)
	}

	rec, ok := e.contracts[remoteID]
	if !ok {
		return fmt.Errorf("unknown contract %s", remoteID)
	}
	if status, ok := patch["status"].(string); ok {
		rec.Status = status
	}
	e.contracts[remoteID] = rec
	return nil
}

// SaveCheckpoint stores a resumable run state snapshot.
func (e *Emulator) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	if e.store != nil {
		return e.store.SaveCheckpoint(ctx, cp)
	}

	e.checkpoints = append(e.checkpoints, cp)
	return nil
}

// Checkpoints returns the in-memory checkpoint history (emulator only).
func (e *Emulator) Checkpoints() []Checkpoint {
	return e.checkpoints
}

// ContractCount returns the number of in-memory contract records.
func (e *Emulator) ContractCount() int {
	return len(e.contracts)
}
