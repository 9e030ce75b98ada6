package gateway

import (
	"context"
	"fmt"
	"time"
)

// WalletSpec describes a wallet the run needs on the external ledger.
type WalletSpec struct {
	Name            string
	Role            string
	RequiredBalance int64 // smallest currency units (lovelace)
}

// WalletHandle is the external ledger's reference to a created wallet.
type WalletHandle struct {
	Name            string
	Address         string
	RequiredBalance int64
	Reused          bool // true when an existing wallet was found and reused
}

// ContractRecord is a durable snapshot of a contract for external storage.
type ContractRecord struct {
	RunID   string
	Kind    string // "loan" | "clo"
	LocalID string
	Status  string
	Data    []byte // JSON document
}

// Checkpoint is the full resumable run state persisted after each phase
// and at breakpoints.
type Checkpoint struct {
	RunID     string
	Phase     int
	Paused    bool
	State     []byte // JSON-encoded run state snapshot
	CreatedAt time.Time
}

// Gateway is the capability set the pipeline engine consumes but does not
// implement: wallet/ledger operations, emulator controls, and durable
// storage of contract records. Every call is fallible; the engine treats
// each one as such.
type Gateway interface {
	CreateWallets(ctx context.Context, specs []WalletSpec) ([]WalletHandle, error)
	FundWallets(ctx context.Context, handles []WalletHandle) error
	QueryBalance(ctx context.Context, address string) (int64, error)
	AdvanceTime(ctx context.Context, periods int64) error

	PersistContract(ctx context.Context, rec ContractRecord) (string, error)
	UpdateContractState(ctx context.Context, remoteID string, patch map[string]any) error
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
}

// Clock is implemented by gateways that own a simulated clock. The engine
// prefers this over wall-clock time so runs stay deterministic.
type Clock interface {
	Now() time.Time
}

// Store is the durable persistence subset of Gateway. The emulator
// delegates to one when configured (Postgres in production runs) and keeps
// records in memory otherwise.
type Store interface {
	PersistContract(ctx context.Context, rec ContractRecord) (string, error)
	UpdateContractState(ctx context.Context, remoteID string, patch map[string]any) error
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
}

// Failure wraps an error from an external collaborator so steps can
// distinguish gateway trouble from domain failures.
type Failure struct {
	Op  string
	Err error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("gateway %s: %v", f.Op, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
