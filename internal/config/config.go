package config

import (
	"fmt"
	"strings"

	"closim/internal/registry"
	"closim/internal/waterfall"
)

// Network selects the ledger backing a run.
const (
	NetworkEmulator = "emulator"
	NetworkPreview  = "preview"
)

// Config is the full run configuration: the scenario (wallets, loans,
// CLO) plus operational settings for the driver binary.
type Config struct {
	Network    string `toml:"network"`
	Breakpoint int    `toml:"breakpoint"` // 0 = run to completion

	Wallets []WalletConfig `toml:"wallets"`
	Loans   []LoanConfig   `toml:"loans"`
	CLO     *CLOConfig     `toml:"clo"`

	Postgres PostgresConfig `toml:"postgres"`
	NATS     NATSConfig     `toml:"nats"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// WalletConfig declares one participant wallet.
type WalletConfig struct {
	Name           string        `toml:"name"`
	Role           string        `toml:"role"`
	InitialFunding int64         `toml:"initial_funding"` // lovelace
	Assets         []AssetConfig `toml:"assets"`
}

// AssetConfig declares an asset type minted into an Originator's wallet
// during the tokenization phase.
type AssetConfig struct {
	AssetName string `toml:"asset_name"`
	Quantity  int64  `toml:"quantity"`
}

// LoanConfig declares one loan scenario.
type LoanConfig struct {
	OriginatorID  string `toml:"originator_id"`
	BorrowerID    string `toml:"borrower_id"` // empty = open market
	Asset         string `toml:"asset"`
	Quantity      int64  `toml:"quantity"`
	Principal     int64  `toml:"principal"`
	APRBps        int64  `toml:"apr_bps"`
	Frequency     int64  `toml:"frequency"` // periods/year, default 12
	TermMonths    int64  `toml:"term_months"`
	ReservedBuyer bool   `toml:"reserved_buyer"`
	LifecycleCase string `toml:"lifecycle_case"` // happy|missed|cancel|open
}

// Installments derives the payment count from the term and frequency.
func (l LoanConfig) Installments() int64 {
	freq := l.Frequency
	if freq == 0 {
		freq = 12
	}
	return l.TermMonths * freq / 12
}

// CLOConfig declares the single CLO bundled per run.
type CLOConfig struct {
	Name     string          `toml:"name"`
	Tranches []TrancheConfig `toml:"tranches"`
}

// TrancheConfig declares one tranche. Investor names the wallet that
// receives this tranche's tokens at distribution; empty falls back to the
// first Investor-role wallet.
type TrancheConfig struct {
	Name          string `toml:"name"`
	Allocation    int64  `toml:"allocation"`
	YieldModifier int64  `toml:"yield_modifier"`
	Investor      string `toml:"investor"`
}

type PostgresConfig struct {
	DSN           string `toml:"dsn"` // empty: persistence stays in-memory
	MigrationsDir string `toml:"migrations_dir"`
}

type NATSConfig struct {
	URL string `toml:"url"` // empty: no live progress feed
}

type MetricsConfig struct {
	Addr string `toml:"addr"` // empty: no metrics endpoint
}

// Defaults returns the built-in configuration before TOML and env overlay.
func Defaults() Config {
	return Config{
		Network: NetworkEmulator,
		Postgres: PostgresConfig{
			MigrationsDir: "migrations",
		},
		Metrics: MetricsConfig{
			Addr: ":9091",
		},
	}
}

// Error is a configuration fault detected before any phase mutates state.
// Fatal to the run, never retried.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// Validate enforces the pre-run validation contract. Nothing executes
// until this passes.
func (c *Config) Validate() error {
	if c.Network != NetworkEmulator && c.Network != NetworkPreview {
		return &Error{Field: "network", Reason: fmt.Sprintf("unknown network %q", c.Network)}
	}

	if len(c.Wallets) == 0 {
		return &Error{Field: "wallets", Reason: "at least one wallet is required"}
	}

	roles := make(map[registry.Role]int)
	names := make(map[string]bool)
	for i, w := range c.Wallets {
		if w.Name == "" {
			return &Error{Field: fmt.Sprintf("wallets[%d].name", i), Reason: "name is required"}
		}
		if names[w.Name] {
			return &Error{Field: fmt.Sprintf("wallets[%d].name", i), Reason: fmt.Sprintf("duplicate wallet %q", w.Name)}
		}
		names[w.Name] = true

		role := registry.Role(w.Role)
		switch role {
		case registry.RoleOriginator, registry.RoleBorrower, registry.RoleAgent,
			registry.RoleAnalyst, registry.RoleInvestor:
			roles[role]++
		default:
			return &Error{Field: fmt.Sprintf("wallets[%d].role", i), Reason: fmt.Sprintf("unknown role %q", w.Role)}
		}

		if w.InitialFunding < 0 {
			return &Error{Field: fmt.Sprintf("wallets[%d].initial_funding", i), Reason: "must be non-negative"}
		}
	}

	if roles[registry.RoleOriginator] == 0 {
		return &Error{Field: "wallets", Reason: "at least one Originator wallet is required"}
	}
	if roles[registry.RoleBorrower] == 0 {
		return &Error{Field: "wallets", Reason: "at least one Borrower wallet is required"}
	}

	for i, l := range c.Loans {
		field := func(name string) string { return fmt.Sprintf("loans[%d].%s", i, name) }

		if !names[l.OriginatorID] {
			return &Error{Field: field("originator_id"), Reason: fmt.Sprintf("unresolvable wallet %q", l.OriginatorID)}
		}
		if l.BorrowerID != "" && !names[l.BorrowerID] {
			return &Error{Field: field("borrower_id"), Reason: fmt.Sprintf("unresolvable wallet %q", l.BorrowerID)}
		}
		if l.ReservedBuyer && l.BorrowerID == "" {
			return &Error{Field: field("reserved_buyer"), Reason: "reserved loan needs a borrower_id"}
		}
		if l.Principal <= 0 {
			return &Error{Field: field("principal"), Reason: "must be positive"}
		}
		if l.Quantity <= 0 {
			return &Error{Field: field("quantity"), Reason: "must be positive"}
		}
		if l.Frequency < 0 {
			return &Error{Field: field("frequency"), Reason: "must be positive"}
		}
		if l.Installments() <= 0 {
			return &Error{Field: field("term_months"), Reason: "term yields zero installments"}
		}
		switch l.LifecycleCase {
		case "", "happy", "missed", "cancel", "open":
		default:
			return &Error{Field: field("lifecycle_case"), Reason: fmt.Sprintf("unknown case %q", l.LifecycleCase)}
		}
	}

	if c.CLO != nil {
		tranches := make([]waterfall.Tranche, 0, len(c.CLO.Tranches))
		for _, t := range c.CLO.Tranches {
			tranches = append(tranches, waterfall.Tranche{
				Name:          t.Name,
				Allocation:    t.Allocation,
				YieldModifier: t.YieldModifier,
			})
		}
		if err := waterfall.ValidateAllocations(tranches); err != nil {
			return &Error{Field: "clo.tranches", Reason: err.Error()}
		}
		for i, t := range c.CLO.Tranches {
			if t.Investor != "" && !names[t.Investor] {
				return &Error{
					Field:  fmt.Sprintf("clo.tranches[%d].investor", i),
					Reason: fmt.Sprintf("unresolvable wallet %q", t.Investor),
				}
			}
		}
	}

	return nil
}

// Slug converts a wallet name to the stable identity id used within a run.
func Slug(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
}
