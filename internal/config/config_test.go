package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"closim/internal/config"
)

func validConfig() config.Config {
	cfg := config.Defaults()
	cfg.Wallets = []config.WalletConfig{
		{
			Name:           "lender-alice",
			Role:           "Originator",
			InitialFunding: 10_000_000_000,
			Assets:         []config.AssetConfig{{AssetName: "PropertyDeed", Quantity: 100}},
		},
		{Name: "borrower-bob", Role: "Borrower", InitialFunding: 1_000_000_000},
		{Name: "investor-carol", Role: "Investor", InitialFunding: 5_000_000_000},
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
		Name: "Test-CLO",
		Tranches: []config.TrancheConfig{
			{Name: "Senior", Allocation: 60, YieldModifier: 80, Investor: "investor-carol"},
			{Name: "Mezzanine", Allocation: 25, YieldModifier: 100},
			{Name: "Junior", Allocation: 15, YieldModifier: 150},
		},
	}
	return cfg
}

// ============ Test: Validate ============

func TestValidate_AcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantSub string
	}{
		{
			name:    "unknown network",
			mutate:  func(c *config.Config) { c.Network = "mainnet" },
			wantSub: "unknown network",
		},
		{
			name:    "no wallets",
			mutate:  func(c *config.Config) { c.Wallets = nil },
			wantSub: "at least one wallet",
		},
		{
			name:    "duplicate wallet name",
			mutate:  func(c *config.Config) { c.Wallets[1].Name = "lender-alice" },
			wantSub: "duplicate wallet",
		},
		{
			name:    "unknown role",
			mutate:  func(c *config.Config) { c.Wallets[0].Role = "Lender" },
			wantSub: "unknown role",
		},
		{
			name:    "no originator",
			mutate:  func(c *config.Config) { c.Wallets[0].Role = "Agent"; c.Loans = nil },
			wantSub: "Originator",
		},
		{
			name:    "no borrower",
			mutate:  func(c *config.Config) { c.Wallets[1].Role = "Agent"; c.Loans = nil },
			wantSub: "Borrower",
		},
		{
			name:    "unresolvable loan originator",
			mutate:  func(c *config.Config) { c.Loans[0].OriginatorID = "nobody" },
			wantSub: "unresolvable wallet",
		},
		{
			name:    "unresolvable loan borrower",
			mutate:  func(c *config.Config) { c.Loans[0].BorrowerID = "nobody" },
			wantSub: "unresolvable wallet",
		},
		{
			name: "reserved loan without borrower",
			mutate: func(c *config.Config) {
				c.Loans[0].BorrowerID = ""
			},
			wantSub: "needs a borrower_id",
		},
		{
			name:    "non-positive principal",
			mutate:  func(c *config.Config) { c.Loans[0].Principal = 0 },
			wantSub: "must be positive",
		},
		{
			name:    "zero installments",
			mutate:  func(c *config.Config) { c.Loans[0].TermMonths = 0 },
			wantSub: "zero installments",
		},
		{
			name:    "unknown lifecycle case",
			mutate:  func(c *config.Config) { c.Loans[0].LifecycleCase = "explode" },
			wantSub: "unknown case",
		},
		{
			name:    "tranche allocations off by five",
			mutate:  func(c *config.Config) { c.CLO.Tranches[2].Allocation = 10 },
			wantSub: "95",
		},
		{
			name:    "unresolvable tranche investor",
			mutate:  func(c *config.Config) { c.CLO.Tranches[0].Investor = "nobody" },
			wantSub: "unresolvable wallet",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}

			var cfgErr *config.Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("got %T, want *config.Error", err)
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q should contain %q", err.Error(), tc.wantSub)
			}
		})
	}
}

func TestConfigError_NamesField(t *testing.T) {
	err := &config.Error{Field: "wallets[0].role", Reason: "unknown role"}
	if got := err.Error(); got != "config wallets[0].role: unknown role" {
		t.Errorf("message = %q", got)
	}
}

// ============ Test: Installments ============

func TestLoanConfig_Installments(t *testing.T) {
	cases := []struct {
		frequency  int64
		termMonths int64
		want       int64
	}{
		{12, 12, 12},
		{12, 6, 6},
		{4, 12, 4},
		{0, 12, 12}, // frequency defaults to monthly
		{52, 12, 52},
	}

	for _, tc := range cases {
		l := config.LoanConfig{Frequency: tc.frequency, TermMonths: tc.termMonths}
		if got := l.Installments(); got != tc.want {
			t.Errorf("Installments(freq=%d, months=%d) = %d, want %d",
				tc.frequency, tc.termMonths, got, tc.want)
		}
	}
}

// ============ Test: Slug ============

func TestSlug(t *testing.T) {
	if got := config.Slug("Lender Alice"); got != "lender-alice" {
		t.Errorf("Slug(%q) = %q, want %q", "Lender Alice", got, "lender-alice")
	}
	if got := config.Slug("  borrower-bob "); got != "borrower-bob" {
		t.Errorf("Slug trims to %q, want %q", got, "borrower-bob")
	}
}

// ============ Test: Load ============

const minimalTOML = `
network = "emulator"

[[wallets]]
name = "lender-alice"
role = "Originator"
initial_funding = 10000000000

  [[wallets.assets]]
  asset_name = "PropertyDeed"
  quantity = 100

[[wallets]]
name = "borrower-bob"
role = "Borrower"
initial_funding = 1000000000

[[loans]]
originator_id = "lender-alice"
borrower_id = "borrower-bob"
asset = "PropertyDeed"
quantity = 10
principal = 500000000
apr_bps = 600
frequency = 12
term_months = 12
reserved_buyer = true
lifecycle_case = "happy"
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_TOMLFile(t *testing.T) {
	cfg, err := config.Load(writeConfigFile(t, minimalTOML))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	if cfg.Network != config.NetworkEmulator {
		t.Errorf("network = %q, want emulator", cfg.Network)
	}
	if len(cfg.Wallets) != 2 || len(cfg.Loans) != 1 {
		t.Fatalf("got %d wallets and %d loans, want 2 and 1", len(cfg.Wallets), len(cfg.Loans))
	}
	if cfg.Wallets[0].Assets[0].AssetName != "PropertyDeed" {
		t.Errorf("asset = %q, want PropertyDeed", cfg.Wallets[0].Assets[0].AssetName)
	}
	if cfg.Loans[0].Principal != 500_000_000 {
		t.Errorf("principal = %d, want 500000000", cfg.Loans[0].Principal)
	}
	// Defaults survive the overlay
	if cfg.Postgres.MigrationsDir != "migrations" {
		t.Errorf("migrations dir = %q, want the default", cfg.Postgres.MigrationsDir)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CLOSIM_NETWORK", "preview")
	t.Setenv("CLOSIM_BREAKPOINT", "3")
	t.Setenv("CLOSIM_METRICS_ADDR", ":9999")

	cfg, err := config.Load(writeConfigFile(t, minimalTOML))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	if cfg.Network != config.NetworkPreview {
		t.Errorf("network = %q, want preview from env", cfg.Network)
	}
	if cfg.Breakpoint != 3 {
		t.Errorf("breakpoint = %d, want 3 from env", cfg.Breakpoint)
	}
	if cfg.Metrics.Addr != ":9999" {
		t.Errorf("metrics addr = %q, want :9999 from env", cfg.Metrics.Addr)
	}
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	_, err := config.Load(writeConfigFile(t, `network = "emulator"`))
	if err == nil {
		t.Fatal("expected validation error for config without wallets")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
