package pipeline

// Status of a step or phase. A Disabled step is configured out before the
// run starts and executes as Skipped.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusPassed   Status = "passed"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
	StatusDisabled Status = "disabled"
)

// StepKind partitions steps for dispatch and metrics.
type StepKind string

const (
	KindSetup  StepKind = "setup"
	KindMint   StepKind = "mint"
	KindLoan   StepKind = "loan"
	KindAction StepKind = "action"
	KindCLO    StepKind = "clo"
)

// Step is one unit of pipeline work. Implementations are plain data; all
// behavior lives in the engine's dispatch.
type Step interface {
	StepID() string
	StepName() string
	Kind() StepKind
}

// SetupStep creates or funds the run's wallets.
type SetupStep struct {
	ID   string
	Name string
	Op   string // "create" | "fund"
}

func (s *SetupStep) StepID() string   { return s.ID }
func (s *SetupStep) StepName() string { return s.Name }
func (s *SetupStep) Kind() StepKind   { return KindSetup }

// MintStep mints one asset type into an Originator wallet.
type MintStep struct {
	ID        string
	Name      string
	WalletID  string
	AssetName string
	Quantity  int64
}

func (s *MintStep) StepID() string   { return s.ID }
func (s *MintStep) StepName() string { return s.Name }
func (s *MintStep) Kind() StepKind   { return KindMint }

// LoanStep creates one loan contract with its collateral escrowed.
// Index points into the run configuration's loan list.
type LoanStep struct {
	ID     string
	Name   string
	LoanID string
	Index  int
}

func (s *LoanStep) StepID() string   { return s.ID }
func (s *LoanStep) StepName() string { return s.Name }
func (s *LoanStep) Kind() StepKind   { return KindLoan }

// ActionStep drives one loan lifecycle transition. Actor is the identity
// performing the action; for accept it is checked against a reservation.
type ActionStep struct {
	ID     string
	Name   string
	LoanID string
	Action string // accept|pay|collect|complete|cancel|default
	Actor  string
}

func (s *ActionStep) StepID() string   { return s.ID }
func (s *ActionStep) StepName() string { return s.Name }
func (s *ActionStep) Kind() StepKind   { return KindAction }

// CLOStep drives one CLO lifecycle transition.
type CLOStep struct {
	ID     string
	Name   string
	Action string // bundle|deploy|distribute
}

func (s *CLOStep) StepID() string   { return s.ID }
func (s *CLOStep) StepName() string { return s.Name }
func (s *CLOStep) Kind() StepKind   { return KindCLO }

// StepRecord pairs a step with its mutable run status.
type StepRecord struct {
	Step   Step
	Status Status
	Result ActionResult
}

// Phase is one of the five pipeline stages, executed strictly in order.
type Phase struct {
	Number int
	Name   string
	Status Status
	Steps  []*StepRecord
}
