package pipeline

import (
	"context"
	"fmt"
	"time"

	"closim/internal/config"
	"closim/internal/gateway"
	"closim/internal/observability"
	"closim/internal/progress"
	"closim/internal/registry"
)

// RunContext bundles everything one run needs. The engine owns no
// goroutines and shares nothing: a run is a plain sequence of method
// calls on one engine, so none of the state behind RunContext is locked.
type RunContext struct {
	RunID    string
	Config   config.Config
	Registry *registry.Registry
	Gateway  gateway.Gateway
	Reporter progress.Reporter
	Metrics  *observability.Metrics
}

// Engine executes the five-phase pipeline over a RunContext. Phases run
// strictly in order; a checkpoint is persisted after each one, so a
// halted or paused run resumes from the last completed phase.
type Engine struct {
	run     *RunContext
	phases  []*Phase
	cursor  int // index of the next phase to execute
	paused  bool
	started bool
	failed  bool

	handles []gateway.WalletHandle
}

// New validates the configuration and lays out the phase schedule.
// Validation failures are fatal: nothing executes until the config passes.
func New(run *RunContext) (*Engine, error) {
	if err := run.Config.Validate(); err != nil {
		return nil, err
	}
	if run.Registry == nil {
		run.Registry = registry.New()
	}
	if run.Reporter == nil {
		run.Reporter = progress.NewLogReporter(observability.NewLogger("pipeline"))
	}

	return &Engine{
		run:    run,
		phases: buildPhases(run.Config),
	}, nil
}

// Phases exposes the schedule, mainly for inspection and tests.
func (e *Engine) Phases() []*Phase { return e.phases }

// Cursor returns the index of the next phase to execute.
func (e *Engine) Cursor() int { return e.cursor }

// Paused reports whether the run stopped at a breakpoint.
func (e *Engine) Paused() bool { return e.paused }

// RunToCompletion executes every remaining phase. Calling it on a
// finished engine starts a fresh, identical run: identities survive but
// balances, assets, and contracts are reset first.
func (e *Engine) RunToCompletion(ctx context.Context) error {
	return e.runUntil(ctx, len(e.phases))
}

// RunToBreakpoint executes phases up to but not including phaseNumber,
// then pauses. A later RunToCompletion resumes from the pause point.
func (e *Engine) RunToBreakpoint(ctx context.Context, phaseNumber int) error {
	if phaseNumber < PhaseSetup || phaseNumber > PhaseBundling {
		return &config.Error{Field: "breakpoint", Reason: fmt.Sprintf("phase %d out of range", phaseNumber)}
	}
	return e.runUntil(ctx, phaseNumber-1)
}

func (e *Engine) runUntil(ctx context.Context, stop int) error {
	// A finished or failed engine starts over; only a paused one resumes.
	if (e.cursor >= len(e.phases) || e.failed) && !e.paused {
		e.cursor = 0
	}
	if e.cursor == 0 && !e.paused && e.started {
		e.reset()
	}
	e.started = true
	e.paused = false
	e.failed = false

	for e.cursor < stop {
		phase := e.phases[e.cursor]

		if err := e.runPhase(ctx, phase); err != nil {
			e.failed = true
			e.checkpoint(ctx, false)
			e.countRun("failed")
			return err
		}

		e.cursor++
		e.checkpoint(ctx, false)
		if e.run.Metrics != nil {
			e.run.Metrics.RunCursor.Set(float64(e.cursor))
		}
	}

	if e.cursor < len(e.phases) {
		e.paused = true
		e.checkpoint(ctx, true)
		e.report(fmt.Sprintf("run paused before phase %d", e.cursor+1), progress.LevelInfo)
		e.countRun("paused")
		return nil
	}

	e.report("run complete", progress.LevelSuccess)
	e.countRun("completed")
	return nil
}

// reset restores pre-run state so repeated runs on one engine produce
// identical results. Wallet identities survive; balances, asset holdings,
// and contracts do not.
func (e *Engine) reset() {
	e.run.Registry.Reset()
	e.phases = buildPhases(e.run.Config)
	e.handles = nil
}

func (e *Engine) runPhase(ctx context.Context, phase *Phase) (err error) {
	defer func() {
		if r := recover(); r != nil {
			phase.Status = StatusFailed
			err = fmt.Errorf("phase %d panicked: %v", phase.Number, r)
			e.report(err.Error(), progress.LevelError)
		}
	}()

	e.report(fmt.Sprintf("=== Phase %d: %s ===", phase.Number, phase.Name), progress.LevelPhase)
	phase.Status = StatusRunning

	for _, rec := range phase.Steps {
		res := e.ExecuteStep(ctx, rec)

		switch rec.Status {
		case StatusPassed:
			e.report(res.Message, progress.LevelSuccess)
		case StatusSkipped:
			e.report(res.Message, progress.LevelWarning)
		case StatusFailed:
			e.report(res.Message, progress.LevelError)
			phase.Status = StatusFailed
			e.countPhase(phase)
			return fmt.Errorf("phase %d step %s: %w", phase.Number, rec.Step.StepID(), res.Err)
		}
	}

	phase.Status = StatusPassed
	e.countPhase(phase)
	return nil
}

// ExecuteStep runs a single step and records its outcome. A disabled step
// executes as skipped; a panic inside a step is contained and reported as
// that step's failure, never as the engine's.
func (e *Engine) ExecuteStep(ctx context.Context, rec *StepRecord) (res ActionResult) {
	if rec.Status == StatusDisabled {
		rec.Status = StatusSkipped
		rec.Result = success(fmt.Sprintf("step %s disabled, skipping", rec.Step.StepID()))
		return rec.Result
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = failure(fmt.Errorf("step %s panicked: %v", rec.Step.StepID(), r))
			rec.Status = StatusFailed
			rec.Result = res
		}
		e.countStep(rec, time.Since(start))
	}()

	rec.Status = StatusRunning
	res = e.dispatch(ctx, rec.Step)

	switch {
	case res.Err == errStepSkipped:
		// Skip marker is internal; callers see a clean non-error
		rec.Status = StatusSkipped
		res.Err = nil
	case res.Success:
		rec.Status = StatusPassed
	default:
		rec.Status = StatusFailed
	}
	rec.Result = res
	return res
}

func (e *Engine) dispatch(ctx context.Context, step Step) ActionResult {
	switch s := step.(type) {
	case *SetupStep:
		return e.execSetup(ctx, s)
	case *MintStep:
		return e.execMint(ctx, s)
	case *LoanStep:
		return e.execLoanCreate(ctx, s)
	case *ActionStep:
		return e.execLoanAction(ctx, s)
	case *CLOStep:
		return e.execCLOAction(ctx, s)
	default:
		return failure(fmt.Errorf("unknown step type %T", step))
	}
}

// now prefers the gateway's simulated clock over wall-clock time so
// payment schedules stay deterministic.
func (e *Engine) now() time.Time {
	if c, ok := e.run.Gateway.(gateway.Clock); ok {
		return c.Now()
	}
	return time.Now()
}

func (e *Engine) report(message string, level progress.Level) {
	e.run.Reporter.Log(message, level)
}

func (e *Engine) reportf(format string, args ...any) {
	e.report(fmt.Sprintf(format, args...), progress.LevelInfo)
}

func (e *Engine) reportWarnf(format string, args ...any) {
	e.report(fmt.Sprintf(format, args...), progress.LevelWarning)
}

func (e *Engine) countStep(rec *StepRecord, elapsed time.Duration) {
	if e.run.Metrics == nil {
		return
	}
	kind := string(rec.Step.Kind())
	e.run.Metrics.StepsTotal.WithLabelValues(kind, string(rec.Status)).Inc()
	e.run.Metrics.StepDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (e *Engine) countPhase(phase *Phase) {
	if e.run.Metrics == nil {
		return
	}
	e.run.Metrics.PhasesTotal.WithLabelValues(phase.Name, string(phase.Status)).Inc()
}

func (e *Engine) countRun(outcome string) {
	if e.run.Metrics == nil {
		return
	}
	e.run.Metrics.RunsTotal.WithLabelValues(outcome).Inc()
}

func (e *Engine) countGatewayError(op string) {
	if e.run.Metrics == nil {
		return
	}
	e.run.Metrics.GatewayErrors.WithLabelValues(op).Inc()
}
