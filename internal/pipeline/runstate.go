package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"closim/internal/gateway"
	"closim/internal/progress"
	"closim/internal/registry"
)

// RunState is the JSON snapshot persisted as a checkpoint after each
// phase. It carries everything needed to resume on a fresh process:
// cursor position, step outcomes, and the full registry contents.
type RunState struct {
	RunID      string                   `json:"run_id"`
	Cursor     int                      `json:"cursor"`
	Paused     bool                     `json:"paused"`
	Phases     []PhaseSnapshot          `json:"phases"`
	Identities []*registry.Identity     `json:"identities"`
	Loans      []*registry.LoanContract `json:"loans"`
	CLOs       []*registry.CLOContract  `json:"clos"`
}

type PhaseSnapshot struct {
	Number int            `json:"number"`
	Status Status         `json:"status"`
	Steps  []StepSnapshot `json:"steps"`
}

type StepSnapshot struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// SnapshotRunState captures the engine's current resumable state.
func (e *Engine) SnapshotRunState() RunState {
	state := RunState{
		RunID:      e.run.RunID,
		Cursor:     e.cursor,
		Paused:     e.paused,
		Identities: e.run.Registry.Identities(),
		Loans:      e.run.Registry.Loans(),
		CLOs:       e.run.Registry.CLOs(),
	}

	for _, p := range e.phases {
		ps := PhaseSnapshot{Number: p.Number, Status: p.Status}
		for _, rec := range p.Steps {
			ps.Steps = append(ps.Steps, StepSnapshot{ID: rec.Step.StepID(), Status: rec.Status})
		}
		state.Phases = append(state.Phases, ps)
	}

	return state
}

// RestoreRunState rebuilds the engine from a checkpoint. The phase
// schedule is re-derived from configuration, then step outcomes and the
// registry contents are overlaid from the snapshot.
func (e *Engine) RestoreRunState(data []byte) error {
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode run state: %w", err)
	}

	reg := registry.New()
	for _, ident := range state.Identities {
		if err := reg.AddIdentity(ident); err != nil {
			return fmt.Errorf("restore identity %s: %w", ident.ID, err)
		}
	}
	for _, loan := range state.Loans {
		reg.AddLoan(loan)
	}
	for _, clo := range state.CLOs {
		reg.AddCLO(clo)
	}
	e.run.Registry = reg

	e.phases = buildPhases(e.run.Config)
	byNumber := make(map[int]PhaseSnapshot, len(state.Phases))
	for _, ps := range state.Phases {
		byNumber[ps.Number] = ps
	}
	for _, p := range e.phases {
		ps, ok := byNumber[p.Number]
		if !ok {
			continue
		}
		p.Status = ps.Status
		statuses := make(map[string]Status, len(ps.Steps))
		for _, ss := range ps.Steps {
			statuses[ss.ID] = ss.Status
		}
		for _, rec := range p.Steps {
			if s, ok := statuses[rec.Step.StepID()]; ok {
				rec.Status = s
			}
		}
	}

	e.cursor = state.Cursor
	e.paused = state.Paused
	e.failed = false
	e.run.RunID = state.RunID
	return nil
}

// checkpoint persists the current run state. Checkpointing is never
// essential: a failure costs resumability, not correctness, so it warns
// and moves on.
func (e *Engine) checkpoint(ctx context.Context, paused bool) {
	start := time.Now()

	state := e.SnapshotRunState()
	state.Paused = paused
	data, err := json.Marshal(state)
	if err != nil {
		e.report(fmt.Sprintf("checkpoint encode failed, continuing: %v", err), progress.LevelWarning)
		return
	}

	err = e.run.Gateway.SaveCheckpoint(ctx, gateway.Checkpoint{
		RunID:     e.run.RunID,
		Phase:     e.cursor,
		Paused:    paused,
		State:     data,
		CreatedAt: e.now(),
	})
	if err != nil {
		e.countGatewayError("save_checkpoint")
		e.report(fmt.Sprintf("checkpoint save failed, continuing: %v", err), progress.LevelWarning)
		return
	}

	if e.run.Metrics != nil {
		e.run.Metrics.CheckpointsSaved.Inc()
		e.run.Metrics.CheckpointDuration.Observe(time.Since(start).Seconds())
	}
}
