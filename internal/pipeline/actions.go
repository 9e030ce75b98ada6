package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"closim/internal/amort"
	"closim/internal/gateway"
	"closim/internal/registry"
)

func (e *Engine) execLoanAction(ctx context.Context, step *ActionStep) ActionResult {
	loan := e.run.Registry.Loan(step.LoanID)
	if loan == nil {
		return failure(recoverable("loan %s does not exist", step.LoanID))
	}

	switch step.Action {
	case "accept":
		return e.acceptLoan(ctx, loan, step.Actor)
	case "pay":
		return e.payLoan(ctx, loan)
	case "collect":
		return e.collectLoan(ctx, loan)
	case "complete":
		return e.completeLoan(ctx, loan)
	case "cancel":
		return e.cancelLoan(ctx, loan)
	case "default":
		return e.defaultLoan(ctx, loan)
	default:
		return failure(fmt.Errorf("unknown loan action %q", step.Action))
	}
}

// acceptLoan moves a pending offer into execution: the principal is
// disbursed to the borrower and the first installment is deducted
// immediately, so a loan is never active with zero payments made.
func (e *Engine) acceptLoan(ctx context.Context, loan *registry.LoanContract, actor string) ActionResult {
	if loan.Terminal() {
		return failure(recoverable("loan %s already settled", loan.ID))
	}
	if loan.Status != registry.StatusPending {
		return failure(recoverable("loan %s already accepted", loan.ID))
	}
	if loan.ReservedBuyer && actor != loan.BorrowerID {
		return failure(recoverable("loan %s is reserved for %s, %s cannot accept it",
			loan.ID, loan.BorrowerID, actor))
	}

	borrower := e.run.Registry.Identity(actor)
	if borrower == nil {
		return failure(recoverable("loan %s: borrower %s not registered", loan.ID, actor))
	}
	borrowerWallet := borrower.PrimaryWallet()
	originatorWallet := e.identityWallet(loan.OriginatorID)
	if borrowerWallet == nil || originatorWallet == nil {
		return failure(recoverable("loan %s: missing wallet for accept", loan.ID))
	}

	// Disburse the principal before the first installment comes back out,
	// so an otherwise empty borrower wallet can still accept.
	if err := originatorWallet.Debit(loan.Principal); err != nil {
		return e.walletFailure(err)
	}
	borrowerWallet.Credit(loan.Principal)

	if err := borrowerWallet.Debit(loan.Payment); err != nil {
		// Unwind the disbursement so a failed accept leaves no trace
		_ = borrowerWallet.Debit(loan.Principal)
		originatorWallet.Credit(loan.Principal)
		return e.walletFailure(err)
	}

	totalOwed := loan.Principal + amort.TotalInterest(loan.Principal, loan.Payment, loan.Installments)

	loan.BorrowerID = actor
	loan.Status = registry.StatusRunning
	loan.State = registry.LoanState{
		Balance:       totalOwed - loan.Payment,
		EscrowBalance: loan.Payment,
		IsActive:      true,
		StartTime:     e.now(),
		PaymentCount:  1,
	}

	e.updateContractState(ctx, loan.RemoteID, registry.StatusRunning)
	if e.run.Metrics != nil {
		e.run.Metrics.LoansAccepted.Inc()
	}

	e.advanceClock(ctx, 1)

	return success(fmt.Sprintf("%s accepted %s: received %d, paid installment 1 of %d, balance %d",
		borrower.Name, loan.ID, loan.Principal, loan.Installments, loan.State.Balance))
}

// payLoan applies one installment. A settled loan rejects further
// payments so the balance can never go below zero; a payment attempted
// past the grace window tips the loan into default instead.
func (e *Engine) payLoan(ctx context.Context, loan *registry.LoanContract) ActionResult {
	if loan.Terminal() {
		return failure(recoverable("loan %s already settled, nothing to pay", loan.ID))
	}
	if !loan.State.IsActive {
		return failure(recoverable("loan %s is not active", loan.ID))
	}

	term, err := amort.TermLength(loan.Frequency)
	if err != nil {
		return failure(err)
	}
	if e.paymentOverdue(loan, term) {
		e.applyDefault(ctx, loan)
		return failure(recoverable("loan %s defaulted: payment %d missed its grace window",
			loan.ID, loan.State.PaymentCount+1))
	}

	amount := loan.Payment
	if amount > loan.State.Balance {
		amount = loan.State.Balance
	}

	borrowerWallet := e.identityWallet(loan.BorrowerID)
	if borrowerWallet == nil {
		return failure(recoverable("loan %s: borrower wallet missing", loan.ID))
	}
	if err := borrowerWallet.Debit(amount); err != nil {
		return e.walletFailure(err)
	}

	loan.State.EscrowBalance += amount
	loan.State.Balance -= amount
	loan.State.PaymentCount++

	if e.run.Metrics != nil {
		e.run.Metrics.PaymentsApplied.Inc()
		e.run.Metrics.PaymentVolume.Add(float64(amount))
	}

	if loan.State.Balance == 0 {
		loan.State.IsPaidOff = true
		if e.run.Metrics != nil {
			e.run.Metrics.LoansPaidOff.Inc()
		}
	}

	e.advanceClock(ctx, 1)

	return success(fmt.Sprintf("loan %s: payment %d/%d of %d applied, balance %d",
		loan.ID, loan.State.PaymentCount, loan.Installments, amount, loan.State.Balance))
}

// collectLoan sweeps escrowed installments to the originator.
func (e *Engine) collectLoan(ctx context.Context, loan *registry.LoanContract) ActionResult {
	if loan.State.EscrowBalance == 0 {
		return success(fmt.Sprintf("loan %s: escrow empty, nothing to collect", loan.ID))
	}

	wallet := e.identityWallet(loan.OriginatorID)
	if wallet == nil {
		return failure(recoverable("loan %s: originator wallet missing", loan.ID))
	}

	amount := loan.State.EscrowBalance
	wallet.Credit(amount)
	loan.State.EscrowBalance = 0

	return success(fmt.Sprintf("loan %s: collected %d from escrow", loan.ID, amount))
}

// completeLoan closes a fully repaid loan and releases the escrowed
// collateral to the borrower.
func (e *Engine) completeLoan(ctx context.Context, loan *registry.LoanContract) ActionResult {
	if loan.State.IsDefaulted || loan.State.IsCancelled {
		return failure(recoverable("loan %s already settled", loan.ID))
	}
	if !loan.State.IsPaidOff {
		return failure(recoverable("loan %s has %d outstanding, cannot complete", loan.ID, loan.State.Balance))
	}
	if loan.Status == registry.StatusPassed {
		return success(fmt.Sprintf("loan %s already completed", loan.ID))
	}

	wallet := e.identityWallet(loan.BorrowerID)
	if wallet == nil {
		return failure(recoverable("loan %s: borrower wallet missing", loan.ID))
	}

	col := loan.Collateral
	wallet.AddAsset(col.PolicyID, col.AssetName, col.Quantity)
	loan.State.IsActive = false
	loan.Status = registry.StatusPassed

	e.updateContractState(ctx, loan.RemoteID, registry.StatusPassed)

	return success(fmt.Sprintf("loan %s complete: %d %s released to borrower",
		loan.ID, col.Quantity, col.AssetName))
}

// cancelLoan withdraws an offer nobody has accepted. The escrowed
// collateral returns to the originator; an accepted loan can only end by
// repayment or default.
func (e *Engine) cancelLoan(ctx context.Context, loan *registry.LoanContract) ActionResult {
	if loan.Terminal() {
		return failure(recoverable("loan %s already settled", loan.ID))
	}
	if loan.Status != registry.StatusPending || loan.State.IsActive {
		return failure(recoverable("loan %s already accepted, cannot cancel", loan.ID))
	}

	wallet := e.identityWallet(loan.OriginatorID)
	if wallet == nil {
		return failure(recoverable("loan %s: originator wallet missing", loan.ID))
	}

	col := loan.Collateral
	wallet.AddAsset(col.PolicyID, col.AssetName, col.Quantity)
	loan.State.IsCancelled = true
	loan.Status = registry.StatusFailed

	e.updateContractState(ctx, loan.RemoteID, registry.StatusFailed)
	if e.run.Metrics != nil {
		e.run.Metrics.LoansCancelled.Inc()
	}

	return success(fmt.Sprintf("loan %s cancelled, collateral returned to originator", loan.ID))
}

// defaultLoan simulates a missed payment: time advances past the next due
// date and its grace window, then default detection runs.
func (e *Engine) defaultLoan(ctx context.Context, loan *registry.LoanContract) ActionResult {
	if loan.Terminal() {
		return failure(recoverable("loan %s already settled", loan.ID))
	}
	if !loan.State.IsActive {
		return failure(recoverable("loan %s is not active", loan.ID))
	}

	if res := e.advanceTime(ctx, 2); res != nil {
		return *res
	}

	term, err := amort.TermLength(loan.Frequency)
	if err != nil {
		return failure(err)
	}
	if !e.paymentOverdue(loan, term) {
		return failure(recoverable("loan %s is current, no default to declare", loan.ID))
	}

	e.applyDefault(ctx, loan)
	return success(fmt.Sprintf("loan %s defaulted after %d payments: collateral seized, %d written off",
		loan.ID, loan.State.PaymentCount, loan.State.Balance))
}

// paymentOverdue reports whether the next installment's due date plus
// grace window has passed. The due date of payment n+1 is start + n terms.
func (e *Engine) paymentOverdue(loan *registry.LoanContract, term time.Duration) bool {
	due := loan.State.StartTime.
		Add(time.Duration(loan.State.PaymentCount) * term).
		Add(amort.LateWindow(term))
	return e.now().After(due)
}

// applyDefault closes the loan on the lender's terms: the collateral is
// seized by the originator and the remaining balance becomes the loss
// carried into any pool this loan was bundled into.
func (e *Engine) applyDefault(ctx context.Context, loan *registry.LoanContract) {
	if wallet := e.identityWallet(loan.OriginatorID); wallet != nil {
		col := loan.Collateral
		wallet.AddAsset(col.PolicyID, col.AssetName, col.Quantity)
	}

	loan.State.IsDefaulted = true
	loan.State.IsActive = false
	loan.Status = registry.StatusFailed

	e.updateContractState(ctx, loan.RemoteID, registry.StatusFailed)
	if e.run.Metrics != nil {
		e.run.Metrics.LoansDefaulted.Inc()
	}
}

// advanceTime moves the simulated clock. Returns a non-nil failure result
// when the gateway refuses; nil means proceed. Used where the clock must
// move before any state changes.
func (e *Engine) advanceTime(ctx context.Context, periods int64) *ActionResult {
	if err := e.run.Gateway.AdvanceTime(ctx, periods); err != nil {
		e.countGatewayError("advance_time")
		res := failure(&gateway.Failure{Op: "advance_time", Err: err})
		return &res
	}
	return nil
}

// advanceClock moves the clock after a step's state is already committed.
// A failure here costs schedule accuracy, not correctness, and failing the
// step would strand its mutations, so it warns and continues.
func (e *Engine) advanceClock(ctx context.Context, periods int64) {
	if err := e.run.Gateway.AdvanceTime(ctx, periods); err != nil {
		e.countGatewayError("advance_time")
		e.reportWarnf("clock advance failed, continuing: %v", err)
	}
}

// walletFailure maps an overdraft to a recoverable failure and anything
// else to a plain one.
func (e *Engine) walletFailure(err error) ActionResult {
	var insufficient *registry.ErrInsufficientBalance
	if errors.As(err, &insufficient) {
		return failure(&RecoverableStepFailure{Reason: err.Error()})
	}
	return failure(err)
}
