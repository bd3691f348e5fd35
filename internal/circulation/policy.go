// internal/circulation/policy.go
package circulation

import (
	"libraripro/internal/calendar"

	"github.com/shopspring/decimal"
)

// Policy holds the lending rules applied by the ledger.
type Policy struct {
	LoanDays    int
	RenewalDays int
	// MaxRenewals caps renewals per transaction. Zero means unlimited.
	MaxRenewals int
	DueSoonDays int
	FinePerDay  decimal.Decimal
}

// DefaultPolicy is two-week loans and renewals, one currency unit a day.
func DefaultPolicy() Policy {
	return Policy{
		LoanDays:    14,
		RenewalDays: 14,
		DueSoonDays: 3,
		FinePerDay:  decimal.NewFromInt(1),
	}
}

// DueFor is the default due date of a loan starting on issue.
func (p Policy) DueFor(issue calendar.Date) calendar.Date {
	return issue.AddDays(p.LoanDays)
}

// OverdueDays is the number of started days between due and returned, never negative.
func OverdueDays(due, returned calendar.Date) int {
	d := calendar.CeilDays(due.Time(), returned.Time())
	if d < 0 {
		return 0
	}
	return d
}

// FineFor returns the fine for a return on the given day, or nil when it was on time.
func (p Policy) FineFor(due, returned calendar.Date, waived, paid bool) *Fine {
	days := OverdueDays(due, returned)
	if days == 0 {
		return nil
	}
	return &Fine{
		Amount:      p.FinePerDay.Mul(decimal.NewFromInt(int64(days))),
		Waived:      waived,
		Paid:        paid,
		OverdueDays: days,
	}
}

// PreviewFine is the fine the transaction would carry if returned on asOf.
func (p Policy) PreviewFine(t Transaction, asOf calendar.Date) decimal.Decimal {
	if !t.IsOpen() {
		if t.Fine != nil {
			return t.Fine.Amount
		}
		return decimal.Zero
	}
	if f := p.FineFor(t.DueDate, asOf, false, false); f != nil {
		return f.Amount
	}
	return decimal.Zero
}

// DisplayStatus classifies t as of the given day. Returned transactions stay
// Returned; open ones are Overdue past the due date, DueSoon within
// DueSoonDays of it, and Issued otherwise.
func (p Policy) DisplayStatus(t Transaction, asOf calendar.Date) DisplayStatus {
	if !t.IsOpen() {
		return DisplayReturned
	}
	d := calendar.CeilDays(t.DueDate.Time(), asOf.Time())
	switch {
	case d > 0:
		return DisplayOverdue
	case d > -p.DueSoonDays:
		return DisplayDueSoon
	default:
		return DisplayIssued
	}
}

// ComputeDisplayStatus classifies t with the default three-day due-soon window.
func ComputeDisplayStatus(t Transaction, asOf calendar.Date) DisplayStatus {
	return DefaultPolicy().DisplayStatus(t, asOf)
}
