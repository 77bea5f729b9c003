package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanStatus is the aggregate state of a payment plan. It is derived from the
// plan's installment statuses and must not be set directly by API callers.
type PlanStatus string

const (
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
	PlanCancelled PlanStatus = "cancelled"
)

// Cadence is the time unit between installments.
type Cadence string

const (
	CadenceDay   Cadence = "day"
	CadenceWeek  Cadence = "week"
	CadenceMonth Cadence = "month"
)

// Valid reports whether c is one of the supported cadences.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceDay, CadenceWeek, CadenceMonth:
		return true
	}
	return false
}

// PeriodsPerYear returns the number of periods in a year for this cadence.
// A day cadence uses a 360-day year.
func (c Cadence) PeriodsPerYear() int64 {
	switch c {
	case CadenceWeek:
		return 52
	case CadenceDay:
		return 360
	default:
		return 12
	}
}

// Add returns t advanced by steps cadence units.
func (c Cadence) Add(t time.Time, steps int) time.Time {
	switch c {
	case CadenceDay:
		return t.AddDate(0, 0, steps)
	case CadenceWeek:
		return t.AddDate(0, 0, 7*steps)
	default:
		return t.AddDate(0, steps, 0)
	}
}

// PaymentPlan represents a BNPL payment plan in the system
type PaymentPlan struct {
	ID               int64           `json:"id"`
	MerchantID       int64           `json:"merchant_id"`
	CustomerEmail    string          `json:"customer_email"`
	Principal        decimal.Decimal `json:"principal"`
	AnnualRate       decimal.Decimal `json:"annual_rate"`
	InstallmentCount int             `json:"installment_count"`
	StartDate        time.Time       `json:"start_date"`
	Cadence          Cadence         `json:"cadence"`
	Status           PlanStatus      `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// Installments is populated on detail reads only.
	Installments []*Installment `json:"installments,omitempty"`
}

// PlanSummary aggregates the state of a plan's installments
type PlanSummary struct {
	TotalInstallments int             `json:"total_installments"`
	Paid              int             `json:"paid_installments"`
	Pending           int             `json:"pending_installments"`
	Late              int             `json:"late_installments"`
	Cancelled         int             `json:"cancelled_installments"`
	RemainingAmount   decimal.Decimal `json:"remaining_amount"`
	NextDueDate       *time.Time      `json:"next_due_date,omitempty"`
}

// Summarize builds a summary from the plan's loaded installments.
func (p *PaymentPlan) Summarize() PlanSummary {
	s := PlanSummary{
		TotalInstallments: len(p.Installments),
		RemainingAmount:   decimal.Zero,
	}
	for _, inst := range p.Installments {
		switch inst.Status {
		case InstallmentPaid:
			s.Paid++
		case InstallmentPending:
			s.Pending++
			if s.NextDueDate == nil || inst.DueDate.Before(*s.NextDueDate) {
				due := inst.DueDate
				s.NextDueDate = &due
			}
		case InstallmentLate:
			s.Late++
		case InstallmentCancelled:
			s.Cancelled++
		}
		if inst.Status != InstallmentPaid {
			s.RemainingAmount = s.RemainingAmount.Add(inst.Total)
		}
	}
	return s
}
