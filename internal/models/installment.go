package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentStatus is the payment state of a single installment.
type InstallmentStatus string

const (
	InstallmentPending   InstallmentStatus = "pending"
	InstallmentPaid      InstallmentStatus = "paid"
	InstallmentLate      InstallmentStatus = "late"
	InstallmentCancelled InstallmentStatus = "cancelled"
)

// Installment represents one scheduled payment of a payment plan
type Installment struct {
	ID        int64             `json:"id"`
	PlanID    int64             `json:"plan_id"`
	Number    int               `json:"number"`
	Total     decimal.Decimal   `json:"total"`
	Principal decimal.Decimal   `json:"principal_component"`
	Interest  decimal.Decimal   `json:"interest_component"`
	DueDate   time.Time         `json:"due_date"`
	Status    InstallmentStatus `json:"status"`
	PaidAt    *time.Time        `json:"paid_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// IsOverdue reports whether the installment is pending past its due date.
func (i *Installment) IsOverdue(today time.Time) bool {
	return i.Status == InstallmentPending && i.DueDate.Before(today)
}

// StatusCounts holds per-status installment counts for one plan.
type StatusCounts struct {
	Pending   int
	Paid      int
	Late      int
	Cancelled int
}

// Total returns the number of installments counted.
func (c StatusCounts) Total() int {
	return c.Pending + c.Paid + c.Late + c.Cancelled
}
