package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanOverdue is the overdue breakdown for a single plan.
type PlanOverdue struct {
	PlanID        int64           `json:"plan_id"`
	CustomerEmail string          `json:"customer_email"`
	OverdueCount  int             `json:"overdue_count"`
	OverdueAmount decimal.Decimal `json:"overdue_amount"`
}

// OverdueReport summarizes installments past their due date
type OverdueReport struct {
	PendingOverdueCount int64         `json:"pending_overdue_count"`
	LateCount           int64         `json:"late_count"`
	TotalOverdue        int64         `json:"total_overdue"`
	PerPlan             []PlanOverdue `json:"per_plan"`
	AsOfDate            time.Time     `json:"as_of_date"`
}

// MerchantReport is the payment status report for one merchant
type MerchantReport struct {
	MerchantID    int64     `json:"merchant_id"`
	MerchantEmail string    `json:"merchant_email"`
	ReportDate    time.Time `json:"report_date"`

	TotalPlans     int64 `json:"total_plans"`
	ActivePlans    int64 `json:"active_plans"`
	CompletedPlans int64 `json:"completed_plans"`
	CancelledPlans int64 `json:"cancelled_plans"`

	TotalInstallments   int64 `json:"total_installments"`
	PaidInstallments    int64 `json:"paid_installments"`
	PendingInstallments int64 `json:"pending_installments"`
	LateInstallments    int64 `json:"late_installments"`

	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	CollectedAmount   decimal.Decimal `json:"collected_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	CollectionRate    float64         `json:"collection_rate"` // percent of revenue collected
}

// MerchantDashboard represents dashboard statistics for a merchant
type MerchantDashboard struct {
	TotalPlans     int64           `json:"total_plans"`
	ActivePlans    int64           `json:"active_plans"`
	CompletedPlans int64           `json:"completed_plans"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
}

// CustomerDashboard represents dashboard statistics for a customer
type CustomerDashboard struct {
	TotalPlans          int64           `json:"total_plans"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	PendingInstallments int64           `json:"pending_installments"`
}
