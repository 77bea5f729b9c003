// Package store provides durable storage for payment plans, installments and
// users. Two backends are supported: PostgreSQL for deployments and SQLite for
// local development. All coordination between concurrent operations happens
// through the database, not in process memory.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/socertis/bnpl-simulator/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ReminderTarget is one installment a payment reminder should be sent for.
type ReminderTarget struct {
	InstallmentID    int64
	PlanID           int64
	Number           int
	InstallmentCount int
	Amount           decimal.Decimal
	DueDate          time.Time
	CustomerEmail    string
}

// Tx exposes the operations available inside one database transaction. The
// payment path uses it to lock an installment row, re-check its status and
// reconcile the owning plan before committing.
type Tx interface {
	// InsertPlan persists the plan and all its installments; either every
	// row is written or the enclosing transaction rolls back.
	InsertPlan(plan *models.PaymentPlan, installments []*models.Installment) error
	GetPlan(id int64) (*models.PaymentPlan, error)
	// GetInstallmentForUpdate reads an installment under a row-level lock,
	// serializing concurrent payment attempts on the same row.
	GetInstallmentForUpdate(id int64) (*models.Installment, error)
	UpdateInstallmentStatus(id int64, status models.InstallmentStatus, paidAt *time.Time) error
	DeleteInstallment(id int64) error
	// MarkPlanInstallmentsLate flips the plan's overdue pending installments to
	// late. The UPDATE restates status='pending' so it can never overwrite a
	// row paid in the meantime.
	MarkPlanInstallmentsLate(planID int64, asOf time.Time) (int64, error)
	// CancelPlanInstallments cancels every installment of the plan that has not
	// been paid.
	CancelPlanInstallments(planID int64) (int64, error)
	CountInstallmentStatuses(planID int64) (models.StatusCounts, error)
	UpdatePlanStatus(planID int64, status models.PlanStatus) error
}

// Storage defines the database operations for plans, installments and users.
type Storage interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, id int64) (*models.User, error)

	GetPlan(ctx context.Context, id int64) (*models.PaymentPlan, error)
	ListPlansByMerchant(ctx context.Context, merchantID int64) ([]*models.PaymentPlan, error)
	ListPlansByCustomer(ctx context.Context, email string) ([]*models.PaymentPlan, error)
	ListInstallments(ctx context.Context, planID int64) ([]*models.Installment, error)

	WithTx(ctx context.Context, fn func(Tx) error) error

	// OverduePlanIDs lists the plans that currently have overdue pending
	// installments.
	OverduePlanIDs(ctx context.Context, asOf time.Time) ([]int64, error)
	// MarkOverdue is the set-based overdue sweep. Idempotent: a second call
	// with the same asOf date affects zero rows.
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
	OverdueReport(ctx context.Context, asOf time.Time) (*models.OverdueReport, error)
	ListReminderTargets(ctx context.Context, dueOn time.Time) ([]*ReminderTarget, error)
	// ListOverdueTargets finds late installments past their due date for
	// overdue reminder delivery.
	ListOverdueTargets(ctx context.Context, asOf time.Time) ([]*ReminderTarget, error)

	MerchantReport(ctx context.Context, merchantID int64, asOf time.Time) (*models.MerchantReport, error)
	MerchantDashboard(ctx context.Context, merchantID int64) (*models.MerchantDashboard, error)
	CustomerDashboard(ctx context.Context, email string) (*models.CustomerDashboard, error)

	Close() error
}
