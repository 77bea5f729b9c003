package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socertis/bnpl-simulator/internal/models"
)

func TestMarkAllOverdue(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	// Two backdated installments, one due today, one in the future.
	backdated := createTestPlan(t, svc, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC))
	future := createTestPlan(t, svc, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	// Plan creation already flags overdue rows; reset them to pending so the
	// sweep itself is what gets exercised.
	for _, inst := range backdated.Installments {
		resetPending(st.installments[inst.ID])
	}

	affected, err := svc.MarkAllOverdue(ctx)
	require.NoError(t, err)
	// Due 2024-12-01 is overdue on 2025-01-01; due 2025-01-01 is not.
	assert.Equal(t, int64(1), affected)

	installments, err := st.ListInstallments(ctx, backdated.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstallmentLate, installments[0].Status)
	assert.Equal(t, models.InstallmentPending, installments[1].Status)

	futureInstallments, err := st.ListInstallments(ctx, future.ID)
	require.NoError(t, err)
	for _, inst := range futureInstallments {
		assert.Equal(t, models.InstallmentPending, inst.Status)
	}

	// Second sweep on the same date affects nothing.
	affected, err = svc.MarkAllOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func resetPending(inst *models.Installment) {
	inst.Status = models.InstallmentPending
	inst.PaidAt = nil
}

func TestOverdueReport(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	backdated := createTestPlan(t, svc, time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC))
	createTestPlan(t, svc, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	report, err := svc.OverdueReport(ctx)
	require.NoError(t, err)

	// Installments due 2024-11-01 and 2024-12-01 were flagged late at
	// creation; the one due exactly today is not overdue.
	assert.Equal(t, int64(0), report.PendingOverdueCount)
	assert.Equal(t, int64(2), report.LateCount)
	assert.Equal(t, int64(2), report.TotalOverdue)
	require.Len(t, report.PerPlan, 1)
	assert.Equal(t, backdated.ID, report.PerPlan[0].PlanID)
	assert.Equal(t, customer.Email, report.PerPlan[0].CustomerEmail)
	assert.Equal(t, 2, report.PerPlan[0].OverdueCount)
	assert.True(t, report.PerPlan[0].OverdueAmount.Equal(decimal.RequireFromString("800.00")),
		"overdue amount %s", report.PerPlan[0].OverdueAmount)
}

func TestReminderTargets(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Due dates 2024-12-29 (overdue), 2025-01-01 (today) via a day-cadence
	// plan, plus one due in three days.
	_, err := svc.CreatePlan(ctx, merchant, CreatePlanRequest{
		CustomerEmail:    customer.Email,
		Principal:        decimal.NewFromInt(90),
		AnnualRate:       decimal.Zero,
		InstallmentCount: 2,
		StartDate:        time.Date(2024, 12, 29, 0, 0, 0, 0, time.UTC),
		Cadence:          models.CadenceDay,
	})
	require.NoError(t, err)
	_, err = svc.CreatePlan(ctx, merchant, CreatePlanRequest{
		CustomerEmail:    customer.Email,
		Principal:        decimal.NewFromInt(50),
		AnnualRate:       decimal.Zero,
		InstallmentCount: 1,
		StartDate:        time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC),
		Cadence:          models.CadenceMonth,
	})
	require.NoError(t, err)

	upcoming, dueToday, overdue, err := svc.ReminderTargets(ctx, 3)
	require.NoError(t, err)

	require.Len(t, upcoming, 1)
	assert.True(t, upcoming[0].DueDate.Equal(time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)))

	// First plan: installment 1 due 2024-12-29 went late at creation,
	// installment 2 due 2024-12-30 as well. Nothing is due exactly today.
	assert.Empty(t, dueToday)
	assert.Len(t, overdue, 2)
	for _, target := range overdue {
		assert.Equal(t, customer.Email, target.CustomerEmail)
		assert.Equal(t, 2, target.InstallmentCount)
	}
}
