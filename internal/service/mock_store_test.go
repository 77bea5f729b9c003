package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/socertis/bnpl-simulator/internal/models"
	"github.com/socertis/bnpl-simulator/internal/store"
)

// memStore is an in-memory store.Storage for tests. Transactions are
// serialized through a single mutex, which mirrors the row-lock guarantee the
// SQL backends give on the payment path.
type memStore struct {
	mu           sync.Mutex
	users        map[int64]*models.User
	plans        map[int64]*models.PaymentPlan
	installments map[int64]*models.Installment
	nextUserID   int64
	nextPlanID   int64
	nextInstID   int64

	// txCount counts WithTx invocations so tests can pin how many
	// transactions an operation opened.
	txCount int
}

func newMemStore() *memStore {
	return &memStore{
		users:        make(map[int64]*models.User),
		plans:        make(map[int64]*models.PaymentPlan),
		installments: make(map[int64]*models.Installment),
	}
}

func (m *memStore) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("email %s already registered", u.Email)
		}
	}
	m.nextUserID++
	u.ID = m.nextUserID
	u.CreatedAt = time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetPlan(ctx context.Context, id int64) (*models.PaymentPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getPlanLocked(id)
}

func (m *memStore) getPlanLocked(id int64) (*models.PaymentPlan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListPlansByMerchant(ctx context.Context, merchantID int64) ([]*models.PaymentPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PaymentPlan
	for _, p := range m.plans {
		if p.MerchantID == merchantID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListPlansByCustomer(ctx context.Context, email string) ([]*models.PaymentPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PaymentPlan
	for _, p := range m.plans {
		if p.CustomerEmail == email {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListInstallments(ctx context.Context, planID int64) ([]*models.Installment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listInstallmentsLocked(planID), nil
}

func (m *memStore) listInstallmentsLocked(planID int64) []*models.Installment {
	var out []*models.Installment
	for _, inst := range m.installments {
		if inst.PlanID == planID {
			cp := *inst
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (m *memStore) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++
	return fn(&memTx{m})
}

func (m *memStore) OverduePlanIDs(ctx context.Context, asOf time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int64]bool)
	var out []int64
	for _, inst := range m.installments {
		if inst.IsOverdue(asOf) && !seen[inst.PlanID] {
			seen[inst.PlanID] = true
			out = append(out, inst.PlanID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *memStore) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var affected int64
	for _, inst := range m.installments {
		if inst.IsOverdue(asOf) {
			inst.Status = models.InstallmentLate
			inst.UpdatedAt = time.Now()
			affected++
		}
	}
	return affected, nil
}

func (m *memStore) OverdueReport(ctx context.Context, asOf time.Time) (*models.OverdueReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report := &models.OverdueReport{AsOfDate: asOf}
	perPlan := make(map[int64]*models.PlanOverdue)
	for _, inst := range m.installments {
		overduePending := inst.IsOverdue(asOf)
		late := inst.Status == models.InstallmentLate
		if !overduePending && !late {
			continue
		}
		if overduePending {
			report.PendingOverdueCount++
		} else {
			report.LateCount++
		}
		report.TotalOverdue++
		entry, ok := perPlan[inst.PlanID]
		if !ok {
			entry = &models.PlanOverdue{
				PlanID:        inst.PlanID,
				CustomerEmail: m.plans[inst.PlanID].CustomerEmail,
				OverdueAmount: decimal.Zero,
			}
			perPlan[inst.PlanID] = entry
		}
		entry.OverdueCount++
		entry.OverdueAmount = entry.OverdueAmount.Add(inst.Total)
	}
	for _, entry := range perPlan {
		report.PerPlan = append(report.PerPlan, *entry)
	}
	sort.Slice(report.PerPlan, func(i, j int) bool { return report.PerPlan[i].PlanID < report.PerPlan[j].PlanID })
	return report, nil
}

func (m *memStore) ListReminderTargets(ctx context.Context, dueOn time.Time) ([]*store.ReminderTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.ReminderTarget
	for _, inst := range m.installments {
		if inst.Status == models.InstallmentPending && inst.DueDate.Equal(dueOn) {
			out = append(out, m.targetLocked(inst))
		}
	}
	return out, nil
}

func (m *memStore) ListOverdueTargets(ctx context.Context, asOf time.Time) ([]*store.ReminderTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.ReminderTarget
	for _, inst := range m.installments {
		if inst.Status == models.InstallmentLate && inst.DueDate.Before(asOf) {
			out = append(out, m.targetLocked(inst))
		}
	}
	return out, nil
}

func (m *memStore) targetLocked(inst *models.Installment) *store.ReminderTarget {
	plan := m.plans[inst.PlanID]
	return &store.ReminderTarget{
		InstallmentID:    inst.ID,
		PlanID:           inst.PlanID,
		Number:           inst.Number,
		InstallmentCount: plan.InstallmentCount,
		Amount:           inst.Total,
		DueDate:          inst.DueDate,
		CustomerEmail:    plan.CustomerEmail,
	}
}

func (m *memStore) MerchantReport(ctx context.Context, merchantID int64, asOf time.Time) (*models.MerchantReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report := &models.MerchantReport{
		MerchantID:        merchantID,
		ReportDate:        asOf,
		TotalRevenue:      decimal.Zero,
		CollectedAmount:   decimal.Zero,
		OutstandingAmount: decimal.Zero,
	}
	if u, ok := m.users[merchantID]; ok {
		report.MerchantEmail = u.Email
	}
	for _, p := range m.plans {
		if p.MerchantID != merchantID {
			continue
		}
		report.TotalPlans++
		switch p.Status {
		case models.PlanActive:
			report.ActivePlans++
		case models.PlanCompleted:
			report.CompletedPlans++
		case models.PlanCancelled:
			report.CancelledPlans++
		}
		for _, inst := range m.listInstallmentsLocked(p.ID) {
			report.TotalInstallments++
			switch inst.Status {
			case models.InstallmentPaid:
				report.PaidInstallments++
				report.CollectedAmount = report.CollectedAmount.Add(inst.Total)
			case models.InstallmentPending:
				report.PendingInstallments++
				report.OutstandingAmount = report.OutstandingAmount.Add(inst.Total)
			case models.InstallmentLate:
				report.LateInstallments++
				report.OutstandingAmount = report.OutstandingAmount.Add(inst.Total)
			}
			if inst.Status != models.InstallmentCancelled {
				report.TotalRevenue = report.TotalRevenue.Add(inst.Total)
			}
		}
	}
	if report.TotalRevenue.IsPositive() {
		rate, _ := report.CollectedAmount.Div(report.TotalRevenue).Mul(decimal.NewFromInt(100)).Float64()
		report.CollectionRate = rate
	}
	return report, nil
}

func (m *memStore) MerchantDashboard(ctx context.Context, merchantID int64) (*models.MerchantDashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &models.MerchantDashboard{TotalRevenue: decimal.Zero}
	for _, p := range m.plans {
		if p.MerchantID != merchantID {
			continue
		}
		d.TotalPlans++
		switch p.Status {
		case models.PlanActive:
			d.ActivePlans++
		case models.PlanCompleted:
			d.CompletedPlans++
		}
		d.TotalRevenue = d.TotalRevenue.Add(p.Principal)
	}
	return d, nil
}

func (m *memStore) CustomerDashboard(ctx context.Context, email string) (*models.CustomerDashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &models.CustomerDashboard{TotalAmount: decimal.Zero}
	for _, p := range m.plans {
		if p.CustomerEmail != email {
			continue
		}
		d.TotalPlans++
		d.TotalAmount = d.TotalAmount.Add(p.Principal)
		for _, inst := range m.listInstallmentsLocked(p.ID) {
			if inst.Status == models.InstallmentPending || inst.Status == models.InstallmentLate {
				d.PendingInstallments++
			}
		}
	}
	return d, nil
}

func (m *memStore) Close() error { return nil }

// memTx operates on the store maps with the store mutex already held.
type memTx struct {
	s *memStore
}

func (t *memTx) InsertPlan(plan *models.PaymentPlan, installments []*models.Installment) error {
	t.s.nextPlanID++
	plan.ID = t.s.nextPlanID
	plan.CreatedAt = time.Now()
	plan.UpdatedAt = plan.CreatedAt
	planCopy := *plan
	planCopy.Installments = nil
	t.s.plans[plan.ID] = &planCopy
	for _, inst := range installments {
		t.s.nextInstID++
		inst.ID = t.s.nextInstID
		inst.PlanID = plan.ID
		inst.CreatedAt = plan.CreatedAt
		inst.UpdatedAt = plan.CreatedAt
		cp := *inst
		t.s.installments[inst.ID] = &cp
	}
	return nil
}

func (t *memTx) GetPlan(id int64) (*models.PaymentPlan, error) {
	return t.s.getPlanLocked(id)
}

func (t *memTx) GetInstallmentForUpdate(id int64) (*models.Installment, error) {
	inst, ok := t.s.installments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

func (t *memTx) UpdateInstallmentStatus(id int64, status models.InstallmentStatus, paidAt *time.Time) error {
	inst, ok := t.s.installments[id]
	if !ok {
		return store.ErrNotFound
	}
	inst.Status = status
	inst.PaidAt = paidAt
	inst.UpdatedAt = time.Now()
	return nil
}

func (t *memTx) DeleteInstallment(id int64) error {
	if _, ok := t.s.installments[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.s.installments, id)
	return nil
}

func (t *memTx) MarkPlanInstallmentsLate(planID int64, asOf time.Time) (int64, error) {
	var affected int64
	for _, inst := range t.s.installments {
		if inst.PlanID == planID && inst.IsOverdue(asOf) {
			inst.Status = models.InstallmentLate
			inst.UpdatedAt = time.Now()
			affected++
		}
	}
	return affected, nil
}

func (t *memTx) CancelPlanInstallments(planID int64) (int64, error) {
	var affected int64
	for _, inst := range t.s.installments {
		if inst.PlanID == planID && inst.Status != models.InstallmentPaid && inst.Status != models.InstallmentCancelled {
			inst.Status = models.InstallmentCancelled
			inst.UpdatedAt = time.Now()
			affected++
		}
	}
	return affected, nil
}

func (t *memTx) CountInstallmentStatuses(planID int64) (models.StatusCounts, error) {
	var counts models.StatusCounts
	for _, inst := range t.s.installments {
		if inst.PlanID != planID {
			continue
		}
		switch inst.Status {
		case models.InstallmentPending:
			counts.Pending++
		case models.InstallmentPaid:
			counts.Paid++
		case models.InstallmentLate:
			counts.Late++
		case models.InstallmentCancelled:
			counts.Cancelled++
		}
	}
	return counts, nil
}

func (t *memTx) UpdatePlanStatus(planID int64, status models.PlanStatus) error {
	p, ok := t.s.plans[planID]
	if !ok {
		return store.ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	return nil
}
