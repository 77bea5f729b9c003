package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/socertis/bnpl-simulator/internal/models"
)

// sqlStore implements Storage on top of database/sql. Dialect differences
// between PostgreSQL and SQLite (placeholders, row locks, id generation) are
// isolated in the dialect struct.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	log     *logrus.Logger
}

type dialect struct {
	name           string
	bindPositional bool   // rewrite ? to $1..$n (lib/pq)
	lockSuffix     string // appended to SELECTs that need a row lock
}

// rebind rewrites ? placeholders into the dialect's positional form.
func (s *sqlStore) rebind(query string) string {
	if !s.dialect.bindPositional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insertReturningID runs an INSERT and reports the generated id. lib/pq has no
// LastInsertId, so PostgreSQL goes through RETURNING.
func (s *sqlStore) insertReturningID(ctx context.Context, q querier, query string, args ...any) (int64, error) {
	if s.dialect.name == "postgres" {
		var id int64
		err := q.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := q.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CreateUser creates a new user in the database
func (s *sqlStore) CreateUser(ctx context.Context, u *models.User) error {
	u.CreatedAt = time.Now().UTC()
	id, err := s.insertReturningID(ctx, s.db,
		`INSERT INTO users (username, email, role, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.Role, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	u.ID = id
	return nil
}

const userColumns = `id, username, email, role, password_hash, created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return u, nil
}

// FindUserByEmail retrieves a user by email
func (s *sqlStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	return scanUser(row)
}

// FindUserByID retrieves a user by id
func (s *sqlStore) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	return scanUser(row)
}

const planColumns = `id, merchant_id, customer_email, principal, annual_rate,
	installment_count, start_date, cadence, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*models.PaymentPlan, error) {
	p := &models.PaymentPlan{}
	err := row.Scan(&p.ID, &p.MerchantID, &p.CustomerEmail, &p.Principal, &p.AnnualRate,
		&p.InstallmentCount, &p.StartDate, &p.Cadence, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment plan: %w", err)
	}
	return p, nil
}

const installmentColumns = `id, plan_id, number, total, principal, interest,
	due_date, status, paid_at, created_at, updated_at`

func scanInstallment(row rowScanner) (*models.Installment, error) {
	inst := &models.Installment{}
	var paidAt sql.NullTime
	err := row.Scan(&inst.ID, &inst.PlanID, &inst.Number, &inst.Total, &inst.Principal,
		&inst.Interest, &inst.DueDate, &inst.Status, &paidAt, &inst.CreatedAt, &inst.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan installment: %w", err)
	}
	if paidAt.Valid {
		inst.PaidAt = &paidAt.Time
	}
	return inst, nil
}

// GetPlan retrieves a plan by id
func (s *sqlStore) GetPlan(ctx context.Context, id int64) (*models.PaymentPlan, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+planColumns+` FROM payment_plans WHERE id = ?`), id)
	return scanPlan(row)
}

func (s *sqlStore) listPlans(ctx context.Context, query string, args ...any) ([]*models.PaymentPlan, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment plans: %w", err)
	}
	defer rows.Close()

	var plans []*models.PaymentPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during plan iteration: %w", err)
	}
	return plans, nil
}

// ListPlansByMerchant retrieves the plans a merchant created, newest first.
func (s *sqlStore) ListPlansByMerchant(ctx context.Context, merchantID int64) ([]*models.PaymentPlan, error) {
	return s.listPlans(ctx,
		`SELECT `+planColumns+` FROM payment_plans WHERE merchant_id = ? ORDER BY created_at DESC`,
		merchantID)
}

// ListPlansByCustomer retrieves the plans addressed to a customer email, newest first.
func (s *sqlStore) ListPlansByCustomer(ctx context.Context, email string) ([]*models.PaymentPlan, error) {
	return s.listPlans(ctx,
		`SELECT `+planColumns+` FROM payment_plans WHERE customer_email = ? ORDER BY created_at DESC`,
		email)
}

// ListInstallments retrieves a plan's installments in sequence order.
func (s *sqlStore) ListInstallments(ctx context.Context, planID int64) ([]*models.Installment, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+installmentColumns+` FROM installments WHERE plan_id = ? ORDER BY number ASC`),
		planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	defer rows.Close()

	var installments []*models.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		installments = append(installments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during installment iteration: %w", err)
	}
	return installments, nil
}

// WithTx runs fn inside one database transaction, rolling back on error.
func (s *sqlStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	t := &sqlTx{store: s, tx: tx, ctx: ctx}
	if err := fn(t); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type sqlTx struct {
	store *sqlStore
	tx    *sql.Tx
	ctx   context.Context
}

// InsertPlan writes the plan row and its installment rows.
func (t *sqlTx) InsertPlan(plan *models.PaymentPlan, installments []*models.Installment) error {
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	planID, err := t.store.insertReturningID(t.ctx, t.tx,
		`INSERT INTO payment_plans (merchant_id, customer_email, principal, annual_rate,
		 installment_count, start_date, cadence, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.MerchantID, plan.CustomerEmail, plan.Principal, plan.AnnualRate,
		plan.InstallmentCount, plan.StartDate, plan.Cadence, plan.Status,
		plan.CreatedAt, plan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment plan: %w", err)
	}
	plan.ID = planID

	for _, inst := range installments {
		inst.PlanID = planID
		inst.CreatedAt = now
		inst.UpdatedAt = now
		instID, err := t.store.insertReturningID(t.ctx, t.tx,
			`INSERT INTO installments (plan_id, number, total, principal, interest,
			 due_date, status, paid_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.PlanID, inst.Number, inst.Total, inst.Principal, inst.Interest,
			inst.DueDate, inst.Status, inst.PaidAt, inst.CreatedAt, inst.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create installment %d: %w", inst.Number, err)
		}
		inst.ID = instID
	}
	return nil
}

func (t *sqlTx) GetPlan(id int64) (*models.PaymentPlan, error) {
	row := t.tx.QueryRowContext(t.ctx,
		t.store.rebind(`SELECT `+planColumns+` FROM payment_plans WHERE id = ?`), id)
	return scanPlan(row)
}

func (t *sqlTx) GetInstallmentForUpdate(id int64) (*models.Installment, error) {
	// SQLite has no FOR UPDATE; its single-writer transactions serialize the
	// payment path instead.
	query := `SELECT ` + installmentColumns + ` FROM installments WHERE id = ?` + t.store.dialect.lockSuffix
	row := t.tx.QueryRowContext(t.ctx, t.store.rebind(query), id)
	return scanInstallment(row)
}

func (t *sqlTx) UpdateInstallmentStatus(id int64, status models.InstallmentStatus, paidAt *time.Time) error {
	res, err := t.tx.ExecContext(t.ctx,
		t.store.rebind(`UPDATE installments SET status = ?, paid_at = ?, updated_at = ? WHERE id = ?`),
		status, paidAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update installment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTx) DeleteInstallment(id int64) error {
	res, err := t.tx.ExecContext(t.ctx,
		t.store.rebind(`DELETE FROM installments WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete installment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTx) MarkPlanInstallmentsLate(planID int64, asOf time.Time) (int64, error) {
	res, err := t.tx.ExecContext(t.ctx,
		t.store.rebind(`UPDATE installments SET status = ?, updated_at = ?
			WHERE plan_id = ? AND status = ? AND due_date < ?`),
		models.InstallmentLate, time.Now().UTC(), planID, models.InstallmentPending, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to mark plan installments late: %w", err)
	}
	return res.RowsAffected()
}

func (t *sqlTx) CancelPlanInstallments(planID int64) (int64, error) {
	res, err := t.tx.ExecContext(t.ctx,
		t.store.rebind(`UPDATE installments SET status = ?, updated_at = ?
			WHERE plan_id = ? AND status != ?`),
		models.InstallmentCancelled, time.Now().UTC(), planID, models.InstallmentPaid)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel plan installments: %w", err)
	}
	return res.RowsAffected()
}

func (t *sqlTx) CountInstallmentStatuses(planID int64) (models.StatusCounts, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		t.store.rebind(`SELECT status, COUNT(*) FROM installments WHERE plan_id = ? GROUP BY status`),
		planID)
	if err != nil {
		return models.StatusCounts{}, fmt.Errorf("failed to count installment statuses: %w", err)
	}
	defer rows.Close()

	var counts models.StatusCounts
	for rows.Next() {
		var status models.InstallmentStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return models.StatusCounts{}, fmt.Errorf("failed to scan status count: %w", err)
		}
		switch status {
		case models.InstallmentPending:
			counts.Pending = n
		case models.InstallmentPaid:
			counts.Paid = n
		case models.InstallmentLate:
			counts.Late = n
		case models.InstallmentCancelled:
			counts.Cancelled = n
		}
	}
	if err := rows.Err(); err != nil {
		return models.StatusCounts{}, fmt.Errorf("error during status count iteration: %w", err)
	}
	return counts, nil
}

func (t *sqlTx) UpdatePlanStatus(planID int64, status models.PlanStatus) error {
	res, err := t.tx.ExecContext(t.ctx,
		t.store.rebind(`UPDATE payment_plans SET status = ?, updated_at = ? WHERE id = ?`),
		status, time.Now().UTC(), planID)
	if err != nil {
		return fmt.Errorf("failed to update plan status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// OverduePlanIDs lists plans that currently hold overdue pending installments.
func (s *sqlStore) OverduePlanIDs(ctx context.Context, asOf time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT DISTINCT plan_id FROM installments WHERE status = ? AND due_date < ?`),
		models.InstallmentPending, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue plans: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan plan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during plan id iteration: %w", err)
	}
	return ids, nil
}

// MarkOverdue flips every overdue pending installment to late in one set-based
// update. The WHERE clause restates status='pending' at write time, so a row
// paid between any earlier read and this update is left alone.
func (s *sqlStore) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE installments SET status = ?, updated_at = ?
			WHERE status = ? AND due_date < ?`),
		models.InstallmentLate, time.Now().UTC(), models.InstallmentPending, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue installments: %w", err)
	}
	return res.RowsAffected()
}

// OverdueReport aggregates overdue installments grouped by owning plan.
func (s *sqlStore) OverdueReport(ctx context.Context, asOf time.Time) (*models.OverdueReport, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT i.plan_id, p.customer_email, i.status, i.total, i.due_date
			FROM installments i
			JOIN payment_plans p ON p.id = i.plan_id
			WHERE (i.status = ? AND i.due_date < ?) OR i.status = ?
			ORDER BY i.plan_id, i.number`),
		models.InstallmentPending, asOf, models.InstallmentLate)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue report: %w", err)
	}
	defer rows.Close()

	report := &models.OverdueReport{AsOfDate: asOf, PerPlan: []models.PlanOverdue{}}
	perPlan := map[int64]*models.PlanOverdue{}
	var order []int64
	for rows.Next() {
		var planID int64
		var email string
		var status models.InstallmentStatus
		var total decimal.Decimal
		var dueDate time.Time
		if err := rows.Scan(&planID, &email, &status, &total, &dueDate); err != nil {
			return nil, fmt.Errorf("failed to scan overdue row: %w", err)
		}
		if status == models.InstallmentLate {
			report.LateCount++
		} else {
			report.PendingOverdueCount++
		}
		report.TotalOverdue++
		entry, ok := perPlan[planID]
		if !ok {
			entry = &models.PlanOverdue{PlanID: planID, CustomerEmail: email, OverdueAmount: decimal.Zero}
			perPlan[planID] = entry
			order = append(order, planID)
		}
		entry.OverdueCount++
		entry.OverdueAmount = entry.OverdueAmount.Add(total)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during overdue iteration: %w", err)
	}
	for _, id := range order {
		report.PerPlan = append(report.PerPlan, *perPlan[id])
	}
	return report, nil
}

// ListReminderTargets finds installments due on the given date that still
// await payment, joined with the owning plan for addressing.
func (s *sqlStore) ListReminderTargets(ctx context.Context, dueOn time.Time) ([]*ReminderTarget, error) {
	return s.listTargets(ctx,
		`SELECT i.id, i.plan_id, i.number, p.installment_count, i.total, i.due_date, p.customer_email
			FROM installments i
			JOIN payment_plans p ON p.id = i.plan_id
			WHERE i.due_date = ? AND i.status IN (?, ?)
			ORDER BY i.plan_id, i.number`,
		dueOn, models.InstallmentPending, models.InstallmentLate)
}

func (s *sqlStore) listTargets(ctx context.Context, query string, args ...any) ([]*ReminderTarget, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminder targets: %w", err)
	}
	defer rows.Close()

	var targets []*ReminderTarget
	for rows.Next() {
		target := &ReminderTarget{}
		if err := rows.Scan(&target.InstallmentID, &target.PlanID, &target.Number,
			&target.InstallmentCount, &target.Amount, &target.DueDate, &target.CustomerEmail); err != nil {
			return nil, fmt.Errorf("failed to scan reminder target: %w", err)
		}
		targets = append(targets, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during reminder iteration: %w", err)
	}
	return targets, nil
}

// ListOverdueTargets finds late installments past their due date.
func (s *sqlStore) ListOverdueTargets(ctx context.Context, asOf time.Time) ([]*ReminderTarget, error) {
	return s.listTargets(ctx,
		`SELECT i.id, i.plan_id, i.number, p.installment_count, i.total, i.due_date, p.customer_email
			FROM installments i
			JOIN payment_plans p ON p.id = i.plan_id
			WHERE i.status = ? AND i.due_date < ?
			ORDER BY i.plan_id, i.number`,
		models.InstallmentLate, asOf)
}

// MerchantReport builds the payment status report for one merchant. Monetary
// sums are accumulated in Go to keep decimal precision on both backends.
func (s *sqlStore) MerchantReport(ctx context.Context, merchantID int64, asOf time.Time) (*models.MerchantReport, error) {
	merchant, err := s.FindUserByID(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	report := &models.MerchantReport{
		MerchantID:        merchantID,
		MerchantEmail:     merchant.Email,
		ReportDate:        asOf,
		TotalRevenue:      decimal.Zero,
		CollectedAmount:   decimal.Zero,
		OutstandingAmount: decimal.Zero,
	}

	plans, err := s.ListPlansByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		report.TotalPlans++
		switch p.Status {
		case models.PlanActive:
			report.ActivePlans++
		case models.PlanCompleted:
			report.CompletedPlans++
		case models.PlanCancelled:
			report.CancelledPlans++
		}
		report.TotalRevenue = report.TotalRevenue.Add(p.Principal)
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT i.status, i.total
			FROM installments i
			JOIN payment_plans p ON p.id = i.plan_id
			WHERE p.merchant_id = ?`),
		merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant installments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status models.InstallmentStatus
		var total decimal.Decimal
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("failed to scan merchant installment: %w", err)
		}
		report.TotalInstallments++
		switch status {
		case models.InstallmentPaid:
			report.PaidInstallments++
			report.CollectedAmount = report.CollectedAmount.Add(total)
		case models.InstallmentPending:
			report.PendingInstallments++
		case models.InstallmentLate:
			report.LateInstallments++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during merchant installment iteration: %w", err)
	}

	report.OutstandingAmount = report.TotalRevenue.Sub(report.CollectedAmount)
	if report.TotalRevenue.IsPositive() {
		rate, _ := report.CollectedAmount.Div(report.TotalRevenue).Mul(decimal.NewFromInt(100)).Float64()
		report.CollectionRate = rate
	}
	return report, nil
}

// MerchantDashboard returns the merchant's headline numbers.
func (s *sqlStore) MerchantDashboard(ctx context.Context, merchantID int64) (*models.MerchantDashboard, error) {
	plans, err := s.ListPlansByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	dash := &models.MerchantDashboard{TotalRevenue: decimal.Zero}
	for _, p := range plans {
		dash.TotalPlans++
		switch p.Status {
		case models.PlanActive:
			dash.ActivePlans++
		case models.PlanCompleted:
			dash.CompletedPlans++
		}
		dash.TotalRevenue = dash.TotalRevenue.Add(p.Principal)
	}
	return dash, nil
}

// CustomerDashboard returns the customer's headline numbers.
func (s *sqlStore) CustomerDashboard(ctx context.Context, email string) (*models.CustomerDashboard, error) {
	plans, err := s.ListPlansByCustomer(ctx, email)
	if err != nil {
		return nil, err
	}
	dash := &models.CustomerDashboard{TotalAmount: decimal.Zero}
	for _, p := range plans {
		dash.TotalPlans++
		dash.TotalAmount = dash.TotalAmount.Add(p.Principal)
	}

	err = s.db.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(*) FROM installments i
			JOIN payment_plans p ON p.id = i.plan_id
			WHERE p.customer_email = ? AND i.status = ?`),
		email, models.InstallmentPending).Scan(&dash.PendingInstallments)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending installments: %w", err)
	}
	return dash, nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	return s.db.Close()
}
