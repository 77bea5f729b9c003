// Package service implements the BNPL ledger business logic: plan creation
// with amortized schedules, installment payment, overdue detection and plan
// status reconciliation.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/socertis/bnpl-simulator/internal/amortize"
	"github.com/socertis/bnpl-simulator/internal/auth"
	"github.com/socertis/bnpl-simulator/internal/config"
	"github.com/socertis/bnpl-simulator/internal/models"
	"github.com/socertis/bnpl-simulator/internal/store"
)

// Service handles business logic
type Service struct {
	store store.Storage
	log   *logrus.Logger
	cfg   *config.Config

	now func() time.Time
}

// NewService initializes a new service
func NewService(st store.Storage, log *logrus.Logger, cfg *config.Config) *Service {
	return &Service{store: st, log: log, cfg: cfg, now: time.Now}
}

// today returns the current date, UTC, truncated to midnight.
func (s *Service) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Register creates a new user with hashed password
func (s *Service) Register(ctx context.Context, username, email, password string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: string(hashedPassword),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Infof("User registered: %s (%s)", user.Email, user.Role)
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	token, err := auth.IssueToken(s.cfg.JWTSecret, user)
	if err != nil {
		return "", err
	}
	s.log.Infof("User logged in: %s", user.Email)
	return token, nil
}

// CreatePlanRequest carries the creation parameters for a payment plan.
type CreatePlanRequest struct {
	CustomerEmail    string
	Principal        decimal.Decimal
	AnnualRate       decimal.Decimal
	InstallmentCount int
	StartDate        time.Time
	Cadence          models.Cadence
}

// CreatePlan computes the amortization schedule and persists the plan together
// with all its installments in one transaction. The first installment is due
// on the start date itself, each following one exactly one cadence unit later.
func (s *Service) CreatePlan(ctx context.Context, identity models.Identity, req CreatePlanRequest) (*models.PaymentPlan, error) {
	if !identity.IsMerchant() {
		return nil, fmt.Errorf("%w: only merchants can create plans", ErrForbidden)
	}
	if req.CustomerEmail == "" {
		return nil, &amortize.InvalidInputError{Field: "customer_email", Reason: "must not be empty"}
	}
	if req.InstallmentCount > s.cfg.MaxInstallments {
		return nil, &amortize.InvalidInputError{
			Field:  "installment_count",
			Reason: fmt.Sprintf("must not exceed %d", s.cfg.MaxInstallments),
		}
	}

	schedule, err := amortize.Schedule(req.Principal, req.AnnualRate, req.InstallmentCount, req.Cadence)
	if err != nil {
		return nil, err
	}

	start := req.StartDate.UTC()
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)

	plan := &models.PaymentPlan{
		MerchantID:       identity.UserID,
		CustomerEmail:    req.CustomerEmail,
		Principal:        req.Principal,
		AnnualRate:       req.AnnualRate,
		InstallmentCount: req.InstallmentCount,
		StartDate:        start,
		Cadence:          req.Cadence,
		Status:           models.PlanActive,
	}
	installments := make([]*models.Installment, 0, len(schedule))
	for i, entry := range schedule {
		installments = append(installments, &models.Installment{
			Number:    i + 1,
			Total:     entry.Total,
			Principal: entry.Principal,
			Interest:  entry.Interest,
			DueDate:   req.Cadence.Add(start, i),
			Status:    models.InstallmentPending,
		})
	}

	// The inserts, the overdue check and the reconciliation all commit or
	// roll back together: a failed creation leaves no plan and no
	// installment rows behind. Freshly written installments go through the
	// same overdue check as any other installment write; a plan started in
	// the past carries late installments from day one and stays active.
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertPlan(plan, installments); err != nil {
			return err
		}
		if _, err := tx.MarkPlanInstallmentsLate(plan.ID, s.today()); err != nil {
			return err
		}
		return s.reconcilePlan(tx, plan.ID)
	})
	if err != nil {
		return nil, &PlanCreationError{Err: err}
	}

	plan.Installments, err = s.store.ListInstallments(ctx, plan.ID)
	if err != nil {
		return nil, err
	}

	s.log.Infof("Payment plan %d created: %s over %d %s installments for %s",
		plan.ID, plan.Principal, plan.InstallmentCount, plan.Cadence, plan.CustomerEmail)
	return plan, nil
}

// GetPlan loads a plan with its installments for an authorized caller.
func (s *Service) GetPlan(ctx context.Context, identity models.Identity, planID int64) (*models.PaymentPlan, error) {
	plan, err := s.store.GetPlan(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: plan %d", ErrNotFound, planID)
	}
	if err != nil {
		return nil, err
	}
	if !identity.OwnsPlan(plan) {
		return nil, fmt.Errorf("%w: plan %d", ErrForbidden, planID)
	}
	plan.Installments, err = s.store.ListInstallments(ctx, planID)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// ListPlans returns the plans visible to the caller: merchants see plans they
// created, customers see plans addressed to their email.
func (s *Service) ListPlans(ctx context.Context, identity models.Identity) ([]*models.PaymentPlan, error) {
	if identity.IsMerchant() {
		return s.store.ListPlansByMerchant(ctx, identity.UserID)
	}
	return s.store.ListPlansByCustomer(ctx, identity.Email)
}

// PaymentResult is what a successful installment payment returns.
type PaymentResult struct {
	InstallmentID int64                    `json:"installment_id"`
	NewStatus     models.InstallmentStatus `json:"new_status"`
	PlanStatus    models.PlanStatus        `json:"plan_status"`
}

// PayInstallment marks one installment as paid. The installment row is read
// under a row-level lock so concurrent payment attempts on the same
// installment serialize; the status re-check happens under that lock, making
// payment at-most-once. The plan status is reconciled before the transaction
// commits, so the caller observes the final plan status.
func (s *Service) PayInstallment(ctx context.Context, identity models.Identity, installmentID int64) (*PaymentResult, error) {
	var result *PaymentResult
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		inst, err := tx.GetInstallmentForUpdate(installmentID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: installment %d", ErrNotFound, installmentID)
		}
		if err != nil {
			return err
		}
		plan, err := tx.GetPlan(inst.PlanID)
		if err != nil {
			return err
		}
		if !identity.CanPay(plan) {
			return fmt.Errorf("%w: installment %d", ErrForbidden, installmentID)
		}
		switch inst.Status {
		case models.InstallmentPaid:
			return fmt.Errorf("%w: installment %d", ErrAlreadyPaid, installmentID)
		case models.InstallmentCancelled:
			return fmt.Errorf("%w: installment %d is cancelled", ErrInvalidState, installmentID)
		}
		if plan.Status != models.PlanActive {
			return fmt.Errorf("%w: plan %d is %s", ErrInvalidState, plan.ID, plan.Status)
		}

		paidAt := s.now().UTC()
		if err := tx.UpdateInstallmentStatus(inst.ID, models.InstallmentPaid, &paidAt); err != nil {
			return err
		}
		if err := s.reconcilePlan(tx, plan.ID); err != nil {
			return err
		}
		updated, err := tx.GetPlan(plan.ID)
		if err != nil {
			return err
		}
		result = &PaymentResult{
			InstallmentID: inst.ID,
			NewStatus:     models.InstallmentPaid,
			PlanStatus:    updated.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("Installment %d paid by %s, plan status %s", result.InstallmentID, identity.Email, result.PlanStatus)
	return result, nil
}

// RevertInstallment puts a paid installment back to pending. This is the
// administrative correction path; the overdue check and the reconciler run on
// the result, so a reverted installment past its due date comes back as late
// and a completed plan reactivates.
func (s *Service) RevertInstallment(ctx context.Context, identity models.Identity, installmentID int64) (*models.Installment, error) {
	var planID int64
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		inst, err := tx.GetInstallmentForUpdate(installmentID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: installment %d", ErrNotFound, installmentID)
		}
		if err != nil {
			return err
		}
		plan, err := tx.GetPlan(inst.PlanID)
		if err != nil {
			return err
		}
		if !identity.IsMerchant() || plan.MerchantID != identity.UserID {
			return fmt.Errorf("%w: installment %d", ErrForbidden, installmentID)
		}
		if inst.Status != models.InstallmentPaid {
			return fmt.Errorf("%w: installment %d is %s, only paid installments can be reverted",
				ErrInvalidState, installmentID, inst.Status)
		}
		if err := tx.UpdateInstallmentStatus(inst.ID, models.InstallmentPending, nil); err != nil {
			return err
		}
		if _, err := tx.MarkPlanInstallmentsLate(plan.ID, s.today()); err != nil {
			return err
		}
		planID = plan.ID
		return s.reconcilePlan(tx, plan.ID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("Installment %d reverted to pending on plan %d", installmentID, planID)
	installments, err := s.store.ListInstallments(ctx, planID)
	if err != nil {
		return nil, err
	}
	for _, inst := range installments {
		if inst.ID == installmentID {
			return inst, nil
		}
	}
	return nil, fmt.Errorf("%w: installment %d", ErrNotFound, installmentID)
}

// DeleteInstallment removes an installment and reconciles the plan against the
// remaining set. A plan left with no installments goes back to active unless
// it was explicitly cancelled.
func (s *Service) DeleteInstallment(ctx context.Context, identity models.Identity, installmentID int64) error {
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		inst, err := tx.GetInstallmentForUpdate(installmentID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: installment %d", ErrNotFound, installmentID)
		}
		if err != nil {
			return err
		}
		plan, err := tx.GetPlan(inst.PlanID)
		if err != nil {
			return err
		}
		if !identity.IsMerchant() || plan.MerchantID != identity.UserID {
			return fmt.Errorf("%w: installment %d", ErrForbidden, installmentID)
		}
		if err := tx.DeleteInstallment(inst.ID); err != nil {
			return err
		}
		return s.reconcilePlan(tx, plan.ID)
	})
	if err != nil {
		return err
	}
	s.log.Infof("Installment %d deleted", installmentID)
	return nil
}

// CancelPlan cancels every unpaid installment of the plan. When some
// installments were already paid the status table alone cannot produce
// `cancelled`, so the plan status is set directly as an administrative
// override; the advisory consistency check will note the disagreement.
func (s *Service) CancelPlan(ctx context.Context, identity models.Identity, planID int64) error {
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		plan, err := tx.GetPlan(planID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: plan %d", ErrNotFound, planID)
		}
		if err != nil {
			return err
		}
		if !identity.IsMerchant() || plan.MerchantID != identity.UserID {
			return fmt.Errorf("%w: plan %d", ErrForbidden, planID)
		}
		if plan.Status == models.PlanCancelled {
			return nil
		}
		if _, err := tx.CancelPlanInstallments(planID); err != nil {
			return err
		}
		if err := s.reconcilePlan(tx, planID); err != nil {
			return err
		}
		updated, err := tx.GetPlan(planID)
		if err != nil {
			return err
		}
		if updated.Status != models.PlanCancelled {
			if err := tx.UpdatePlanStatus(planID, models.PlanCancelled); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Infof("Payment plan %d cancelled", planID)
	s.VerifyPlanConsistency(ctx, planID)
	return nil
}
