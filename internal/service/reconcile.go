package service

import (
	"context"

	"github.com/socertis/bnpl-simulator/internal/models"
	"github.com/socertis/bnpl-simulator/internal/store"
)

// DerivePlanStatus evaluates the plan status decision table. Rows are checked
// in order, first match wins; counts are taken over the plan's current
// installments while installmentCount is the count the plan was created with.
// The result depends only on the counts, never on the order the installments
// reached their states, so reconciliation is order-independent.
func DerivePlanStatus(current models.PlanStatus, installmentCount int, counts models.StatusCounts) (models.PlanStatus, bool) {
	n := installmentCount
	switch {
	case n > 0 && counts.Paid == n:
		return models.PlanCompleted, current != models.PlanCompleted
	case n > 0 && counts.Cancelled == n:
		return models.PlanCancelled, current != models.PlanCancelled
	case current == models.PlanCompleted && counts.Paid < n:
		// Something became un-paid; the plan reactivates.
		return models.PlanActive, true
	case current == models.PlanCancelled && (counts.Pending > 0 || counts.Late > 0 || counts.Paid > 0):
		return models.PlanActive, true
	default:
		return current, false
	}
}

// reconcilePlan recomputes the plan's status from its installment counts as
// observed after the triggering write, inside the same transaction. It is a
// plain function call from every installment-mutating path; there is no event
// dispatch to loop through, so it cannot re-enter itself within one operation.
// Concurrent transactions touching different installments of the same plan
// each run their own reconciliation; the derivation is a pure function of the
// counts, so whichever commits last writes the status those counts demand.
func (s *Service) reconcilePlan(tx store.Tx, planID int64) error {
	plan, err := tx.GetPlan(planID)
	if err != nil {
		return err
	}
	counts, err := tx.CountInstallmentStatuses(planID)
	if err != nil {
		return err
	}

	var next models.PlanStatus
	var changed bool
	if counts.Total() == 0 {
		// All installments gone: back to active, but an explicit cancellation
		// survives a full installment wipe.
		next = models.PlanActive
		changed = plan.Status != models.PlanActive && plan.Status != models.PlanCancelled
	} else {
		next, changed = DerivePlanStatus(plan.Status, plan.InstallmentCount, counts)
	}
	if !changed {
		return nil
	}
	if err := tx.UpdatePlanStatus(planID, next); err != nil {
		return err
	}
	s.log.Infof("Plan %d status: %s -> %s (paid=%d pending=%d late=%d cancelled=%d)",
		planID, plan.Status, next, counts.Paid, counts.Pending, counts.Late, counts.Cancelled)
	return nil
}

// VerifyPlanConsistency re-evaluates the decision table against the stored
// plan status after a plan save that did not come from the reconciler itself.
// Disagreements are logged, never raised: this is a diagnostic, not an
// enforcement point.
func (s *Service) VerifyPlanConsistency(ctx context.Context, planID int64) {
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		plan, err := tx.GetPlan(planID)
		if err != nil {
			return err
		}
		counts, err := tx.CountInstallmentStatuses(planID)
		if err != nil {
			return err
		}
		if counts.Total() == 0 {
			return nil
		}
		if expected, changed := DerivePlanStatus(plan.Status, plan.InstallmentCount, counts); changed {
			s.log.Warnf("Plan %d status %s disagrees with derived status %s (paid=%d pending=%d late=%d cancelled=%d)",
				planID, plan.Status, expected, counts.Paid, counts.Pending, counts.Late, counts.Cancelled)
		}
		return nil
	})
	if err != nil {
		s.log.Warnf("Consistency check for plan %d failed: %v", planID, err)
	}
}
