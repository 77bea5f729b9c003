package service

import (
	"context"
	"time"

	"github.com/socertis/bnpl-simulator/internal/models"
	"github.com/socertis/bnpl-simulator/internal/store"
)

// MarkAllOverdue flips every pending installment past its due date to late in
// one set-based update and returns the number of rows affected. Running it
// twice in a row yields zero the second time. It races benignly with
// individual payments: the update re-states status='pending' at write time, so
// a row paid after selection is never overwritten.
func (s *Service) MarkAllOverdue(ctx context.Context) (int64, error) {
	today := s.today()

	planIDs, err := s.store.OverduePlanIDs(ctx, today)
	if err != nil {
		return 0, err
	}
	affected, err := s.store.MarkOverdue(ctx, today)
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		s.log.Infof("Overdue sweep marked %d installments late across %d plans", affected, len(planIDs))
	}

	// pending->late does not normally move a plan's status, but a cancelled
	// plan that regained live installments reactivates here.
	for _, planID := range planIDs {
		err := s.store.WithTx(ctx, func(tx store.Tx) error {
			return s.reconcilePlan(tx, planID)
		})
		if err != nil {
			s.log.Warnf("Failed to reconcile plan %d after overdue sweep: %v", planID, err)
		}
	}
	return affected, nil
}

// OverdueReport aggregates overdue installments grouped by plan. Read-only.
func (s *Service) OverdueReport(ctx context.Context) (*models.OverdueReport, error) {
	return s.store.OverdueReport(ctx, s.today())
}

// ReminderTargets collects the installments that should receive a payment
// reminder today: ones due in daysAhead days, ones due today, and late ones.
func (s *Service) ReminderTargets(ctx context.Context, daysAhead int) (upcoming, dueToday, overdue []*store.ReminderTarget, err error) {
	today := s.today()
	upcoming, err = s.store.ListReminderTargets(ctx, today.AddDate(0, 0, daysAhead))
	if err != nil {
		return nil, nil, nil, err
	}
	dueToday, err = s.store.ListReminderTargets(ctx, today)
	if err != nil {
		return nil, nil, nil, err
	}
	overdue, err = s.store.ListOverdueTargets(ctx, today)
	if err != nil {
		return nil, nil, nil, err
	}
	return upcoming, dueToday, overdue, nil
}

// Today exposes the service's date so callers computing reminder offsets use
// the same clock.
func (s *Service) Today() time.Time {
	return s.today()
}
