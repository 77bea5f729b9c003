package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/socertis/bnpl-simulator/internal/config"
	"github.com/socertis/bnpl-simulator/internal/service"
	"github.com/socertis/bnpl-simulator/internal/utils/email"
)

// Scheduler runs the periodic overdue sweep and payment reminders.
type Scheduler struct {
	cron   *cron.Cron
	svc    *service.Service
	sender *email.Sender
	cfg    *config.Config
	log    *logrus.Logger
}

// NewScheduler initializes a new scheduler
func NewScheduler(svc *service.Service, sender *email.Sender, cfg *config.Config, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		svc:    svc,
		sender: sender,
		cfg:    cfg,
		log:    log,
	}
}

// Start registers the cron jobs and starts the scheduler
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.runOverdueSweep); err != nil {
		return fmt.Errorf("failed to schedule overdue sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.ReminderSchedule, s.runReminders); err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}
	s.cron.Start()
	s.log.Infof("Scheduler started (sweep %q, reminders %q)", s.cfg.SweepSchedule, s.cfg.ReminderSchedule)
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Scheduler stopped")
}

func (s *Scheduler) runOverdueSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	affected, err := s.svc.MarkAllOverdue(ctx)
	if err != nil {
		s.log.Errorf("Overdue sweep failed: %v", err)
		return
	}
	s.log.Infof("Scheduled overdue sweep finished, %d installments marked late", affected)
}

func (s *Scheduler) runReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	upcoming, dueToday, overdue, err := s.svc.ReminderTargets(ctx, s.cfg.ReminderDaysAhead)
	if err != nil {
		s.log.Errorf("Failed to collect reminder targets: %v", err)
		return
	}

	sent := 0
	for _, target := range upcoming {
		if err := s.sender.SendPaymentReminder(target, email.TierUpcoming); err == nil {
			sent++
		}
	}
	for _, target := range dueToday {
		if err := s.sender.SendPaymentReminder(target, email.TierDueToday); err == nil {
			sent++
		}
	}
	for _, target := range overdue {
		if err := s.sender.SendPaymentReminder(target, email.TierOverdue); err == nil {
			sent++
		}
	}
	s.log.Infof("Reminder run finished, %d emails sent", sent)
}
