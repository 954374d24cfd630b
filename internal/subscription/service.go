// Package subscription owns the lifecycle of access records: recording a
// purchase, answering "is this principal active", and driving expiry through
// the scheduler.
package subscription

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/gatekeep/internal/model"
	"github.com/dukerupert/gatekeep/internal/plan"
	"github.com/dukerupert/gatekeep/internal/scheduler"
	"github.com/dukerupert/gatekeep/internal/store"
)

// Service coordinates the store and the expiry scheduler. The expiry hook is
// installed once at wiring time (SetOnExpire) and receives the principal after
// the record has been flipped inactive.
type Service struct {
	store    store.Store
	sched    *scheduler.Scheduler
	onExpire func(principal int64)
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a lifecycle service over the given store and scheduler.
func NewService(s store.Store, sched *scheduler.Scheduler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  s,
		sched:  sched,
		now:    time.Now,
		logger: logger,
	}
}

// SetOnExpire installs the hook run when a subscription expires, after the
// record has been deactivated. Typically the group revocation path.
func (s *Service) SetOnExpire(fn func(principal int64)) {
	s.onExpire = fn
}

// SetNow overrides the clock. Tests only.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// Record sets or overwrites the principal's subscription with an expiry of
// now + plan duration, then re-arms the expiry timer. The store write happens
// before the arm so a renewal can never leave a stale timer pointed at the
// old expiry.
func (s *Service) Record(principal int64, p plan.Plan) (model.Subscription, error) {
	now := s.now()
	sub := model.Subscription{
		Principal: principal,
		PlanID:    p.ID,
		ExpiresAt: now.Add(p.Duration()),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev, err := s.store.Get(principal); err == nil && prev != nil {
		sub.CreatedAt = prev.CreatedAt
	}
	if err := s.store.Put(sub); err != nil {
		return model.Subscription{}, fmt.Errorf("record subscription: %w", err)
	}

	s.sched.Arm(principal, sub.ExpiresAt, func() {
		s.expire(principal)
	})
	s.logger.Info("subscription recorded",
		"principal", principal, "plan", p.ID, "expires_at", sub.ExpiresAt)
	return sub, nil
}

// CheckActive returns the principal's subscription only while it is both
// flagged active and not yet past expiry. A record whose expiry has passed
// but whose flag was never flipped reads as nil; the read path does not
// mutate, that is the fired timer's job.
func (s *Service) CheckActive(principal int64) (*model.Subscription, error) {
	sub, err := s.store.Get(principal)
	if err != nil {
		return nil, fmt.Errorf("check active: %w", err)
	}
	if sub == nil || !sub.Active || !s.now().Before(sub.ExpiresAt) {
		return nil, nil
	}
	return sub, nil
}

// Deactivate flips the principal's record inactive and cancels any armed
// expiry timer. Idempotent.
func (s *Service) Deactivate(principal int64) error {
	s.sched.Cancel(principal)
	if err := s.store.Deactivate(principal); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	return nil
}

func (s *Service) expire(principal int64) {
	if err := s.store.Deactivate(principal); err != nil {
		s.logger.Error("deactivate expired subscription", "principal", principal, "error", err)
	}
	s.logger.Info("subscription expired", "principal", principal)
	if s.onExpire != nil {
		s.onExpire(principal)
	}
}

// RearmAll re-arms expiry timers for records that are still active, and
// expires overdue ones immediately. Called at startup when a durable store
// is in use; timers themselves never survive a restart.
func (s *Service) RearmAll(principals []int64) {
	for _, p := range principals {
		sub, err := s.store.Get(p)
		if err != nil || sub == nil || !sub.Active {
			continue
		}
		s.sched.Arm(p, sub.ExpiresAt, func() { s.expire(sub.Principal) })
	}
}
