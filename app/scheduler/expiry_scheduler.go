// Package scheduler runs the service's periodic background jobs
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/virtuallibrarycard/vlc/app/services"
	"github.com/virtuallibrarycard/vlc/models"
	"github.com/virtuallibrarycard/vlc/repository"
	"github.com/virtuallibrarycard/vlc/utils"
)

// ExpirySchedulerOptions tunes the reminder window and cadence.
type ExpirySchedulerOptions struct {
	// Interval between runs. A daily cadence is enough since the reminder
	// window is measured in days.
	Interval time.Duration
	// ReminderDays is how many days ahead of expiration patrons are warned.
	ReminderDays int
	// StaleJobAge is how old a pending or running bulk upload job must be
	// before it is declared orphaned by a crashed instance.
	StaleJobAge time.Duration
}

// ExpiryScheduler periodically reminds patrons of expiring cards and fails
// bulk upload jobs orphaned by a restart. Reminders are deduplicated through
// the audit log so a patron is warned once per card, not once per run.
type ExpiryScheduler struct {
	cardRepo  repository.LibraryCardRepository
	jobRepo   repository.BulkUploadJobRepository
	auditRepo repository.AuditLogRepository
	notifier  services.NotificationService
	logger    zerolog.Logger
	opts      ExpirySchedulerOptions
}

// NewExpiryScheduler creates a scheduler with sane defaults for any zero option
func NewExpiryScheduler(
	cardRepo repository.LibraryCardRepository,
	jobRepo repository.BulkUploadJobRepository,
	auditRepo repository.AuditLogRepository,
	notifier services.NotificationService,
	logger zerolog.Logger,
	opts ExpirySchedulerOptions,
) *ExpiryScheduler {
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	if opts.ReminderDays <= 0 {
		opts.ReminderDays = 30
	}
	if opts.StaleJobAge <= 0 {
		opts.StaleJobAge = 6 * time.Hour
	}

	return &ExpiryScheduler{
		cardRepo:  cardRepo,
		jobRepo:   jobRepo,
		auditRepo: auditRepo,
		notifier:  notifier,
		logger:    logger.With().Str("component", "expiry_scheduler").Logger(),
		opts:      opts,
	}
}

// Start launches the scheduler loop. The returned cancel function stops it.
func (s *ExpiryScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *ExpiryScheduler) runOnce(ctx context.Context) {
	s.failStaleJobs(ctx)
	s.sendExpirationReminders(ctx)
}

func (s *ExpiryScheduler) failStaleJobs(ctx context.Context) {
	cutoff := utils.UTCNow().Add(-s.opts.StaleJobAge)
	n, err := s.jobRepo.FailStaleRunning(ctx, cutoff, "abandoned after service restart")
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fail stale bulk upload jobs")
		return
	}
	if n > 0 {
		s.logger.Warn().Int64("jobs", n).Msg("marked stale bulk upload jobs as failed")
	}
}

func (s *ExpiryScheduler) sendExpirationReminders(ctx context.Context) {
	now := utils.UTCNow()
	windowEnd := now.AddDate(0, 0, s.opts.ReminderDays)

	cards, err := s.cardRepo.ListExpiringBetween(ctx, now, windowEnd)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list expiring cards")
		return
	}

	for _, card := range cards {
		if ctx.Err() != nil {
			return
		}
		if card.Patron == nil || card.Library == nil {
			continue
		}
		if !utils.IsTrue(card.Patron.EmailVerified) {
			continue
		}

		sent, err := s.alreadyReminded(ctx, card)
		if err != nil {
			s.logger.Error().Err(err).Uint("card_id", card.ID).Msg("failed to check reminder history")
			continue
		}
		if sent {
			continue
		}

		if err := s.notifier.SendExpirationReminder(card.Library, card.Patron, card); err != nil {
			s.logger.Error().Err(err).Uint("card_id", card.ID).Msg("failed to send expiration reminder")
			continue
		}

		s.recordReminder(ctx, card)
	}
}

// alreadyReminded checks the audit log for a prior reminder since the card
// first entered the reminder window. The description carries the card number
// so renewed cards with a new expiration get reminded again.
func (s *ExpiryScheduler) alreadyReminded(ctx context.Context, card *models.LibraryCard) (bool, error) {
	since := card.ExpirationDate.AddDate(0, 0, -s.opts.ReminderDays)
	action := models.AuditActionExpiryReminderSent
	return s.auditRepo.Exists(ctx, models.AuditLogFilter{
		PatronID:     &card.PatronID,
		Action:       &action,
		CreatedAfter: &since,
	})
}

func (s *ExpiryScheduler) recordReminder(ctx context.Context, card *models.LibraryCard) {
	description := "expiration reminder sent for card " + card.Number
	entry := &models.AuditLog{
		PatronID:    &card.PatronID,
		Action:      models.AuditActionExpiryReminderSent,
		Description: &description,
		Success:     utils.ToPtr(true),
	}
	if err := s.auditRepo.Save(ctx, entry); err != nil {
		s.logger.Error().Err(err).Uint("card_id", card.ID).Msg("failed to record reminder audit entry")
	}
}
