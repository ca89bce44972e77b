// Package sweep runs the recurring due-trial reminder pass.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/TheoCarouge/epiclegion-s/internal/storage"
	"github.com/TheoCarouge/epiclegion-s/internal/trial"
)

// Messenger is the outbound messaging collaborator. Any failure it reports is
// treated as retryable: the record stays due and is retried next pass.
type Messenger interface {
	// GuildIDs lists the communities known to the platform connection.
	GuildIDs() []string
	// ChannelSendable reports whether the destination resolves and the bot
	// may send there.
	ChannelSendable(guildID, channelID string) bool
	// Send delivers one message to a channel.
	Send(channelID, content string) error
	// MemberDisplay resolves an account to a mention or falls back to a
	// raw-id form; it never fails.
	MemberDisplay(guildID, userID string) string
}

// Sweep walks every guild on a fixed interval, sends one reminder per due
// trial record, and marks each notified. Passes never overlap; a pass runs
// its guild loop to completion.
type Sweep struct {
	repo    *storage.Repository
	manager *trial.Manager
	msg     Messenger

	interval time.Duration
	now      func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a Sweep over the given collaborators.
func New(repo *storage.Repository, manager *trial.Manager, msg Messenger, interval time.Duration) *Sweep {
	return &Sweep{
		repo:     repo,
		manager:  manager,
		msg:      msg,
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start begins the sweep loop. Blocks until the context is cancelled or Stop
// is called; run it in its own goroutine.
func (s *Sweep) Start(ctx context.Context) {
	slog.Info("Starting trial sweep", "interval", s.interval)

	s.wg.Add(1)
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial pass
	s.Pass()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Trial sweep stopped (context cancelled)")
			return
		case <-s.stopChan:
			slog.Info("Trial sweep stopped")
			return
		case <-ticker.C:
			s.Pass()
		}
	}
}

// Stop signals the sweep to stop and waits for the loop to exit.
func (s *Sweep) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// Pass runs one sweep over every known guild. A failure inside one guild is
// logged and does not abort the others.
func (s *Sweep) Pass() {
	for _, guildID := range s.msg.GuildIDs() {
		if err := s.sweepGuild(guildID); err != nil {
			slog.Error("Trial sweep failed for guild", "guildID", guildID, "error", err)
		}
	}
}

// sweepGuild notifies and marks the due records of one guild. Each record's
// send+mark is its own unit of work: a failed send leaves that record due
// without blocking the rest of the batch.
func (s *Sweep) sweepGuild(guildID string) error {
	settings, err := s.repo.GetGuildSettings(guildID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if settings.TrialChannelID == "" {
		return nil
	}
	if !s.msg.ChannelSendable(guildID, settings.TrialChannelID) {
		slog.Debug("Trial channel not sendable, skipping guild", "guildID", guildID)
		return nil
	}

	now := s.now().UTC()
	due, err := s.manager.FetchDue(guildID, now)
	if err != nil {
		return err
	}

	for _, rec := range due {
		var display string
		if rec.Kind == storage.KindMember {
			display = s.msg.MemberDisplay(guildID, rec.UserID)
		} else {
			display = fmt.Sprintf("**%s**", rec.Name)
		}

		content := fmt.Sprintf(
			"🔔 %s n'est plus en période d’essai (14 jours écoulés depuis %s).",
			display, rec.AddedAt.Format("2006-01-02"),
		)
		if err := s.msg.Send(settings.TrialChannelID, content); err != nil {
			slog.Error("Failed to send trial reminder", "guildID", guildID, "key", rec.Key(), "error", err)
			continue
		}
		if err := s.manager.MarkNotified(rec, now); err != nil {
			slog.Error("Failed to mark trial notified", "guildID", guildID, "key", rec.Key(), "error", err)
		}
	}
	return nil
}
