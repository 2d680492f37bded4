package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"syncademic/internal/apperr"
	"syncademic/internal/calendar"
	"syncademic/internal/eventbus"
	"syncademic/internal/events"
	"syncademic/internal/ics"
	"syncademic/internal/models"
	"syncademic/internal/profile"
	"syncademic/internal/rulegen"
	"syncademic/internal/rules"
	"time"
)

// DefaultMaxSynchronizationsPerDay caps non-forced syncs per user and UTC day.
const DefaultMaxSynchronizationsPerDay = 120

// ProfileRepository is the persistence the engine needs for sync profiles.
type ProfileRepository interface {
	Create(ctx context.Context, p *profile.SyncProfile) error
	Get(ctx context.Context, userID, id string) (*profile.SyncProfile, error)
	UpdateStatus(ctx context.Context, userID, id string, st profile.Status) error
	SetLastSuccessfulSync(ctx context.Context, userID, id string, t time.Time) error
	SetRuleset(ctx context.Context, userID, id string, rs *rules.Ruleset) error
	SetRulesetError(ctx context.Context, userID, id, msg string) error
	Delete(ctx context.Context, userID, id string) error
}

// UserRepository creates users on first sight.
type UserRepository interface {
	Ensure(ctx context.Context, userID string) (bool, error)
}

// RateLimiter reports how many syncs a user completed on a UTC day
// ("" means today).
type RateLimiter interface {
	DailySyncCount(ctx context.Context, userID, day string) (int, error)
}

// ICSService fetches and parses schedule sources.
type ICSService interface {
	URLSource(rawURL string) (*ics.URLSource, error)
	TryFetchAndParse(ctx context.Context, src ics.Source, metadata map[string]string) (ics.Result, error)
	ValidateURL(ctx context.Context, rawURL string, metadata map[string]string) (ics.Result, error)
}

type Deps struct {
	Logger    *slog.Logger
	Profiles  ProfileRepository
	Users     UserRepository
	Limiter   RateLimiter
	ICS       ICSService
	Provider  calendar.Provider
	Bus       eventbus.Publisher
	Generator rulegen.Generator

	MaxSynchronizationsPerDay int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Syncer runs the sync profile lifecycle: create, synchronize, delete.
// It is the only writer of profile status and of the destination events
// tagged with a profile id.
type Syncer struct {
	logger    *slog.Logger
	profiles  ProfileRepository
	users     UserRepository
	limiter   RateLimiter
	ics       ICSService
	provider  calendar.Provider
	bus       eventbus.Publisher
	generator rulegen.Generator
	maxPerDay int
	now       func() time.Time
}

// NewSyncer creates a new Syncer.
func NewSyncer(d Deps) *Syncer {
	s := &Syncer{
		logger:    d.Logger,
		profiles:  d.Profiles,
		users:     d.Users,
		limiter:   d.Limiter,
		ics:       d.ICS,
		provider:  d.Provider,
		bus:       d.Bus,
		generator: d.Generator,
		maxPerDay: d.MaxSynchronizationsPerDay,
		now:       d.Now,
	}
	if s.maxPerDay <= 0 {
		s.maxPerDay = DefaultMaxSynchronizationsPerDay
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.generator == nil {
		s.generator = rulegen.Noop{}
	}
	return s
}

// Synchronize brings the destination calendar in line with the profile's
// feed. Without force, a profile that is busy or being deleted is skipped
// silently and the daily limit is enforced. Failures after the profile is
// marked IN_PROGRESS are recorded on the profile and published as
// SyncFailed rather than returned.
func (s *Syncer) Synchronize(ctx context.Context, userID, syncProfileID string, trigger profile.Trigger, syncType profile.SyncType, force bool) error {
	if !trigger.IsValid() || !syncType.IsValid() {
		return apperr.New(apperr.Validation, "invalid trigger %q or sync type %q", trigger, syncType)
	}
	p, err := s.profiles.Get(ctx, userID, syncProfileID)
	if err != nil {
		return err
	}
	logger := s.logger.With("syncProfileID", p.ID, "userID", userID, "trigger", trigger, "syncType", syncType)

	if !force {
		if !p.Status.Type.CanSync() {
			logger.Info("Sync skipped, profile is not in a syncable state.", "status", p.Status.Type)
			return nil
		}
		count, err := s.limiter.DailySyncCount(ctx, userID, "")
		if err != nil {
			return fmt.Errorf("failed to read daily sync count: %w", err)
		}
		if count >= s.maxPerDay {
			return apperr.New(apperr.DailySyncLimitExceeded, "daily synchronization limit of %d reached", s.maxPerDay)
		}
	}

	if err := s.setStatus(ctx, p, profile.StatusInProgress, "", trigger, syncType); err != nil {
		return err
	}
	logger.Info("Starting sync.")

	mgr, err := s.provider.Manager(ctx, userID, p.TargetCalendar.ProviderAccountID, p.TargetCalendar.ID)
	if err != nil {
		logger.Warn("Could not acquire calendar manager.", "error", err)
		return s.setStatus(ctx, p, profile.StatusFailed, failureMessage(err), trigger, syncType)
	}

	if trace, err := s.runBody(ctx, p, mgr, trigger, syncType); err != nil {
		logger.Error("Sync failed.", "error", err)
		s.syncFailed(ctx, p, trigger, syncType, err, trace)
		return nil
	}

	finished := s.now().UTC()
	if err := s.setStatus(ctx, p, profile.StatusSuccess, "", trigger, syncType); err != nil {
		return err
	}
	if err := s.profiles.SetLastSuccessfulSync(ctx, userID, p.ID, finished); err != nil {
		return err
	}
	s.publish(ctx, events.SyncSucceeded{UserID: userID, SyncProfileID: p.ID, Trigger: trigger, SyncType: syncType})
	logger.Info("Sync finished.")
	return nil
}

// runBody runs the sync body, turning a panic into a Programming error.
// The returned trace is captured where the failure is caught.
func (s *Syncer) runBody(ctx context.Context, p *profile.SyncProfile, mgr calendar.Manager, trigger profile.Trigger, syncType profile.SyncType) (trace string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.New(apperr.Programming, "sync panicked: %v", r)
			trace = traceback(err)
		}
	}()
	if err = s.syncBody(ctx, p, mgr, trigger, syncType); err != nil {
		trace = traceback(err)
	}
	return trace, err
}

func (s *Syncer) syncBody(ctx context.Context, p *profile.SyncProfile, mgr calendar.Manager, trigger profile.Trigger, syncType profile.SyncType) error {
	src, err := s.ics.URLSource(p.ScheduleSource)
	if err != nil {
		return err
	}
	res, err := s.ics.TryFetchAndParse(ctx, src, map[string]string{
		events.MetaSyncProfileID: p.ID,
		events.MetaUserID:        p.UserID,
		events.MetaTrigger:       string(trigger),
		events.MetaSyncType:      string(syncType),
		events.MetaSource:        p.ScheduleSource,
	})
	if err != nil {
		return err
	}

	evs := transform(res.Events, p.Ruleset)
	if len(evs) == 0 {
		s.logger.Info("No events to sync after transformation.", "syncProfileID", p.ID, "fetched", len(res.Events))
		return nil
	}

	switch {
	case trigger == profile.TriggerOnCreate:
		return mgr.CreateEvents(ctx, evs, p.ID)
	case syncType == profile.SyncRegular:
		sep := s.now().UTC()
		var toCreate []models.Event
		for _, ev := range evs {
			if ev.End().After(sep) {
				toCreate = append(toCreate, ev)
			}
		}
		toDelete, err := mgr.GetEventIDsForProfile(ctx, p.ID, calendar.ListOptions{MinEnd: &sep})
		if err != nil {
			return err
		}
		return replace(ctx, mgr, p.ID, toDelete, toCreate)
	case syncType == profile.SyncFull:
		toDelete, err := mgr.GetEventIDsForProfile(ctx, p.ID, calendar.ListOptions{})
		if err != nil {
			return err
		}
		return replace(ctx, mgr, p.ID, toDelete, evs)
	}
	return apperr.New(apperr.Programming, "unhandled sync type %q", syncType)
}

// transform applies the ruleset. Events under a ruleset start out graphite
// so that colors come from the rules only.
func transform(evs []models.Event, rs *rules.Ruleset) []models.Event {
	if rs == nil {
		return evs
	}
	grey := make([]models.Event, len(evs))
	for i, ev := range evs {
		grey[i] = ev.WithColor(models.ColorGraphite)
	}
	return rs.Apply(grey)
}

// replace deletes before creating so the calendar never shows duplicates.
func replace(ctx context.Context, mgr calendar.Manager, syncProfileID string, toDelete []string, toCreate []models.Event) error {
	if len(toDelete) > 0 {
		if err := mgr.DeleteEvents(ctx, toDelete); err != nil {
			return err
		}
	}
	if len(toCreate) > 0 {
		return mgr.CreateEvents(ctx, toCreate, syncProfileID)
	}
	return nil
}

func (s *Syncer) syncFailed(ctx context.Context, p *profile.SyncProfile, trigger profile.Trigger, syncType profile.SyncType, cause error, trace string) {
	if err := s.setStatus(ctx, p, profile.StatusFailed, failureMessage(cause), trigger, syncType); err != nil {
		s.logger.Error("Failed to record sync failure.", "syncProfileID", p.ID, "error", err)
	}
	s.publish(ctx, events.SyncFailed{
		UserID:        p.UserID,
		SyncProfileID: p.ID,
		Trigger:       trigger,
		SyncType:      syncType,
		ErrorType:     string(apperr.KindOf(cause)),
		ErrorMessage:  apperr.Message(cause),
		Traceback:     trace,
	})
}

// Delete removes the profile's events from the destination, then the
// profile. Profiles that are not SUCCESS or FAILED are left alone.
func (s *Syncer) Delete(ctx context.Context, userID, syncProfileID string) error {
	p, err := s.profiles.Get(ctx, userID, syncProfileID)
	if err != nil {
		return err
	}
	logger := s.logger.With("syncProfileID", p.ID, "userID", userID)
	if !p.Status.Type.CanDelete() {
		logger.Info("Delete skipped, profile is not in a deletable state.", "status", p.Status.Type)
		return nil
	}

	if err := s.setStatus(ctx, p, profile.StatusDeleting, "", p.Status.Trigger, p.Status.SyncType); err != nil {
		return err
	}

	mgr, err := s.provider.Manager(ctx, userID, p.TargetCalendar.ProviderAccountID, p.TargetCalendar.ID)
	if err != nil {
		s.deletionFailed(ctx, p, err)
		return nil
	}
	if err := deleteOwned(ctx, mgr, p.ID); err != nil {
		s.deletionFailed(ctx, p, err)
		return nil
	}

	if err := s.profiles.Delete(ctx, userID, p.ID); err != nil {
		return err
	}
	logger.Info("Sync profile deleted.")
	return nil
}

// deleteOwned pages through the profile's events until none are left.
func deleteOwned(ctx context.Context, mgr calendar.Manager, syncProfileID string) error {
	for {
		ids, err := mgr.GetEventIDsForProfile(ctx, syncProfileID, calendar.ListOptions{})
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := mgr.DeleteEvents(ctx, ids); err != nil {
			return err
		}
		if len(ids) < calendar.DefaultListLimit {
			return nil
		}
	}
}

func (s *Syncer) deletionFailed(ctx context.Context, p *profile.SyncProfile, cause error) {
	s.logger.Error("Sync profile deletion failed.", "syncProfileID", p.ID, "userID", p.UserID, "error", cause)
	if err := s.setStatus(ctx, p, profile.StatusDeletionFailed, failureMessage(cause), p.Status.Trigger, p.Status.SyncType); err != nil {
		s.logger.Error("Failed to record deletion failure.", "syncProfileID", p.ID, "error", err)
	}
	s.publish(ctx, events.SyncProfileDeletionFailed{
		UserID:        p.UserID,
		SyncProfileID: p.ID,
		ErrorType:     string(apperr.KindOf(cause)),
		ErrorMessage:  apperr.Message(cause),
	})
}

func (s *Syncer) setStatus(ctx context.Context, p *profile.SyncProfile, t profile.StatusType, msg string, trigger profile.Trigger, syncType profile.SyncType) error {
	st := profile.Status{Type: t, Message: msg, Trigger: trigger, SyncType: syncType, UpdatedAt: s.now().UTC()}
	if err := s.profiles.UpdateStatus(ctx, p.UserID, p.ID, st); err != nil {
		return fmt.Errorf("failed to set status %s: %w", t, err)
	}
	p.Status = st
	return nil
}

// publish logs instead of failing when the bus refuses an event.
func (s *Syncer) publish(ctx context.Context, ev events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Error("Failed to publish event.", "eventType", ev.EventType(), "error", err)
	}
}

func failureMessage(err error) string {
	return fmt.Sprintf("%s: %s", apperr.KindOf(err), apperr.Message(err))
}

// traceback renders the error chain followed by the current stack.
func traceback(err error) string {
	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(&b, "%T: %v\n", e, e)
	}
	b.WriteString("\n")
	b.Write(debug.Stack())
	return b.String()
}
