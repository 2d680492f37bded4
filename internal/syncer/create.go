package syncer

import (
	"context"
	"syncademic/internal/apperr"
	"syncademic/internal/calendar"
	"syncademic/internal/events"
	"syncademic/internal/models"
	"syncademic/internal/profile"

	"github.com/google/uuid"
)

// TargetRequest selects the destination calendar of a new profile: either
// an existing calendar by CalendarID, or a new one described by New.
type TargetRequest struct {
	ProviderAccountID string
	CalendarID        string
	New               *calendar.NewCalendar
}

type CreateRequest struct {
	Title          string
	ScheduleSource string
	Target         TargetRequest
}

// Create validates the request, persists a NOT_STARTED profile, generates a
// ruleset and runs the first synchronization. Failures before the profile
// is stored publish SyncProfileCreationFailed; later failures are recorded
// on the profile and do not undo creation.
func (s *Syncer) Create(ctx context.Context, userID string, req CreateRequest) (*profile.SyncProfile, error) {
	p, evs, err := s.createProfile(ctx, userID, req)
	if err != nil {
		s.logger.Warn("Sync profile creation failed.", "userID", userID, "title", req.Title, "error", err)
		s.publish(ctx, events.SyncProfileCreationFailed{
			UserID:       userID,
			Title:        req.Title,
			ErrorType:    string(apperr.KindOf(err)),
			ErrorMessage: apperr.Message(err),
		})
		return nil, err
	}

	s.generateRuleset(ctx, p, evs)

	if err := s.Synchronize(ctx, userID, p.ID, profile.TriggerOnCreate, profile.SyncRegular, false); err != nil {
		s.logger.Warn("Initial sync did not run.", "syncProfileID", p.ID, "error", err)
	}

	if fresh, err := s.profiles.Get(ctx, userID, p.ID); err == nil {
		p = fresh
	}
	return p, nil
}

func (s *Syncer) createProfile(ctx context.Context, userID string, req CreateRequest) (*profile.SyncProfile, []models.Event, error) {
	if err := profile.ValidateTitle(req.Title); err != nil {
		return nil, nil, err
	}
	acc := req.Target.ProviderAccountID
	if acc == "" {
		return nil, nil, apperr.New(apperr.Validation, "target calendar needs a provider account")
	}
	if req.Target.New == nil && req.Target.CalendarID == "" {
		return nil, nil, apperr.New(apperr.Validation, "either an existing calendar id or a new calendar is required")
	}

	ok, err := s.provider.IsAuthorized(ctx, userID, acc)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, apperr.New(apperr.Unauthorized, "account %s is not authorized", acc)
	}

	res, err := s.ics.ValidateURL(ctx, req.ScheduleSource, map[string]string{
		events.MetaUserID: userID,
		events.MetaSource: req.ScheduleSource,
	})
	if err != nil {
		return nil, nil, err
	}

	id := uuid.NewString()

	var target profile.TargetCalendar
	if req.Target.New != nil {
		target, err = s.provider.CreateCalendar(ctx, userID, acc, *req.Target.New)
	} else {
		var cals []profile.TargetCalendar
		cals, err = s.provider.ListCalendars(ctx, userID, acc)
		if err == nil {
			target, err = calendar.FindCalendar(cals, req.Target.CalendarID)
		}
	}
	if err != nil {
		return nil, nil, err
	}
	if target.ProviderAccountID == "" {
		target.ProviderAccountID = acc
	}

	if _, err := s.EnsureUser(ctx, userID, acc); err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	p := &profile.SyncProfile{
		ID:             id,
		UserID:         userID,
		Title:          req.Title,
		ScheduleSource: req.ScheduleSource,
		TargetCalendar: target,
		Status:         profile.Status{Type: profile.StatusNotStarted, UpdatedAt: now},
		CreatedAt:      now,
	}
	if err := s.profiles.Create(ctx, p); err != nil {
		return nil, nil, err
	}
	s.logger.Info("Sync profile created.", "syncProfileID", id, "userID", userID, "calendarID", target.ID)
	s.publish(ctx, events.SyncProfileCreated{UserID: userID, SyncProfileID: id, Title: p.Title})
	return p, res.Events, nil
}

// generateRuleset stores the generator's ruleset, or its error, on the
// profile. It never fails the caller.
func (s *Syncer) generateRuleset(ctx context.Context, p *profile.SyncProfile, evs []models.Event) {
	rs, err := s.generator.Generate(ctx, evs)
	if err == nil && rs == nil {
		return
	}
	if err == nil {
		err = s.profiles.SetRuleset(ctx, p.UserID, p.ID, rs)
		if err == nil {
			p.Ruleset = rs
			return
		}
	}
	if !apperr.Is(err, apperr.RulesetGeneration) && !apperr.Is(err, apperr.RulesetValidation) {
		err = apperr.Wrap(apperr.RulesetGeneration, err, "ruleset generation failed")
	}

	s.logger.Warn("Ruleset generation failed.", "syncProfileID", p.ID, "error", err)
	if serr := s.profiles.SetRulesetError(ctx, p.UserID, p.ID, apperr.Message(err)); serr != nil {
		s.logger.Error("Failed to record ruleset error.", "syncProfileID", p.ID, "error", serr)
	}
	p.RulesetError = apperr.Message(err)
	s.publish(ctx, events.RulesetGenerationFailed{
		UserID:        p.UserID,
		SyncProfileID: p.ID,
		ErrorType:     string(apperr.KindOf(err)),
		ErrorMessage:  apperr.Message(err),
	})
}

// EnsureUser creates the user on first sight and announces it.
func (s *Syncer) EnsureUser(ctx context.Context, userID, providerAccountID string) (bool, error) {
	created, err := s.users.Ensure(ctx, userID)
	if err != nil {
		return false, err
	}
	if created {
		s.logger.Info("User created.", "userID", userID)
		s.publish(ctx, events.UserCreated{UserID: userID, ProviderAccountID: providerAccountID})
	}
	return created, nil
}
