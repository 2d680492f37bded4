// Package profile holds the SyncProfile aggregate and its status types.
package profile

import (
	"syncademic/internal/apperr"
	"syncademic/internal/rules"
	"time"
	"unicode/utf8"
)

const (
	MinTitleLength = 3
	MaxTitleLength = 50
)

// StatusType is the state of a profile's lifecycle.
type StatusType string

const (
	StatusNotStarted     StatusType = "NOT_STARTED"
	StatusInProgress     StatusType = "IN_PROGRESS"
	StatusSuccess        StatusType = "SUCCESS"
	StatusFailed         StatusType = "FAILED"
	StatusDeleting       StatusType = "DELETING"
	StatusDeletionFailed StatusType = "DELETION_FAILED"
)

// IsActive reports whether the scheduler should pick up the profile.
func (s StatusType) IsActive() bool {
	switch s {
	case StatusNotStarted, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// CanSync reports whether a non-forced synchronization may start.
func (s StatusType) CanSync() bool {
	return s.IsActive()
}

// CanDelete reports whether deletion may start.
func (s StatusType) CanDelete() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Trigger records what started a synchronization.
type Trigger string

const (
	TriggerOnCreate  Trigger = "ON_CREATE"
	TriggerManual    Trigger = "MANUAL"
	TriggerScheduled Trigger = "SCHEDULED"
)

func (t Trigger) IsValid() bool {
	switch t {
	case TriggerOnCreate, TriggerManual, TriggerScheduled:
		return true
	}
	return false
}

// SyncType selects future-only reconciliation or a full replacement.
type SyncType string

const (
	SyncRegular SyncType = "REGULAR"
	SyncFull    SyncType = "FULL"
)

func (t SyncType) IsValid() bool {
	return t == SyncRegular || t == SyncFull
}

// Status is the persisted state of a profile.
type Status struct {
	Type      StatusType
	Message   string
	Trigger   Trigger
	SyncType  SyncType
	UpdatedAt time.Time
}

// TargetCalendar is the destination calendar a profile writes into.
type TargetCalendar struct {
	ID                string
	ProviderAccountID string
	Email             string
	Title             string
	Description       string
}

// SyncProfile maps one ICS source to one destination calendar.
// Ruleset and RulesetError are never both set.
type SyncProfile struct {
	ID                 string
	UserID             string
	Title              string
	ScheduleSource     string
	TargetCalendar     TargetCalendar
	Status             Status
	Ruleset            *rules.Ruleset
	RulesetError       string
	CreatedAt          time.Time
	LastSuccessfulSync *time.Time
}

// ValidateTitle checks the title length bounds.
func ValidateTitle(title string) error {
	if n := utf8.RuneCountInString(title); n < MinTitleLength || n > MaxTitleLength {
		return apperr.New(apperr.Validation, "title must be %d to %d characters, got %d", MinTitleLength, MaxTitleLength, n)
	}
	return nil
}

// Validate checks the profile invariants.
func (p *SyncProfile) Validate() error {
	if p.ID == "" || p.UserID == "" {
		return apperr.New(apperr.Validation, "profile needs an id and a user id")
	}
	if err := ValidateTitle(p.Title); err != nil {
		return err
	}
	if p.ScheduleSource == "" {
		return apperr.New(apperr.Validation, "profile has no schedule source")
	}
	if p.TargetCalendar.ID == "" || p.TargetCalendar.ProviderAccountID == "" {
		return apperr.New(apperr.Validation, "profile has no target calendar")
	}
	if p.Ruleset != nil && p.RulesetError != "" {
		return apperr.New(apperr.Programming, "profile %s has both a ruleset and a ruleset error", p.ID)
	}
	return nil
}
