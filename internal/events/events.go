// Package events defines the domain events published on the event bus.
//
// Each event carries an explicit Type tag; the bus dispatches on exact
// tag equality.
package events

import "syncademic/internal/profile"

// Type tags a domain event variant.
type Type string

const (
	TypeIcsFetched                Type = "IcsFetched"
	TypeSyncProfileCreated        Type = "SyncProfileCreated"
	TypeSyncSucceeded             Type = "SyncSucceeded"
	TypeSyncFailed                Type = "SyncFailed"
	TypeSyncProfileDeletionFailed Type = "SyncProfileDeletionFailed"
	TypeRulesetGenerationFailed   Type = "RulesetGenerationFailed"
	TypeSyncProfileCreationFailed Type = "SyncProfileCreationFailed"
	TypeUserCreated               Type = "UserCreated"
)

// Event is implemented by every domain event value.
type Event interface {
	EventType() Type
}

// Metadata keys attached to an IcsFetched event.
const (
	MetaSyncProfileID = "sync_profile_id"
	MetaUserID        = "user_id"
	MetaTrigger       = "trigger"
	MetaSyncType      = "sync_type"
	MetaSource        = "source"
)

// IcsFetched carries the raw feed text right after a successful fetch.
type IcsFetched struct {
	IcsStr   string
	Metadata map[string]string
}

type SyncProfileCreated struct {
	UserID        string
	SyncProfileID string
	Title         string
}

type SyncSucceeded struct {
	UserID        string
	SyncProfileID string
	Trigger       profile.Trigger
	SyncType      profile.SyncType
}

// SyncFailed is published when a sync body fails. ErrorType is a stable
// apperr kind; Traceback is the stack at the point of capture.
type SyncFailed struct {
	UserID        string
	SyncProfileID string
	Trigger       profile.Trigger
	SyncType      profile.SyncType
	ErrorType     string
	ErrorMessage  string
	Traceback     string
}

type SyncProfileDeletionFailed struct {
	UserID        string
	SyncProfileID string
	ErrorType     string
	ErrorMessage  string
}

type RulesetGenerationFailed struct {
	UserID        string
	SyncProfileID string
	ErrorType     string
	ErrorMessage  string
}

type SyncProfileCreationFailed struct {
	UserID       string
	Title        string
	ErrorType    string
	ErrorMessage string
}

type UserCreated struct {
	UserID            string
	ProviderAccountID string
}

func (IcsFetched) EventType() Type                { return TypeIcsFetched }
func (SyncProfileCreated) EventType() Type        { return TypeSyncProfileCreated }
func (SyncSucceeded) EventType() Type             { return TypeSyncSucceeded }
func (SyncFailed) EventType() Type                { return TypeSyncFailed }
func (SyncProfileDeletionFailed) EventType() Type { return TypeSyncProfileDeletionFailed }
func (RulesetGenerationFailed) EventType() Type   { return TypeRulesetGenerationFailed }
func (SyncProfileCreationFailed) EventType() Type { return TypeSyncProfileCreationFailed }
func (UserCreated) EventType() Type               { return TypeUserCreated }

// All lists every event type, for bootstrap checks.
var All = []Type{
	TypeIcsFetched,
	TypeSyncProfileCreated,
	TypeSyncSucceeded,
	TypeSyncFailed,
	TypeSyncProfileDeletionFailed,
	TypeRulesetGenerationFailed,
	TypeSyncProfileCreationFailed,
	TypeUserCreated,
}
