package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"syncademic/internal/apperr"
	"syncademic/internal/models"
	"syncademic/internal/profile"

	"github.com/google/uuid"
)

// StoredEvent is an event held by a MemoryManager.
type StoredEvent struct {
	ID    string
	Event models.Event
	// Tag is the owning profile id, or "" for events created elsewhere.
	Tag string
}

// MemoryManager is an in-memory destination calendar.
type MemoryManager struct {
	mu     sync.Mutex
	logger *slog.Logger
	nextID int
	events []StoredEvent
	ops    []string

	// FailCreate and FailDelete make the next calls fail.
	FailCreate error
	FailDelete error
}

func NewMemoryManager(logger *slog.Logger) *MemoryManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryManager{logger: logger}
}

// Seed inserts an event directly, bypassing the op log.
func (m *MemoryManager) Seed(ev models.Event, tag string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(ev, tag)
}

func (m *MemoryManager) insert(ev models.Event, tag string) string {
	m.nextID++
	id := fmt.Sprintf("evt-%d", m.nextID)
	m.events = append(m.events, StoredEvent{ID: id, Event: ev, Tag: tag})
	return id
}

func (m *MemoryManager) CreateEvents(ctx context.Context, evs []models.Event, syncProfileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "create")
	if err := CheckCreateLimit(len(evs)); err != nil {
		return err
	}
	if m.FailCreate != nil {
		return m.FailCreate
	}
	for _, ev := range evs {
		m.insert(ev, syncProfileID)
	}
	m.logger.Info("Created events in memory calendar.", "count", len(evs), "syncProfileID", syncProfileID)
	return nil
}

func (m *MemoryManager) GetEventIDsForProfile(ctx context.Context, syncProfileID string, opts ListOptions) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "list")

	var ids []string
	for _, se := range m.events {
		if se.Tag != syncProfileID {
			continue
		}
		if opts.MinEnd != nil && !se.Event.End().UTC().After(opts.MinEnd.UTC()) {
			continue
		}
		ids = append(ids, se.ID)
		if len(ids) == opts.EffectiveLimit() {
			break
		}
	}
	return ids, nil
}

func (m *MemoryManager) DeleteEvents(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "delete")
	if m.FailDelete != nil {
		return m.FailDelete
	}

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.events[:0]
	for _, se := range m.events {
		if !drop[se.ID] {
			kept = append(kept, se)
		}
	}
	m.logger.Info("Deleted events from memory calendar.", "requested", len(ids), "deleted", len(m.events)-len(kept))
	m.events = kept
	return nil
}

func (m *MemoryManager) CalendarExists(ctx context.Context) (bool, error) {
	return true, nil
}

// Events returns a snapshot of the stored events.
func (m *MemoryManager) Events() []StoredEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StoredEvent(nil), m.events...)
}

// Tagged returns the stored events owned by syncProfileID.
func (m *MemoryManager) Tagged(syncProfileID string) []StoredEvent {
	var out []StoredEvent
	for _, se := range m.Events() {
		if se.Tag == syncProfileID {
			out = append(out, se)
		}
	}
	return out
}

// Ops returns the calls made so far, in order ("create", "list", "delete").
func (m *MemoryManager) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

// MemoryProvider serves MemoryManagers keyed by calendar id.
type MemoryProvider struct {
	mu        sync.Mutex
	logger    *slog.Logger
	calendars map[string]*MemoryManager
	targets   map[string]profile.TargetCalendar
	// Unauthorized lists provider account ids without credentials.
	Unauthorized map[string]bool
	// ManagerErr, when set, is returned by Manager.
	ManagerErr error
}

func NewMemoryProvider(logger *slog.Logger) *MemoryProvider {
	return &MemoryProvider{
		logger:       logger,
		calendars:    make(map[string]*MemoryManager),
		targets:      make(map[string]profile.TargetCalendar),
		Unauthorized: make(map[string]bool),
	}
}

// AddCalendar registers an existing calendar and returns its manager.
func (p *MemoryProvider) AddCalendar(tc profile.TargetCalendar) *MemoryManager {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := NewMemoryManager(p.logger)
	p.calendars[tc.ID] = m
	p.targets[tc.ID] = tc
	return m
}

// Calendar returns the manager for id, or nil.
func (p *MemoryProvider) Calendar(id string) *MemoryManager {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calendars[id]
}

func (p *MemoryProvider) Manager(ctx context.Context, userID, providerAccountID, calendarID string) (Manager, error) {
	if p.ManagerErr != nil {
		return nil, p.ManagerErr
	}
	if p.Unauthorized[providerAccountID] {
		return nil, apperr.New(apperr.Unauthorized, "account %s is not authorized", providerAccountID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.calendars[calendarID]
	if !ok {
		// Unknown calendars are created on demand so dry runs work against
		// any profile.
		m = NewMemoryManager(p.logger)
		p.calendars[calendarID] = m
		p.targets[calendarID] = profile.TargetCalendar{ID: calendarID, ProviderAccountID: providerAccountID}
	}
	return m, nil
}

func (p *MemoryProvider) IsAuthorized(ctx context.Context, userID, providerAccountID string) (bool, error) {
	return !p.Unauthorized[providerAccountID], nil
}

func (p *MemoryProvider) ListCalendars(ctx context.Context, userID, providerAccountID string) ([]profile.TargetCalendar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []profile.TargetCalendar
	for _, tc := range p.targets {
		if tc.ProviderAccountID == providerAccountID {
			out = append(out, tc)
		}
	}
	return out, nil
}

func (p *MemoryProvider) CreateCalendar(ctx context.Context, userID, providerAccountID string, nc NewCalendar) (profile.TargetCalendar, error) {
	tc := profile.TargetCalendar{
		ID:                uuid.NewString() + "@memory",
		ProviderAccountID: providerAccountID,
		Title:             nc.Title,
		Description:       nc.Description,
	}
	p.AddCalendar(tc)
	return tc, nil
}
