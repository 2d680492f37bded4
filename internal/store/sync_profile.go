package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"syncademic/internal/apperr"
	"syncademic/internal/profile"
	"syncademic/internal/rules"
	"time"
)

// SyncProfileStore persists sync profiles. Rulesets are stored as JSON text.
type SyncProfileStore struct {
	db *sql.DB
}

func NewSyncProfileStore(db *sql.DB) *SyncProfileStore {
	return &SyncProfileStore{db: db}
}

const profileColumns = `user_id, id, title, schedule_source,
	target_calendar_id, target_provider_account_id, target_email, target_title, target_description,
	status_type, status_message, status_trigger, status_sync_type, status_updated_at,
	ruleset, ruleset_error, created_at, last_successful_sync`

func (s *SyncProfileStore) Create(ctx context.Context, p *profile.SyncProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	ruleset, err := encodeRuleset(p.Ruleset)
	if err != nil {
		return err
	}
	tc := p.TargetCalendar
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sync_profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.ID, p.Title, p.ScheduleSource,
		tc.ID, tc.ProviderAccountID, tc.Email, tc.Title, tc.Description,
		p.Status.Type, p.Status.Message, p.Status.Trigger, p.Status.SyncType, formatTime(p.Status.UpdatedAt),
		ruleset, nullString(p.RulesetError), formatTime(p.CreatedAt), nullTime(p.LastSuccessfulSync),
	)
	if err != nil {
		return fmt.Errorf("create sync profile %s: %w", p.ID, err)
	}
	return nil
}

// Get returns an apperr.SyncProfileNotFound error when the profile does not
// exist for userID.
func (s *SyncProfileStore) Get(ctx context.Context, userID, id string) (*profile.SyncProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM sync_profiles WHERE user_id = ? AND id = ?`, userID, id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.SyncProfileNotFound, "sync profile %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get sync profile %s: %w", id, err)
	}
	return p, nil
}

func (s *SyncProfileStore) UpdateStatus(ctx context.Context, userID, id string, st profile.Status) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	return s.update(ctx, userID, id, "update status",
		`UPDATE sync_profiles SET status_type = ?, status_message = ?, status_trigger = ?, status_sync_type = ?, status_updated_at = ?
		 WHERE user_id = ? AND id = ?`,
		st.Type, st.Message, st.Trigger, st.SyncType, formatTime(st.UpdatedAt), userID, id)
}

func (s *SyncProfileStore) SetLastSuccessfulSync(ctx context.Context, userID, id string, t time.Time) error {
	return s.update(ctx, userID, id, "set last successful sync",
		`UPDATE sync_profiles SET last_successful_sync = ? WHERE user_id = ? AND id = ?`,
		formatTime(t), userID, id)
}

// SetRuleset stores rs and clears any ruleset error.
func (s *SyncProfileStore) SetRuleset(ctx context.Context, userID, id string, rs *rules.Ruleset) error {
	data, err := encodeRuleset(rs)
	if err != nil {
		return err
	}
	return s.update(ctx, userID, id, "set ruleset",
		`UPDATE sync_profiles SET ruleset = ?, ruleset_error = NULL WHERE user_id = ? AND id = ?`,
		data, userID, id)
}

// SetRulesetError records msg and clears any ruleset.
func (s *SyncProfileStore) SetRulesetError(ctx context.Context, userID, id, msg string) error {
	return s.update(ctx, userID, id, "set ruleset error",
		`UPDATE sync_profiles SET ruleset = NULL, ruleset_error = ? WHERE user_id = ? AND id = ?`,
		nullString(msg), userID, id)
}

func (s *SyncProfileStore) Delete(ctx context.Context, userID, id string) error {
	return s.update(ctx, userID, id, "delete",
		`DELETE FROM sync_profiles WHERE user_id = ? AND id = ?`, userID, id)
}

// ListActive returns profiles whose status allows a scheduled sync.
func (s *SyncProfileStore) ListActive(ctx context.Context) ([]profile.SyncProfile, error) {
	return s.list(ctx,
		`SELECT `+profileColumns+` FROM sync_profiles WHERE status_type IN (?, ?, ?) ORDER BY created_at, id`,
		profile.StatusNotStarted, profile.StatusSuccess, profile.StatusFailed)
}

func (s *SyncProfileStore) ListForUser(ctx context.Context, userID string) ([]profile.SyncProfile, error) {
	return s.list(ctx,
		`SELECT `+profileColumns+` FROM sync_profiles WHERE user_id = ? ORDER BY created_at, id`, userID)
}

func (s *SyncProfileStore) update(ctx context.Context, userID, id, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s of sync profile %s: %w", op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s of sync profile %s: %w", op, id, err)
	}
	if n == 0 {
		return apperr.New(apperr.SyncProfileNotFound, "sync profile %s not found for user %s", id, userID)
	}
	return nil
}

func (s *SyncProfileStore) list(ctx context.Context, query string, args ...any) ([]profile.SyncProfile, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sync profiles: %w", err)
	}
	defer rows.Close()

	var out []profile.SyncProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync profile: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*profile.SyncProfile, error) {
	var (
		p                         profile.SyncProfile
		statusUpdated, createdAt  string
		ruleset, rulesetErr, last sql.NullString
	)
	tc := &p.TargetCalendar
	err := row.Scan(&p.UserID, &p.ID, &p.Title, &p.ScheduleSource,
		&tc.ID, &tc.ProviderAccountID, &tc.Email, &tc.Title, &tc.Description,
		&p.Status.Type, &p.Status.Message, &p.Status.Trigger, &p.Status.SyncType, &statusUpdated,
		&ruleset, &rulesetErr, &createdAt, &last)
	if err != nil {
		return nil, err
	}

	if p.Status.UpdatedAt, err = parseTime(statusUpdated); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.LastSuccessfulSync, err = parseNullTime(last); err != nil {
		return nil, err
	}
	p.RulesetError = rulesetErr.String
	if ruleset.Valid {
		rs, err := rules.Parse([]byte(ruleset.String))
		if err != nil {
			// A stored ruleset that no longer validates is surfaced as an
			// error on the profile rather than failing every read.
			p.RulesetError = apperr.Message(err)
		} else {
			p.Ruleset = rs
		}
	}
	return &p, nil
}

func encodeRuleset(rs *rules.Ruleset) (sql.NullString, error) {
	if rs == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(rs)
	if err != nil {
		return sql.NullString{}, apperr.Wrap(apperr.RulesetValidation, err, "encode ruleset")
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
