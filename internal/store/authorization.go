package store

import (
	"context"
	"database/sql"
	"fmt"
	"syncademic/internal/apperr"
	"time"

	"golang.org/x/oauth2"
)

// AuthorizationStore holds OAuth tokens per user and provider account.
type AuthorizationStore struct {
	db *sql.DB
}

func NewAuthorizationStore(db *sql.DB) *AuthorizationStore {
	return &AuthorizationStore{db: db}
}

func (s *AuthorizationStore) GetToken(ctx context.Context, userID, providerAccountID string) (*oauth2.Token, error) {
	tok := &oauth2.Token{}
	var expiry sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, token_type, expiry
		 FROM backend_authorizations WHERE user_id = ? AND provider_account_id = ?`,
		userID, providerAccountID,
	).Scan(&tok.AccessToken, &tok.RefreshToken, &tok.TokenType, &expiry)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.Unauthorized, "no authorization for account %s", providerAccountID)
	}
	if err != nil {
		return nil, fmt.Errorf("get authorization %s/%s: %w", userID, providerAccountID, err)
	}
	exp, err := parseNullTime(expiry)
	if err != nil {
		return nil, err
	}
	if exp != nil {
		tok.Expiry = *exp
	}
	return tok, nil
}

// SaveToken upserts the token. A refreshed token without a refresh token
// keeps the stored one.
func (s *AuthorizationStore) SaveToken(ctx context.Context, userID, providerAccountID, provider string, tok *oauth2.Token) error {
	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		expiry = &tok.Expiry
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backend_authorizations
		   (user_id, provider_account_id, provider, access_token, refresh_token, token_type, expiry, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, provider_account_id) DO UPDATE SET
		   provider = excluded.provider,
		   access_token = excluded.access_token,
		   refresh_token = CASE WHEN excluded.refresh_token = '' THEN refresh_token ELSE excluded.refresh_token END,
		   token_type = excluded.token_type,
		   expiry = excluded.expiry,
		   updated_at = excluded.updated_at`,
		userID, providerAccountID, provider, tok.AccessToken, tok.RefreshToken, tok.TokenType,
		nullTime(expiry), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save authorization %s/%s: %w", userID, providerAccountID, err)
	}
	return nil
}

// ListAccounts returns the provider account ids authorized for userID.
func (s *AuthorizationStore) ListAccounts(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider_account_id FROM backend_authorizations WHERE user_id = ? ORDER BY provider_account_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list authorizations %s: %w", userID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan authorization: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
