package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/onnwee/tank-queue/crypto"
)

var (
	sealer     crypto.Sealer
	sealerOnce sync.Once
	sealerErr  error
)

// getSealer lazily builds the token sealer from ENCRYPTION_KEY. A nil sealer with a nil
// error means tokens are stored in plaintext.
func getSealer() (crypto.Sealer, error) {
	sealerOnce.Do(func() {
		key := os.Getenv("ENCRYPTION_KEY")
		if key == "" {
			slog.Warn("ENCRYPTION_KEY not set, OAuth tokens are stored in plaintext", slog.String("component", "db_encryption"))
			return
		}
		s, err := crypto.NewAESSealer(key)
		if err != nil {
			sealerErr = fmt.Errorf("failed to initialize encryption: %w", err)
			slog.Error("encryption initialization failed", slog.Any("err", sealerErr), slog.String("component", "db_encryption"))
			return
		}
		sealer = s
	})
	return sealer, sealerErr
}

// OAuthToken is one row of oauth_tokens.
type OAuthToken struct {
	Provider     string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        string
}

// UpsertOAuthToken stores or replaces the token for provider, sealing both secrets when
// ENCRYPTION_KEY is configured.
func (d *DB) UpsertOAuthToken(ctx context.Context, tok OAuthToken) error {
	s, err := getSealer()
	if err != nil {
		return fmt.Errorf("get sealer: %w", err)
	}
	version, keyID := 0, ""
	access, refresh := tok.AccessToken, tok.RefreshToken
	if s != nil {
		version, keyID = 1, s.KeyID()
		if access, err = s.Seal(tok.AccessToken, tok.Provider); err != nil {
			return fmt.Errorf("seal access token: %w", err)
		}
		if refresh, err = s.Seal(tok.RefreshToken, tok.Provider); err != nil {
			return fmt.Errorf("seal refresh token: %w", err)
		}
	}
	q := `INSERT INTO oauth_tokens(provider, access_token, refresh_token, expires_at, scope, encryption_version, encryption_key_id, updated_at)
		  VALUES($1,$2,$3,$4,$5,$6,$7,CURRENT_TIMESTAMP)
		  ON CONFLICT(provider) DO UPDATE SET
		    access_token=excluded.access_token,
		    refresh_token=excluded.refresh_token,
		    expires_at=excluded.expires_at,
		    scope=excluded.scope,
		    encryption_version=excluded.encryption_version,
		    encryption_key_id=excluded.encryption_key_id,
		    updated_at=CURRENT_TIMESTAMP`
	_, err = d.ExecContext(ctx, d.Rebind(q), tok.Provider, access, refresh, tok.Expiry.UTC(), tok.Scope, version, keyID)
	return err
}

// GetOAuthToken loads the token for provider. A missing row yields a zero token and nil
// error. Rows written before encryption was enabled are read as plaintext.
func (d *DB) GetOAuthToken(ctx context.Context, provider string) (OAuthToken, error) {
	tok := OAuthToken{Provider: provider}
	var (
		version int
		scope   sql.NullString
		expiry  sql.NullTime
	)
	row := d.QueryRowContext(ctx, d.Rebind(
		`SELECT COALESCE(access_token,''), COALESCE(refresh_token,''), expires_at, scope, COALESCE(encryption_version, 0)
		 FROM oauth_tokens WHERE provider = $1`), provider)
	err := row.Scan(&tok.AccessToken, &tok.RefreshToken, &expiry, &scope, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return OAuthToken{Provider: provider}, nil
	}
	if err != nil {
		return OAuthToken{}, err
	}
	tok.Scope = scope.String
	if expiry.Valid {
		tok.Expiry = expiry.Time
	}
	if version == 0 {
		return tok, nil
	}
	s, err := getSealer()
	if err != nil {
		return OAuthToken{}, fmt.Errorf("get sealer: %w", err)
	}
	if s == nil {
		return OAuthToken{}, errors.New("token is encrypted but ENCRYPTION_KEY not configured")
	}
	if tok.AccessToken, err = s.Open(tok.AccessToken, provider); err != nil {
		return OAuthToken{}, fmt.Errorf("open access token: %w", err)
	}
	if tok.RefreshToken, err = s.Open(tok.RefreshToken, provider); err != nil {
		return OAuthToken{}, fmt.Errorf("open refresh token: %w", err)
	}
	return tok, nil
}

// PlaintextProviders lists providers whose tokens were stored before encryption was
// enabled.
func (d *DB) PlaintextProviders(ctx context.Context) ([]string, error) {
	rows, err := d.QueryContext(ctx, `SELECT provider FROM oauth_tokens WHERE COALESCE(encryption_version, 0) = 0 ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("query plaintext tokens: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SealPlaintextTokens encrypts every plaintext row with s, one transaction per row. It
// returns the providers it sealed; rows sealed concurrently by another writer are skipped.
func (d *DB) SealPlaintextTokens(ctx context.Context, s crypto.Sealer) ([]string, error) {
	providers, err := d.PlaintextProviders(ctx)
	if err != nil {
		return nil, err
	}
	var sealed []string
	for _, p := range providers {
		ok, err := d.sealRow(ctx, s, p)
		if err != nil {
			return sealed, fmt.Errorf("seal %s: %w", p, err)
		}
		if ok {
			sealed = append(sealed, p)
		}
	}
	return sealed, nil
}

func (d *DB) sealRow(ctx context.Context, s crypto.Sealer, provider string) (bool, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var access, refresh string
	err = tx.QueryRowContext(ctx, d.Rebind(
		`SELECT COALESCE(access_token,''), COALESCE(refresh_token,'') FROM oauth_tokens
		 WHERE provider = $1 AND COALESCE(encryption_version, 0) = 0`), provider).Scan(&access, &refresh)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if access, err = s.Seal(access, provider); err != nil {
		return false, fmt.Errorf("seal access token: %w", err)
	}
	if refresh, err = s.Seal(refresh, provider); err != nil {
		return false, fmt.Errorf("seal refresh token: %w", err)
	}
	if _, err := tx.ExecContext(ctx, d.Rebind(
		`UPDATE oauth_tokens SET access_token=$1, refresh_token=$2, encryption_version=1, encryption_key_id=$3, updated_at=CURRENT_TIMESTAMP
		 WHERE provider = $4 AND COALESCE(encryption_version, 0) = 0`), access, refresh, s.KeyID(), provider); err != nil {
		return false, fmt.Errorf("update token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}
