package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dlddu/registry-oauth/internal/domain"
	"github.com/dlddu/registry-oauth/internal/scope"
)

type pgCodeRepository struct {
	q querier
}

func (r *pgCodeRepository) Create(ctx context.Context, code *domain.AuthorizationCode) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO authorization_codes (
			code, client_id, user_id, permissions, redirect_uri, code_challenge,
			token_ttl_seconds, created_at, expires_at
		) VALUES ($1, $2, $3, CAST($4::text AS numeric), $5, $6, $7, $8, $9)
	`,
		code.Code,
		code.ClientID,
		code.UserID,
		code.Permissions.String(),
		code.RedirectURI,
		code.CodeChallenge,
		int64(code.TokenTTL/time.Second),
		code.CreatedAt,
		code.ExpiresAt,
	)
	return err
}

// Take deletes the code and returns the deleted row. A concurrent Take of the
// same code blocks on the row lock and then sees zero rows.
func (r *pgCodeRepository) Take(ctx context.Context, code string) (*domain.AuthorizationCode, error) {
	ac := &domain.AuthorizationCode{}
	var permissions string
	var ttlSeconds int64
	err := r.q.QueryRow(ctx, `
		DELETE FROM authorization_codes
		WHERE code = $1
		RETURNING code, client_id, user_id, permissions::text, redirect_uri, code_challenge,
			token_ttl_seconds, created_at, expires_at
	`, code).Scan(
		&ac.Code,
		&ac.ClientID,
		&ac.UserID,
		&permissions,
		&ac.RedirectURI,
		&ac.CodeChallenge,
		&ttlSeconds,
		&ac.CreatedAt,
		&ac.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}

	ac.TokenTTL = time.Duration(ttlSeconds) * time.Second
	if ac.Permissions, err = scope.ParseDecimal(permissions); err != nil {
		return nil, fmt.Errorf("code permissions: %w", err)
	}
	return ac, nil
}

func (r *pgCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM authorization_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
