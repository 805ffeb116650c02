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

const tokenColumns = `token_id, user_id, client_id, client_name, permissions::text, secret_digest, expiry, created_at, updated_at`

type pgTokenRepository struct {
	q querier
}

func (r *pgTokenRepository) Create(ctx context.Context, token *domain.Token) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO tokens (
			token_id, user_id, client_id, client_name, permissions, secret_digest,
			expiry, created_at, updated_at
		) VALUES ($1, $2, $3, $4, CAST($5::text AS numeric), $6, $7, $8, $9)
	`,
		token.TokenID,
		token.UserID,
		token.ClientID,
		token.ClientName,
		token.Permissions.String(),
		token.SecretDigest,
		token.Expiry,
		token.CreatedAt,
		token.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("token for user %s and client %s: %w", token.UserID, token.ClientID, ErrConflict)
	}
	return err
}

func (r *pgTokenRepository) GetByUserClient(ctx context.Context, userID, clientID string) (*domain.Token, error) {
	row := r.q.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE user_id = $1 AND client_id = $2 FOR UPDATE`, userID, clientID)
	return scanToken(row)
}

func (r *pgTokenRepository) GetByDigest(ctx context.Context, digest string) (*domain.Token, error) {
	row := r.q.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE secret_digest = $1`, digest)
	return scanToken(row)
}

func (r *pgTokenRepository) Update(ctx context.Context, token *domain.Token) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE tokens
		SET secret_digest = $2, permissions = CAST($3::text AS numeric), client_name = $4,
			expiry = $5, updated_at = $6
		WHERE token_id = $1
	`,
		token.TokenID,
		token.SecretDigest,
		token.Permissions.String(),
		token.ClientName,
		token.Expiry,
		token.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (r *pgTokenRepository) Delete(ctx context.Context, tokenID string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM tokens WHERE token_id = $1`, tokenID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (r *pgTokenRepository) DeleteByUser(ctx context.Context, userID string) ([]*domain.Token, error) {
	rows, err := r.q.Query(ctx, `DELETE FROM tokens WHERE user_id = $1 RETURNING `+tokenColumns, userID)
	if err != nil {
		return nil, err
	}
	return collectTokens(rows)
}

func (r *pgTokenRepository) DeleteExpired(ctx context.Context, now time.Time) ([]*domain.Token, error) {
	rows, err := r.q.Query(ctx, `DELETE FROM tokens WHERE expiry <= $1 RETURNING `+tokenColumns, now)
	if err != nil {
		return nil, err
	}
	return collectTokens(rows)
}

func collectTokens(rows pgx.Rows) ([]*domain.Token, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Token, error) {
		return scanToken(row)
	})
}

func scanToken(row pgx.Row) (*domain.Token, error) {
	t := &domain.Token{}
	var permissions string
	err := row.Scan(
		&t.TokenID,
		&t.UserID,
		&t.ClientID,
		&t.ClientName,
		&permissions,
		&t.SecretDigest,
		&t.Expiry,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if t.Permissions, err = scope.ParseDecimal(permissions); err != nil {
		return nil, fmt.Errorf("token %s permissions: %w", t.TokenID, err)
	}
	return t, nil
}
