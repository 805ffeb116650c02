package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dlddu/registry-oauth/internal/domain"
	"github.com/dlddu/registry-oauth/internal/scope"
)

type pgClientRepository struct {
	q querier
}

// Create creates a new client in the database
func (r *pgClientRepository) Create(ctx context.Context, client *domain.Client) error {
	query := `
		INSERT INTO clients (
			client_id, name, icon, description, redirect_uris, secret_hash,
			permissions, trusted, quota, current_users, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), CAST($7::text AS numeric), $8, $9, $10, $11, $12)
	`

	_, err := r.q.Exec(
		ctx,
		query,
		client.ClientID,
		client.Name,
		client.Icon,
		client.Description,
		client.RedirectURIs,
		client.SecretHash,
		client.Permissions.String(),
		client.Trusted,
		client.Quota,
		client.CurrentUsers,
		client.CreatedAt,
		client.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("client %s: %w", client.ClientID, ErrAlreadyExists)
	}
	return err
}

// GetByClientID retrieves a client by its client_id
func (r *pgClientRepository) GetByClientID(ctx context.Context, clientID string) (*domain.Client, error) {
	if clientID == "" {
		return nil, ErrClientNotFound
	}

	query := `
		SELECT
			client_id, name, icon, description, redirect_uris, COALESCE(secret_hash, ''),
			permissions::text, trusted, quota, current_users, created_at, updated_at
		FROM clients
		WHERE client_id = $1
	`

	client := &domain.Client{}
	var permissions string
	err := r.q.QueryRow(ctx, query, clientID).Scan(
		&client.ClientID,
		&client.Name,
		&client.Icon,
		&client.Description,
		&client.RedirectURIs,
		&client.SecretHash,
		&permissions,
		&client.Trusted,
		&client.Quota,
		&client.CurrentUsers,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}

	if client.Permissions, err = scope.ParseDecimal(permissions); err != nil {
		return nil, fmt.Errorf("client %s permissions: %w", clientID, err)
	}
	return client, nil
}

// IncrementUsers takes one quota slot. The row lock taken by the UPDATE
// serializes concurrent first issuances for the same client.
func (r *pgClientRepository) IncrementUsers(ctx context.Context, clientID string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE clients
		SET current_users = current_users + 1, updated_at = now()
		WHERE client_id = $1 AND current_users < quota
	`, clientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clients WHERE client_id = $1)`, clientID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrClientNotFound
	}
	return ErrQuotaExceeded
}

// DecrementUsers releases n quota slots, never going below zero
func (r *pgClientRepository) DecrementUsers(ctx context.Context, clientID string, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := r.q.Exec(ctx, `
		UPDATE clients
		SET current_users = GREATEST(current_users - $2, 0), updated_at = now()
		WHERE client_id = $1
	`, clientID, n)
	return err
}
