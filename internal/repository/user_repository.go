package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dlddu/registry-oauth/internal/domain"
)

type pgUserRepository struct {
	q querier
}

func (r *pgUserRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO users (id, name, picture, developer_enrolled, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Name, user.Picture, user.DeveloperEnrolled, user.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", user.ID, ErrAlreadyExists)
	}
	return err
}

func (r *pgUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user := &domain.User{}
	err := r.q.QueryRow(ctx, `
		SELECT id, name, picture, developer_enrolled, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.Picture, &user.DeveloperEnrolled, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *pgUserRepository) SetDeveloperEnrolled(ctx context.Context, id string, enrolled bool) error {
	tag, err := r.q.Exec(ctx, `UPDATE users SET developer_enrolled = $2 WHERE id = $1`, id, enrolled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
