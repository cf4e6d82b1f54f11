package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/model"
)

var ErrNotFound = errors.New("not found")

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username, language_code, created_at)
		 VALUES ($1, $2, $3, $4)`,
		u.ID, u.Username, u.LanguageCode, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, language_code, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.LanguageCode, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByUsername", time.Now())()
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, language_code, created_at FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.LanguageCode, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetByUsername: %w", err)
	}
	return u, nil
}

// UpdateLanguage меняет предпочитаемый язык пользователя (код уже валидирован на границе).
func (r *UserRepository) UpdateLanguage(ctx context.Context, id, code string) error {
	defer logger.DeferLogDuration("user.UpdateLanguage", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET language_code = $1 WHERE id = $2`, code, id,
	)
	if err != nil {
		return fmt.Errorf("userRepo.UpdateLanguage: %w", err)
	}
	return nil
}
