package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"onboardingbot/internal/entities"
)

type AdminRepository struct {
	db *pgxpool.Pool
}

func NewAdminRepository(db *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) Create(ctx context.Context, admin *entities.Admin) error {
	_, err := r.db.Exec(ctx,
		"INSERT INTO admins (username, password_hash, role) VALUES ($1, $2, $3)",
		admin.Username, admin.PasswordHash, admin.Role)
	return err
}

func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*entities.Admin, error) {
	var admin entities.Admin
	err := r.db.QueryRow(ctx,
		"SELECT id, username, password_hash, role FROM admins WHERE username = $1",
		username).Scan(&admin.ID, &admin.Username, &admin.PasswordHash, &admin.Role)

	if err == pgx.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}
	return &admin, nil
}
