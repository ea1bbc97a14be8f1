package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/utils"
)

// UserRepo reads and writes the `users` table. Providers additionally get
// a provider_profiles row on registration.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id, email, name, password_hash, role, lat, lng, rating, rating_count, is_active, created_at, updated_at"

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		lat, lng sql.NullFloat64
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &lat, &lng,
		&u.Rating, &u.RatingCount, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Location = pointPtr(lat, lng)
	return &u, nil
}

// CreateUser inserts the user and returns its ID.
func (r *UserRepo) CreateUser(ctx context.Context, email, name, password string, role model.Role, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (email, name, password_hash, role) VALUES (?,?,?,?)",
		email, strings.TrimSpace(name), hash, role)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if role == model.RoleProvider {
		if _, err := tx.ExecContext(ctx, "INSERT INTO provider_profiles (user_id) VALUES (?)", id); err != nil {
			return 0, fmt.Errorf("create provider profile: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetUserByEmail fetches a user by normalized email.
func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, id uint64) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

func (r *UserRepo) UpdateUserLocation(ctx context.Context, id uint64, p model.GeoPoint) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET lat=?, lng=? WHERE id=?", p.Lat, p.Lng, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRating stores a recomputed rating average.
func (r *UserRepo) SetRating(ctx context.Context, id uint64, avg float64, count int) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET rating=?, rating_count=? WHERE id=?", avg, count, id)
	return err
}
