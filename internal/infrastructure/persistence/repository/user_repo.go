package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/pkg/database"
	"go.uber.org/zap"
)

const userColumns = `id, name, email, password_hash, role, manager_id, created_at, updated_at`

// UserRepository implements port.UserRepository
type UserRepository struct {
	base
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		base:   base{db: db},
		logger: logger,
	}
}

// Create inserts a user. Emails are stored lower-cased.
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	now := time.Now().UTC()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	result, err := r.conn(ctx).ExecContext(ctx, `
		INSERT INTO users (name, email, password_hash, role, manager_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		user.Name,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		nullInt64(user.ManagerID),
		now,
		now,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Email, port.ErrDuplicate)
		}
		r.logger.Error("Failed to create user", zap.String("email", user.Email), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	row := r.conn(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return r.scanOne(row, zap.Int64("id", id))
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := r.conn(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return r.scanOne(row, zap.String("email", email))
}

// ListByManager returns the direct reports of managerID
func (r *UserRepository) ListByManager(ctx context.Context, managerID int64) ([]*entity.User, error) {
	rows, err := r.conn(ctx).QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE manager_id = ? ORDER BY id`, managerID)
	if err != nil {
		r.logger.Error("Failed to list team", zap.Int64("manager_id", managerID), zap.Error(err))
		return nil, fmt.Errorf("failed to list team: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) scanOne(row *sql.Row, field zap.Field) (*entity.User, error) {
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", field, zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func scanUser(s scanner) (*entity.User, error) {
	var user entity.User
	var role string
	var managerID sql.NullInt64

	if err := s.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&role,
		&managerID,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	user.Role = entity.Role(role)
	user.ManagerID = int64Ptr(managerID)
	return &user, nil
}

// Verify interface compliance
var _ port.UserRepository = (*UserRepository)(nil)
