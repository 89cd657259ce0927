package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/internal/infrastructure/database"
	"github.com/procureflow/backend/pkg/constants"
)

// UserRepository is the MySQL implementation of ports.UserRepository.
// It also serves as the identity directory the escalation sweeper
// consults.
type UserRepository struct {
	db *database.Connection
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *database.Connection) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = "id, name, email, password_hash, role, active, created_at, updated_at"

// CreateUser inserts a new user account
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, constants.TableUser, userColumns)

	_, err := exec(ctx, r.db).ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash,
		user.Role, user.Active, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser loads a user by ID, or nil when absent
func (r *UserRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", userColumns, constants.TableUser)
	return r.scanUser(exec(ctx, r.db).QueryRowContext(ctx, query, userID))
}

// GetUserByEmail loads a user by email, or nil when absent
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE email = ?", userColumns, constants.TableUser)
	return r.scanUser(exec(ctx, r.db).QueryRowContext(ctx, query, email))
}

// ListUsers returns all users ordered by name
func (r *UserRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY name ASC", userColumns, constants.TableUser)

	rows, err := exec(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		err := rows.Scan(
			&user.ID, &user.Name, &user.Email, &user.PasswordHash,
			&user.Role, &user.Active, &user.CreatedAt, &user.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// IsActive reports whether the user exists and is active. Unknown users
// are inactive.
func (r *UserRepository) IsActive(ctx context.Context, approverID string) (bool, error) {
	query := fmt.Sprintf("SELECT active FROM %s WHERE id = ?", constants.TableUser)

	var active bool
	err := exec(ctx, r.db).QueryRowContext(ctx, query, approverID).Scan(&active)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to check user %s: %w", approverID, err)
	}
	return active, nil
}

func (r *UserRepository) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash,
		&user.Role, &user.Active, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}
