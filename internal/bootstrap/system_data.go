package bootstrap

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/internal/infrastructure/database"
	"github.com/procureflow/backend/internal/infrastructure/persistence"
	"github.com/procureflow/backend/pkg/auth"
	"github.com/procureflow/backend/pkg/constants"
	"github.com/procureflow/backend/pkg/utils"
)

// InitializeSystemData ensures the bootstrap admin account exists so a
// fresh deployment can log in and create real users. Runs before the
// server accepts requests.
func InitializeSystemData(db *database.Connection) error {
	log.Println("🔧 Initializing system data...")

	email := os.Getenv("ADMIN_EMAIL")
	if email == "" {
		email = "admin@procureflow.local"
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "ChangeMe123!"
	}

	users := persistence.NewUserRepository(db)
	ctx := context.Background()

	existing, err := users.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to look up admin user: %w", err)
	}
	if existing != nil {
		log.Printf("   ✅ Admin user already exists: %s", email)
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	now := time.Now().UTC()
	admin := &models.User{
		ID:           utils.GenerateID(),
		Name:         "System Administrator",
		Email:        email,
		PasswordHash: hash,
		Role:         constants.RoleAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	log.Printf("   ✅ Admin user created: %s", email)
	return nil
}
