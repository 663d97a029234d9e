// Command seed creates portal accounts from a YAML file. Users already
// present (matched by email) are left untouched, so it can be re-run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/application/service"
	"github.com/garyjia/expense-portal/internal/config"
	"github.com/garyjia/expense-portal/internal/container"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/pkg/utils"
)

type seedUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
	// Manager is the email of a user listed earlier or already stored
	Manager string `yaml:"manager"`
}

type seedFile struct {
	Users []seedUser `yaml:"users"`
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	usersPath := flag.String("users", "configs/users.yaml", "path to the users file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: "stdout",
		Format:     cfg.Logger.Format,
		Service:    "expense-portal",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	users, err := loadUsers(*usersPath)
	if err != nil {
		logger.Fatal("Failed to read users file", zap.Error(err))
	}

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}
	defer c.Close()

	created, err := seed(ctx, c.Repositories().User, users, logger)
	if err != nil {
		logger.Error("Seeding stopped", zap.Error(err), zap.Int("created", created))
		return
	}
	logger.Info("Seeding finished", zap.Int("created", created), zap.Int("listed", len(users)))
}

func loadUsers(path string) ([]seedUser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return file.Users, nil
}

func seed(ctx context.Context, repo port.UserRepository, users []seedUser, logger *zap.Logger) (int, error) {
	created := 0
	for _, su := range users {
		email := strings.ToLower(strings.TrimSpace(su.Email))
		if err := utils.ValidateEmail(email); err != nil {
			return created, err
		}
		role := entity.Role(su.Role)
		if !role.IsValid() {
			return created, fmt.Errorf("%s: unknown role %q", email, su.Role)
		}

		existing, err := repo.GetByEmail(ctx, email)
		if err != nil {
			return created, err
		}
		if existing != nil {
			logger.Info("User exists, skipping", zap.String("email", email))
			continue
		}

		if err := utils.ValidatePassword(su.Password); err != nil {
			return created, fmt.Errorf("%s: %w", email, err)
		}
		hash, err := service.HashPassword(su.Password)
		if err != nil {
			return created, err
		}

		user := &entity.User{
			Name:         utils.SanitizeString(su.Name),
			Email:        email,
			PasswordHash: hash,
			Role:         role,
		}
		if su.Manager != "" {
			manager, err := repo.GetByEmail(ctx, strings.ToLower(su.Manager))
			if err != nil {
				return created, err
			}
			if manager == nil {
				return created, fmt.Errorf("%s: manager %s not found", email, su.Manager)
			}
			user.ManagerID = &manager.ID
		}

		if err := repo.Create(ctx, user); err != nil {
			return created, fmt.Errorf("create %s: %w", email, err)
		}
		created++
		logger.Info("User created", zap.String("email", email), zap.String("role", string(role)))
	}
	return created, nil
}
