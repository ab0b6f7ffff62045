package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"maildash/backend/internal/auth"
	"maildash/backend/internal/config"
	"maildash/backend/internal/domain"
	"maildash/backend/internal/logger"
	sqlstore "maildash/backend/internal/storage/sql"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: create-admin <email> <password> <username> [super|admin]")
		os.Exit(1)
	}

	email := os.Args[1]
	password := os.Args[2]
	username := os.Args[3]
	role := domain.RoleSuper
	if len(os.Args) >= 5 && os.Args[4] == "admin" {
		role = domain.RoleAdmin
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.Type == "memory" {
		fmt.Println("create-admin requires a persistent database (set MAILDASH_DATABASE_TYPE)")
		os.Exit(1)
	}

	log := logger.NewWithWriter(config.LogConfig{Level: "warn"}, os.Stderr)

	store, err := sqlstore.Open(cfg.Database, log)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	accounts := auth.NewService(store, auth.NewJWTManager(&cfg.JWT), log)
	user, err := accounts.CreateAccount(ctx, auth.RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
	}, role)
	if err != nil {
		log.Error("create admin failed", zap.Error(err))
		fmt.Printf("Failed to create user: %s\n", domain.MessageOf(err))
		os.Exit(1)
	}

	fmt.Printf("Created %s account %s (%s), id=%s\n", user.Role, user.Username, user.Email, user.ID)
}
