package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/database"
	"github.com/stemsi/lms-backend/internal/logger"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	users := repository.NewUserRepository(pool)
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New Admin User ===")

	name := prompt(reader, "Enter Name: ")
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	email := strings.ToLower(prompt(reader, "Enter Email: "))
	if !strings.Contains(email, "@") {
		fmt.Println("Error: a valid email is required")
		return
	}

	if _, err := users.GetByEmail(ctx, email); err == nil {
		fmt.Printf("Error: an account with email %s already exists\n", email)
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		log.Fatal().Err(err).Msg("Failed to check existing account")
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return
	}
	if len(bytePassword) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword(bytePassword, cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	admin := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Role:         model.RoleAdmin,
	}
	if err := users.Create(ctx, admin); err != nil {
		log.Fatal().Err(err).Msg("Failed to create admin")
	}

	fmt.Printf("\nSuccess! Admin '%s' (%s) created with ID: %d\n", admin.Name, admin.Email, admin.ID)
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}
