package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"

	"campusmarket/internal/config"
	"campusmarket/internal/models"
	"campusmarket/internal/repositories"
	"campusmarket/internal/services/auth"
)

func main() {
	config.LoadEnv()

	adminEmail := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	adminName := config.GetEnv("ADMIN_NAME", "Marketplace Operator")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" {
		log.Fatal("ADMIN_EMAIL must be set in environment")
	}
	generated := false
	if adminPassword == "" {
		pw, err := auth.GeneratePassword()
		if err != nil {
			log.Fatal("Failed to generate password:", err)
		}
		adminPassword, generated = pw, true
	}

	if err := repositories.InitDB(config.LoadDatabase()); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer func() {
		if sqlDB, err := repositories.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Printf("Failed to close PostgreSQL connection: %v", err)
			}
		}
	}()

	ctx := context.Background()
	operators := repositories.NewOperatorRepository(repositories.DB)

	if _, err := operators.FindByEmail(ctx, adminEmail); err == nil {
		log.Println("Operator already exists")
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		log.Fatal("Failed to look up operator:", err)
	}

	hashedPassword, err := auth.HashPassword(adminPassword)
	if err != nil {
		log.Fatal("Failed to hash password:", err)
	}

	op := &models.Operator{
		Email:        adminEmail,
		Name:         adminName,
		PasswordHash: hashedPassword,
		Role:         models.RoleAdmin,
		Active:       true,
		TokenVersion: 1,
	}
	if err := operators.Create(ctx, op); err != nil {
		log.Fatal("Failed to create operator:", err)
	}

	if generated {
		log.Printf("Generated password for %s: %s", adminEmail, adminPassword)
	}
	log.Printf("Operator %s created (id %s)", adminEmail, op.ID)
}
