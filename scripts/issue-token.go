package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/opentake/multicam-server-go/internal/database"
	"github.com/opentake/multicam-server-go/internal/model"
	"github.com/opentake/multicam-server-go/internal/repository"
	"github.com/opentake/multicam-server-go/internal/util"
)

// Provisions a user: generates an API token, stores its SHA-256 hash in the
// users table, and prints the token once.
//
// Usage: DATABASE_URL=... go run scripts/issue-token.go <display-name>
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/issue-token.go <display-name>\n")
		os.Exit(1)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Fprintf(os.Stderr, "Error: DATABASE_URL is required\n")
		os.Exit(1)
	}

	token, err := util.GenerateToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	db, err := database.Connect(databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	userRepo := repository.NewUserRepository(db.DB)
	user, err := userRepo.Create(context.Background(), model.CreateUserParams{
		ID:           uuid.New().String(),
		DisplayName:  os.Args[1],
		APITokenHash: util.HashToken(token),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("user:  %s (%s)\n", user.ID, user.DisplayName)
	fmt.Printf("token: %s\n", token)
}
