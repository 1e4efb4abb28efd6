package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"matchcrawl/pkg/auth"
	"matchcrawl/pkg/config"
	"matchcrawl/pkg/logger"
	"matchcrawl/pkg/store"
)

// statusCmd reports crawl progress from the persisted state
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show crawl progress from the local database",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	users, err := store.Open(cfg.DBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open user store: %v\n", err)
		os.Exit(1)
	}
	defer users.Close()

	ctx := context.Background()
	total, err := users.CountUsers(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to count users: %v\n", err)
		os.Exit(1)
	}
	withProfile, err := users.CountUsersWithProfile(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to count profiles: %v\n", err)
		os.Exit(1)
	}

	bundle := auth.NewFileStore(cfg.TokenPath(), logger.GetLogger()).Load()

	fmt.Printf("Database:        %s\n", cfg.DBPath())
	fmt.Printf("Users:           %d\n", total)
	fmt.Printf("With profile:    %d\n", withProfile)
	fmt.Printf("Awaiting:        %d\n", total-withProfile)
	if bundle.Empty() {
		fmt.Println("Credentials:     not configured (run 'matchcrawl auth login')")
	} else {
		fmt.Println("Credentials:     present")
	}
}
