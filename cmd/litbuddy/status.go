package main

import (
	"context"
	"fmt"
	"time"

	litbuddy "github.com/saad-bin-sohan/litbuddy-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and account status",
	Long:  "Display the current configuration, verify the saved token, and fetch chat and notification counts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Print config summary.
		fmt.Println("Configuration:")
		fmt.Printf("  Environment: %s\n", valueOrDefault(cfg.Default.Environment, "(not set)"))
		if cfg.Default.BaseURL != "" {
			fmt.Printf("  Base URL:    %s\n", cfg.Default.BaseURL)
		}

		fmt.Println()
		fmt.Println("Auth:")
		if cfg.Auth.Token != "" {
			fmt.Printf("  Token:   %s\n", maskToken(cfg.Auth.Token))
			fmt.Printf("  User ID: %s\n", valueOrDefault(cfg.Auth.UserID, "(not set)"))
		} else {
			fmt.Println("  Token:   (not set)")
		}

		// If we have credentials, check them live.
		if cfg.Auth.Token == "" {
			return nil
		}

		fmt.Println()
		fmt.Println("Live status:")

		opts := []litbuddy.ClientOption{litbuddy.WithUserID(cfg.Auth.UserID)}
		if cfg.Default.BaseURL != "" {
			opts = append(opts, litbuddy.WithBaseURL(cfg.Default.BaseURL))
		} else if cfg.Default.Environment != "" && cfg.Default.Environment != "production" {
			opts = append(opts, litbuddy.WithEnvironment(litbuddy.Environment(cfg.Default.Environment)))
		}
		client := litbuddy.NewClient(cfg.Auth.Token, opts...)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		chats, err := client.Chats().List(ctx)
		if err != nil {
			fmt.Printf("  Error fetching chats: %v\n", err)
			return nil
		}
		paused := 0
		for _, c := range chats {
			if c.Status.State == litbuddy.StatePaused {
				paused++
			}
		}
		fmt.Printf("  Chats:         %d (%d paused)\n", len(chats), paused)

		groups, err := client.Groups().List(ctx)
		if err != nil {
			fmt.Printf("  Error fetching groups: %v\n", err)
			return nil
		}
		fmt.Printf("  Group chats:   %d\n", len(groups))

		items, err := client.Notifications().List(ctx)
		if err != nil {
			fmt.Printf("  Error fetching notifications: %v\n", err)
			return nil
		}
		unread := 0
		for _, n := range items {
			if !n.Read {
				unread++
			}
		}
		fmt.Printf("  Notifications: %d (%d unread)\n", len(items), unread)

		return nil
	},
}

// maskToken shows the first 8 and last 4 characters of a token.
func maskToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:8] + "..." + token[len(token)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
