package main

import (
	"context"
	"fmt"
	"time"

	litbuddy "github.com/saad-bin-sohan/litbuddy-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <token> <user-id>",
	Short: "Save credentials and verify them",
	Long:  "Store the API token and user id in ~/.litbuddy/config.toml, then verify them with a test request.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, userID := args[0], args[1]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Auth.Token = token
		cfg.Auth.UserID = userID
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		opts := []litbuddy.ClientOption{litbuddy.WithUserID(userID)}
		if cfg.Default.BaseURL != "" {
			opts = append(opts, litbuddy.WithBaseURL(cfg.Default.BaseURL))
		}
		client := litbuddy.NewClient(token, opts...)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		chats, err := client.Chats().List(ctx)
		if err != nil {
			return fmt.Errorf("credentials saved but verification failed: %w", err)
		}

		fmt.Printf("Logged in as %s (%d chats)\n", userID, len(chats))
		return nil
	},
}
