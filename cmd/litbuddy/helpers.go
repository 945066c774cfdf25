package main

import (
	"fmt"
	"os"

	litbuddy "github.com/saad-bin-sohan/litbuddy-go"
	"github.com/rs/zerolog"
)

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log realtime diagnostics to stderr")
}

// getClient creates a LitBuddy client from the saved configuration.
func getClient() *litbuddy.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Token == "" {
		fmt.Fprintln(os.Stderr, "No token. Run 'litbuddy login <token> <user-id>' first.")
		os.Exit(1)
	}

	opts := []litbuddy.ClientOption{litbuddy.WithUserID(cfg.Auth.UserID)}
	if cfg.Default.BaseURL != "" {
		opts = append(opts, litbuddy.WithBaseURL(cfg.Default.BaseURL))
	} else if cfg.Default.Environment != "" && cfg.Default.Environment != "production" {
		opts = append(opts, litbuddy.WithEnvironment(litbuddy.Environment(cfg.Default.Environment)))
	}
	if verbose {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		opts = append(opts, litbuddy.WithLogger(logger))
	}

	return litbuddy.NewClient(cfg.Auth.Token, opts...)
}
