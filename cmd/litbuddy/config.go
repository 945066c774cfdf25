package main

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
	litbuddy "github.com/saad-bin-sohan/litbuddy-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage LitBuddy configuration",
	Long:  "View or modify the LitBuddy CLI configuration stored in ~/.litbuddy/config.toml.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration",
	Long:  "Print the saved configuration with the token masked. The raw file lives in ~/.litbuddy/config.toml.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Println("No configuration file found. Run 'litbuddy login <token> <user-id>' to create one.")
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// Never print the full token; config show ends up in terminal
		// scrollback and pastes.
		masked := *cfg
		if masked.Auth.Token != "" {
			masked.Auth.Token = maskToken(masked.Auth.Token)
		}

		data, err := toml.Marshal(masked)
		if err != nil {
			return fmt.Errorf("cannot render config: %w", err)
		}
		fmt.Printf("# %s\n", path)
		fmt.Print(string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value using dot notation.\nExample: litbuddy config set default.base_url https://staging.api.litbuddy.app",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if key == "default.environment" && value != string(litbuddy.Production) && value != string(litbuddy.Staging) {
			return fmt.Errorf("unknown environment %q (valid: %s, %s)", value, litbuddy.Production, litbuddy.Staging)
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := setConfigValue(cfg, key, value); err != nil {
			return err
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		if key == "auth.token" {
			value = maskToken(value)
		}
		fmt.Printf("Set %s = %s\n", key, value)
		return nil
	},
}
