package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	litbuddy "github.com/saad-bin-sohan/litbuddy-go"
	"github.com/spf13/cobra"
)

var groupCreateMembers string

func init() {
	rootCmd.AddCommand(groupCmd)
	groupCmd.AddCommand(groupListCmd)
	groupCmd.AddCommand(groupCreateCmd)
	groupCmd.AddCommand(groupMessagesCmd)
	groupCmd.AddCommand(groupSendCmd)
	groupCmd.AddCommand(groupWatchCmd)

	groupCreateCmd.Flags().StringVar(&groupCreateMembers, "members", "", "comma-separated member user ids")
}

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Book club group chat commands",
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your group chats",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		groups, err := client.Groups().List(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if len(groups) == 0 {
			fmt.Println("No group chats found.")
			return nil
		}
		for _, g := range groups {
			fmt.Printf("  %s: %s (%d members)\n", g.ID, g.Name, len(g.Members))
		}
		return nil
	},
}

var groupCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a group chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var members []string
		if groupCreateMembers != "" {
			members = strings.Split(groupCreateMembers, ",")
		}

		g, err := client.Groups().Create(ctx, args[0], members)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Created group %s (%s)\n", g.Name, g.ID)
		return nil
	},
}

var groupMessagesCmd = &cobra.Command{
	Use:   "messages <chat-id>",
	Short: "Show a group chat's message history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		hist, err := client.Groups().History(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if len(hist.Messages) == 0 {
			fmt.Println("No messages yet.")
			return nil
		}
		for _, m := range hist.Messages {
			printMessage(m)
		}
		return nil
	},
}

var groupSendCmd = &cobra.Command{
	Use:   "send <chat-id> <text>",
	Short: "Send a message to a group chat",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		msg, err := client.Groups().SendMessage(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Sent %s\n", msg.ID)
		return nil
	},
}

var groupWatchCmd = &cobra.Command{
	Use:   "watch <chat-id>",
	Short: "Stream a group chat live",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		rt := client.Realtime(nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := rt.Connect(ctx); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		defer rt.Disconnect()

		gc, err := client.OpenGroupConversation(ctx, rt, args[0])
		if err != nil {
			return err
		}
		defer gc.Close(context.Background())

		for _, m := range gc.Messages() {
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), gc.SenderName(m), m.Text)
		}
		gc.OnMessage(func(m litbuddy.Message) {
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), gc.SenderName(m), m.Text)
		})

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return nil
	},
}
