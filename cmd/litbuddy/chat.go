package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	litbuddy "github.com/saad-bin-sohan/litbuddy-go"
	"github.com/spf13/cobra"
)

var (
	chatListJSON     bool
	chatMessagesJSON bool
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.AddCommand(chatListCmd)
	chatCmd.AddCommand(chatMessagesCmd)
	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatPauseCmd)
	chatCmd.AddCommand(chatResumeCmd)
	chatCmd.AddCommand(chatWatchCmd)

	chatListCmd.Flags().BoolVar(&chatListJSON, "json", false, "output raw JSON")
	chatMessagesCmd.Flags().BoolVar(&chatMessagesJSON, "json", false, "output raw JSON")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "1:1 chat commands",
	Long:  "List chats, read history, send messages, and pause or resume conversations.",
}

// ============================================================================
// chat list
// ============================================================================

var chatListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your chats",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		chats, err := client.Chats().List(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if len(chats) == 0 {
			fmt.Println("No chats found.")
			return nil
		}

		for _, c := range chats {
			partner := "?"
			for _, p := range c.Participants {
				if p.ID != client.UserID() {
					partner = p.Username
					break
				}
			}
			state := ""
			if c.Status.State == litbuddy.StatePaused {
				state = " [paused]"
			}
			last := ""
			if c.LastMessage != nil {
				last = " — " + c.LastMessage.Text
			}
			fmt.Printf("  %s: %s%s%s\n", c.ID, partner, state, last)
		}
		return nil
	},
}

// ============================================================================
// chat messages
// ============================================================================

var chatMessagesCmd = &cobra.Command{
	Use:   "messages <chat-id>",
	Short: "Show a chat's message history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		hist, err := client.Chats().History(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if hist.Status.State == litbuddy.StatePaused {
			fmt.Printf("(conversation paused by %s)\n", hist.Status.PausedBy)
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

// ============================================================================
// chat send
// ============================================================================

var chatSendCmd = &cobra.Command{
	Use:   "send <chat-id> <text>",
	Short: "Send a message to a chat",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		msg, err := client.Chats().SendMessage(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Sent %s\n", msg.ID)
		return nil
	},
}

// ============================================================================
// chat pause / resume
// ============================================================================

var chatPauseCmd = &cobra.Command{
	Use:   "pause <chat-id>",
	Short: "Pause a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if _, err := client.Chats().Pause(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("Conversation paused.")
		return nil
	},
}

var chatResumeCmd = &cobra.Command{
	Use:   "resume <chat-id>",
	Short: "Resume a paused conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if _, err := client.Chats().Resume(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("Conversation resumed.")
		return nil
	},
}

// ============================================================================
// chat watch
// ============================================================================

var chatWatchCmd = &cobra.Command{
	Use:   "watch <chat-id>",
	Short: "Stream a conversation live",
	Long:  "Open a conversation over the realtime connection and print messages and status changes as they arrive. Ctrl-C to stop.",
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

		conv, err := client.OpenConversation(ctx, rt, args[0])
		if err != nil {
			return err
		}
		defer conv.Close(context.Background())

		for _, m := range conv.Messages() {
			printMessage(m)
		}
		conv.OnMessage(printMessage)
		conv.OnStatus(func(s litbuddy.ConversationStatus) {
			if s.State == litbuddy.StatePaused {
				fmt.Printf("-- conversation paused by %s --\n", s.PausedBy)
			} else {
				fmt.Println("-- conversation resumed --")
			}
		})
		rt.OnReconnecting(func(attempt int, delay time.Duration) {
			fmt.Fprintf(os.Stderr, "(connection lost, retrying in %s)\n", delay)
		})

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return nil
	},
}

func printMessage(m litbuddy.Message) {
	name := m.SenderName
	if name == "" {
		name = m.SenderID
	}
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), name, m.Text)
}
