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

var notificationsUnreadOnly bool

func init() {
	rootCmd.AddCommand(notificationsCmd)
	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsReadCmd)
	notificationsCmd.AddCommand(notificationsWatchCmd)

	notificationsListCmd.Flags().BoolVar(&notificationsUnreadOnly, "unread", false, "show unread notifications only")
}

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif"},
	Short:   "Notification commands",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications (newest first)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		items, err := client.Notifications().List(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		shown := 0
		for _, n := range items {
			if notificationsUnreadOnly && n.Read {
				continue
			}
			printNotification(n)
			shown++
		}
		if shown == 0 {
			fmt.Println("No notifications.")
		}
		return nil
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <notification-id>",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := client.Notifications().MarkRead(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Marked %s as read\n", args[0])
		return nil
	},
}

var notificationsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream notifications live",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		rt := client.Realtime(nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := rt.Connect(ctx); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		defer rt.Disconnect()

		feed, err := client.OpenNotifications(ctx, rt)
		if err != nil {
			return err
		}
		defer feed.Close(context.Background())

		fmt.Printf("%d unread. Watching for notifications...\n", feed.Unread())
		feed.OnNotification(func(n litbuddy.Notification) {
			printNotification(n)
		})

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return nil
	},
}

func printNotification(n litbuddy.Notification) {
	marker := "*"
	if n.Read {
		marker = " "
	}
	fmt.Printf("%s [%s] %s: %s\n", marker, n.CreatedAt.Format("2006-01-02 15:04"), n.ID, n.Title)
}
