package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"storefront/client"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type options struct {
	APIBaseURL string
	GatewayURL string
	UserID     string
}

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "storefront",
		Short:         "Storefront cart and notification client",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&opts.APIBaseURL, "api", envOr("STOREFRONT_API", "http://localhost:8080"), "cart service base URL")
	cmd.PersistentFlags().StringVar(&opts.GatewayURL, "gateway", envOr("STOREFRONT_GATEWAY", "ws://localhost:8081/realtime/websocket"), "realtime gateway websocket URL")
	cmd.PersistentFlags().StringVar(&opts.UserID, "user", os.Getenv("STOREFRONT_USER"), "user ID")

	cmd.AddCommand(newCartCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))

	return cmd
}

func newCartCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and mutate the cart",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Fetch and print the current cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cartStore(opts)
			if err != nil {
				return err
			}
			store.Fetch(cmd.Context())
			return printJSON(map[string]interface{}{
				"items": store.Items(),
				"count": store.Count(),
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <product-id> <quantity>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity must be an integer: %w", err)
			}
			store, err := cartStore(opts)
			if err != nil {
				return err
			}
			if err := store.AddItem(cmd.Context(), args[0], quantity); err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"items": store.Items(), "count": store.Count()})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "update <product-id> <quantity>",
		Short: "Change the quantity of a cart line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity must be an integer: %w", err)
			}
			store, err := cartStore(opts)
			if err != nil {
				return err
			}
			if err := store.UpdateItemQuantity(cmd.Context(), args[0], quantity); err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"items": store.Items(), "count": store.Count()})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a cart line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cartStore(opts)
			if err != nil {
				return err
			}
			if err := store.RemoveItem(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"items": store.Items(), "count": store.Count()})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cartStore(opts)
			if err != nil {
				return err
			}
			return store.Clear(cmd.Context())
		},
	})

	return cmd
}

func newWatchCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream notifications until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.UserID == "" {
				return fmt.Errorf("user ID is required (--user or STOREFRONT_USER)")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			channel := client.NewNotificationChannel(client.ChannelConfig{
				Transport:  &client.WebsocketTransport{URL: opts.GatewayURL},
				APIBaseURL: opts.APIBaseURL,
				UserID:     opts.UserID,
			})
			defer channel.Close()

			unsubscribe := channel.Subscribe(func(alert client.Alert) {
				if alert.Notification != nil {
					log.Printf("notification action=%s unread=%d message=%q", alert.Notification.ActionType, channel.UnreadCount(), alert.Message)
					return
				}
				log.Printf("message %q", alert.Message)
			})
			defer unsubscribe()

			channel.Start(ctx)
			log.Printf("watching notifications user=%s unread=%d", opts.UserID, channel.UnreadCount())

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			return nil
		},
	}
}

func cartStore(opts *options) (*client.CartStore, error) {
	if opts.UserID == "" {
		return nil, fmt.Errorf("user ID is required (--user or STOREFRONT_USER)")
	}
	return client.NewCartStore(opts.APIBaseURL, nil, opts.UserID), nil
}

func printJSON(payload interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
