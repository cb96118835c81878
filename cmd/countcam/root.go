package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/thehanda/countcam-app/pkg/client"
)

// Version is the CLI version.
const Version = "0.1.0"

var (
	// api is the server client shared by subcommands.
	api *client.Client

	serverURL string
	token     string
	username  string
	password  string
)

var rootCmd = &cobra.Command{
	Use:           "countcam",
	Short:         "Upload clips to a countcam server and read back the visitor log",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A .env next to the binary is optional.
		_ = godotenv.Load()

		if serverURL == "" {
			serverURL = envOr("COUNTCAM_SERVER", "http://localhost:8080")
		}
		if token == "" {
			token = os.Getenv("COUNTCAM_TOKEN")
		}
		if username == "" {
			username = os.Getenv("COUNTCAM_USER")
		}
		if password == "" {
			password = os.Getenv("COUNTCAM_PASSWORD")
		}

		api = client.New(serverURL, nil)
		if token != "" {
			api.SetToken(token)
			return nil
		}
		if username == "" {
			return fmt.Errorf("no credentials: pass --token or --user/--password (or set COUNTCAM_TOKEN)")
		}
		if err := api.Login(cmd.Context(), username, password); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server base URL (default: $COUNTCAM_SERVER or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Session token (default: $COUNTCAM_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&username, "user", "u", "", "Username to log in with (default: $COUNTCAM_USER)")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "Password to log in with (default: $COUNTCAM_PASSWORD)")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
