package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "webhookctl",
		Short:         "Sign and send Razorpay test payloads to a paywall-webhook server",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("secret", envDefault("RAZORPAY_WEBHOOK_SECRET"), "webhook secret (defaults to RAZORPAY_WEBHOOK_SECRET)")
	root.AddCommand(signCmd(), sendCmd(), verifySignCmd())
	return root
}

func envDefault(key string) string {
	return os.Getenv(key)
}
