package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vietddude/buywatch/internal/control"
	"github.com/vietddude/buywatch/internal/core/domain"
)

var testAlertChannel string

var testAlertCmd = &cobra.Command{
	Use:   "test-alert [chain] [token] [native_amount]",
	Short: "Send a test alert for a token",
	Long: `Send a test alert for a token to its subscribers, or to --channel.
Thresholds, rate limits and dedupe are bypassed.`,
	Args: cobra.ExactArgs(3),
	Run:  runTestAlert,
}

func init() {
	testAlertCmd.Flags().StringVar(&testAlertChannel, "channel", "", "send to this channel instead of the subscribers")
	rootCmd.AddCommand(testAlertCmd)
}

func runTestAlert(cmd *cobra.Command, args []string) {
	chain := parseChainArg(args[0])
	amount, err := decimal.NewFromString(args[2])
	if err != nil || !amount.IsPositive() {
		fmt.Printf("Invalid amount %q\n", args[2])
		os.Exit(1)
	}
	addr, err := domain.NormalizeAddress(chain, args[1])
	if err != nil {
		fmt.Printf("Invalid token: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	ctx := context.Background()

	app, err := control.NewWatcher(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize Watcher", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = app.Close()
	}()

	token := domain.TrackedToken{Chain: chain, Address: addr}
	if entry, ok := app.Registry().Snapshot(chain).Lookup(addr); ok {
		token = entry.Token
	}

	var channels []string
	if testAlertChannel != "" {
		channels = append(channels, testAlertChannel)
	}

	report, err := app.Dispatcher().TestAlert(ctx, token, amount, channels...)
	if err != nil {
		slog.Error("Test alert failed", "error", err)
		_ = app.Close()
		os.Exit(1)
	}
	fmt.Printf("Test alert: sent=%d fallback=%d failed=%d usd=%s\n",
		report.Sent, report.Fallback, report.Failed, report.USD.StringFixed(2))
	for _, e := range report.Errors {
		fmt.Printf("  error: %v\n", e)
	}
}
