package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/buywatch/internal/core/cursor"
	"github.com/vietddude/buywatch/internal/core/domain"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [chain] [height]",
	Short: "Move the cursor of a chain to a given block or slot",
	Long: `Move the cursor of a chain to a given block or slot. Scanning resumes at
height+1 the next time the watcher starts. Stop the watcher first.`,
	Args: cobra.ExactArgs(2),
	Run:  runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	chain, err := domain.ParseChain(args[0])
	if err != nil {
		fmt.Printf("Invalid chain: %v\n", err)
		os.Exit(1)
	}
	height, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Printf("Invalid height: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	ctx := context.Background()

	stores := openStores(ctx, cfg)
	defer func() {
		_ = stores.Close()
	}()

	if err := cursor.NewManager(stores.Cursors).Reset(ctx, chain, height); err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset cursor for %s to %d\n", chain, height)
}
