package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/buywatch/internal/core/cursor"
	"github.com/vietddude/buywatch/internal/core/registry"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved cursor and tracked token count of every chain",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	stores := openStores(ctx, cfg)
	defer func() {
		_ = stores.Close()
	}()

	reg := registry.New(stores.Registry)
	if err := reg.Load(ctx); err != nil {
		slog.Error("Failed to load registry", "error", err)
		os.Exit(1)
	}

	cursors, err := cursor.NewManager(stores.Cursors).List(ctx)
	if err != nil {
		slog.Error("Failed to list cursors", "error", err)
		os.Exit(1)
	}
	saved := make(map[string]cursor.Cursor, len(cursors))
	for _, c := range cursors {
		saved[string(c.Chain)] = c
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CHAIN\tCURSOR\tUPDATED\tTOKENS\tENABLED")
	for _, ch := range cfg.Chains {
		height, updated := "-", "-"
		if c, ok := saved[string(ch.ID)]; ok {
			height = fmt.Sprintf("%d", c.Height)
			updated = c.UpdatedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%v\n",
			ch.ID, height, updated, reg.Snapshot(ch.ID).Len(), !ch.Disabled)
	}
	_ = w.Flush()
}
