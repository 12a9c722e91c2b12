package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/core/registry"
)

var (
	trackMinUSD string
	trackName   string
	trackSymbol string
	listChain   string
)

var trackCmd = &cobra.Command{
	Use:   "track [chain] [token] [channel]",
	Short: "Subscribe a channel to buys of a token",
	Long: `Subscribe a channel to buys of a token. Running the command again for the
same channel updates its threshold. A running watcher picks the change up on
its next registry reload.`,
	Args: cobra.ExactArgs(3),
	Run:  runTrack,
}

var untrackCmd = &cobra.Command{
	Use:   "untrack [chain] [token] [channel]",
	Short: "Remove a channel's subscription to a token",
	Args:  cobra.ExactArgs(3),
	Run:   runUntrack,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked tokens and their subscribers",
	Run:   runList,
}

func init() {
	trackCmd.Flags().StringVar(&trackMinUSD, "min-usd", "10", "minimum buy size in USD")
	trackCmd.Flags().StringVar(&trackName, "name", "", "token display name")
	trackCmd.Flags().StringVar(&trackSymbol, "symbol", "", "token symbol")
	listCmd.Flags().StringVar(&listChain, "chain", "", "only list tokens of this chain")

	rootCmd.AddCommand(trackCmd, untrackCmd, listCmd)
}

// openRegistry loads the persisted registry. It exits on failure.
func openRegistry(ctx context.Context) (*registry.Registry, func()) {
	cfg := loadConfig()
	stores := openStores(ctx, cfg)
	reg := registry.New(stores.Registry)
	if err := reg.Load(ctx); err != nil {
		_ = stores.Close()
		slog.Error("Failed to load registry", "error", err)
		os.Exit(1)
	}
	return reg, func() { _ = stores.Close() }
}

func parseChainArg(s string) domain.Chain {
	chain, err := domain.ParseChain(s)
	if err != nil {
		fmt.Printf("Invalid chain: %v\n", err)
		os.Exit(1)
	}
	return chain
}

func runTrack(cmd *cobra.Command, args []string) {
	chain := parseChainArg(args[0])
	minUSD, err := decimal.NewFromString(trackMinUSD)
	if err != nil {
		fmt.Printf("Invalid --min-usd: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	reg, closeFn := openRegistry(ctx)
	defer closeFn()

	created, err := reg.Add(ctx, chain, args[1], trackName, trackSymbol, args[2], minUSD)
	if err != nil {
		slog.Error("Failed to track token", "error", err)
		closeFn()
		os.Exit(1)
	}
	if created {
		fmt.Printf("Tracking %s on %s for %s (min $%s)\n", args[1], chain, args[2], minUSD)
	} else {
		fmt.Printf("Updated %s on %s for %s (min $%s)\n", args[1], chain, args[2], minUSD)
	}
}

func runUntrack(cmd *cobra.Command, args []string) {
	chain := parseChainArg(args[0])

	ctx := context.Background()
	reg, closeFn := openRegistry(ctx)
	defer closeFn()

	removed, err := reg.Remove(ctx, chain, args[1], args[2])
	if err != nil {
		slog.Error("Failed to untrack token", "error", err)
		closeFn()
		os.Exit(1)
	}
	if !removed {
		fmt.Printf("%s was not subscribed to %s on %s\n", args[2], args[1], chain)
		return
	}
	fmt.Printf("Removed %s from %s on %s\n", args[2], args[1], chain)
}

func runList(cmd *cobra.Command, args []string) {
	var only domain.Chain
	if listChain != "" {
		only = parseChainArg(listChain)
	}

	ctx := context.Background()
	reg, closeFn := openRegistry(ctx)
	defer closeFn()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CHAIN\tTOKEN\tSYMBOL\tCHANNEL\tMIN USD")
	for _, e := range reg.Entries() {
		if only != "" && e.Token.Chain != only {
			continue
		}
		for _, s := range e.Subscriptions {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.Token.Chain, e.Token.Address, e.Token.Symbol, s.Channel, s.MinUSD.StringFixed(2))
		}
	}
	_ = w.Flush()
}
