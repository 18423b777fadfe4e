// Package discover implements the single-task discovery command.
package discover

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/arbminer/arbminer/cmd/common"
	"github.com/arbminer/arbminer/internal/domain"
)

var (
	keyword    string
	browseNode int
	maxItems   int
	maxPages   int
	save       bool
)

// Command returns the discover command for use in the root command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Mine products for a single keyword",
		Long: `Discover runs one ad-hoc discovery task without touching the crawl
rotation. Useful for testing filters and inspecting what a keyword yields.

Examples:
  # Mine up to 30 priced items for a keyword
  arbminer discover -k "dog bed" --max-items 30

  # Restrict to one category node and persist the results
  arbminer discover -k "dog bed" --browse-node 2975312011 --save`,
		RunE: runDiscover,
	}

	cmd.Flags().StringVarP(&keyword, "keyword", "k", "", "search keyword (required)")
	cmd.Flags().IntVar(&browseNode, "browse-node", 0, "restrict to this category node")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "stop after this many kept items (0 uses config)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "stop after this many catalog pages (0 uses config)")
	cmd.Flags().BoolVar(&save, "save", false, "persist results to the database")

	if err := cmd.MarkFlagRequired("keyword"); err != nil {
		fmt.Fprintf(os.Stderr, "Error marking keyword flag as required: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := common.Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	discoverer, err := deps.Discoverer()
	if err != nil {
		return err
	}

	task := domain.Task{RootName: "adhoc", Keyword: keyword}
	if browseNode > 0 {
		task.BrowseNodeID = &browseNode
	}
	if maxItems <= 0 {
		maxItems = deps.Cfg.Crawler.MaxItemsPerTask
	}
	if maxPages <= 0 {
		maxPages = deps.Cfg.Crawler.MaxPagesPerTask
	}

	items, stats, err := discoverer.Discover(ctx, task, maxItems, maxPages)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	renderItems(items)
	fmt.Fprintf(os.Stdout, "\nSeen %d catalog items, %d with price, kept %d (%d API errors)\n",
		stats.CatalogSeen, stats.WithPrice, stats.Kept, stats.ErrorsAPI)

	if save {
		sink := deps.ProductSink()
		if sink == nil {
			return fmt.Errorf("cannot save results: database is not enabled")
		}
		saved, err := sink.SaveItems(ctx, items)
		if err != nil {
			return fmt.Errorf("failed to save items: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Saved %d items\n", saved)
	}
	return nil
}

func renderItems(items []domain.DiscoveredItem) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "ID", "Title", "Brand", "Price", "Rank", "Est. Sales/mo"})

	const titleWidth = 60
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: titleWidth}})

	for i, item := range items {
		t.AppendRow(table.Row{
			i + 1,
			item.ID,
			item.Title,
			item.Brand,
			formatPrice(item.Price, item.Currency),
			formatInt(item.SalesRank),
			formatInt(item.EstimatedMonthlySales),
		})
	}
	t.AppendFooter(table.Row{"Total", len(items)})

	fmt.Fprintf(os.Stdout, "\nDiscovered items:\n")
	t.Render()
}

func formatPrice(p *float64, currency string) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f %s", *p, currency)
}

func formatInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}
