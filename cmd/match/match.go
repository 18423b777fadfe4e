// Package match implements the cross-marketplace matching command.
package match

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

const defaultLimit = 50

var (
	limit  int
	itemID string
	save   bool
)

// Command returns the match command for use in the root command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match stored products against the second marketplace",
		Long: `Match loads discovered products from the database and searches the
second marketplace for equivalent listings, by product identifier first and
normalized title as a fallback. Accepted matches carry the price spread
between the two marketplaces.`,
		RunE: runMatch,
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultLimit, "number of stored products to match")
	cmd.Flags().StringVar(&itemID, "id", "", "match a single product by ID")
	cmd.Flags().BoolVar(&save, "save", false, "persist match results to the database")

	return cmd
}

func runMatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := common.Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	products := deps.ProductRepository()
	if products == nil {
		return fmt.Errorf("match requires the database: enable it in config and run crawl first")
	}

	engine, err := deps.MatchEngine()
	if err != nil {
		return err
	}

	var items []domain.DiscoveredItem
	if itemID != "" {
		item, err := products.Get(ctx, itemID)
		if err != nil {
			return fmt.Errorf("failed to load product %s: %w", itemID, err)
		}
		if item == nil {
			return fmt.Errorf("product %s not found", itemID)
		}
		items = []domain.DiscoveredItem{*item}
	} else {
		items, err = products.List(ctx, limit, 0)
		if err != nil {
			return fmt.Errorf("failed to load products: %w", err)
		}
	}
	if len(items) == 0 {
		fmt.Fprintln(os.Stdout, "No stored products to match")
		return nil
	}

	results := make([]domain.MatchResult, 0, len(items))
	accepted := 0
	for _, item := range items {
		result, err := engine.Match(ctx, item)
		if err != nil {
			deps.Log.Warn("match failed", "item_id", item.ID, "error", err)
			continue
		}
		results = append(results, result)
		if result.Accepted {
			accepted++
		}
	}

	renderResults(results)
	fmt.Fprintf(os.Stdout, "\nMatched %d of %d products\n", accepted, len(items))

	if save {
		repo := deps.MatchRepository()
		saved, err := repo.SaveMatches(ctx, results)
		if err != nil {
			return fmt.Errorf("failed to save matches: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Saved %d match records\n", saved)
	}
	return nil
}

func renderResults(results []domain.MatchResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Item", "Listing", "Score", "Basis", "Spread", "Spread %"})

	const titleWidth = 50
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMax: titleWidth},
		{Number: 2, WidthMax: titleWidth},
	})

	for _, r := range results {
		if !r.Accepted {
			continue
		}
		listingTitle := "-"
		if r.Listing != nil {
			listingTitle = r.Listing.Title
		}
		t.AppendRow(table.Row{
			r.Item.Title,
			listingTitle,
			fmt.Sprintf("%.1f", r.Similarity),
			string(r.Basis),
			formatSpread(r.Spread),
			formatSpread(r.SpreadPct),
		})
	}

	fmt.Fprintf(os.Stdout, "\nAccepted matches:\n")
	t.Render()
}

func formatSpread(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
