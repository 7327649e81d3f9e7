package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"text/tabwriter"

	"albion-crafter/internal/services/albion"

	"github.com/spf13/cobra"
)

var pricesCmd = &cobra.Command{
	Use:   "prices ITEM_ID...",
	Short: "Resolve the picked price of each item",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPrices,
}

func runPrices(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bulk, err := newResolver(nil).FetchBulkPrices(ctx, cfg.Endpoint(), cfg.PreferredCity, args, albion.FetchOptions{Qualities: cfg.Qualities})
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(bulk.Picked))
	for id := range bulk.Picked {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tPRICE\tCITY\tQUALITY")
	for _, id := range ids {
		p := bulk.Picked[id]
		if !p.HasPrice() {
			fmt.Fprintf(w, "%s\t-\t-\t-\n", id)
			continue
		}
		quality := "-"
		if p.QualityUsed != nil {
			quality = strconv.Itoa(*p.QualityUsed)
		}
		fmt.Fprintf(w, "%s\t%.0f\t%s\t%s\n", id, p.Price, p.CityUsed, quality)
	}
	return w.Flush()
}
