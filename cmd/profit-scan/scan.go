package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"albion-crafter/internal/export"
	"albion-crafter/internal/items"
	"albion-crafter/internal/profit"
	"albion-crafter/internal/recipes"
	"albion-crafter/internal/services/albion"
	"albion-crafter/internal/snapshot"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a recipe file and print the most profitable crafts",
	RunE:  runScan,
}

func init() {
	f := scanCmd.Flags()
	f.String("recipes", "", "recipe table (.csv or .xlsx)")
	f.String("arte", "", "artefact type table (JSON {core: type})")
	f.Float64("return-rate", 15.2, "resource return rate in percent")
	f.Float64("station-fee", 0, "station fee per 100 nutrition")
	f.Float64("sale-tax", 4, "sale tax in percent")
	f.Float64("listing-fee", 2.5, "listing fee in percent")
	f.Float64("tome-cost", 0, "price of one Tome of Insight")
	f.Float64("min-profit", 0, "hide rows below this profit")
	f.Int("top", 25, "rows to print (0 prints all)")
	f.Bool("json", false, "print rows as JSON instead of a table")
	f.String("xlsx", "", "also write the rows to this workbook")
	f.Bool("upload", false, "upload the raw price rows to the snapshot service")
	f.String("snapshot-api", "", "snapshot service base URL")
	f.Duration("watch", 0, "rescan at this interval until interrupted")

	bindFlags(scanCmd, map[string]string{
		"recipes_file":      "recipes",
		"arte_types_file":   "arte",
		"return_rate":       "return-rate",
		"station_fee":       "station-fee",
		"sale_tax":          "sale-tax",
		"listing_fee":       "listing-fee",
		"tome_cost":         "tome-cost",
		"snapshot_api_base": "snapshot-api",
	})
}

func runScan(cmd *cobra.Command, args []string) error {
	if cfg.RecipesFile == "" {
		return fmt.Errorf("no recipe table: pass --recipes or set RECIPES_FILE")
	}
	recipeList, err := recipes.LoadFile(cfg.RecipesFile)
	if err != nil {
		return err
	}
	logger.Printf("✓ loaded %d recipes from %s", len(recipeList), cfg.RecipesFile)

	var arte *items.ArteLookup
	if cfg.ArteTypesFile != "" {
		if arte, err = items.LoadArteLookup(cfg.ArteTypesFile); err != nil {
			return err
		}
	} else {
		logger.Println("⚠️  no artefact table, every item valued as Standard")
	}

	scanCfg := cfg.ScanConfig()
	if cmd.Flags().Changed("min-profit") {
		threshold, _ := cmd.Flags().GetFloat64("min-profit")
		scanCfg.MinProfit = &threshold
	}

	upload, _ := cmd.Flags().GetBool("upload")
	var uploader *snapshot.Uploader
	if upload {
		if cfg.SnapshotAPIBase == "" {
			return fmt.Errorf("--upload needs --snapshot-api or SNAPSHOT_API_BASE")
		}
		uploader = snapshot.NewUploader(cfg.SnapshotAPIBase, albion.DefaultRetryPolicy(), cfg.RequestTimeout)
		uploader.SetLogger(logger)
	}

	collector := &rowCollector{}
	var hook func([]albion.PriceRow)
	if uploader != nil {
		hook = collector.add
	}
	resolver := newResolver(hook)
	scanner := profit.NewScanner(resolver, arte, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watch, _ := cmd.Flags().GetDuration("watch")
	for iteration := 1; ; iteration++ {
		if watch > 0 {
			logger.Printf("[scan #%d] ⏰ %s", iteration, time.Now().Format("2006-01-02 15:04:05"))
		}

		rows, err := scanner.Scan(ctx, recipeList, scanCfg)
		if err != nil {
			return err
		}
		if err := report(cmd, rows); err != nil {
			return err
		}

		if uploader != nil {
			snaps := snapshot.FromRows(collector.drain())
			if _, err := uploader.Upload(ctx, snaps); err != nil {
				logger.Printf("❌ snapshot upload failed: %v", err)
			}
		}

		if watch <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			logger.Println("🛑 stopped")
			return nil
		case <-time.After(watch):
		}
		resolver.Invalidate(albion.HasPrefix(albion.CacheKeyPrefix(scanCfg.Endpoint, scanCfg.City)))
	}
}

func report(cmd *cobra.Command, rows []profit.Row) error {
	if path, _ := cmd.Flags().GetString("xlsx"); path != "" {
		if err := export.WriteXLSX(path, rows); err != nil {
			return err
		}
		logger.Printf("✓ wrote %d rows to %s", len(rows), path)
	}

	shown := rows
	if top, _ := cmd.Flags().GetInt("top"); top > 0 && len(shown) > top {
		shown = shown[:top]
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(shown)
	}
	printRows(cmd, shown)
	return nil
}

func printRows(cmd *cobra.Command, rows []profit.Row) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tARTE\tPRICE\tCITY\tCOST\tFEE\tPROFIT\tMARGIN\tARTEFACT")
	for _, r := range rows {
		artefact := r.ArtefactItemID
		if r.Substituted {
			artefact += " *"
		}
		fmt.Fprintf(w, "%s\t%s\t%.0f\t%s\t%.0f\t%.0f\t%.0f\t%.1f%%\t%s\n",
			r.ItemID, r.ArteType, r.ProductPrice, r.ProductCity,
			r.EffectiveMaterialCost, r.UsageFee, r.Profit, r.ProfitMargin, artefact)
	}
	w.Flush()
}

// rowCollector buffers upstream rows between uploads.
type rowCollector struct {
	mu   sync.Mutex
	rows []albion.PriceRow
}

func (c *rowCollector) add(rows []albion.PriceRow) {
	c.mu.Lock()
	c.rows = append(c.rows, rows...)
	c.mu.Unlock()
}

func (c *rowCollector) drain() []albion.PriceRow {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.rows
	c.rows = nil
	return out
}
