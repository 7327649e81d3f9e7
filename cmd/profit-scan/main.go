// profit-scan resolves market prices and ranks crafting recipes by profit
// from the command line.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"albion-crafter/internal/config"
	"albion-crafter/internal/services/albion"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	v       = config.NewViper()
	cfg     *config.Config
	logger  *log.Logger
	logFile *os.File
)

var rootCmd = &cobra.Command{
	Use:           "profit-scan",
	Short:         "Rank Albion crafting recipes by market profit",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if file, _ := cmd.Flags().GetString("config"); file != "" {
			v.SetConfigFile(file)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s: %w", file, err)
			}
		}

		var out io.Writer = os.Stderr
		if path, _ := cmd.Flags().GetString("log"); path != "" {
			f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			logFile = f
			out = f
		}
		logger = log.New(out, "[ProfitScan] ", log.LstdFlags)

		cfg = config.FromViper(v)
		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (yaml, json or toml)")
	pf.String("log", "", "log file path (default stderr)")
	pf.String("server", "west", "market data server: west, east or europe")
	pf.String("api-base", "", "override the public API base URL")
	pf.String("local-api", "", "read prices from a local single-location service instead")
	pf.String("city", "Martlock", "preferred market city")
	pf.String("qualities", "", "comma separated qualities to accept, e.g. 1,2")
	pf.Int("chunk-size", albion.DefaultChunkSize, "item ids per upstream request")
	pf.Duration("timeout", 30*time.Second, "per-request timeout")

	bindFlags(rootCmd, map[string]string{
		"albion_server":    "server",
		"albion_api_base":  "api-base",
		"albion_local_api": "local-api",
		"preferred_city":   "city",
		"qualities":        "qualities",
		"chunk_size":       "chunk-size",
		"request_timeout":  "timeout",
	})

	rootCmd.AddCommand(scanCmd, pricesCmd)
}

// bindFlags maps config keys to flags of cmd. Flags win over the
// environment only when set explicitly.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		flag := cmd.PersistentFlags().Lookup(name)
		if flag == nil {
			flag = cmd.Flags().Lookup(name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			panic(err)
		}
	}
}

// newResolver builds a resolver that drives a progress bar on stderr. rows
// receives every normalized upstream row when non-nil.
func newResolver(rows func([]albion.PriceRow)) *albion.Resolver {
	bar := progressbar.NewOptions(1,
		progressbar.OptionSetDescription("resolving prices"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	opts := []albion.ResolverOption{
		albion.WithChunkSize(cfg.ChunkSize),
		albion.WithLogger(log.New(logger.Writer(), "[Resolver] ", log.LstdFlags)),
		albion.WithChunkHook(func(done, total int) {
			bar.ChangeMax(total)
			_ = bar.Set(done)
			if done == total {
				_ = bar.Finish()
			}
		}),
	}
	if rows != nil {
		opts = append(opts, albion.WithRowsHook(rows))
	}

	client := albion.NewPriceClient(albion.DefaultRetryPolicy(), cfg.RequestTimeout)
	return albion.NewResolver(client, albion.NewPriceCache(), opts...)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}
