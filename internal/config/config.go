package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"albion-crafter/internal/profit"
	"albion-crafter/internal/services/albion"

	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL string
	Port        string
	Environment string

	// Market data source
	Server         string // west, east, europe
	APIBase        string // overrides the server preset
	LocalAPI       string // local price service; takes precedence when set
	RequestTimeout time.Duration
	ChunkSize      int

	// Scan defaults
	PreferredCity string
	Qualities     []int
	ReturnRate    float64
	StationFee    float64
	SaleTax       float64
	ListingFee    float64
	TomeCost      float64

	ArteTypesFile   string
	RecipesFile     string
	SnapshotAPIBase string
}

// Load reads the environment (and CONFIG_FILE when set).
func Load() *Config {
	v := NewViper()
	if file := getEnv("CONFIG_FILE", ""); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "config file %s not loaded: %v\n", file, err)
		}
	}
	return FromViper(v)
}

// NewViper returns a viper instance with every default registered. Keys
// map to upper-case environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("database_url", "")
	v.SetDefault("port", "8080")
	v.SetDefault("environment", "development")
	v.SetDefault("albion_server", "west")
	v.SetDefault("albion_api_base", "")
	v.SetDefault("albion_local_api", "")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("chunk_size", albion.DefaultChunkSize)
	v.SetDefault("preferred_city", "Martlock")
	v.SetDefault("qualities", "")
	v.SetDefault("return_rate", 15.2)
	v.SetDefault("station_fee", 0.0)
	v.SetDefault("sale_tax", 4.0)
	v.SetDefault("listing_fee", 2.5)
	v.SetDefault("tome_cost", 0.0)
	v.SetDefault("arte_types_file", "")
	v.SetDefault("recipes_file", "")
	v.SetDefault("snapshot_api_base", "")
	v.AutomaticEnv()
	return v
}

func FromViper(v *viper.Viper) *Config {
	qualities, err := ParseQualities(v.GetString("qualities"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ignoring QUALITIES: %v\n", err)
	}

	return &Config{
		DatabaseURL:     v.GetString("database_url"),
		Port:            v.GetString("port"),
		Environment:     v.GetString("environment"),
		Server:          strings.ToLower(v.GetString("albion_server")),
		APIBase:         v.GetString("albion_api_base"),
		LocalAPI:        v.GetString("albion_local_api"),
		RequestTimeout:  v.GetDuration("request_timeout"),
		ChunkSize:       v.GetInt("chunk_size"),
		PreferredCity:   v.GetString("preferred_city"),
		Qualities:       qualities,
		ReturnRate:      v.GetFloat64("return_rate"),
		StationFee:      v.GetFloat64("station_fee"),
		SaleTax:         v.GetFloat64("sale_tax"),
		ListingFee:      v.GetFloat64("listing_fee"),
		TomeCost:        v.GetFloat64("tome_cost"),
		ArteTypesFile:   v.GetString("arte_types_file"),
		RecipesFile:     v.GetString("recipes_file"),
		SnapshotAPIBase: v.GetString("snapshot_api_base"),
	}
}

// Validate rejects settings the scanner cannot work with.
func (c *Config) Validate() error {
	if c.LocalAPI == "" && c.APIBase == "" {
		if _, ok := albion.ServerBaseURL(c.Server); !ok {
			return fmt.Errorf("unknown ALBION_SERVER %q", c.Server)
		}
	}
	if c.ReturnRate < 0 || c.ReturnRate >= 100 {
		return fmt.Errorf("RETURN_RATE must be in [0,100), got %v", c.ReturnRate)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.SaleTax < 0 || c.ListingFee < 0 || c.StationFee < 0 || c.TomeCost < 0 {
		return fmt.Errorf("fees and taxes must not be negative")
	}
	return nil
}

// Endpoint picks the local service when configured, otherwise the public API.
func (c *Config) Endpoint() albion.Endpoint {
	if c.LocalAPI != "" {
		return albion.LocalEndpoint(c.LocalAPI)
	}
	if c.APIBase != "" {
		return albion.RemoteEndpoint(c.APIBase)
	}
	base, _ := albion.ServerBaseURL(c.Server)
	return albion.RemoteEndpoint(base)
}

// ScanConfig is the default economic parameter set for scans.
func (c *Config) ScanConfig() profit.Config {
	return profit.Config{
		Endpoint:         c.Endpoint(),
		City:             c.PreferredCity,
		Qualities:        append([]int(nil), c.Qualities...),
		ReturnRate:       c.ReturnRate,
		StationFeePer100: c.StationFee,
		SaleTaxPct:       c.SaleTax,
		ListingFeePct:    c.ListingFee,
		TomeCost:         c.TomeCost,
	}
}

// ParseQualities reads "1,2,3". Values outside 1-5 are rejected.
func ParseQualities(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	seen := make(map[int]bool)
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		q, err := strconv.Atoi(part)
		if err != nil || q < 1 || q > 5 {
			return nil, fmt.Errorf("invalid quality %q", part)
		}
		if !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
	}
	sort.Ints(out)
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
