package main

import (
	"log"
	"net/http"
	"os"

	"albion-crafter/internal/api"
	"albion-crafter/internal/config"
	"albion-crafter/internal/database"
	"albion-crafter/internal/items"
	"albion-crafter/internal/profit"
	"albion-crafter/internal/recipes"
	"albion-crafter/internal/services/albion"
	"albion-crafter/internal/snapshot"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	log.Printf("📈 Market data: %s (%s), preferred city %s", cfg.Endpoint(), cfg.Endpoint().Kind, cfg.PreferredCity)

	opts := api.Options{Defaults: cfg.ScanConfig()}

	// Snapshot store is optional
	db, err := database.Initialize(cfg.DatabaseURL, cfg.Environment)
	switch {
	case err == database.ErrNoDatabase:
		log.Println("⚠️  DATABASE_URL not set, snapshot ingestion disabled")
	case err != nil:
		log.Fatal("Failed to connect to database:", err)
	default:
		opts.Store = snapshot.NewGormStore(db)
	}

	var arte *items.ArteLookup
	if cfg.ArteTypesFile != "" {
		if arte, err = items.LoadArteLookup(cfg.ArteTypesFile); err != nil {
			log.Fatal("Failed to load artefact types:", err)
		}
		log.Printf("✓ Loaded %d artefact cores", arte.Len())
	} else {
		log.Println("⚠️  ARTE_TYPES_FILE not set, every item valued as Standard")
	}

	if cfg.RecipesFile != "" {
		opts.Recipes, err = recipes.LoadFile(cfg.RecipesFile)
		if err != nil {
			log.Fatal("Failed to load recipes:", err)
		}
		log.Printf("✓ Loaded %d recipes from %s", len(opts.Recipes), cfg.RecipesFile)
	}

	resolver := albion.NewResolver(
		albion.NewPriceClient(albion.DefaultRetryPolicy(), cfg.RequestTimeout),
		albion.NewPriceCache(),
		albion.WithChunkSize(cfg.ChunkSize),
	)
	opts.Resolver = resolver
	opts.Scanner = profit.NewScanner(resolver, arte, nil)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	api.SetupRoutes(r.Group("/api/v1"), opts)

	port := cfg.Port
	if port == "" {
		port = os.Getenv("PORT")
	}
	log.Printf("Server starting on port %s", port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}
