package api

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"albion-crafter/internal/config"
	"albion-crafter/internal/models"
	"albion-crafter/internal/profit"
	"albion-crafter/internal/services/albion"
	"albion-crafter/internal/snapshot"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PriceResolver is the resolver surface the handlers use.
type PriceResolver interface {
	FetchBulkPrices(ctx context.Context, endpoint albion.Endpoint, preferredCity string, itemIDs []string, opts albion.FetchOptions) (*albion.BulkPrices, error)
	Invalidate(pred func(key string) bool) int
}

type ProfitScanner interface {
	Scan(ctx context.Context, recipes []profit.Recipe, cfg profit.Config) ([]profit.Row, error)
}

// Options wires the handler. Store may be nil, which disables snapshot
// ingestion and scan history.
type Options struct {
	Resolver PriceResolver
	Scanner  ProfitScanner
	Store    snapshot.Store
	Recipes  []profit.Recipe
	Defaults profit.Config
	Logger   *log.Logger
}

type APIHandler struct {
	resolver PriceResolver
	scanner  ProfitScanner
	store    snapshot.Store
	recipes  []profit.Recipe
	defaults profit.Config
	logger   *log.Logger
}

var errNoRecipes = errors.New("no recipes given and no default recipe file loaded")

func SetupRoutes(r *gin.RouterGroup, opts Options) *APIHandler {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[API] ", log.LstdFlags)
	}
	handler := &APIHandler{
		resolver: opts.Resolver,
		scanner:  opts.Scanner,
		store:    opts.Store,
		recipes:  opts.Recipes,
		defaults: opts.Defaults,
		logger:   logger,
	}

	r.GET("/health", handler.Health)
	r.GET("/prices", handler.GetPrices)
	r.POST("/profits", handler.ScanProfits)
	r.GET("/ws/scan", handler.StreamScan)
	r.POST("/cache/invalidate", handler.InvalidateCache)

	snapshots := r.Group("/snapshots")
	{
		snapshots.POST("/bulk", handler.IngestSnapshots)
		snapshots.GET("/:item_id", handler.LatestSnapshots)
	}

	return handler
}

func (h *APIHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"endpoint": h.defaults.Endpoint.String(),
		"recipes":  len(h.recipes),
		"store":    h.store != nil,
	})
}

// GetPrices resolves ?ids=A,B&city=&qualities=.
func (h *APIHandler) GetPrices(c *gin.Context) {
	ids := splitList(c.Query("ids"))
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
		return
	}

	cfg, err := h.configFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bulk, err := h.resolver.FetchBulkPrices(c.Request.Context(), cfg.Endpoint, cfg.City, ids, albion.FetchOptions{Qualities: cfg.Qualities})
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "ok", "data": roundPrices(bulk)})
}

func roundPrices(bulk *albion.BulkPrices) *albion.BulkPrices {
	out := &albion.BulkPrices{
		Prices: make(map[string]float64, len(bulk.Prices)),
		Picked: make(map[string]albion.PickedPrice, len(bulk.Picked)),
	}
	for id, v := range bulk.Prices {
		out.Prices[id] = profit.RoundMoney(v)
	}
	for id, p := range bulk.Picked {
		p.Price = profit.RoundMoney(p.Price)
		out.Picked[id] = p
	}
	return out
}

type scanRequest struct {
	Recipes []profit.Recipe `json:"recipes"`
	profit.Config
}

// ScanProfits runs a scan. Fields left out of the body keep their defaults;
// an empty recipe list scans the loaded recipe file.
func (h *APIHandler) ScanProfits(c *gin.Context) {
	req := scanRequest{Config: h.scanDefaults()}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}
	req.Config.Endpoint = h.defaults.Endpoint

	rows, scanID, err := h.runScan(c.Request.Context(), req.Recipes, req.Config)
	if err != nil {
		if errors.Is(err, errNoRecipes) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.upstreamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"msg":     "ok",
		"scan_id": scanID,
		"data":    gin.H{"count": len(rows), "items": rows},
	})
}

type invalidateRequest struct {
	City   string `json:"city"`
	Prefix string `json:"prefix"`
}

// InvalidateCache drops cached prices for a city (on the default endpoint),
// for a raw key prefix, or everything when the body is empty.
func (h *APIHandler) InvalidateCache(c *gin.Context) {
	var req invalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var pred func(string) bool
	scope := "all"
	switch {
	case req.City != "":
		prefix := albion.CacheKeyPrefix(h.defaults.Endpoint, req.City)
		pred, scope = albion.HasPrefix(prefix), prefix
	case req.Prefix != "":
		pred, scope = albion.HasPrefix(req.Prefix), req.Prefix
	}

	removed := h.resolver.Invalidate(pred)
	h.logger.Printf("cache invalidated (%s): %d entries", scope, removed)
	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "ok", "removed": removed, "scope": scope})
}

// IngestSnapshots stores one uploaded batch.
func (h *APIHandler) IngestSnapshots(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, snapshot.BulkResponse{Error: "snapshot store not configured"})
		return
	}

	var batch []snapshot.Snapshot
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, snapshot.BulkResponse{Error: err.Error()})
		return
	}

	batchID, inserted, err := h.store.InsertSnapshots(c.Request.Context(), batch)
	if err != nil {
		h.logger.Printf("❌ snapshot batch failed: %v", err)
		c.JSON(http.StatusInternalServerError, snapshot.BulkResponse{BatchID: batchID, Error: "数据库写入失败"})
		return
	}
	c.JSON(http.StatusOK, snapshot.BulkResponse{OK: true, Inserted: inserted, BatchID: batchID})
}

func (h *APIHandler) LatestSnapshots(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot store not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 1000 {
		limit = 50
	}

	out, err := h.store.Latest(c.Request.Context(), c.Param("item_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if out == nil {
		out = []models.PriceSnapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "ok", "data": out})
}

// runScan scans and records the run when a store is present. A failed
// record is logged, the rows are still returned.
func (h *APIHandler) runScan(ctx context.Context, recipes []profit.Recipe, cfg profit.Config) ([]profit.Row, string, error) {
	if len(recipes) == 0 {
		recipes = h.recipes
	}
	if len(recipes) == 0 {
		return nil, "", errNoRecipes
	}

	start := time.Now()
	rows, err := h.scanner.Scan(ctx, recipes, cfg)
	if err != nil {
		return nil, "", err
	}

	scanID := uuid.New().String()
	if h.store != nil {
		run := &models.ScanRun{
			ID:         scanID,
			City:       cfg.City,
			Endpoint:   cfg.Endpoint.String(),
			Recipes:    len(recipes),
			Rows:       len(rows),
			DurationMs: time.Since(start).Milliseconds(),
			StartedAt:  start,
		}
		if len(rows) > 0 {
			run.TopItemID = rows[0].ItemID
			run.TopProfit = rows[0].Profit
		}
		if err := h.store.RecordScanRun(ctx, run); err != nil {
			h.logger.Printf("⚠️  scan %s not recorded: %v", scanID, err)
		}
	}

	for i := range rows {
		rows[i] = rows[i].Rounded()
	}
	return rows, scanID, nil
}

func (h *APIHandler) scanDefaults() profit.Config {
	cfg := h.defaults
	cfg.Qualities = append([]int(nil), h.defaults.Qualities...)
	return cfg
}

// configFromQuery applies city, qualities and min_profit query overrides.
func (h *APIHandler) configFromQuery(c *gin.Context) (profit.Config, error) {
	cfg := h.scanDefaults()
	if city := strings.TrimSpace(c.Query("city")); city != "" {
		cfg.City = city
	}
	if raw, ok := c.GetQuery("qualities"); ok {
		q, err := config.ParseQualities(raw)
		if err != nil {
			return cfg, err
		}
		cfg.Qualities = q
	}
	if raw := c.Query("min_profit"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return cfg, errors.New("min_profit must be a number")
		}
		cfg.MinProfit = &v
	}
	return cfg, nil
}

func (h *APIHandler) upstreamError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	}
	h.logger.Printf("❌ upstream error: %v", err)
	c.JSON(http.StatusBadGateway, gin.H{"error": "上游接口错误: " + err.Error()})
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
