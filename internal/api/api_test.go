package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"albion-crafter/internal/items"
	"albion-crafter/internal/models"
	"albion-crafter/internal/profit"
	"albion-crafter/internal/services/albion"
	"albion-crafter/internal/snapshot"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type fakeResolver struct {
	mu        sync.Mutex
	prices    map[string]float64
	err       error
	lastCity  string
	lastOpts  albion.FetchOptions
	lastPred  func(string) bool
	predCalls int
}

func (f *fakeResolver) FetchBulkPrices(ctx context.Context, endpoint albion.Endpoint, city string, ids []string, opts albion.FetchOptions) (*albion.BulkPrices, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCity, f.lastOpts = city, opts
	if f.err != nil {
		return nil, f.err
	}
	out := &albion.BulkPrices{Prices: map[string]float64{}, Picked: map[string]albion.PickedPrice{}}
	for _, id := range ids {
		p := albion.PickedPrice{}
		if v := f.prices[id]; v > 0 {
			p = albion.PickedPrice{Price: v, CityUsed: city}
		}
		out.Prices[id] = p.Price
		out.Picked[id] = p
	}
	return out, nil
}

func (f *fakeResolver) Invalidate(pred func(string) bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.predCalls++
	f.lastPred = pred
	if pred == nil {
		return 7
	}
	return 1
}

type memoryStore struct {
	mu        sync.Mutex
	snapshots []snapshot.Snapshot
	runs      []models.ScanRun
	fail      bool
}

func (m *memoryStore) InsertSnapshots(ctx context.Context, snaps []snapshot.Snapshot) (string, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "batch", 0, errors.New("disk full")
	}
	m.snapshots = append(m.snapshots, snaps...)
	return "batch", len(snaps), nil
}

func (m *memoryStore) RecordScanRun(ctx context.Context, run *models.ScanRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *run)
	return nil
}

func (m *memoryStore) Latest(ctx context.Context, itemID string, limit int) ([]models.PriceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PriceSnapshot
	for i := len(m.snapshots) - 1; i >= 0 && len(out) < limit; i-- {
		if s := m.snapshots[i]; s.ItemID == itemID {
			out = append(out, models.PriceSnapshot{ItemID: s.ItemID, City: s.City, SellPriceMin: s.SellPriceMin})
		}
	}
	return out, nil
}

var testRecipes = []profit.Recipe{
	{ItemID: "T4_MAIN_SWORD", Materials: []profit.MaterialRequirement{{ItemID: "T4_METALBAR", Quantity: 16, Kind: profit.KindResource}}},
	{ItemID: "T5_MAIN_SWORD", Materials: []profit.MaterialRequirement{{ItemID: "T5_METALBAR", Quantity: 16, Kind: profit.KindResource}}},
}

func setupRouter(t *testing.T, resolver *fakeResolver, store snapshot.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := log.New(io.Discard, "", 0)
	opts := Options{
		Resolver: resolver,
		Scanner:  profit.NewScanner(resolver, items.NewArteLookup(nil), logger),
		Recipes:  testRecipes,
		Defaults: profit.Config{Endpoint: albion.RemoteEndpoint("https://west.example"), City: "Martlock", SaleTaxPct: 4},
		Logger:   logger,
		Store:    store,
	}

	r := gin.New()
	SetupRoutes(r.Group("/api/v1"), opts)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := setupRouter(t, &fakeResolver{}, nil)
	w := doJSON(t, r, http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"store":false`) {
		t.Errorf("unexpected health response %d %s", w.Code, w.Body.String())
	}
}

func TestGetPrices(t *testing.T) {
	res := &fakeResolver{prices: map[string]float64{"T4_BAG": 1200}}
	r := setupRouter(t, res, nil)

	w := doJSON(t, r, http.MethodGet, "/api/v1/prices?ids=T4_BAG,%20T5_BAG&city=Lymhurst&qualities=2,1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data albion.BulkPrices `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Prices["T4_BAG"] != 1200 || resp.Data.Picked["T4_BAG"].CityUsed != "Lymhurst" {
		t.Errorf("unexpected data %+v", resp.Data)
	}
	if _, ok := resp.Data.Prices["T5_BAG"]; !ok {
		t.Error("every requested id should be present")
	}
	if res.lastCity != "Lymhurst" || len(res.lastOpts.Qualities) != 2 || res.lastOpts.Qualities[0] != 1 {
		t.Errorf("query not forwarded: city %q opts %+v", res.lastCity, res.lastOpts)
	}
}

func TestGetPricesErrors(t *testing.T) {
	r := setupRouter(t, &fakeResolver{}, nil)
	if w := doJSON(t, r, http.MethodGet, "/api/v1/prices", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing ids: expected 400, got %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/api/v1/prices?ids=T4_BAG&qualities=9", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad quality: expected 400, got %d", w.Code)
	}

	r = setupRouter(t, &fakeResolver{err: &albion.StatusError{Code: 500}}, nil)
	if w := doJSON(t, r, http.MethodGet, "/api/v1/prices?ids=T4_BAG", nil); w.Code != http.StatusBadGateway {
		t.Errorf("upstream failure: expected 502, got %d", w.Code)
	}
}

type profitsResponse struct {
	ScanID string `json:"scan_id"`
	Data   struct {
		Count int          `json:"count"`
		Items []profit.Row `json:"items"`
	} `json:"data"`
}

func TestScanProfitsDefaults(t *testing.T) {
	res := &fakeResolver{prices: map[string]float64{"T4_MAIN_SWORD": 3000, "T5_MAIN_SWORD": 9000, "T4_METALBAR": 50}}
	store := &memoryStore{}
	r := setupRouter(t, res, store)

	w := doJSON(t, r, http.MethodPost, "/api/v1/profits", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp profitsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Count != 2 || resp.Data.Items[0].ItemID != "T5_MAIN_SWORD" {
		t.Errorf("expected both default recipes sorted by profit, got %+v", resp.Data)
	}
	if res.lastCity != "Martlock" {
		t.Errorf("default city not used, got %q", res.lastCity)
	}
	if len(store.runs) != 1 || store.runs[0].ID != resp.ScanID || store.runs[0].TopItemID != "T5_MAIN_SWORD" {
		t.Errorf("scan run not recorded: %+v", store.runs)
	}
}

func TestMoneyRoundedInResponses(t *testing.T) {
	res := &fakeResolver{prices: map[string]float64{"T4_MAIN_SWORD": 3333.3333, "T4_BAG": 1200.456}}
	r := setupRouter(t, res, nil)

	w := doJSON(t, r, http.MethodGet, "/api/v1/prices?ids=T4_BAG", nil)
	var prices struct {
		Data albion.BulkPrices `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &prices); err != nil {
		t.Fatal(err)
	}
	if prices.Data.Prices["T4_BAG"] != 1200.46 || prices.Data.Picked["T4_BAG"].Price != 1200.46 {
		t.Errorf("expected 1200.46, got %+v", prices.Data)
	}

	body := map[string]interface{}{
		"recipes":  []profit.Recipe{{ItemID: "T4_MAIN_SWORD"}},
		"sale_tax": 3.333,
	}
	w = doJSON(t, r, http.MethodPost, "/api/v1/profits", body)
	var resp profitsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Count != 1 {
		t.Fatalf("expected 1 row, got %s", w.Body.String())
	}
	row := resp.Data.Items[0]
	for name, v := range map[string]float64{
		"profit":        row.Profit,
		"profit_margin": row.ProfitMargin,
		"product_price": row.ProductPrice,
	} {
		if cents := v * 100; math.Abs(cents-math.Round(cents)) > 1e-6 {
			t.Errorf("%s not rounded to cents: %v", name, v)
		}
	}
	if row.ProductPrice != 3333.33 {
		t.Errorf("expected product price 3333.33, got %v", row.ProductPrice)
	}
}

func TestScanProfitsOverrides(t *testing.T) {
	res := &fakeResolver{prices: map[string]float64{"T6_MAIN_SWORD": 5000}}
	r := setupRouter(t, res, nil)

	body := map[string]interface{}{
		"recipes":    []profit.Recipe{{ItemID: "T6_MAIN_SWORD"}},
		"city":       "Thetford",
		"min_profit": 100000,
	}
	w := doJSON(t, r, http.MethodPost, "/api/v1/profits", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp profitsResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Data.Count != 0 {
		t.Errorf("min_profit should filter everything, got %d rows", resp.Data.Count)
	}
	if res.lastCity != "Thetford" {
		t.Errorf("city override not applied, got %q", res.lastCity)
	}
}

func TestScanProfitsWithoutRecipes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	res := &fakeResolver{}
	r := gin.New()
	SetupRoutes(r.Group("/api/v1"), Options{
		Resolver: res,
		Scanner:  profit.NewScanner(res, nil, log.New(io.Discard, "", 0)),
		Logger:   log.New(io.Discard, "", 0),
	})

	if w := doJSON(t, r, http.MethodPost, "/api/v1/profits", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without recipes, got %d", w.Code)
	}
}

func TestInvalidateCache(t *testing.T) {
	res := &fakeResolver{}
	r := setupRouter(t, res, nil)

	w := doJSON(t, r, http.MethodPost, "/api/v1/cache/invalidate", map[string]string{"city": "Martlock"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if res.lastPred == nil {
		t.Fatal("city invalidation should pass a predicate")
	}
	if !res.lastPred("https://west.example|Martlock|*|T4_BAG") || res.lastPred("https://west.example|Lymhurst|*|T4_BAG") {
		t.Error("predicate should match only the Martlock prefix")
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/cache/invalidate", nil)
	if res.lastPred != nil || !strings.Contains(w.Body.String(), `"removed":7`) {
		t.Errorf("empty body should flush everything, got %s", w.Body.String())
	}
}

func TestIngestSnapshots(t *testing.T) {
	store := &memoryStore{}
	r := setupRouter(t, &fakeResolver{}, store)

	batch := []snapshot.Snapshot{
		{ItemID: "T4_BAG", City: "Martlock", SellPriceMin: 1000},
		{ItemID: "T4_BAG", City: "Lymhurst", SellPriceMin: 1100},
	}
	w := doJSON(t, r, http.MethodPost, "/api/v1/snapshots/bulk", batch)
	var resp snapshot.BulkResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || !resp.OK || resp.Inserted != 2 {
		t.Fatalf("unexpected response %d %+v", w.Code, resp)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/snapshots/T4_BAG?limit=1", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Lymhurst") || strings.Contains(w.Body.String(), "Martlock") {
		t.Errorf("expected only the newest snapshot, got %s", w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/snapshots/bulk", []snapshot.Snapshot{{City: "Martlock"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing item_id: expected 400, got %d", w.Code)
	}

	store.fail = true
	w = doJSON(t, r, http.MethodPost, "/api/v1/snapshots/bulk", batch)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("store failure: expected 500, got %d", w.Code)
	}
}

func TestIngestSnapshotsWithoutStore(t *testing.T) {
	r := setupRouter(t, &fakeResolver{}, nil)
	w := doJSON(t, r, http.MethodPost, "/api/v1/snapshots/bulk", []snapshot.Snapshot{{ItemID: "T4_BAG"}})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestUploaderAgainstServer(t *testing.T) {
	store := &memoryStore{}
	srv := httptest.NewServer(setupRouter(t, &fakeResolver{}, store))
	defer srv.Close()

	policy := albion.DefaultRetryPolicy()
	policy.Base = time.Millisecond
	u := snapshot.NewUploader(srv.URL+"/api/v1", policy, 5*time.Second)
	u.SetLogger(log.New(io.Discard, "", 0))

	snaps := make([]snapshot.Snapshot, 250)
	for i := range snaps {
		snaps[i] = snapshot.Snapshot{ItemID: "T4_BAG", City: "Martlock", SellPriceMin: float64(i + 1)}
	}
	inserted, err := u.Upload(context.Background(), snaps)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if inserted != 250 || len(store.snapshots) != 250 {
		t.Errorf("expected 250 stored, got %d/%d", inserted, len(store.snapshots))
	}
}

func TestStreamScan(t *testing.T) {
	res := &fakeResolver{prices: map[string]float64{"T4_MAIN_SWORD": 3000, "T5_MAIN_SWORD": 9000}}
	srv := httptest.NewServer(setupRouter(t, res, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/scan?city=Caerleon"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var got []scanMessage
	for {
		var msg scanMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, msg)
		if msg.Done || msg.Type == "error" {
			break
		}
	}

	if len(got) != 3 {
		t.Fatalf("expected 2 rows and done, got %+v", got)
	}
	if got[0].Row == nil || got[0].Row.ItemID != "T5_MAIN_SWORD" || got[0].Row.ProductCity != "Caerleon" {
		t.Errorf("unexpected first row %+v", got[0].Row)
	}
	if last := got[2]; last.Type != "done" || last.Count != 2 || last.ScanID == "" {
		t.Errorf("unexpected done frame %+v", last)
	}
}

func TestStreamScanBadQuery(t *testing.T) {
	r := setupRouter(t, &fakeResolver{}, nil)
	w := doJSON(t, r, http.MethodGet, "/api/v1/ws/scan?min_profit=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 before upgrade, got %d", w.Code)
	}
}
