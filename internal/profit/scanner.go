package profit

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"albion-crafter/internal/items"
	"albion-crafter/internal/services/albion"
)

// PriceFetcher is the part of the resolver the scanner needs.
type PriceFetcher interface {
	FetchBulkPrices(ctx context.Context, endpoint albion.Endpoint, preferredCity string, itemIDs []string, opts albion.FetchOptions) (*albion.BulkPrices, error)
}

// Scanner computes profit rows. It keeps no state between scans.
type Scanner struct {
	prices PriceFetcher
	arte   *items.ArteLookup
	logger *log.Logger
}

// NewScanner creates a scanner. A nil lookup treats every core as Standard.
func NewScanner(prices PriceFetcher, arte *items.ArteLookup, logger *log.Logger) *Scanner {
	if logger == nil {
		logger = log.New(os.Stderr, "[Scanner] ", log.LstdFlags)
	}
	return &Scanner{
		prices: prices,
		arte:   arte,
		logger: logger,
	}
}

// Scan resolves every price the recipes need in one bulk call and returns the
// rows sorted by profit, highest first. City capes and recipes that cannot be
// identified are left out.
func (s *Scanner) Scan(ctx context.Context, recipes []Recipe, cfg Config) ([]Row, error) {
	start := time.Now()

	ids := s.neededIDs(recipes)
	bulk, err := s.prices.FetchBulkPrices(ctx, cfg.Endpoint, cfg.City, ids, albion.FetchOptions{Qualities: cfg.Qualities})
	if err != nil {
		return nil, fmt.Errorf("resolve prices: %w", err)
	}

	rows := make([]Row, 0, len(recipes))
	skipped := 0
	for _, recipe := range recipes {
		row, ok := s.evaluate(recipe, bulk, cfg)
		if !ok {
			skipped++
			continue
		}
		if cfg.MinProfit != nil && row.Profit < *cfg.MinProfit {
			continue
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Profit > rows[j].Profit
	})

	s.logger.Printf("scanned %d recipes (%d ids, %d skipped) in %v", len(recipes), len(ids), skipped, time.Since(start).Round(time.Millisecond))
	return rows, nil
}

// neededIDs is every product, material and crystallized substitute id.
func (s *Scanner) neededIDs(recipes []Recipe) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, recipe := range recipes {
		add(recipe.ItemID)
		hasArtefact := false
		for _, m := range recipe.Materials {
			add(m.ItemID)
			if m.Kind == KindArtefact {
				hasArtefact = true
			}
		}
		if !hasArtefact {
			continue
		}
		if ident, ok := recipe.identify(); ok {
			if sub, ok := items.SubstituteID(s.arte.TypeOf(ident.Core), ident.Tier); ok {
				add(sub)
			}
		}
	}
	return ids
}

func (s *Scanner) evaluate(recipe Recipe, bulk *albion.BulkPrices, cfg Config) (Row, bool) {
	ident, ok := recipe.identify()
	if !ok {
		s.logger.Printf("⚠️  skipping %s: unrecognized item id", recipe.ItemID)
		return Row{}, false
	}

	meta := items.ClassifyMeta(ident.Core, ident.Slot)
	if meta.IsCapeCity {
		return Row{}, false
	}

	arte := s.arte.TypeOf(ident.Core)
	itemValue := items.ItemValue(ident.Tier, ident.Enchant, meta.NumItems, arte, meta.IsShapeshifter)
	usageFee := items.UsageFee(itemValue, cfg.StationFeePer100)

	row := Row{
		ItemID:    recipe.ItemID,
		Tier:      ident.Tier,
		Enchant:   ident.Enchant,
		ItemValue: itemValue,
		UsageFee:  usageFee,
		ArteType:  arte,
	}

	var resourceCost, artefactCost float64
	for _, m := range recipe.Materials {
		qty := float64(m.Quantity)
		if m.Kind != KindArtefact {
			resourceCost += bulk.Prices[m.ItemID] * qty
			continue
		}

		subID, hasSub := items.SubstituteID(arte, ident.Tier)
		price, choice := chooseArtefact(bulk, m.ItemID, subID, hasSub)
		artefactCost += price * qty

		row.ArtefactChoice = choice
		switch choice {
		case ChoiceSubstitute:
			row.ArtefactItemID = subID
			row.Substituted = true
		case ChoiceArtefact:
			row.ArtefactItemID = m.ItemID
		}
	}

	var tomeCost float64
	if recipe.RequiresTome || meta.RequiresTome {
		tomeCost = cfg.TomeCost
	}

	effectiveResourceCost := resourceCost * (1 - cfg.ReturnRate/100)
	row.MaterialCost = resourceCost + artefactCost + tomeCost
	row.EffectiveMaterialCost = effectiveResourceCost + artefactCost + tomeCost

	product := bulk.Picked[recipe.ItemID]
	row.ProductPrice = product.Price
	row.ProductCity = product.CityUsed

	netRevenue := product.Price - product.Price*cfg.SaleTaxPct/100 - product.Price*cfg.ListingFeePct/100
	if netRevenue < 0 {
		netRevenue = 0
	}

	row.Profit = netRevenue - (row.EffectiveMaterialCost + usageFee)
	if product.Price > 0 {
		row.ProfitMargin = row.Profit / product.Price * 100
	}
	return row, true
}

// chooseArtefact picks the cheaper of the raw artefact and its substitute.
// An unresolved price is never chosen; when neither resolves the slot costs 0.
func chooseArtefact(bulk *albion.BulkPrices, artefactID, subID string, hasSub bool) (float64, ArtefactChoice) {
	raw := bulk.Picked[artefactID]
	var sub albion.PickedPrice
	if hasSub {
		sub = bulk.Picked[subID]
	}

	switch {
	case raw.HasPrice() && sub.HasPrice():
		if sub.Price < raw.Price {
			return sub.Price, ChoiceSubstitute
		}
		return raw.Price, ChoiceArtefact
	case sub.HasPrice():
		return sub.Price, ChoiceSubstitute
	case raw.HasPrice():
		return raw.Price, ChoiceArtefact
	default:
		return 0, ChoiceNone
	}
}
