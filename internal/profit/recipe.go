// Package profit turns recipes and resolved market prices into ranked
// crafting profit rows.
package profit

import (
	"albion-crafter/internal/items"
	"albion-crafter/internal/services/albion"

	"github.com/shopspring/decimal"
)

// MaterialKind separates refundable resources from artefacts.
type MaterialKind string

const (
	KindResource MaterialKind = "resource"
	KindArtefact MaterialKind = "artefact"
)

// MaterialRequirement is one input of a recipe.
type MaterialRequirement struct {
	ItemID   string       `json:"item_id"`
	Quantity int          `json:"quantity"`
	Kind     MaterialKind `json:"kind"`
}

// Recipe is an immutable craftable product with its inputs.
type Recipe struct {
	ItemID       string                `json:"item_id"`
	Tier         int                   `json:"tier"`
	Enchant      int                   `json:"enchant"`
	Slot         string                `json:"slot"`
	Core         string                `json:"core"`
	Materials    []MaterialRequirement `json:"materials"`
	RequiresTome bool                  `json:"requires_tome,omitempty"`
}

// identify prefers the recipe's own attributes and falls back to parsing
// the item id.
func (r Recipe) identify() (items.Identifier, bool) {
	if r.Tier > 0 && r.Slot != "" {
		core := r.Core
		if core == "" {
			core = r.Slot
		}
		return items.Identifier{Tier: r.Tier, Slot: r.Slot, Core: core, Enchant: r.Enchant}, true
	}
	return items.ParseIdentifier(r.ItemID)
}

// ArtefactChoice records which alternative paid for an artefact slot.
type ArtefactChoice string

const (
	ChoiceNone       ArtefactChoice = "none"
	ChoiceArtefact   ArtefactChoice = "artefact"
	ChoiceSubstitute ArtefactChoice = "substitute"
)

// Row is one scanned recipe.
type Row struct {
	ItemID                string         `json:"item_id"`
	Tier                  int            `json:"tier"`
	Enchant               int            `json:"enchant"`
	Profit                float64        `json:"profit"`
	ProfitMargin          float64        `json:"profit_margin"`
	ProductPrice          float64        `json:"product_price"`
	ProductCity           string         `json:"product_city,omitempty"`
	ItemValue             float64        `json:"item_value"`
	UsageFee              float64        `json:"usage_fee"`
	MaterialCost          float64        `json:"material_cost"`
	EffectiveMaterialCost float64        `json:"effective_material_cost"`
	ArteType              items.ArteType `json:"arte_type"`
	ArtefactChoice        ArtefactChoice `json:"artefact_choice,omitempty"`
	ArtefactItemID        string         `json:"artefact_item_id,omitempty"`
	Substituted           bool           `json:"substituted"`
}

// Rounded returns a copy with every money field rounded to cents.
func (r Row) Rounded() Row {
	r.Profit = RoundMoney(r.Profit)
	r.ProfitMargin = RoundMoney(r.ProfitMargin)
	r.ProductPrice = RoundMoney(r.ProductPrice)
	r.ItemValue = RoundMoney(r.ItemValue)
	r.UsageFee = RoundMoney(r.UsageFee)
	r.MaterialCost = RoundMoney(r.MaterialCost)
	r.EffectiveMaterialCost = RoundMoney(r.EffectiveMaterialCost)
	return r
}

// RoundMoney rounds half away from zero to two decimals.
func RoundMoney(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Config holds the economic parameters of a scan. Percentages are given as
// 0-100.
type Config struct {
	Endpoint         albion.Endpoint `json:"-"`
	City             string          `json:"city"`
	Qualities        []int           `json:"qualities,omitempty"`
	ReturnRate       float64         `json:"return_rate"`
	StationFeePer100 float64         `json:"station_fee"`
	SaleTaxPct       float64         `json:"sale_tax"`
	ListingFeePct    float64         `json:"listing_fee"`
	TomeCost         float64         `json:"tome_cost"`
	// MinProfit drops rows below the threshold when set.
	MinProfit *float64 `json:"min_profit,omitempty"`
}
