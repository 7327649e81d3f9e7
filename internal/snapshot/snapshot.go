// Package snapshot uploads resolver price rows to a snapshot service and
// stores them on the receiving side.
package snapshot

import (
	"albion-crafter/internal/services/albion"
)

// Snapshot is the wire form of one price observation.
type Snapshot struct {
	ItemID       string  `json:"item_id" binding:"required"`
	City         string  `json:"city"`
	Quality      int     `json:"quality,omitempty"`
	SellPriceMin float64 `json:"sell_price_min"`
	BuyPriceMax  float64 `json:"buy_price_max"`
}

// FromRows converts resolver rows. Rows without a price or a city carry no
// information and are dropped.
func FromRows(rows []albion.PriceRow) []Snapshot {
	out := make([]Snapshot, 0, len(rows))
	for _, r := range rows {
		if r.City == "" || (r.SellPriceMin <= 0 && r.BuyPriceMax <= 0) {
			continue
		}
		s := Snapshot{
			ItemID:       r.ItemID,
			City:         r.City,
			SellPriceMin: r.SellPriceMin,
			BuyPriceMax:  r.BuyPriceMax,
		}
		if r.Quality != nil {
			s.Quality = *r.Quality
		}
		out = append(out, s)
	}
	return out
}

// BulkResponse is the body of POST /snapshots/bulk.
type BulkResponse struct {
	OK       bool   `json:"ok"`
	Inserted int    `json:"inserted"`
	BatchID  string `json:"batch_id,omitempty"`
	Error    string `json:"error,omitempty"`
}
