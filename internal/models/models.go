package models

import (
	"time"
)

// PriceSnapshot is one market observation uploaded in a bulk batch.
type PriceSnapshot struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	BatchID      string    `json:"batch_id" gorm:"size:36;index;not null"`
	ItemID       string    `json:"item_id" gorm:"size:96;index:idx_snapshot_item_city;not null"`
	City         string    `json:"city" gorm:"size:32;index:idx_snapshot_item_city"`
	Quality      int       `json:"quality"`
	SellPriceMin float64   `json:"sell_price_min"`
	BuyPriceMax  float64   `json:"buy_price_max"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}

// ScanRun records a completed profit scan.
type ScanRun struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	City       string    `json:"city" gorm:"size:32;index"`
	Endpoint   string    `json:"endpoint" gorm:"size:255"`
	Recipes    int       `json:"recipes"`
	Rows       int       `json:"rows"`
	TopItemID  string    `json:"top_item_id" gorm:"size:96"`
	TopProfit  float64   `json:"top_profit"`
	DurationMs int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at" gorm:"index"`
	CreatedAt  time.Time `json:"created_at"`
}
