package snapshot

import (
	"context"
	"fmt"

	"albion-crafter/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store persists snapshot batches and scan runs.
type Store interface {
	InsertSnapshots(ctx context.Context, snaps []Snapshot) (batchID string, inserted int, err error)
	RecordScanRun(ctx context.Context, run *models.ScanRun) error
	Latest(ctx context.Context, itemID string, limit int) ([]models.PriceSnapshot, error)
}

// GormStore is the MySQL-backed Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// InsertSnapshots writes one batch under a fresh batch id.
func (s *GormStore) InsertSnapshots(ctx context.Context, snaps []Snapshot) (string, int, error) {
	batchID := uuid.New().String()
	if len(snaps) == 0 {
		return batchID, 0, nil
	}

	records := make([]models.PriceSnapshot, len(snaps))
	for i, snap := range snaps {
		records[i] = models.PriceSnapshot{
			BatchID:      batchID,
			ItemID:       snap.ItemID,
			City:         snap.City,
			Quality:      snap.Quality,
			SellPriceMin: snap.SellPriceMin,
			BuyPriceMax:  snap.BuyPriceMax,
		}
	}

	result := s.db.WithContext(ctx).CreateInBatches(records, DefaultBatchSize)
	if result.Error != nil {
		return batchID, 0, fmt.Errorf("insert snapshots: %w", result.Error)
	}
	return batchID, int(result.RowsAffected), nil
}

func (s *GormStore) RecordScanRun(ctx context.Context, run *models.ScanRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("record scan run: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshots for an item, newest first.
func (s *GormStore) Latest(ctx context.Context, itemID string, limit int) ([]models.PriceSnapshot, error) {
	var out []models.PriceSnapshot
	err := s.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
