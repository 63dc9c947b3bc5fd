// Package database persists matched batches and fair values for later
// analysis. SQLite by default, PostgreSQL when a DSN is configured.
package database

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

// Models

// Batch is one matching run that produced at least one fill.
type Batch struct {
	ID         string          `gorm:"primaryKey"`
	MarketSlug string          `gorm:"index"`
	Capital    decimal.Decimal `gorm:"type:decimal(20,6)"`
	Profit     decimal.Decimal `gorm:"type:decimal(20,6)"`
	Return     decimal.Decimal `gorm:"type:decimal(12,8)"`
	Margin     decimal.Decimal `gorm:"type:decimal(10,6)"`
	Fills      int
	MatchedAt  time.Time
	CreatedAt  time.Time
}

// Fill is one matched order pair inside a batch.
type Fill struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	BatchID   string `gorm:"index"`
	MarketA   string
	MarketB   string
	PriceA    decimal.Decimal `gorm:"type:decimal(10,6)"`
	PriceB    decimal.Decimal `gorm:"type:decimal(10,6)"`
	Size      int64
	Capital   decimal.Decimal `gorm:"type:decimal(20,6)"`
	Profit    decimal.Decimal `gorm:"type:decimal(20,6)"`
	CreatedAt time.Time
}

// FairValueRecord is one outcome's consensus probability at a point in time.
type FairValueRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	MarketSlug string `gorm:"index"`
	Outcome    string
	Consensus  decimal.Decimal `gorm:"type:decimal(18,16)"`
	Sources    string          // comma-joined source identifiers
	ComputedAt time.Time
	CreatedAt  time.Time
}

// New opens the database. A postgres:// DSN selects PostgreSQL, anything
// else is treated as a SQLite path.
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&Batch{}, &Fill{}, &FairValueRecord{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// SaveBatch stores a batch and its fills in one transaction.
func (d *Database) SaveBatch(batch *Batch, fills []Fill) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		for i := range fills {
			fills[i].BatchID = batch.ID
		}
		if len(fills) == 0 {
			return nil
		}
		return tx.Create(&fills).Error
	})
}

// SaveFairValues stores a set of fair value records.
func (d *Database) SaveFairValues(records []FairValueRecord) error {
	if len(records) == 0 {
		return nil
	}
	return d.db.Create(&records).Error
}

// RecentBatches returns the latest batches, newest first.
func (d *Database) RecentBatches(limit int) ([]Batch, error) {
	var batches []Batch
	err := d.db.Order("created_at DESC").Limit(limit).Find(&batches).Error
	return batches, err
}

// BatchFills returns the fills of one batch.
func (d *Database) BatchFills(batchID string) ([]Fill, error) {
	var fills []Fill
	err := d.db.Where("batch_id = ?", batchID).Order("id").Find(&fills).Error
	return fills, err
}

// TotalProfit sums the theoretical profit across all stored batches.
func (d *Database) TotalProfit() (decimal.Decimal, error) {
	var batches []Batch
	if err := d.db.Find(&batches).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, b := range batches {
		total = total.Add(b.Profit)
	}
	return total, nil
}

// Close releases the underlying connection.
func (d *Database) Close() {
	if sqlDB, err := d.db.DB(); err == nil {
		sqlDB.Close()
	}
}
