// Package store persists the trade journal: entries placed, exits
// ensured and emergency halts, with raw exchange payloads kept for
// post-mortems.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OrderRecord is one entry order, real or dry-run.
type OrderRecord struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	Symbol    string `gorm:"index"`
	SignalID  string `gorm:"index"`
	Side      string
	Quantity  float64
	Price     float64
	Status    string
	DryRun    bool
	Raw       datatypes.JSON
}

// ExitRecord is one ensure outcome (sl or tp).
type ExitRecord struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	Symbol    string `gorm:"index"`
	Kind      string // sl | tp
	Status    string
	Reason    string
	StopPrice float64
	Placed    int
	Skipped   int
	Fails     int
}

// HaltRecord is one emergency stop with the metrics at trigger time.
type HaltRecord struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	Reason    string
	DailyPnL  float64
	Balance   float64
	Drawdown  float64
}

// Store is the SQLite-backed journal.
type Store struct {
	db *gorm.DB
}

// Open creates or opens the journal at path and migrates the schema.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: journal path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.AutoMigrate(&OrderRecord{}, &ExitRecord{}, &HaltRecord{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) RecordOrder(rec OrderRecord) error {
	return s.db.Create(&rec).Error
}

func (s *Store) RecordExit(rec ExitRecord) error {
	return s.db.Create(&rec).Error
}

func (s *Store) RecordHalt(rec HaltRecord) error {
	return s.db.Create(&rec).Error
}

// RecentOrders returns up to limit orders, newest first.
func (s *Store) RecentOrders(limit int) ([]OrderRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []OrderRecord
	err := s.db.Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
