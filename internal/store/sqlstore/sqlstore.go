package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/tckz/gcp-view-counter/internal/counter"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	_ counter.Store       = (*Store)(nil)
	_ counter.Incrementer = (*Store)(nil)
	_ counter.Creator     = (*Store)(nil)
)

// viewCount maps to view_counts. A NULL views column is a record without the views field.
type viewCount struct {
	ID    int64 `gorm:"primaryKey;autoIncrement:false"`
	Views *int64
}

func (viewCount) TableName() string {
	return "view_counts"
}

func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm.Open: %w", err)
	}
	return db, nil
}

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the view_counts table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&viewCount{}); err != nil {
		return fmt.Errorf("%w: AutoMigrate: %w", counter.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*counter.Record, error) {
	var row viewCount
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, mapError("First", err)
	}
	return &counter.Record{ID: row.ID, Views: row.Views}, nil
}

func (s *Store) Put(ctx context.Context, rec *counter.Record) error {
	row := viewCount{ID: rec.ID, Views: rec.Views}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return mapError("Save", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, rec *counter.Record) error {
	row := viewCount{ID: rec.ID, Views: rec.Views}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return mapError("Create", res.Error)
	}
	if res.RowsAffected == 0 {
		return counter.ErrRecordExists
	}
	return nil
}

func (s *Store) Increment(ctx context.Context, id int64, delta int64) (int64, error) {
	var views int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row viewCount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&row).Error; err != nil {
			return err
		}
		if row.Views == nil {
			return counter.ErrMissingField
		}

		views = *row.Views + delta
		return tx.Model(&viewCount{}).Where("id = ?", id).UpdateColumn("views", gorm.Expr("views + ?", delta)).Error
	})
	if err != nil {
		return 0, mapError("Increment", err)
	}
	return views, nil
}

func mapError(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return counter.ErrRecordNotFound
	case errors.Is(err, counter.ErrMissingField):
		return err
	default:
		return fmt.Errorf("%w: %s: %w", counter.ErrStoreUnavailable, op, err)
	}
}
