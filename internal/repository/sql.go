package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/m2tx/function_calling/internal/model"
)

// dispatchRow is the SQL shape of a DispatchRecord. Nested values are stored as JSON text.
type dispatchRow struct {
	ID           string `gorm:"primaryKey"`
	Query        string `gorm:"type:text"`
	State        string `gorm:"index;not null"`
	FunctionCall string `gorm:"type:text"`
	Arguments    string `gorm:"type:text"`
	Result       string `gorm:"type:text"`
	Answer       string `gorm:"type:text"`
	ErrorKind    string `gorm:"index"`
	Error        string `gorm:"type:text"`
	CreatedAt    time.Time
}

func (dispatchRow) TableName() string { return "dispatches" }

// SQLDispatchRepository implements DispatchRepository with gorm.
type SQLDispatchRepository struct {
	db *gorm.DB
}

// OpenSQLDispatchRepository opens driver ("sqlite" or "postgres") at dsn and migrates the schema.
func OpenSQLDispatchRepository(driver, dsn string) (*SQLDispatchRepository, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("repository: unsupported sql driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("repository: open %s: %w", driver, err)
	}

	return NewSQLDispatchRepository(db)
}

// NewSQLDispatchRepository wraps an open gorm connection and migrates the schema.
func NewSQLDispatchRepository(db *gorm.DB) (*SQLDispatchRepository, error) {
	if err := db.AutoMigrate(&dispatchRow{}); err != nil {
		return nil, fmt.Errorf("repository: migrate dispatches: %w", err)
	}
	return &SQLDispatchRepository{db: db}, nil
}

func (r *SQLDispatchRepository) Save(ctx context.Context, record model.DispatchRecord) error {
	row, err := toRow(record)
	if err != nil {
		return fmt.Errorf("repository: encode dispatch %q: %w", record.ID, err)
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("repository: upsert dispatch %q: %w", record.ID, err)
	}

	return nil
}

func (r *SQLDispatchRepository) Load(ctx context.Context, id string) (*model.DispatchRecord, error) {
	var row dispatchRow
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: find dispatch %q: %w", id, err)
	}

	record, err := fromRow(row)
	if err != nil {
		return nil, fmt.Errorf("repository: decode dispatch %q: %w", id, err)
	}

	return record, nil
}

func (r *SQLDispatchRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&dispatchRow{}).Error
	if err != nil {
		return fmt.Errorf("repository: delete dispatch %q: %w", id, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (r *SQLDispatchRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(record model.DispatchRecord) (dispatchRow, error) {
	row := dispatchRow{
		ID:        record.ID,
		Query:     record.Query,
		State:     record.State,
		Answer:    record.Answer,
		ErrorKind: record.ErrorKind,
		Error:     record.Error,
		CreatedAt: record.CreatedAt,
	}

	var err error
	if row.FunctionCall, err = marshalOptional(record.FunctionCall, record.FunctionCall == nil); err != nil {
		return row, err
	}
	if row.Arguments, err = marshalOptional(record.Arguments, record.Arguments == nil); err != nil {
		return row, err
	}
	if row.Result, err = marshalOptional(record.Result, record.Result == nil); err != nil {
		return row, err
	}

	return row, nil
}

func fromRow(row dispatchRow) (*model.DispatchRecord, error) {
	record := &model.DispatchRecord{
		ID:        row.ID,
		Query:     row.Query,
		State:     row.State,
		Answer:    row.Answer,
		ErrorKind: row.ErrorKind,
		Error:     row.Error,
		CreatedAt: row.CreatedAt,
	}

	if row.FunctionCall != "" {
		if err := json.Unmarshal([]byte(row.FunctionCall), &record.FunctionCall); err != nil {
			return nil, err
		}
	}
	if row.Arguments != "" {
		if err := json.Unmarshal([]byte(row.Arguments), &record.Arguments); err != nil {
			return nil, err
		}
	}
	if row.Result != "" {
		if err := json.Unmarshal([]byte(row.Result), &record.Result); err != nil {
			return nil, err
		}
	}

	return record, nil
}

func marshalOptional(v any, empty bool) (string, error) {
	if empty {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
