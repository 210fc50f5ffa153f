package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/localdns/localdns/pkg/model"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type database struct {
	db *gorm.DB
}

// New creates a new database connection, migrates the schema and seeds
// the default settings.
func New(ctx context.Context, dialect string, dsn string, config *gorm.Config) (Database, error) {
	if config == nil {
		config = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	}

	var db *gorm.DB
	var err error

	if dialect == "sqlite" {
		db, err = gorm.Open(sqlite.Open(dsn), config)
	} else if dialect == "mysql" {
		db, err = gorm.Open(mysql.Open(dsn), config)
	} else {
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}

	if err != nil {
		return nil, err
	}

	db = db.WithContext(ctx)

	if err := db.AutoMigrate(
		&Record{},
		&QueryLog{},
		&Setting{},
	); err != nil {
		return nil, err
	}

	for key, value := range model.DefaultSettings() {
		sql := db.Where(Setting{Key: key}).FirstOrCreate(&Setting{Key: key, Value: value})
		if sql.Error != nil {
			return nil, sql.Error
		}
	}

	d := &database{
		db: db,
	}
	return d, nil
}

// validateRecord enforces the store-level input contract. All failures
// wrap model.ErrInvalid.
func validateRecord(pattern, rType, content string, ttl int) error {
	if pattern == "" {
		return fmt.Errorf("%w: domain pattern must be provided", model.ErrInvalid)
	}
	if len(pattern) > model.MaxNameLength {
		return fmt.Errorf("%w: domain pattern exceeds %d characters", model.ErrInvalid, model.MaxNameLength)
	}

	if err := model.IsValidRecordType(rType); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalid, err)
	}

	switch rType {
	case model.RecordTypeA:
		ip := net.ParseIP(content)
		if ip == nil || strings.Contains(content, ":") {
			return fmt.Errorf("%w: content %v is not a valid IPv4 address", model.ErrInvalid, content)
		}
	case model.RecordTypeAAAA:
		ip := net.ParseIP(content)
		if ip == nil || !strings.Contains(content, ":") {
			return fmt.Errorf("%w: content %v is not a valid IPv6 address", model.ErrInvalid, content)
		}
	case model.RecordTypeCname:
		if content == "" {
			return fmt.Errorf("%w: cname target must be provided", model.ErrInvalid)
		}
		if len(content) > model.MaxNameLength {
			return fmt.Errorf("%w: cname target exceeds %d characters", model.ErrInvalid, model.MaxNameLength)
		}
	}

	if ttl < 0 || ttl > model.MaxTTL {
		return fmt.Errorf("%w: ttl must be between 0 and %d", model.ErrInvalid, model.MaxTTL)
	}

	return nil
}

func (d *database) CreateRecord(input model.RecordRequest) (Record, error) {
	ttl := model.DefaultTTL
	if input.TTL != nil {
		ttl = *input.TTL
	}

	if err := validateRecord(input.DomainPattern, input.RecordType, input.Content, ttl); err != nil {
		return Record{}, err
	}

	record := Record{
		DomainPattern: input.DomainPattern,
		RecordType:    input.RecordType,
		Content:       input.Content,
		TTL:           ttl,
		Active:        true,
	}

	sql := d.db.Create(&record)
	if sql.Error != nil {
		return record, sql.Error
	}

	// gorm writes the column default in place of a zero TTL on insert, so
	// an explicit TTL of 0 is stored in a second step.
	if record.TTL != ttl {
		record.TTL = ttl
		sql = d.db.Model(&record).Update("ttl", ttl)
	}
	return record, sql.Error
}

func (d *database) ListRecords() ([]Record, error) {
	var records []Record
	sql := d.db.Order("id").Find(&records)
	return records, sql.Error
}

func (d *database) ActiveRecords() ([]Record, error) {
	var records []Record
	sql := d.db.Where("active = ?", true).Order("id").Find(&records)
	return records, sql.Error
}

func (d *database) GetRecord(id uint) (Record, error) {
	var record Record
	sql := d.db.First(&record, id)
	if errors.Is(sql.Error, gorm.ErrRecordNotFound) {
		return Record{}, fmt.Errorf("%w: record %d", model.ErrNotFound, id)
	}
	return record, sql.Error
}

func (d *database) UpdateRecord(id uint, patch model.RecordPatch) (Record, error) {
	record, err := d.GetRecord(id)
	if err != nil {
		return Record{}, err
	}

	if patch.DomainPattern != nil {
		record.DomainPattern = *patch.DomainPattern
	}
	if patch.RecordType != nil {
		record.RecordType = *patch.RecordType
	}
	if patch.Content != nil {
		record.Content = *patch.Content
	}
	if patch.TTL != nil {
		record.TTL = *patch.TTL
	}
	if patch.Active != nil {
		record.Active = *patch.Active
	}

	if err := validateRecord(record.DomainPattern, record.RecordType, record.Content, record.TTL); err != nil {
		return Record{}, err
	}

	sql := d.db.Save(&record)
	return record, sql.Error
}

func (d *database) DeleteRecord(id uint) error {
	sql := d.db.Delete(&Record{}, id)
	if sql.Error != nil {
		return sql.Error
	}
	if sql.RowsAffected == 0 {
		return fmt.Errorf("%w: record %d", model.ErrNotFound, id)
	}
	return nil
}

func (d *database) AppendLog(entry QueryLog) error {
	entry.ID = 0
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	sql := d.db.Create(&entry)
	return sql.Error
}

func (d *database) RecentLogs(limit int) ([]QueryLog, error) {
	if limit <= 0 {
		limit = 100
	}

	var logs []QueryLog
	sql := d.db.Order("timestamp DESC, id DESC").Limit(limit).Find(&logs)
	return logs, sql.Error
}

func (d *database) CleanupLogs(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	sql := d.db.Where("timestamp < ?", cutoff).Delete(&QueryLog{})
	return sql.RowsAffected, sql.Error
}

func (d *database) ListSettings() ([]Setting, error) {
	var settings []Setting
	sql := d.db.Order("key").Find(&settings)
	return settings, sql.Error
}

func (d *database) GetSetting(key string) (string, error) {
	var setting Setting
	sql := d.db.First(&setting, "key = ?", key)
	if errors.Is(sql.Error, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: setting %s", model.ErrNotFound, key)
	}
	return setting.Value, sql.Error
}

func (d *database) SetSetting(key, value string) error {
	setting := Setting{Key: key, Value: value}
	sql := d.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&setting)
	return sql.Error
}
