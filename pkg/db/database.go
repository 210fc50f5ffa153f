package db

import (
	"time"

	"github.com/localdns/localdns/pkg/model"
)

type Database interface {
	CreateRecord(input model.RecordRequest) (Record, error)
	ListRecords() ([]Record, error)
	ActiveRecords() ([]Record, error)
	GetRecord(id uint) (Record, error)
	UpdateRecord(id uint, patch model.RecordPatch) (Record, error)
	DeleteRecord(id uint) error

	AppendLog(entry QueryLog) error
	RecentLogs(limit int) ([]QueryLog, error)
	CleanupLogs(olderThan time.Duration) (int64, error)

	ListSettings() ([]Setting, error)
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}
