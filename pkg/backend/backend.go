package backend

import (
	"github.com/localdns/localdns/pkg/db"
	"github.com/localdns/localdns/pkg/model"
)

// Backend is the control surface the management layer talks to. Durable
// mutations go through the store and are then made visible to the query
// path (cache reload, upstream config swap).
type Backend interface {
	CreateRecord(input model.RecordRequest) (db.Record, error)
	GetRecord(id uint) (db.Record, error)
	ListRecords() ([]db.Record, error)
	UpdateRecord(id uint, patch model.RecordPatch) (db.Record, error)
	DeleteRecord(id uint) error

	RecentLogs(limit int) ([]db.QueryLog, error)

	ListSettings() ([]db.Setting, error)
	SetSetting(key, value string) error
}
