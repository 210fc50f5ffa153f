package db

import (
	"time"
)

type Record struct {
	ID            uint   `gorm:"primarykey" json:"id"`
	DomainPattern string `gorm:"not null" json:"domain_pattern"`
	RecordType    string `gorm:"not null" json:"record_type"`
	Content       string `gorm:"not null" json:"content"`
	TTL           int    `gorm:"not null;default:60" json:"ttl"`
	Active        bool   `gorm:"not null;default:true;index" json:"active"`
}

type QueryLog struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	QueryName  string    `gorm:"not null" json:"query_name"`
	QType      string    `gorm:"not null" json:"q_type"`
	ResultType string    `gorm:"not null" json:"result_type"`
	DurationMs int64     `gorm:"not null" json:"duration_ms"`
	Timestamp  time.Time `gorm:"not null;index" json:"timestamp"`
}

type Setting struct {
	Key   string `gorm:"primarykey" json:"key"`
	Value string `gorm:"not null" json:"value"`
}
