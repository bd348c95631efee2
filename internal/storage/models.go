package storage

import "time"

// PrinterSnapshot is the relational row behind GormStore.
type PrinterSnapshot struct {
	DeviceKey string    `gorm:"primaryKey;size:128" json:"device_key"`
	Version   int64     `gorm:"not null" json:"version"`
	State     []byte    `gorm:"not null" json:"state"` // JSON document
	UpdatedAt time.Time `json:"updated_at"`
}

func (PrinterSnapshot) TableName() string { return "printer_snapshots" }
