package database

import (
	"time"
)

// ModelRecord persists one vehicle model. The named functions are kept
// as a JSON document: they are only ever read back as a whole.
type ModelRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:50;not null" json:"name"`
	Type      string    `gorm:"size:20;not null" json:"type"`
	Devices   string    `gorm:"type:text" json:"devices"` // JSON array of {name, index}
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for ModelRecord
func (ModelRecord) TableName() string {
	return "vehicle_models"
}

// VehicleRecord persists one vehicle registration
type VehicleRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	VehicleID string    `gorm:"uniqueIndex;size:50;not null" json:"vehicle_id"`
	Address   int       `gorm:"uniqueIndex;not null" json:"address"`
	Model     string    `gorm:"size:50" json:"model"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for VehicleRecord
func (VehicleRecord) TableName() string {
	return "vehicles"
}

// ConsistRecord persists one consist and its member assignments
type ConsistRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	ConsistID string    `gorm:"uniqueIndex;size:50;not null" json:"consist_id"`
	Address   int       `gorm:"not null" json:"address"`
	Members   string    `gorm:"type:text" json:"members"` // JSON array of {vehicle, mode}
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for ConsistRecord
func (ConsistRecord) TableName() string {
	return "consists"
}

// StationSettings persists the operator-adjustable channel settings.
// There is a single row.
type StationSettings struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	PinA      int       `json:"pin_a"`
	PinB      int       `json:"pin_b"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for StationSettings
func (StationSettings) TableName() string {
	return "station_settings"
}

// CaptureEntry persists one diagnostic capture record
type CaptureEntry struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Time      time.Time `gorm:"index;not null" json:"time"`
	Topic     string    `gorm:"size:20;index" json:"topic"`
	Tag       string    `gorm:"size:20" json:"tag"`
	Text      string    `gorm:"type:text" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for CaptureEntry
func (CaptureEntry) TableName() string {
	return "capture_entries"
}
