package gormstore

import "time"

// KeyValue mirrors the key_values table.
type KeyValue struct {
	Key       string    `gorm:"column:storage_key;primaryKey"`
	Value     string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (KeyValue) TableName() string { return "key_values" }
