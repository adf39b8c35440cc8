package models

import "time"

// OperationLog is the durable copy of a terminal operation's log buffer,
// written once when the operation completes or fails.
type OperationLog struct {
	ID              uint   `gorm:"primaryKey"`
	OperationID     string `gorm:"size:64;not null;uniqueIndex"`
	ProjectID       uint   `gorm:"index"`
	Verb            string `gorm:"size:32;not null"`
	Status          string `gorm:"size:32;not null"`
	Error           string `gorm:"type:text"`
	LogsJSON        string `gorm:"type:text"`
	DurationSeconds int
	CreatedAt       time.Time
}
