package models

import "time"

// Generation is the durable record of one pipeline session. FilesJSON and
// EventsJSON hold the artifact set and the ordered event history so a client
// can rehydrate after a reload.
type Generation struct {
	ID            uint           `gorm:"primaryKey"`
	SessionID     string         `gorm:"size:64;not null;uniqueIndex"`
	ProjectID     uint           `gorm:"index"`
	RepositoryURL string         `gorm:"size:512;not null"`
	TemplateKind  string         `gorm:"size:64"`
	Status        WorkflowStatus `gorm:"size:32;not null"`
	Error         string         `gorm:"type:text"`
	FilesJSON     string         `gorm:"type:text"`
	EventsJSON    string         `gorm:"type:text"`
	ContextJSON   string         `gorm:"type:text"`
	PRBranch      string         `gorm:"size:255"`
	PRURL         string         `gorm:"size:512"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
