package models

import "time"

// Project is one imported source repository with its cloud connection data.
type Project struct {
	ID               uint             `gorm:"primaryKey"`
	Name             string           `gorm:"size:255;not null"`
	RepositoryURL    string           `gorm:"size:512;not null"`
	TemplateKind     string           `gorm:"size:64"`
	CredentialRef    string           `gorm:"size:512"`
	ExternalID       string           `gorm:"size:255"`
	Region           string           `gorm:"size:64"`
	Status           WorkflowStatus   `gorm:"size:32;default:not_started"`
	DeploymentStatus DeploymentStatus `gorm:"size:32;default:not_started"`
	ApplicationURL   string           `gorm:"size:512"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
