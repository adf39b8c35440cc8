package repositories

import (
	"fmt"

	"gorm.io/gorm"

	"infraforge/internal/models"
)

type OperationLogRepository interface {
	Save(entry *models.OperationLog) error
	ListByProject(projectID uint, verb string, limit int) ([]models.OperationLog, error)
}

type operationLogRepository struct {
	db *gorm.DB
}

func NewOperationLogRepository(db *gorm.DB) OperationLogRepository {
	return &operationLogRepository{db: db}
}

func (r *operationLogRepository) Save(entry *models.OperationLog) error {
	if entry == nil {
		return fmt.Errorf("entry is required")
	}
	if entry.OperationID == "" {
		return fmt.Errorf("operation ID is required")
	}
	return r.db.Create(entry).Error
}

func (r *operationLogRepository) ListByProject(projectID uint, verb string, limit int) ([]models.OperationLog, error) {
	if limit <= 0 {
		limit = 10
	}
	q := r.db.Where("project_id = ?", projectID)
	if verb != "" {
		q = q.Where("verb = ?", verb)
	}
	var entries []models.OperationLog
	res := q.Order("created_at desc").Limit(limit).Find(&entries)
	if res.Error != nil {
		return nil, res.Error
	}
	return entries, nil
}
