package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"infraforge/internal/models"
)

type GenerationRepository interface {
	Create(generation *models.Generation) error
	GetBySessionID(sessionID string) (*models.Generation, error)
	LatestByProject(projectID uint) (*models.Generation, error)
	ListByProject(projectID uint, limit int) ([]models.Generation, error)
	UpdateStatus(sessionID string, status models.WorkflowStatus) error
	MarkTerminal(sessionID string, status models.WorkflowStatus, errMsg, filesJSON, eventsJSON, contextJSON string) error
	AttachPullRequest(sessionID, branch, url string) error
}

type generationRepository struct {
	db *gorm.DB
}

func NewGenerationRepository(db *gorm.DB) GenerationRepository {
	return &generationRepository{db: db}
}

func (r *generationRepository) Create(generation *models.Generation) error {
	if generation == nil {
		return fmt.Errorf("generation is required")
	}
	if generation.SessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	return r.db.Create(generation).Error
}

func (r *generationRepository) GetBySessionID(sessionID string) (*models.Generation, error) {
	var gen models.Generation
	res := r.db.Where("session_id = ?", sessionID).Take(&gen)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, res.Error
	}
	return &gen, nil
}

func (r *generationRepository) LatestByProject(projectID uint) (*models.Generation, error) {
	var gen models.Generation
	res := r.db.Where("project_id = ?", projectID).Order("created_at desc").Take(&gen)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, res.Error
	}
	return &gen, nil
}

func (r *generationRepository) ListByProject(projectID uint, limit int) ([]models.Generation, error) {
	if limit <= 0 {
		limit = 20
	}
	var gens []models.Generation
	res := r.db.Where("project_id = ?", projectID).Order("created_at desc").Limit(limit).Find(&gens)
	if res.Error != nil {
		return nil, res.Error
	}
	return gens, nil
}

func (r *generationRepository) UpdateStatus(sessionID string, status models.WorkflowStatus) error {
	return r.db.Model(&models.Generation{}).Where("session_id = ?", sessionID).
		Update("status", status).Error
}

func (r *generationRepository) MarkTerminal(sessionID string, status models.WorkflowStatus, errMsg, filesJSON, eventsJSON, contextJSON string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}
	return r.db.Model(&models.Generation{}).Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"status":       status,
			"error":        errMsg,
			"files_json":   filesJSON,
			"events_json":  eventsJSON,
			"context_json": contextJSON,
		}).Error
}

func (r *generationRepository) AttachPullRequest(sessionID, branch, url string) error {
	return r.db.Model(&models.Generation{}).Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"pr_branch": branch,
			"pr_url":    url,
		}).Error
}
