package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"infraforge/internal/models"
)

type ProjectRepository interface {
	Create(project *models.Project) error
	GetByID(id uint) (*models.Project, error)
	List(limit, offset int) ([]models.Project, error)
	UpdateGenerationStatus(id uint, status models.WorkflowStatus) error
	UpdateDeploymentStatus(id uint, status models.DeploymentStatus) error
	UpdateApplicationURL(id uint, url string) error
}

type projectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

func (r *projectRepository) Create(project *models.Project) error {
	if project == nil {
		return fmt.Errorf("project is required")
	}
	return r.db.Create(project).Error
}

func (r *projectRepository) GetByID(id uint) (*models.Project, error) {
	var project models.Project
	res := r.db.Take(&project, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, res.Error
	}
	return &project, nil
}

func (r *projectRepository) List(limit, offset int) ([]models.Project, error) {
	if limit <= 0 {
		limit = 50
	}
	var projects []models.Project
	res := r.db.Order("updated_at desc").Limit(limit).Offset(offset).Find(&projects)
	if res.Error != nil {
		return nil, res.Error
	}
	return projects, nil
}

func (r *projectRepository) UpdateGenerationStatus(id uint, status models.WorkflowStatus) error {
	return r.db.Model(&models.Project{}).Where("id = ?", id).
		Update("status", status).Error
}

func (r *projectRepository) UpdateDeploymentStatus(id uint, status models.DeploymentStatus) error {
	return r.db.Model(&models.Project{}).Where("id = ?", id).
		Update("deployment_status", status).Error
}

func (r *projectRepository) UpdateApplicationURL(id uint, url string) error {
	return r.db.Model(&models.Project{}).Where("id = ?", id).
		Update("application_url", url).Error
}
