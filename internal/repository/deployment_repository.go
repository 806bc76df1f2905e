package repository

import (
	"context"

	"eventproxy/internal/models"
	apperrors "eventproxy/internal/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeploymentRepository interface {
	// ListDeploymentsForEvent returns every deployment, active or not, owned by an
	// owner associated with the event.
	ListDeploymentsForEvent(ctx context.Context, eventID uuid.UUID) ([]models.ModelDeployment, error)
}

type deploymentRepository struct {
	db *gorm.DB
}

func NewDeploymentRepository(db *gorm.DB) DeploymentRepository {
	return &deploymentRepository{db: db}
}

func (r *deploymentRepository) ListDeploymentsForEvent(ctx context.Context, eventID uuid.UUID) ([]models.ModelDeployment, error) {
	var deployments []models.ModelDeployment
	err := r.db.WithContext(ctx).
		Table("model_deployments AS d").
		Select("d.*").
		Joins("JOIN owner_event_map m ON m.owner_id = d.owner_id").
		Where("m.event_id = ?", eventID).
		Order("d.deployment_name").
		Find(&deployments).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list deployments for event")
	}
	return deployments, nil
}
