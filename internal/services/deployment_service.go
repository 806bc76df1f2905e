package services

import (
	"context"

	"eventproxy/internal/models"
	apperrors "eventproxy/internal/pkg/errors"
	"eventproxy/internal/repository"
)

type DeploymentService interface {
	// Resolve returns the active deployment named name that belongs to an owner of event.
	Resolve(ctx context.Context, event *models.Event, name string) (*models.ModelDeployment, error)
	// ListActive returns the active deployments usable by event.
	ListActive(ctx context.Context, event *models.Event) ([]models.ModelDeployment, error)
}

type deploymentService struct {
	repo repository.DeploymentRepository
}

func NewDeploymentService(repo repository.DeploymentRepository) DeploymentService {
	return &deploymentService{repo: repo}
}

func (s *deploymentService) Resolve(ctx context.Context, event *models.Event, name string) (*models.ModelDeployment, error) {
	if event == nil || name == "" {
		return nil, apperrors.DeploymentNotFound(name)
	}

	deployments, err := s.repo.ListDeploymentsForEvent(ctx, event.ID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to look up deployment")
	}
	for i := range deployments {
		d := deployments[i]
		if d.DeploymentName == name && d.Active {
			return &d, nil
		}
	}
	return nil, apperrors.DeploymentNotFound(name)
}

func (s *deploymentService) ListActive(ctx context.Context, event *models.Event) ([]models.ModelDeployment, error) {
	deployments, err := s.repo.ListDeploymentsForEvent(ctx, event.ID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list deployments")
	}
	active := deployments[:0]
	for _, d := range deployments {
		if d.Active {
			active = append(active, d)
		}
	}
	return active, nil
}
