package repository

import (
	"context"
	"errors"

	"eventproxy/internal/models"
	apperrors "eventproxy/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

type ChartRepository interface {
	// AppendChartData writes point once per (event, period). It reports false,
	// without error, when the period was already written.
	AppendChartData(ctx context.Context, point *models.ChartData) (bool, error)
	ListChartData(ctx context.Context, eventID uuid.UUID) ([]models.ChartData, error)
}

type chartRepository struct {
	db *gorm.DB
}

func NewChartRepository(db *gorm.DB) ChartRepository {
	return &chartRepository{db: db}
}

func (r *chartRepository) AppendChartData(ctx context.Context, point *models.ChartData) (bool, error) {
	point.DateStamp = models.Period(point.DateStamp)
	err := r.db.WithContext(ctx).Create(point).Error
	if err == nil {
		return true, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return false, nil
	}
	return false, apperrors.Wrap(err, "failed to append chart data")
}

func (r *chartRepository) ListChartData(ctx context.Context, eventID uuid.UUID) ([]models.ChartData, error) {
	var points []models.ChartData
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("date_stamp").Find(&points).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list chart data")
	}
	return points, nil
}
