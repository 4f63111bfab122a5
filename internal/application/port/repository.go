package port

import (
	"context"

	"folio/internal/domain/model"
)

// PositionRepository 持仓的持久化
type PositionRepository interface {
	// List returns every position ordered by date added, newest first.
	List(ctx context.Context) ([]*model.Position, error)
	Create(ctx context.Context, pos *model.Position) error
	Update(ctx context.Context, pos *model.Position) error
	Delete(ctx context.Context, id string) error
}

// AlertRepository 价格提醒的持久化
type AlertRepository interface {
	ListAlerts(ctx context.Context) ([]*model.PriceAlert, error)
	// SaveAlert inserts or replaces the alert by id.
	SaveAlert(ctx context.Context, alert *model.PriceAlert) error
	DeleteAlert(ctx context.Context, id string) error
}

// Store 一个后端同时提供两类仓储
type Store interface {
	PositionRepository
	AlertRepository
	Close() error
}
