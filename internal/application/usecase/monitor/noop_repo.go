package monitor

import (
	"context"

	"folio/internal/application/port"
	"folio/internal/domain/model"
)

type noopRepo struct{}

// NewNoopRepo 不做持久化的提醒仓储，进程退出后提醒丢失
func NewNoopRepo() port.AlertRepository { return &noopRepo{} }

func (n *noopRepo) ListAlerts(ctx context.Context) ([]*model.PriceAlert, error) {
	return nil, nil
}
func (n *noopRepo) SaveAlert(ctx context.Context, alert *model.PriceAlert) error {
	return nil
}
func (n *noopRepo) DeleteAlert(ctx context.Context, id string) error {
	return nil
}
