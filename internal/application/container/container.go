package container

import (
	"folio/internal/application/port"
	"folio/internal/application/service"
)

// Container 按需创建应用层服务，共享同一个仓储和行情源
type Container struct {
	store    port.Store
	quotes   port.QuoteProvider
	parallel int

	positionService *service.PositionService
	priceService    *service.PriceService
}

func New(store port.Store, quotes port.QuoteProvider, parallel int) *Container {
	return &Container{
		store:    store,
		quotes:   quotes,
		parallel: parallel,
	}
}

func (c *Container) Store() port.Store {
	return c.store
}

func (c *Container) PositionService() *service.PositionService {
	if c.positionService == nil {
		c.positionService = service.NewPositionService(c.store)
	}
	return c.positionService
}

func (c *Container) PriceService() *service.PriceService {
	if c.priceService == nil {
		c.priceService = service.NewPriceService(c.PositionService(), c.quotes, c.parallel)
	}
	return c.priceService
}

func (c *Container) Close() error {
	return c.store.Close()
}
