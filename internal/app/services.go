// Package app assembles the marketplace services shared by the binaries.
package app

import (
	"fmt"

	"github.com/angelmondragon/supplyhub-backend/internal/catalog"
	"github.com/angelmondragon/supplyhub-backend/internal/grouporders"
	"github.com/angelmondragon/supplyhub-backend/internal/ledger"
	"github.com/angelmondragon/supplyhub-backend/internal/notifications"
	"github.com/angelmondragon/supplyhub-backend/internal/orders"
	"github.com/angelmondragon/supplyhub-backend/internal/wallet"
	"github.com/angelmondragon/supplyhub-backend/pkg/config"
	"github.com/angelmondragon/supplyhub-backend/pkg/db"
	"github.com/angelmondragon/supplyhub-backend/pkg/logger"
	"github.com/angelmondragon/supplyhub-backend/pkg/metrics"
)

type Services struct {
	Products    catalog.Repository
	Ledger      ledger.Repository
	Catalog     catalog.Service
	Wallet      wallet.Service
	Audit       ledger.Service
	Orders      orders.Service
	GroupOrders grouporders.Service
}

type Params struct {
	DB       *db.Client
	Store    config.StoreConfig
	Notifier notifications.Notifier
	Logger   *logger.Logger
	Metrics  *metrics.Engine
}

// NewServices wires every service over one database client so wallet,
// order and group-order writes can share a transaction.
func NewServices(p Params) (*Services, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if p.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	products := catalog.NewRepository(p.DB.DB())
	catalogSvc, err := catalog.NewService(products, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("catalog service: %w", err)
	}

	ledgerRepo := ledger.NewRepository(p.DB.DB())
	audit, err := ledger.NewService(ledgerRepo)
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}
	walletSvc, err := wallet.NewService(ledgerRepo, p.DB, p.Logger, p.Metrics)
	if err != nil {
		return nil, fmt.Errorf("wallet service: %w", err)
	}

	ordersSvc, err := orders.NewService(orders.Deps{
		Repo:     orders.NewRepository(p.DB.DB()),
		Products: products,
		Escrow:   walletSvc,
		Tx:       p.DB,
		Notifier: p.Notifier,
		Logger:   p.Logger,
		Metrics:  p.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	groupSvc, err := grouporders.NewService(grouporders.Deps{
		Repo:     grouporders.NewRepository(p.DB.DB()),
		Products: products,
		Orders:   ordersSvc,
		Tx:       p.DB,
		Notifier: p.Notifier,
		Logger:   p.Logger,
		Metrics:  p.Metrics,
		Retry:    retryPolicy(p.Store),
	})
	if err != nil {
		return nil, fmt.Errorf("group orders service: %w", err)
	}

	return &Services{
		Products:    products,
		Ledger:      ledgerRepo,
		Catalog:     catalogSvc,
		Wallet:      walletSvc,
		Audit:       audit,
		Orders:      ordersSvc,
		GroupOrders: groupSvc,
	}, nil
}

// retryPolicy maps the store config onto a retry policy. Zero values fall
// back to db.DefaultRetryPolicy inside the group order service.
func retryPolicy(cfg config.StoreConfig) db.RetryPolicy {
	return db.RetryPolicy{MaxRetries: cfg.MutationRetries, BaseDelay: cfg.RetryBaseDelay}
}
