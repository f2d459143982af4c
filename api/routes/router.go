package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/supplyhub-backend/api/controllers"
	"github.com/angelmondragon/supplyhub-backend/api/middleware"
	"github.com/angelmondragon/supplyhub-backend/internal/catalog"
	"github.com/angelmondragon/supplyhub-backend/internal/grouporders"
	"github.com/angelmondragon/supplyhub-backend/internal/ledger"
	"github.com/angelmondragon/supplyhub-backend/internal/orders"
	"github.com/angelmondragon/supplyhub-backend/internal/wallet"
	"github.com/angelmondragon/supplyhub-backend/pkg/config"
	"github.com/angelmondragon/supplyhub-backend/pkg/db"
	"github.com/angelmondragon/supplyhub-backend/pkg/logger"
	"github.com/angelmondragon/supplyhub-backend/pkg/redis"
)

// NewRouter mounts the public health probes, the optional metrics endpoint
// and the authenticated /api/v1 surface. A nil redisClient disables
// idempotency replay, which is only acceptable for local sqlite runs.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	metricsHandler http.Handler,
	catalogService catalog.Service,
	walletService wallet.Service,
	ledgerService ledger.Service,
	ordersService orders.Service,
	groupOrdersService grouporders.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	ready := map[string]controllers.Pinger{}
	if dbP != nil {
		ready["db"] = dbP
	}
	var idemStore redis.IdempotencyStore
	if redisClient != nil {
		ready["redis"] = redisClient
		idemStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, ready))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idemStore, cfg.Redis.IdempotencyTTL, logg))

		r.Route("/products", func(r chi.Router) {
			r.Post("/", controllers.CreateProduct(catalogService, logg))
			r.Get("/mine", controllers.ListMyProducts(catalogService, logg))
			r.Get("/{productId}", controllers.GetProduct(catalogService, logg))
			r.Post("/{productId}/restock", controllers.RestockProduct(catalogService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(ordersService, logg))
			r.Get("/", controllers.ListOrders(ordersService, logg))
			r.Get("/{orderId}", controllers.GetOrder(ordersService, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(ordersService, logg))
			r.Post("/{orderId}/pay", controllers.PayOrder(ordersService, logg))
			r.Post("/{orderId}/status", controllers.UpdateOrderStatus(ordersService, logg))
			r.Post("/{orderId}/confirm-delivery", controllers.ConfirmDelivery(ordersService, logg))
			r.Post("/{orderId}/refund", controllers.RefundOrder(ordersService, logg))
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.GetWallet(walletService, logg))
			r.Post("/top-up", controllers.TopUpWallet(walletService, logg))
			r.Post("/withdraw", controllers.WithdrawWallet(walletService, logg))
			r.Get("/transactions", controllers.ListWalletTransactions(walletService, logg))
			r.Get("/reconciliation", controllers.ReconcileWallet(ledgerService, logg))
		})

		r.Route("/escrows", func(r chi.Router) {
			r.Get("/{escrowId}", controllers.GetEscrow(walletService, ordersService, logg))
			r.Post("/{escrowId}/dispute", controllers.DisputeEscrow(walletService, logg))
		})

		r.Route("/group-orders", func(r chi.Router) {
			r.Post("/", controllers.CreateGroupOrder(groupOrdersService, logg))
			r.Get("/", controllers.ListOpenGroupOrders(groupOrdersService, logg))
			r.Get("/{groupOrderId}", controllers.GetGroupOrder(groupOrdersService, logg))
			r.Put("/{groupOrderId}/quantities", controllers.UpdateGroupQuantities(groupOrdersService, logg))
			r.Post("/{groupOrderId}/join", controllers.JoinGroupOrder(groupOrdersService, logg))
			r.Post("/{groupOrderId}/leave", controllers.LeaveGroupOrder(groupOrdersService, logg))
			r.Post("/{groupOrderId}/close", controllers.CloseGroupOrder(groupOrdersService, logg))
			r.Post("/{groupOrderId}/cancel", controllers.CancelGroupOrder(groupOrdersService, logg))
		})
	})

	return r
}
